// Package transport issues anonymous HTTP requests against the device API
// and parses its JSON reply envelope into typed results at the boundary.
package transport

import (
	"errors"
	"fmt"
)

// Error codes returned by the device inside a failed reply envelope.
const (
	CodeAuthRequired = "auth_required"
	CodeInvalidToken = "invalid_token"
)

// ErrMalformedReply indicates a response body that is not the expected
// JSON envelope. Callers treat it like any other failed remote call.
var ErrMalformedReply = errors.New("malformed device reply")

// APIError is a failed reply envelope from the device.
//
// Status carries the HTTP status code; 403 is the device's universal
// "auth problem" signal. When Code is auth_required the device includes a
// fresh challenge in the error body, which the session layer uses to
// re-open a session without a new login round trip.
type APIError struct {
	Status    int
	Code      string
	Msg       string
	Challenge string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("device error %s (status %d): %s", e.Code, e.Status, e.Msg)
	}
	return fmt.Sprintf("device error %s (status %d)", e.Code, e.Status)
}

// IsAuthRequired reports whether err is a 403 carrying auth_required.
func IsAuthRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeAuthRequired
}

// IsInvalidToken reports whether err is a 403 carrying invalid_token.
func IsInvalidToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeInvalidToken
}

// ChallengeFrom extracts the fresh challenge from an auth_required error,
// or "" when err carries none.
func ChallengeFrom(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Challenge
	}
	return ""
}
