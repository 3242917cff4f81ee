// Package session owns the device connection lifecycle: discovery,
// authorization, track polling, session opening and re-authentication on
// expiry. Every authenticated component goes through its Do wrapper so the
// 403 recovery contract lives in exactly one place.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound means discovery got no parsable answer. Not
	// retried automatically; the caller decides when to try again.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNotAuthorized means the device rejected the authorization
	// request outright.
	ErrNotAuthorized = errors.New("application not authorized")

	// ErrNoSession means an authenticated call was attempted before a
	// session was opened. No network call is made.
	ErrNoSession = errors.New("no open session")

	// ErrCredentialRevoked means the device reported the stored app
	// token invalid. The credential has been cleared and the state
	// machine reset to discovery.
	ErrCredentialRevoked = errors.New("app credential revoked")

	// ErrNotDiscovered means an operation needing the endpoint ran
	// before discovery succeeded.
	ErrNotDiscovered = errors.New("device not discovered yet")
)

// TrackError is a terminal authorization track status other than granted.
type TrackError struct {
	Status TrackStatus
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("authorization track ended with status %q", e.Status)
}
