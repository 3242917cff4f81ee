package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hardcoding/fbxgrab/internal/logging"
)

func testClient() *Client {
	return NewClient(logging.NewLogger(io.Discard))
}

func TestGetUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"result":{"challenge":"abc"}}`)
	}))
	defer srv.Close()

	raw, err := testClient().Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var result struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result.Challenge != "abc" {
		t.Errorf("expected challenge abc, got %q", result.Challenge)
	}
}

func TestEnvelopeFailureBeatsHTTPStatus(t *testing.T) {
	// A 200 with success:false is still a failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"error_code":"task_not_found","msg":"no such task"}`)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusOK || apiErr.Code != "task_not_found" || apiErr.Msg != "no such task" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
}

func TestAuthRequiredCarriesChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success":false,"error_code":"auth_required","msg":"expired","result":{"challenge":"fresh"}}`)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL, nil)
	if !IsAuthRequired(err) {
		t.Fatalf("expected auth_required, got %v", err)
	}
	if got := ChallengeFrom(err); got != "fresh" {
		t.Errorf("expected challenge fresh, got %q", got)
	}
}

func TestInvalidTokenHasNoChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success":false,"error_code":"invalid_token","msg":"revoked"}`)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL, nil)
	if !IsInvalidToken(err) {
		t.Fatalf("expected invalid_token, got %v", err)
	}
	if IsAuthRequired(err) {
		t.Error("invalid_token must not read as auth_required")
	}
	if got := ChallengeFrom(err); got != "" {
		t.Errorf("expected no challenge, got %q", got)
	}
}

func TestMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestPostSendsJSONBodyAndHeaders(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(AuthHeader)
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"success":true,"result":{}}`)
	}))
	defer srv.Close()

	body := map[string]string{"download_url": "http://example.com/file.iso"}
	_, err := testClient().Post(context.Background(), srv.URL, body, map[string]string{AuthHeader: "tok"})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if gotAuth != "tok" {
		t.Errorf("expected auth header tok, got %q", gotAuth)
	}
	if gotBody["download_url"] != "http://example.com/file.iso" {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestGetJSONBareDocument(t *testing.T) {
	// The discovery endpoint replies without the envelope.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"api_version":"3.0","api_base_url":"/api/"}`)
	}))
	defer srv.Close()

	var out struct {
		APIVersion string `json:"api_version"`
		APIBaseURL string `json:"api_base_url"`
	}
	if err := testClient().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.APIVersion != "3.0" || out.APIBaseURL != "/api/" {
		t.Errorf("unexpected document %+v", out)
	}
}

func TestForbiddenIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"success":false,"error_code":"auth_required"}`)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL, nil)
	if !IsAuthRequired(err) {
		t.Fatalf("expected auth_required, got %v", err)
	}
	if calls != 1 {
		t.Errorf("403 must reach the caller untouched, got %d attempts", calls)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	withMsg := &APIError{Status: 403, Code: "auth_required", Msg: "expired"}
	if got := withMsg.Error(); got != "device error auth_required (status 403): expired" {
		t.Errorf("unexpected message %q", got)
	}
	bare := &APIError{Status: 500, Code: "internal_error"}
	if got := bare.Error(); got != "device error internal_error (status 500)" {
		t.Errorf("unexpected message %q", got)
	}
}
