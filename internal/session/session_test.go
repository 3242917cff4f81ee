package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hardcoding/fbxgrab/internal/config"
	"github.com/hardcoding/fbxgrab/internal/logging"
	"github.com/hardcoding/fbxgrab/internal/store"
	"github.com/hardcoding/fbxgrab/internal/transport"
)

// fakeDevice scripts the device wire protocol for tests.
type fakeDevice struct {
	srv *httptest.Server

	mu             sync.Mutex
	trackStatuses  []string // popped one per poll, last repeats
	authorizeCalls int
	sessionOpens   int
	probeCalls     int
	probe403Left   int
	appToken       string
	challenge      string
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	d := &fakeDevice{
		trackStatuses: []string{"granted"},
		appToken:      "fake-app-token",
		challenge:     "challenge-1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api_version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"api_version":"3.0","api_base_url":"/api/"}`)
	})
	mux.HandleFunc("/api/v3/login/authorize/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			d.mu.Lock()
			d.authorizeCalls++
			d.mu.Unlock()
			writeOK(w, map[string]interface{}{"app_token": d.appToken, "track_id": 42})
			return
		}
		// GET /login/authorize/{track_id}
		d.mu.Lock()
		status := d.trackStatuses[0]
		if len(d.trackStatuses) > 1 {
			d.trackStatuses = d.trackStatuses[1:]
		}
		d.mu.Unlock()
		writeOK(w, map[string]interface{}{"status": status})
	})
	mux.HandleFunc("/api/v3/login/", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]interface{}{"challenge": d.challenge})
	})
	mux.HandleFunc("/api/v3/login/session/", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.sessionOpens++
		n := d.sessionOpens
		d.mu.Unlock()
		writeOK(w, map[string]interface{}{"session_token": fmt.Sprintf("session-%d", n)})
	})
	mux.HandleFunc("/api/v3/probe", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.probeCalls++
		expired := d.probe403Left > 0
		if expired {
			d.probe403Left--
		}
		d.mu.Unlock()
		if expired {
			writeErr(w, http.StatusForbidden, "auth_required", "challenge-2")
			return
		}
		if r.Header.Get(transport.AuthHeader) == "" {
			writeErr(w, http.StatusForbidden, "auth_required", "challenge-2")
			return
		}
		writeOK(w, map[string]interface{}{"ok": true})
	})

	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func writeOK(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "result": result})
}

func writeErr(w http.ResponseWriter, status int, code, challenge string) {
	w.WriteHeader(status)
	body := map[string]interface{}{"success": false, "error_code": code, "msg": "test error"}
	if challenge != "" {
		body["result"] = map[string]interface{}{"challenge": challenge}
	}
	json.NewEncoder(w).Encode(body)
}

func newTestManager(t *testing.T, d *fakeDevice) (*Manager, *store.CredentialStore) {
	t.Helper()

	logger := logging.NewLogger(io.Discard)
	creds := store.NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err := creds.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	device := config.DeviceConfig{
		DiscoveryURL: d.srv.URL,
		DeviceName:   "Test Workstation",
		AppID:        "fr.hardcoding.fbxgrab",
		AppName:      "fbxgrab download companion",
		AppVersion:   "0.4",
	}

	m := NewManager(transport.NewClient(logger), creds, device, nil, nil, logger)
	m.PollInterval = time.Millisecond
	m.RetryDelay = time.Millisecond
	return m, creds
}

func TestSessionPassword(t *testing.T) {
	p1 := sessionPassword("challenge", "token")
	p2 := sessionPassword("challenge", "token")
	if p1 != p2 {
		t.Errorf("password not deterministic: %q vs %q", p1, p2)
	}
	if len(p1) != 40 {
		t.Errorf("expected 40 hex chars, got %d (%q)", len(p1), p1)
	}
	if sessionPassword("other", "token") == p1 {
		t.Error("different challenges must yield different passwords")
	}
	if sessionPassword("challenge", "other") == p1 {
		t.Error("different tokens must yield different passwords")
	}
}

func TestConnectFreshInstall(t *testing.T) {
	d := newFakeDevice(t)
	d.trackStatuses = []string{"pending", "pending", "granted"}
	m, creds := newTestManager(t, d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := m.State(); got != StateOpen {
		t.Errorf("expected state %q, got %q", StateOpen, got)
	}
	if _, ok := m.Token(); !ok {
		t.Error("expected a session token after Connect")
	}
	if d.authorizeCalls != 1 {
		t.Errorf("expected 1 authorize call, got %d", d.authorizeCalls)
	}

	c := creds.Get()
	if c == nil {
		t.Fatal("credential not persisted")
	}
	if c.AppToken != "fake-app-token" || c.TrackID != "42" {
		t.Errorf("unexpected credential %+v", c)
	}
}

func TestConnectReusesPersistedCredential(t *testing.T) {
	d := newFakeDevice(t)
	m, creds := newTestManager(t, d)
	if err := creds.Save("fake-app-token", "42"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if d.authorizeCalls != 0 {
		t.Errorf("expected no authorize call with a stored credential, got %d", d.authorizeCalls)
	}
}

func TestDiscoverDeviceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := &fakeDevice{srv: srv}
	m, _ := newTestManager(t, d)

	err := m.Discover(context.Background())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if m.State() != StateFailed {
		t.Errorf("expected state %q, got %q", StateFailed, m.State())
	}
	if m.FailReason() != "device-not-found" {
		t.Errorf("unexpected fail reason %q", m.FailReason())
	}
}

func TestPollTrackDeniedClearsCredential(t *testing.T) {
	d := newFakeDevice(t)
	d.trackStatuses = []string{"pending", "denied"}
	m, creds := newTestManager(t, d)

	if err := creds.Save("fake-app-token", "42"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	err := m.PollTrack(context.Background(), "42")
	var trackErr *TrackError
	if !errors.As(err, &trackErr) {
		t.Fatalf("expected TrackError, got %v", err)
	}
	if trackErr.Status != TrackDenied {
		t.Errorf("expected denied, got %q", trackErr.Status)
	}
	if creds.Get() != nil {
		t.Error("credential should be cleared after denial")
	}
	if m.State() != StateDiscovering {
		t.Errorf("expected state %q, got %q", StateDiscovering, m.State())
	}
}

func TestDoWithoutSession(t *testing.T) {
	d := newFakeDevice(t)
	m, _ := newTestManager(t, d)

	err := m.Do(context.Background(), func(ctx context.Context, token string) error {
		t.Error("call must not run without a session")
		return nil
	})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

// TestDoReauthRetriesOnce covers the re-authentication contract: one 403
// with auth_required triggers exactly one new session open and one retry
// of the original call.
func TestDoReauthRetriesOnce(t *testing.T) {
	d := newFakeDevice(t)
	m, _ := newTestManager(t, d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	opensBefore := d.sessionOpens
	d.probe403Left = 1

	tokens := make([]string, 0, 2)
	probeURL, err := m.APIURL("probe")
	if err != nil {
		t.Fatalf("APIURL failed: %v", err)
	}

	tr := transport.NewClient(logging.NewLogger(io.Discard))
	err = m.Do(context.Background(), func(ctx context.Context, token string) error {
		tokens = append(tokens, token)
		_, err := tr.Get(ctx, probeURL, map[string]string{transport.AuthHeader: token})
		return err
	})
	if err != nil {
		t.Fatalf("Do failed after re-auth: %v", err)
	}

	if len(tokens) != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", len(tokens))
	}
	if tokens[0] == tokens[1] {
		t.Error("retry must use the regenerated session token")
	}
	if got := d.sessionOpens - opensBefore; got != 1 {
		t.Errorf("expected exactly one new session open, got %d", got)
	}
	if d.probeCalls != 2 {
		t.Errorf("expected 2 probe calls, got %d", d.probeCalls)
	}
}

func TestDoInvalidTokenClearsCredential(t *testing.T) {
	d := newFakeDevice(t)
	m, creds := newTestManager(t, d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err := m.Do(context.Background(), func(ctx context.Context, token string) error {
		return &transport.APIError{Status: 403, Code: transport.CodeInvalidToken}
	})
	if !errors.Is(err, ErrCredentialRevoked) {
		t.Fatalf("expected ErrCredentialRevoked, got %v", err)
	}
	if creds.Get() != nil {
		t.Error("credential should be cleared on invalid_token")
	}
	if _, ok := m.Token(); ok {
		t.Error("session token should be discarded on invalid_token")
	}
	if m.State() != StateDiscovering {
		t.Errorf("expected state %q, got %q", StateDiscovering, m.State())
	}
}

func TestDoOtherErrorsPassThrough(t *testing.T) {
	d := newFakeDevice(t)
	m, creds := newTestManager(t, d)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	calls := 0
	wantErr := &transport.APIError{Status: 403, Code: "insufficient_rights"}
	err := m.Do(context.Background(), func(ctx context.Context, token string) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the original error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("unknown 403 codes must not be retried, got %d calls", calls)
	}
	if creds.Get() == nil {
		t.Error("credential must survive unknown error codes")
	}
}

func TestAPIURLBeforeDiscovery(t *testing.T) {
	d := newFakeDevice(t)
	m, _ := newTestManager(t, d)

	if _, err := m.APIURL("login/"); !errors.Is(err, ErrNotDiscovered) {
		t.Fatalf("expected ErrNotDiscovered, got %v", err)
	}
}

func TestAPIURLVersioning(t *testing.T) {
	d := newFakeDevice(t)
	m, _ := newTestManager(t, d)

	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	url, err := m.APIURL("downloads/add")
	if err != nil {
		t.Fatalf("APIURL failed: %v", err)
	}
	want := d.srv.URL + "/api/v3/downloads/add"
	if url != want {
		t.Errorf("expected %q, got %q", want, url)
	}
}

type recordingNotifier struct {
	prompts int
	lost    []string
}

func (r *recordingNotifier) AuthorizationRequired()       { r.prompts++ }
func (r *recordingNotifier) ConnectionLost(reason string) { r.lost = append(r.lost, reason) }

func TestConnectPromptsOncePerAuthorization(t *testing.T) {
	d := newFakeDevice(t)
	d.trackStatuses = []string{"pending", "pending", "pending", "granted"}
	m, _ := newTestManager(t, d)
	rec := &recordingNotifier{}
	m.notifier = rec

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if rec.prompts != 1 {
		t.Errorf("expected one desktop prompt for the whole pending phase, got %d", rec.prompts)
	}
	if len(rec.lost) != 0 {
		t.Errorf("no connection was lost, got %v", rec.lost)
	}
}

func TestConnectNotifiesWhenDeviceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := &fakeDevice{srv: srv}
	m, _ := newTestManager(t, d)
	rec := &recordingNotifier{}
	m.notifier = rec

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if len(rec.lost) != 1 {
		t.Fatalf("expected one connection lost notification, got %d", len(rec.lost))
	}
}
