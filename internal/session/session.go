package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hardcoding/fbxgrab/internal/config"
	"github.com/hardcoding/fbxgrab/internal/events"
	"github.com/hardcoding/fbxgrab/internal/logging"
	"github.com/hardcoding/fbxgrab/internal/store"
	"github.com/hardcoding/fbxgrab/internal/transport"
)

// State is the connection lifecycle state.
type State string

const (
	StateUnstarted   State = "unstarted"
	StateDiscovering State = "discovering"
	StateAuthorizing State = "authorizing"
	StatePolling     State = "polling"
	StateLoggingIn   State = "logging-in"
	StateOpen        State = "session-open"
	StateExpired     State = "expired"
	StateFailed      State = "failed"
)

// TrackStatus is the status of a pending authorization request.
type TrackStatus string

const (
	TrackPending TrackStatus = "pending"
	TrackGranted TrackStatus = "granted"
	TrackDenied  TrackStatus = "denied"
	TrackTimeout TrackStatus = "timeout"
	TrackUnknown TrackStatus = "unknown"
)

// Endpoint is the discovered device API endpoint. Immutable once set,
// until the next discovery.
type Endpoint struct {
	APIVersion string `json:"api_version"`
	APIBaseURL string `json:"api_base_url"`
}

const (
	lastStep = 5

	defaultPollInterval = 2 * time.Second
	defaultRetryDelay   = 500 * time.Millisecond
)

// Notifier surfaces connection events on the desktop. Satisfied by
// *notify.Notifier; nil disables notifications.
type Notifier interface {
	AuthorizationRequired()
	ConnectionLost(reason string)
}

// Manager drives the session state machine. All state mutations go
// through it; the session token is never reachable as ambient state.
type Manager struct {
	transport *transport.Client
	creds     *store.CredentialStore
	device    config.DeviceConfig
	bus       *events.Bus
	notifier  Notifier
	logger    *logging.Logger

	mu           sync.Mutex
	state        State
	failReason   string
	endpoint     *Endpoint
	trackID      string
	sessionToken string

	// reauthMu serializes 403-triggered session re-opens. A concurrent
	// 403 waits here and at worst opens a harmless duplicate session.
	reauthMu sync.Mutex

	// PollInterval is the wait between authorization track polls.
	// RetryDelay is the pause before re-issuing a call after a
	// successful re-authentication. Overridable before first use.
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// NewManager creates a session manager. The credential store should
// already be loaded so a persisted authorization can be reused.
func NewManager(tr *transport.Client, creds *store.CredentialStore, device config.DeviceConfig, bus *events.Bus, notifier Notifier, logger *logging.Logger) *Manager {
	return &Manager{
		transport:    tr,
		creds:        creds,
		device:       device,
		bus:          bus,
		notifier:     notifier,
		logger:       logger,
		state:        StateUnstarted,
		PollInterval: defaultPollInterval,
		RetryDelay:   defaultRetryDelay,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailReason returns the reason recorded with StateFailed.
func (m *Manager) FailReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReason
}

// Endpoint returns the discovered endpoint, or nil before discovery.
func (m *Manager) Endpoint() *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endpoint == nil {
		return nil
	}
	e := *m.endpoint
	return &e
}

// Token returns the current session token. ok is false until a session
// has been opened or after it was invalidated.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionToken, m.sessionToken != ""
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) fail(reason string) {
	m.mu.Lock()
	m.state = StateFailed
	m.failReason = reason
	m.mu.Unlock()
}

// APIURL builds a versioned API URL from the discovered endpoint, e.g.
// APIURL("login/session/") -> http://host/api/v3/login/session/.
func (m *Manager) APIURL(path string) (string, error) {
	m.mu.Lock()
	ep := m.endpoint
	m.mu.Unlock()
	if ep == nil {
		return "", ErrNotDiscovered
	}

	major := ep.APIVersion
	if i := strings.IndexByte(major, '.'); i >= 0 {
		major = major[:i]
	}
	base := strings.TrimSuffix(m.device.DiscoveryURL, "/")
	return fmt.Sprintf("%s%sv%s/%s", base, ep.APIBaseURL, major, path), nil
}

// Connect runs the whole sequence: discover, authorize, poll the track,
// log in and open a session. Terminal track failures and revoked tokens
// clear the credential and restart the cycle from discovery, so the only
// ways out are an open session, a non-auth failure, or ctx cancellation.
func (m *Manager) Connect(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.publish(1, "Connecting to the device...", events.SeverityInfo)
		if err := m.Discover(ctx); err != nil {
			m.publish(1, "Unable to find the device.", events.SeverityError)
			m.notifyLost("the device did not answer")
			return err
		}
		m.publish(2, "Device found, requesting authorization...", events.SeverityInfo)

		trackID, err := m.Authorize(ctx)
		if err != nil {
			m.publish(2, "Unable to authorize the application.", events.SeverityError)
			return err
		}

		if err := m.PollTrack(ctx, trackID); err != nil {
			var trackErr *TrackError
			if errors.As(err, &trackErr) {
				// Credential already cleared; run a fresh cycle.
				m.publish(3, "The application was not authorized.", events.SeverityError)
				continue
			}
			return err
		}

		m.publish(4, "Authorization granted, logging in...", events.SeverityInfo)
		challenge, err := m.Login(ctx)
		if err != nil {
			return err
		}

		if err := m.OpenSession(ctx, challenge); err != nil {
			if errors.Is(err, ErrCredentialRevoked) {
				// Known-bad credential: restart discovery immediately.
				m.publish(4, "Credential rejected, requesting a new authorization...", events.SeverityError)
				continue
			}
			m.publish(4, "Unable to open a session.", events.SeverityError)
			m.notifyLost("unable to open a session")
			return err
		}

		m.publish(5, "Connected to the device.", events.SeveritySuccess)
		return nil
	}
}

// Discover fetches the device endpoint from the fixed discovery URL.
func (m *Manager) Discover(ctx context.Context) error {
	m.setState(StateDiscovering)

	url := strings.TrimSuffix(m.device.DiscoveryURL, "/") + "/api_version"

	var ep Endpoint
	if err := m.transport.GetJSON(ctx, url, &ep); err != nil {
		m.fail("device-not-found")
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	if ep.APIVersion == "" || ep.APIBaseURL == "" {
		m.fail("device-not-found")
		return ErrDeviceNotFound
	}

	m.mu.Lock()
	m.endpoint = &ep
	m.state = StateAuthorizing
	m.mu.Unlock()

	m.logger.Debug().
		Str("api_version", ep.APIVersion).
		Str("api_base_url", ep.APIBaseURL).
		Msg("device discovered")
	return nil
}

type authorizeRequest struct {
	AppID      string `json:"app_id"`
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	DeviceName string `json:"device_name"`
}

type authorizeResult struct {
	AppToken string      `json:"app_token"`
	TrackID  json.Number `json:"track_id"`
}

// Authorize obtains an authorization track. A persisted credential short
// circuits straight to polling with its stored track id.
func (m *Manager) Authorize(ctx context.Context) (string, error) {
	if c := m.creds.Get(); c != nil {
		m.logger.Debug().Str("track_id", c.TrackID).Msg("authorization restored from store")
		m.mu.Lock()
		m.trackID = c.TrackID
		m.state = StatePolling
		m.mu.Unlock()
		return c.TrackID, nil
	}

	url, err := m.APIURL("login/authorize/")
	if err != nil {
		return "", err
	}

	body := authorizeRequest{
		AppID:      m.device.AppID,
		AppName:    m.device.AppName,
		AppVersion: m.device.AppVersion,
		DeviceName: m.device.DeviceName,
	}
	raw, err := m.transport.Post(ctx, url, body, nil)
	if err != nil {
		m.fail("not-authorized")
		return "", fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}

	var result authorizeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		m.fail("not-authorized")
		return "", fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
	}

	trackID := result.TrackID.String()
	if err := m.creds.Save(result.AppToken, trackID); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.trackID = trackID
	m.state = StatePolling
	m.mu.Unlock()

	m.logger.Info().Str("track_id", trackID).Msg("application token retrieved")
	return trackID, nil
}

type trackResult struct {
	Status    string `json:"status"`
	Challenge string `json:"challenge"`
}

// PollTrack polls the authorization track until a terminal status. While
// pending it waits a fixed interval between attempts and surfaces a
// reminder to the user each time. A terminal status other than granted
// clears the credential and resets to discovery before returning a
// *TrackError.
func (m *Manager) PollTrack(ctx context.Context, trackID string) error {
	m.setState(StatePolling)

	url, err := m.APIURL("login/authorize/" + trackID)
	if err != nil {
		return err
	}

	prompted := false
	for {
		raw, err := m.transport.Get(ctx, url, nil)
		if err != nil {
			return fmt.Errorf("failed to track authorization: %w", err)
		}

		var result trackResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
		}

		status := TrackStatus(result.Status)
		m.logger.Debug().Str("status", string(status)).Msg("authorization track status")

		switch status {
		case TrackGranted:
			m.setState(StateLoggingIn)
			return nil

		case TrackPending:
			m.publish(3, "Please authorize the application on the device front panel.", events.SeverityInfo)
			// One desktop prompt per authorization attempt, not one
			// per poll round.
			if !prompted {
				prompted = true
				if m.notifier != nil {
					m.notifier.AuthorizationRequired()
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.PollInterval):
			}

		case TrackDenied, TrackTimeout, TrackUnknown:
			if err := m.creds.Clear(); err != nil {
				m.logger.Warn().Err(err).Msg("failed to clear credential")
			}
			m.setState(StateDiscovering)
			return &TrackError{Status: status}

		default:
			return fmt.Errorf("%w: unexpected track status %q", transport.ErrMalformedReply, result.Status)
		}
	}
}

type loginResult struct {
	Challenge string `json:"challenge"`
}

// Login fetches a fresh challenge for opening a session.
func (m *Manager) Login(ctx context.Context) (string, error) {
	m.setState(StateLoggingIn)

	url, err := m.APIURL("login/")
	if err != nil {
		return "", err
	}
	raw, err := m.transport.Get(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	var result loginResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
	}
	return result.Challenge, nil
}

type sessionRequest struct {
	AppID    string `json:"app_id"`
	Password string `json:"password"`
}

type sessionResult struct {
	SessionToken string `json:"session_token"`
}

// OpenSession answers the challenge with the app token and stores the
// resulting session token. An auth_required or invalid_token rejection
// means the stored credential is no longer honored: it is cleared and the
// machine reset to discovery (immediate restart, the credential is
// already known bad).
func (m *Manager) OpenSession(ctx context.Context, challenge string) error {
	creds := m.creds.Get()
	if creds == nil {
		return ErrNotAuthorized
	}

	url, err := m.APIURL("login/session/")
	if err != nil {
		return err
	}

	body := sessionRequest{
		AppID:    m.device.AppID,
		Password: sessionPassword(challenge, creds.AppToken),
	}
	raw, err := m.transport.Post(ctx, url, body, nil)
	if err != nil {
		if transport.IsAuthRequired(err) || transport.IsInvalidToken(err) {
			if clearErr := m.creds.Clear(); clearErr != nil {
				m.logger.Warn().Err(clearErr).Msg("failed to clear credential")
			}
			m.mu.Lock()
			m.sessionToken = ""
			m.state = StateDiscovering
			m.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrCredentialRevoked, err)
		}
		return fmt.Errorf("failed to open session: %w", err)
	}

	var result sessionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
	}

	m.mu.Lock()
	m.sessionToken = result.SessionToken
	m.state = StateOpen
	m.mu.Unlock()

	m.logger.Info().Msg("session opened")
	return nil
}

// Do runs an authenticated call under the re-authentication contract.
//
// The call receives the current session token. On a 403 carrying
// auth_required, a session is re-opened using the challenge from the
// error body and the call re-issued exactly once after a short delay.
// On invalid_token the credential is cleared and ErrCredentialRevoked
// returned: the caller has to run a full Connect again. Any other error
// is returned untouched.
func (m *Manager) Do(ctx context.Context, call func(ctx context.Context, sessionToken string) error) error {
	token, ok := m.Token()
	if !ok {
		return ErrNoSession
	}

	err := call(ctx, token)
	if err == nil {
		return nil
	}

	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		return err
	}

	switch apiErr.Code {
	case transport.CodeAuthRequired:
		if reauthErr := m.reopenSession(ctx, apiErr.Challenge); reauthErr != nil {
			return fmt.Errorf("re-authentication failed: %w", reauthErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.RetryDelay):
		}
		token, ok = m.Token()
		if !ok {
			return ErrNoSession
		}
		return call(ctx, token)

	case transport.CodeInvalidToken:
		if clearErr := m.creds.Clear(); clearErr != nil {
			m.logger.Warn().Err(clearErr).Msg("failed to clear credential")
		}
		m.mu.Lock()
		m.sessionToken = ""
		m.state = StateDiscovering
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCredentialRevoked, err)

	default:
		m.logger.Warn().Str("error_code", apiErr.Code).Msg("unhandled device error")
		return err
	}
}

// reopenSession discards the expired session and opens a new one using
// challenge, falling back to a fresh login when the error body carried
// none. Serialized so concurrent 403s do not stampede the device.
func (m *Manager) reopenSession(ctx context.Context, challenge string) error {
	m.reauthMu.Lock()
	defer m.reauthMu.Unlock()

	m.mu.Lock()
	m.sessionToken = "" // never mutated in place: discard, then regenerate
	m.state = StateExpired
	m.mu.Unlock()

	if challenge == "" {
		fresh, err := m.Login(ctx)
		if err != nil {
			return err
		}
		challenge = fresh
	}
	return m.OpenSession(ctx, challenge)
}

func (m *Manager) notifyLost(reason string) {
	if m.notifier != nil {
		m.notifier.ConnectionLost(reason)
	}
}

func (m *Manager) publish(step int, message string, severity events.Severity) {
	if m.bus != nil {
		m.bus.PublishStatus(step, lastStep, message, severity)
	}
}

// sessionPassword derives the session password from the login challenge
// and the app token: lowercase hex HMAC-SHA1 keyed with the token.
func sessionPassword(challenge, appToken string) string {
	mac := hmac.New(sha1.New, []byte(appToken))
	mac.Write([]byte(challenge))
	return hex.EncodeToString(mac.Sum(nil))
}
