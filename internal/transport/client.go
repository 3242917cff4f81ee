package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/hardcoding/fbxgrab/internal/logging"
)

// AuthHeader is the session token header expected by authenticated calls.
const AuthHeader = "X-Fbx-App-Auth"

// reply is the device's JSON envelope: {success, result} on success,
// {success:false, error_code, msg, result:{challenge}} on failure.
type reply struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	ErrorCode string          `json:"error_code"`
	Msg       string          `json:"msg"`
}

// challengeResult is the error-body payload carried by auth_required replies.
type challengeResult struct {
	Challenge string `json:"challenge"`
}

// retryLogger adapts retryablehttp's LeveledLogger to our logger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Msgf("retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Msgf("retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client issues anonymous requests against the device. It carries no
// cookie jar and no ambient credentials; authenticated calls pass the
// session token explicitly per request.
type Client struct {
	httpClient *nethttp.Client
	logger     *logging.Logger
}

// NewClient creates a transport client. Network-level failures and 5xx
// responses are retried with backoff; 4xx responses (403 included) are
// returned to the caller untouched, because 403 is the session layer's
// re-authentication signal, never a transport concern.
func NewClient(logger *logging.Logger) *Client {
	base := &nethttp.Client{
		Transport: &nethttp.Transport{
			MaxIdleConns:        8,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     60 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}

	return &Client{
		httpClient: retryClient.StandardClient(),
		logger:     logger,
	}
}

// Get issues a GET and returns the raw result payload from the envelope.
// headers may be nil.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (json.RawMessage, error) {
	return c.do(ctx, nethttp.MethodGet, url, nil, headers)
}

// Post marshals body as JSON, issues a POST and returns the raw result
// payload from the envelope. body and headers may be nil.
func (c *Client) Post(ctx context.Context, url string, body interface{}, headers map[string]string) (json.RawMessage, error) {
	return c.do(ctx, nethttp.MethodPost, url, body, headers)
}

// GetJSON issues a GET against an endpoint that replies with a bare JSON
// document instead of the envelope (the unversioned discovery endpoint).
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := c.roundTrip(ctx, nethttp.MethodGet, url, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, headers map[string]string) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseReply(resp)
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body interface{}, headers map[string]string) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug().Str("method", method).Str("url", url).Msg("device request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseReply decodes the envelope, turning failed replies into *APIError.
// The envelope is authoritative over the HTTP status: a 200 with
// success:false is still a failure.
func parseReply(resp *nethttp.Response) (json.RawMessage, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	var env reply
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrMalformedReply, resp.StatusCode, err)
	}

	if env.Success {
		return env.Result, nil
	}

	apiErr := &APIError{
		Status: resp.StatusCode,
		Code:   env.ErrorCode,
		Msg:    env.Msg,
	}
	// auth_required errors carry a fresh challenge in their result body.
	if env.ErrorCode == CodeAuthRequired && len(env.Result) > 0 {
		var cr challengeResult
		if err := json.Unmarshal(env.Result, &cr); err == nil {
			apiErr.Challenge = cr.Challenge
		}
	}
	return nil, apiErr
}
