package fs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hardcoding/fbxgrab/internal/logging"
	"github.com/hardcoding/fbxgrab/internal/session"
	"github.com/hardcoding/fbxgrab/internal/transport"
)

// Client exposes the device's fs.ls and fs.mkdir calls, authenticated
// through the session manager. Expired sessions are recovered by the
// manager's Do wrapper; callers never see the intermediate 403.
type Client struct {
	sessions *session.Manager
	tr       *transport.Client
	logger   *logging.Logger
}

// NewClient creates a remote directory client.
func NewClient(sessions *session.Manager, tr *transport.Client, logger *logging.Logger) *Client {
	return &Client{sessions: sessions, tr: tr, logger: logger}
}

// List fetches the content of an encoded remote path. onlyFolders
// restricts the listing to directories, which is what the folder picker
// wants. Returns session.ErrNoSession without a network call when no
// session is open.
func (c *Client) List(ctx context.Context, path string, onlyFolders bool) ([]Entry, error) {
	url, err := c.sessions.APIURL("fs/ls/" + path)
	if err != nil {
		return nil, err
	}
	only := "0"
	if onlyFolders {
		only = "1"
	}
	url += "?onlyFolder=" + only

	var entries []Entry
	err = c.sessions.Do(ctx, func(ctx context.Context, token string) error {
		raw, err := c.tr.Get(ctx, url, map[string]string{transport.AuthHeader: token})
		if err != nil {
			return err
		}
		entries = nil
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", path, err)
	}
	return entries, nil
}

type mkdirRequest struct {
	Parent  string `json:"parent"`
	Dirname string `json:"dirname"`
}

// MakeDirectory creates dirname under the encoded parent path. Returns
// session.ErrNoSession without a network call when no session is open.
func (c *Client) MakeDirectory(ctx context.Context, parent, dirname string) error {
	url, err := c.sessions.APIURL("fs/mkdir/")
	if err != nil {
		return err
	}

	err = c.sessions.Do(ctx, func(ctx context.Context, token string) error {
		_, err := c.tr.Post(ctx, url, mkdirRequest{Parent: parent, Dirname: dirname},
			map[string]string{transport.AuthHeader: token})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dirname, err)
	}

	c.logger.Info().Str("dirname", dirname).Msg("directory created")
	return nil
}
