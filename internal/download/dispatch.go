// Package download submits download tasks to the device queue and drives
// the ETA badge by polling the task list.
package download

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hardcoding/fbxgrab/internal/fs"
	"github.com/hardcoding/fbxgrab/internal/logging"
	"github.com/hardcoding/fbxgrab/internal/notify"
	"github.com/hardcoding/fbxgrab/internal/session"
	"github.com/hardcoding/fbxgrab/internal/transport"
)

// StatusDownloading marks a task actively transferring; only those count
// toward the ETA badge.
const StatusDownloading = "downloading"

// Task is one entry of the device download queue.
type Task struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	ETA    int64  `json:"eta"`
}

// Dispatcher submits downloads and lists the queue, authenticated
// through the session manager.
type Dispatcher struct {
	sessions *session.Manager
	tr       *transport.Client
	notifier *notify.Notifier
	logger   *logging.Logger
}

// NewDispatcher creates a download dispatcher.
func NewDispatcher(sessions *session.Manager, tr *transport.Client, notifier *notify.Notifier, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{sessions: sessions, tr: tr, notifier: notifier, logger: logger}
}

type addRequest struct {
	DownloadURL string `json:"download_url"`
	DownloadDir string `json:"download_dir"`
}

// Add hands url to the device, to be stored under the encoded remote
// path. Returns session.ErrNoSession without a network call when no
// session is open. On success the user gets a desktop notification.
func (d *Dispatcher) Add(ctx context.Context, url, path string) error {
	d.logger.Debug().Str("url", url).Msg("adding download")

	endpoint, err := d.sessions.APIURL("downloads/add")
	if err != nil {
		return err
	}

	err = d.sessions.Do(ctx, func(ctx context.Context, token string) error {
		_, err := d.tr.Post(ctx, endpoint, addRequest{DownloadURL: url, DownloadDir: path},
			map[string]string{transport.AuthHeader: token})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add download: %w", err)
	}

	d.logger.Info().Str("url", url).Msg("download added")
	if d.notifier != nil {
		label, _ := fs.DecodePath(path)
		d.notifier.DownloadAdded(label)
	}
	return nil
}

// List fetches the current download queue.
func (d *Dispatcher) List(ctx context.Context) ([]Task, error) {
	endpoint, err := d.sessions.APIURL("downloads/")
	if err != nil {
		return nil, err
	}

	var tasks []Task
	err = d.sessions.Do(ctx, func(ctx context.Context, token string) error {
		raw, err := d.tr.Get(ctx, endpoint, map[string]string{transport.AuthHeader: token})
		if err != nil {
			return err
		}
		tasks = nil
		if err := json.Unmarshal(raw, &tasks); err != nil {
			return fmt.Errorf("%w: %v", transport.ErrMalformedReply, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	return tasks, nil
}
