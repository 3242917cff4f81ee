// Package notify provides cross-platform desktop notifications for
// fbxgrab, using github.com/gen2brain/beeep.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/hardcoding/fbxgrab/internal/config"
	"github.com/hardcoding/fbxgrab/internal/logging"
)

const title = "Freebox server"

// Notifier handles desktop notifications.
type Notifier struct {
	logger *logging.Logger
	cfg    config.NotificationConfig

	// send delivers one notification; replaced in tests.
	send func(message string) error
}

// NewNotifier creates a notifier with the given configuration.
func NewNotifier(cfg config.NotificationConfig, logger *logging.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		cfg:    cfg,
		send: func(message string) error {
			// beeep.Notify is cross-platform:
			// - Windows: toast notifications
			// - macOS: NSUserNotificationCenter
			// - Linux: D-Bus notifications
			return beeep.Notify(title, message, "")
		},
	}
}

// DownloadAdded notifies that a download was handed to the device.
func (n *Notifier) DownloadAdded(label string) {
	if !n.cfg.Enabled || !n.cfg.ShowDownloadAdded {
		return
	}

	message := "The download has been added."
	if label != "" {
		message = fmt.Sprintf("The download has been added to %s.", truncate(label, 60))
	}
	if err := n.send(message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send download added notification")
	}
}

// AuthorizationRequired reminds the user to grant the application on the
// device's front panel.
func (n *Notifier) AuthorizationRequired() {
	if !n.cfg.Enabled {
		return
	}

	if err := n.send("Please authorize the application on the device front panel."); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send authorization notification")
	}
}

// ConnectionLost notifies that the device stopped answering.
func (n *Notifier) ConnectionLost(reason string) {
	if !n.cfg.Enabled || !n.cfg.ShowConnectionLost {
		return
	}

	message := "Connection to the device was lost."
	if reason != "" {
		message = fmt.Sprintf("Connection to the device was lost: %s", truncate(reason, 100))
	}
	if err := n.send(message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send connection lost notification")
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
