// Package systemd reports service state to the systemd manager when the
// server runs as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	send   func(state string) (bool, error)
}

// NewNotifier creates a notifier writing to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

// Ready marks the service as started.
func (n *Notifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

// Stopping marks the service as shutting down.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

// Status publishes a free-form status line shown by systemctl status.
func (n *Notifier) Status(status string) {
	n.notify("STATUS=" + status)
}

func (n *Notifier) notify(state string) {
	sent, err := n.send(state)
	switch {
	case err != nil:
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
	case sent:
		n.logger.Debug("Notified systemd", "state", state)
	}
}
