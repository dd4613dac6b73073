// Package systemd integrates the daemon with the systemd service
// manager through the sd_notify protocol.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/framegrab/internal/logging"
)

// NotifyReady tells systemd the service finished starting up. Outside
// a systemd unit this is a no-op.
func NotifyReady() {
	notify(daemon.SdNotifyReady)
}

// NotifyStopping tells systemd a shutdown is in progress.
func NotifyStopping() {
	notify(daemon.SdNotifyStopping)
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.GetLogger("systemd").Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logging.GetLogger("systemd").Debug("Notified service manager", "state", state)
	}
}

// RunWatchdog pings the systemd watchdog at half the configured
// interval until the context is cancelled. Returns immediately when
// WatchdogSec is not set on the unit.
func RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	logger := logging.GetLogger("systemd")
	logger.Info("Watchdog enabled", "interval", interval)

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("Watchdog ping failed", "error", err)
			}
		}
	}
}
