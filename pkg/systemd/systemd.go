// Package systemd reports service state to systemd via sd_notify.
//
// All calls are no-ops (false, nil) when NOTIFY_SOCKET is unset, so the
// binary behaves the same outside systemd.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready signals READY=1 with a status line.
func Ready(status string) (bool, error) {
	return notify(daemon.SdNotifyReady, status)
}

// Reloading signals RELOADING=1. Call Ready again once the reload finished.
func Reloading() (bool, error) {
	return notify(daemon.SdNotifyReloading, "reloading configuration")
}

// Stopping signals STOPPING=1.
func Stopping() (bool, error) {
	return notify(daemon.SdNotifyStopping, "shutting down")
}

// Status updates the free-form STATUS= line.
func Status(status string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+status)
}

func notify(state, status string) (bool, error) {
	if status != "" {
		state = fmt.Sprintf("%s\nSTATUS=%s", state, status)
	}
	return daemon.SdNotify(false, state)
}

// Watchdog pings WATCHDOG=1 at half the configured WatchdogSec until ctx is
// done. It returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
