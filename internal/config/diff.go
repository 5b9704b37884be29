package config

import (
	"strings"

	logx "telenotify/pkg/logx"
)

// SummarizeChange returns the changed sections plus safe structured attrs for
// logging. Tokens and chat ids are never included, only whether they changed.
func SummarizeChange(oldSnap, newSnap *Snapshot) ([]string, []logx.Field) {
	if oldSnap == nil {
		oldSnap = NewSnapshot(nil)
	}
	if newSnap == nil {
		newSnap = NewSnapshot(nil)
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldSnap.Token != newSnap.Token || oldSnap.ChatID != newSnap.ChatID {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldSnap.Token != newSnap.Token),
			logx.Bool("telegram.chat_changed", oldSnap.ChatID != newSnap.ChatID),
			logx.Bool("telegram.valid", newSnap.IsValid()),
		)
	}
	if oldSnap.Notify != newSnap.Notify {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.Bool("notify.join", newSnap.Notify.Join),
			logx.Bool("notify.quit", newSnap.Notify.Quit),
			logx.Bool("notify.death", newSnap.Notify.Death),
			logx.Bool("notify.server_start", newSnap.Notify.ServerStart),
		)
	}
	if oldSnap.Messages != newSnap.Messages {
		changed = append(changed, "messages")
	}
	if oldSnap.Policy != newSnap.Policy {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Int("delivery.batch_per_tick", newSnap.Policy.BatchPerTick),
			logx.Int("delivery.max_retries", newSnap.Policy.MaxRetries),
			logx.String("delivery.method", newSnap.Policy.Method),
		)
	}

	oldRaw, newRaw := oldSnap.Raw, newSnap.Raw
	if oldRaw == nil {
		oldRaw = &Config{}
	}
	if newRaw == nil {
		newRaw = &Config{}
	}
	if oldRaw.Logging != newRaw.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("logging.level", newRaw.Logging.Level))
	}
	if oldRaw.Ingest != newRaw.Ingest {
		changed = append(changed, "ingest")
	}
	if !sameAdmin(oldRaw.Admin, newRaw.Admin) {
		changed = append(changed, "admin")
	}
	if oldRaw.Storage != newRaw.Storage {
		changed = append(changed, "storage")
	}
	if strings.TrimSpace(oldRaw.Report.Schedule) != strings.TrimSpace(newRaw.Report.Schedule) {
		changed = append(changed, "report")
	}
	return changed, attrs
}

func sameAdmin(a, b AdminConfig) bool {
	if a.Telegram.Enabled != b.Telegram.Enabled || a.Telegram.PollTimeout != b.Telegram.PollTimeout {
		return false
	}
	if len(a.Telegram.OwnerUserIDs) != len(b.Telegram.OwnerUserIDs) {
		return false
	}
	for i := range a.Telegram.OwnerUserIDs {
		if a.Telegram.OwnerUserIDs[i] != b.Telegram.OwnerUserIDs[i] {
			return false
		}
	}
	return true
}

// RestartRequired lists changed sections that only take effect after a restart.
func RestartRequired(oldSnap, newSnap *Snapshot) []string {
	var out []string
	if oldSnap == nil || newSnap == nil {
		return out
	}
	if oldSnap.Policy.QueueSize != newSnap.Policy.QueueSize {
		out = append(out, "delivery.queue_size")
	}
	if oldSnap.Policy.Tick != newSnap.Policy.Tick {
		out = append(out, "delivery.tick")
	}
	if oldSnap.Raw != nil && newSnap.Raw != nil {
		if oldSnap.Raw.Ingest != newSnap.Raw.Ingest {
			out = append(out, "ingest")
		}
		if !sameAdmin(oldSnap.Raw.Admin, newSnap.Raw.Admin) {
			out = append(out, "admin")
		}
		if oldSnap.Raw.Storage != newSnap.Raw.Storage {
			out = append(out, "storage")
		}
	}
	return out
}
