package events

import (
	"telenotify/internal/config"
	logx "telenotify/pkg/logx"
)

// Submitter is the producer side of the notifier.
type Submitter interface {
	Submit(text string) bool
}

type SnapshotSource interface {
	Current() *config.Snapshot
}

// Disposition is what happened to one event.
type Disposition int

const (
	Accepted Disposition = iota
	// Dropped means the notifier queue was full.
	Dropped
	// Skipped means the kind is disabled or the configuration is invalid.
	Skipped
)

func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	default:
		return "skipped"
	}
}

// Handler renders events against the current snapshot and submits them.
// Handle never blocks on delivery.
type Handler struct {
	cfg SnapshotSource
	sub Submitter
	log logx.Logger
}

func NewHandler(cfg SnapshotSource, sub Submitter, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{cfg: cfg, sub: sub, log: log}
}

func (h *Handler) Handle(ev Event) Disposition {
	text, ok := Render(h.cfg.Current(), ev)
	if !ok {
		h.log.Trace("event skipped", logx.String("kind", string(ev.Kind)))
		return Skipped
	}
	if !h.sub.Submit(text) {
		return Dropped
	}
	h.log.Debug("event queued", logx.String("kind", string(ev.Kind)))
	return Accepted
}
