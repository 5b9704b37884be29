package notifier

import (
	"context"
	"time"

	"telenotify/internal/config"
	"telenotify/internal/delivery"
)

// SnapshotSource returns the active configuration. *config.Manager implements it.
type SnapshotSource interface {
	Current() *config.Snapshot
}

// Sender is the delivery side of the pipeline. *delivery.Sender implements it.
type Sender interface {
	Deliver(ctx context.Context, creds config.Credentials, text string, p config.Policy) delivery.Result
	DeliverOnce(ctx context.Context, creds config.Credentials, text string, p config.Policy) delivery.Result
}

// DeliveryEvent is the bus payload for notifier.sent and notifier.failed.
// It carries no message text and no credentials.
type DeliveryEvent struct {
	ID          string        `json:"id"`
	Outcome     string        `json:"outcome"`
	Attempts    int           `json:"attempts"`
	Status      int           `json:"status,omitempty"`
	Description string        `json:"description,omitempty"`
	Error       string        `json:"error,omitempty"`
	Chars       int           `json:"chars"`
	Drain       bool          `json:"drain,omitempty"`
	Duration    time.Duration `json:"duration"`
	At          time.Time     `json:"at"`
}

// QueueEvent is the bus payload for notifier.queued and notifier.dropped.
type QueueEvent struct {
	Len    int       `json:"len"`
	Cap    int       `json:"cap"`
	Chars  int       `json:"chars"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Stats is a point-in-time view for /healthz and the periodic report.
type Stats struct {
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
	Running   bool   `json:"running"`
	Suspended bool   `json:"suspended"`
}
