package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action such as a config reload.
type AuditEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Source string    `json:"source"` // telegram | signal
	Actor  string    `json:"actor,omitempty"`
	Action string    `json:"action"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	TookMS int64     `json:"took_ms"`
}

// DeliveryRecord is the terminal result of one message. Message text is not
// stored.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Outcome     string    `json:"outcome"`
	Attempts    int       `json:"attempts"`
	Status      int       `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Chars       int       `json:"chars"`
	Drain       bool      `json:"drain,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}
