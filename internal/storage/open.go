package storage

import (
	"context"
	"fmt"
	"strings"

	logx "telenotify/pkg/logx"
)

// Store is the persistence API used by the admin surface and the journal
// writer.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	RecordDelivery(ctx context.Context, r DeliveryRecord) error
	// RecentDeliveries returns up to n records, newest first.
	RecentDeliveries(ctx context.Context, n int) ([]DeliveryRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
