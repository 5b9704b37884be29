package config

import (
	"fmt"
	"net/http"
	"strings"

	logx "telenotify/pkg/logx"
)

// Validate checks field-level constraints. It does not check credentials:
// blank credentials are a standing warning state, not a load error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	d := cfg.Delivery
	if d.QueueSize < 0 {
		return fmt.Errorf("delivery.queue_size must be >= 0")
	}
	if d.BatchPerTick < 0 {
		return fmt.Errorf("delivery.batch_per_tick must be >= 0")
	}
	if d.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec must be >= 0")
	}
	if _, err := d.Timings(); err != nil {
		return err
	}
	if _, err := cfg.Admin.Telegram.Poll(); err != nil {
		return err
	}
	if _, err := cfg.Storage.BusyWait(); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(d.Method)) {
	case "", http.MethodPost, http.MethodGet:
	default:
		return fmt.Errorf("delivery.method: must be GET or POST, got %q", d.Method)
	}
	if base := strings.TrimSpace(cfg.Telegram.APIBase); base != "" &&
		!strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		return fmt.Errorf("telegram.api_base: must be an http(s) URL")
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Ingest.RatePerSec < 0 {
		return fmt.Errorf("ingest.rate_per_sec must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	return nil
}
