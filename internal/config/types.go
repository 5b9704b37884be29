package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Config is the on-disk configuration (YAML or JSON).
//
// Booleans that default to true are pointers so an omitted key can be told
// apart from an explicit false. All durations are Go duration strings.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Notifications NotificationsConfig `json:"notifications"`
	Messages      MessagesConfig      `json:"messages"`
	Delivery      DeliveryConfig      `json:"delivery"`
	Logging       LoggingConfig       `json:"logging"`
	Ingest        IngestConfig        `json:"ingest"`
	Admin         AdminConfig         `json:"admin"`
	Storage       StorageConfig       `json:"storage"`
	Report        ReportConfig        `json:"report"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID ChatID `json:"chat_id"`
	// APIBase defaults to https://api.telegram.org.
	APIBase string `json:"api_base,omitempty"`
}

// NotificationsConfig holds the per-event enable flags (default: all on).
type NotificationsConfig struct {
	Join        *bool `json:"join,omitempty"`
	Quit        *bool `json:"quit,omitempty"`
	Death       *bool `json:"death,omitempty"`
	ServerStart *bool `json:"server_start,omitempty"`
}

// MessagesConfig holds the Markdown templates. Blank values use defaults.
type MessagesConfig struct {
	Join        string `json:"join,omitempty"`
	Quit        string `json:"quit,omitempty"`
	Death       string `json:"death,omitempty"`
	ServerStart string `json:"server_start,omitempty"`
}

// DeliveryConfig controls the async delivery pipeline.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 256 (restart required)
//   - tick: "50ms" (restart required)
//   - batch_per_tick: 1
//   - max_retries: 3 (use -1 to disable retries)
//   - backoff_base: "1s"
//   - request_timeout: "8s", connect_timeout: "3s"
//   - method: "POST"
//   - drain_limit: 5 (use -1 to skip the shutdown drain)
//   - escape_markdown: true
//   - rate_per_sec: 0 (disabled)
type DeliveryConfig struct {
	QueueSize            int    `json:"queue_size,omitempty"`
	Tick                 string `json:"tick,omitempty"`
	BatchPerTick         int    `json:"batch_per_tick,omitempty"`
	MaxRetries           int    `json:"max_retries,omitempty"`
	BackoffBase          string `json:"backoff_base,omitempty"`
	RequestTimeout       string `json:"request_timeout,omitempty"`
	ConnectTimeout       string `json:"connect_timeout,omitempty"`
	Method               string `json:"method,omitempty"`
	DrainLimit           int    `json:"drain_limit,omitempty"`
	EscapeMarkdown       *bool  `json:"escape_markdown,omitempty"`
	RatePerSec           int    `json:"rate_per_sec,omitempty"`
	SuspendOnAuthFailure bool   `json:"suspend_on_auth_failure,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// IngestConfig controls the HTTP event endpoint used by game servers.
//
// Security note: prefer binding to localhost; set auth_token otherwise.
type IngestConfig struct {
	Enabled    bool   `json:"enabled"`
	Listen     string `json:"listen,omitempty"`     // default: "127.0.0.1:8085"
	AuthToken  string `json:"auth_token,omitempty"` // optional bearer token (do not log)
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type AdminConfig struct {
	Telegram AdminTelegramConfig `json:"telegram"`
}

// AdminTelegramConfig enables the bot command listener (/telereload).
// Owners hold every admin permission.
type AdminTelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

// StorageConfig controls the optional audit/delivery journal.
//
// Driver values: "none" (default), "file", "sqlite".
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ReportConfig schedules a periodic stats log line (cron spec, e.g. "@every 10m").
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

// ChatID accepts both `chat_id: -100123` and `chat_id: "@channel"`.
type ChatID string

func (c *ChatID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ChatID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chat_id: must be a string or integer")
	}
	*c = ChatID(n.String())
	return nil
}
