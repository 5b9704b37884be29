package config

import (
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIBase        = "https://api.telegram.org"
	DefaultQueueSize      = 256
	DefaultTick           = 50 * time.Millisecond
	DefaultBatchPerTick   = 1
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = time.Second
	DefaultRequestTimeout = 8 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultDrainLimit     = 5

	DefaultJoinMessage        = "🟢 *{player}* joined the server"
	DefaultQuitMessage        = "🔴 *{player}* left the server"
	DefaultDeathMessage       = "✖️ *{player}* died"
	DefaultServerStartMessage = "🔵 Server started"
)

// Credentials is the (token, chat id) pair captured at send time.
type Credentials struct {
	Token  string
	ChatID string
}

// Valid reports whether both values are non-blank.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.ChatID) != ""
}

// Notify holds the per-event enable flags.
type Notify struct {
	Join        bool
	Quit        bool
	Death       bool
	ServerStart bool
}

// Messages holds resolved templates.
type Messages struct {
	Join        string
	Quit        string
	Death       string
	ServerStart string
}

// Policy is the reloadable part of the delivery pipeline.
// QueueSize and Tick are read once at startup.
type Policy struct {
	APIBase              string
	QueueSize            int
	Tick                 time.Duration
	BatchPerTick         int
	MaxRetries           int
	BackoffBase          time.Duration
	RequestTimeout       time.Duration
	ConnectTimeout       time.Duration
	Method               string
	DrainLimit           int
	EscapeMarkdown       bool
	RatePerSec           int
	SuspendOnAuthFailure bool
}

// Snapshot is an immutable, fully-resolved view of the configuration.
//
// A Snapshot is built once and shared read-only across goroutines; a reload
// builds a new one and swaps the pointer. Never mutate a Snapshot in place.
type Snapshot struct {
	Token    string
	ChatID   string
	Notify   Notify
	Messages Messages
	Policy   Policy

	// Raw is the parsed file the snapshot was built from (secrets included;
	// never log it).
	Raw *Config

	LoadedAt time.Time
}

// IsValid reports whether the credentials are usable.
func (s *Snapshot) IsValid() bool {
	if s == nil {
		return false
	}
	return s.Credentials().Valid()
}

func (s *Snapshot) Credentials() Credentials {
	if s == nil {
		return Credentials{}
	}
	return Credentials{Token: s.Token, ChatID: s.ChatID}
}

// NewSnapshot resolves defaults. Durations that do not parse fall back to
// their defaults; Validate is what rejects them.
func NewSnapshot(cfg *Config) *Snapshot {
	if cfg == nil {
		cfg = &Config{}
	}
	d := cfg.Delivery

	p := Policy{
		APIBase:              strings.TrimRight(strings.TrimSpace(cfg.Telegram.APIBase), "/"),
		QueueSize:            d.QueueSize,
		BatchPerTick:         d.BatchPerTick,
		MaxRetries:           d.MaxRetries,
		Method:               strings.ToUpper(strings.TrimSpace(d.Method)),
		DrainLimit:           d.DrainLimit,
		EscapeMarkdown:       boolOr(d.EscapeMarkdown, true),
		RatePerSec:           d.RatePerSec,
		SuspendOnAuthFailure: d.SuspendOnAuthFailure,
	}
	// Validate reports bad durations; here they have already fallen back to
	// their defaults field by field.
	t, _ := d.Timings()
	p.Tick, p.BackoffBase = t.Tick, t.BackoffBase
	p.RequestTimeout, p.ConnectTimeout = t.RequestTimeout, t.ConnectTimeout

	if p.APIBase == "" {
		p.APIBase = DefaultAPIBase
	}
	if p.QueueSize <= 0 {
		p.QueueSize = DefaultQueueSize
	}
	if p.BatchPerTick <= 0 {
		p.BatchPerTick = DefaultBatchPerTick
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	} else if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Method != http.MethodGet {
		p.Method = http.MethodPost
	}
	if p.DrainLimit < 0 {
		p.DrainLimit = 0
	} else if p.DrainLimit == 0 {
		p.DrainLimit = DefaultDrainLimit
	}
	if p.RatePerSec < 0 {
		p.RatePerSec = 0
	}

	n := cfg.Notifications
	m := cfg.Messages
	return &Snapshot{
		Token:  strings.TrimSpace(cfg.Telegram.Token),
		ChatID: strings.TrimSpace(string(cfg.Telegram.ChatID)),
		Notify: Notify{
			Join:        boolOr(n.Join, true),
			Quit:        boolOr(n.Quit, true),
			Death:       boolOr(n.Death, true),
			ServerStart: boolOr(n.ServerStart, true),
		},
		Messages: Messages{
			Join:        stringOr(m.Join, DefaultJoinMessage),
			Quit:        stringOr(m.Quit, DefaultQuitMessage),
			Death:       stringOr(m.Death, DefaultDeathMessage),
			ServerStart: stringOr(m.ServerStart, DefaultServerStartMessage),
		},
		Policy:   p,
		Raw:      cfg,
		LoadedAt: time.Now(),
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Enabled reports whether notifications of the given event kind are on.
// Unknown kinds are off.
func (s *Snapshot) Enabled(kind string) bool {
	if s == nil {
		return false
	}
	switch kind {
	case "join":
		return s.Notify.Join
	case "quit":
		return s.Notify.Quit
	case "death":
		return s.Notify.Death
	case "server_start":
		return s.Notify.ServerStart
	}
	return false
}

// Template returns the message template for kind ("" for unknown kinds).
func (s *Snapshot) Template(kind string) string {
	if s == nil {
		return ""
	}
	switch kind {
	case "join":
		return s.Messages.Join
	case "quit":
		return s.Messages.Quit
	case "death":
		return s.Messages.Death
	case "server_start":
		return s.Messages.ServerStart
	}
	return ""
}
