package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultBusyTimeout = time.Second

	// minTick keeps a typo like "50us" from spinning the worker.
	minTick = time.Millisecond
)

// Timings are the resolved delivery durations of a Policy.
type Timings struct {
	Tick           time.Duration
	BackoffBase    time.Duration
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// parseDuration reads a Go duration for the key at path. Blank and zero
// values resolve to def.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return def, fmt.Errorf("%s: must not be negative, got %s", path, d)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Timings resolves every delivery duration, falling back to the default for
// each field that is blank or bad. All bad fields are reported together.
func (d DeliveryConfig) Timings() (Timings, error) {
	var (
		t    Timings
		errs []error
	)
	for _, f := range []struct {
		dst  *time.Duration
		path string
		raw  string
		def  time.Duration
	}{
		{&t.Tick, "delivery.tick", d.Tick, DefaultTick},
		{&t.BackoffBase, "delivery.backoff_base", d.BackoffBase, DefaultBackoffBase},
		{&t.RequestTimeout, "delivery.request_timeout", d.RequestTimeout, DefaultRequestTimeout},
		{&t.ConnectTimeout, "delivery.connect_timeout", d.ConnectTimeout, DefaultConnectTimeout},
	} {
		v, err := parseDuration(f.path, f.raw, f.def)
		if err != nil {
			errs = append(errs, err)
		}
		*f.dst = v
	}
	if t.Tick < minTick {
		errs = append(errs, fmt.Errorf("delivery.tick: must be at least %s, got %s", minTick, t.Tick))
		t.Tick = DefaultTick
	}
	return t, errors.Join(errs...)
}

// Poll resolves admin.telegram.poll_timeout.
func (c AdminTelegramConfig) Poll() (time.Duration, error) {
	return parseDuration("admin.telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
}

// BusyWait resolves storage.busy_timeout.
func (c StorageConfig) BusyWait() (time.Duration, error) {
	return parseDuration("storage.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
}
