package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
)

// ParseSchedule accepts:
//   - cron: "*/10 * * * *", "@hourly", "@every 10m" (or a "cron:" prefix)
//   - interval: "10m", "1h30m", or HH:MM like "00:30"
//
// A blank spec returns (nil, nil): reporting disabled.
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	if expr, ok := cutPrefixFold(s, "cron:"); ok {
		return parseCron(expr)
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	d, err := parseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("report.schedule: invalid schedule %q (use cron like '*/10 * * * *', HH:MM like '00:30', or duration like '10m')", raw)
	}
	return cron.Every(d), nil
}

func parseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("report.schedule: cron expression required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("report.schedule: %w", err)
	}
	return sched, nil
}

func parseInterval(v string) (time.Duration, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
