// Package report logs a periodic delivery summary on a cron schedule.
package report

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"telenotify/internal/notifier"
	logx "telenotify/pkg/logx"
)

type StatsSource interface {
	Stats() notifier.Stats
}

// Reporter owns one cron entry. Apply may be called again on reload.
type Reporter struct {
	src StatsSource
	log logx.Logger

	mu    sync.Mutex
	c     *cron.Cron
	entry cron.EntryID
	spec  string
	last  notifier.Stats
}

func New(src StatsSource, log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{src: src, log: log, c: cron.New(cron.WithParser(parser))}
}

// Apply (re)schedules the report. A blank spec disables it. On a parse error
// the previous schedule stays active.
func (r *Reporter) Apply(spec string) error {
	spec = strings.TrimSpace(spec)
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if spec == r.spec {
		return nil
	}
	if r.entry != 0 {
		r.c.Remove(r.entry)
		r.entry = 0
	}
	r.spec = spec
	if sched == nil {
		r.log.Debug("stats report disabled")
		return nil
	}
	r.entry = r.c.Schedule(sched, cron.FuncJob(r.Report))
	r.log.Info("stats report scheduled", logx.String("schedule", spec))
	return nil
}

// Spec returns the active schedule ("" when disabled).
func (r *Reporter) Spec() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

func (r *Reporter) Start() { r.c.Start() }

// Stop stops triggering and waits for a running report, bounded by ctx.
func (r *Reporter) Stop(ctx context.Context) {
	select {
	case <-r.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Report logs one summary line with totals and deltas since the previous line.
func (r *Reporter) Report() {
	st := r.src.Stats()

	r.mu.Lock()
	prev := r.last
	r.last = st
	r.mu.Unlock()

	lvl := r.log.Info
	if st.Suspended || st.Failed > prev.Failed || st.Dropped > prev.Dropped {
		lvl = r.log.Warn
	}
	lvl("delivery stats",
		logx.Int("queued", st.Queued),
		logx.Int("capacity", st.Capacity),
		logx.Uint64("submitted", st.Submitted),
		logx.Uint64("sent", st.Sent),
		logx.Uint64("failed", st.Failed),
		logx.Uint64("dropped", st.Dropped),
		logx.Uint64("discarded", st.Discarded),
		logx.Uint64("sent_delta", st.Sent-prev.Sent),
		logx.Uint64("failed_delta", st.Failed-prev.Failed),
		logx.Bool("suspended", st.Suspended),
		logx.Time("at", time.Now()),
	)
}
