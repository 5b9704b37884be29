package notifier

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"telenotify/internal/config"
	"telenotify/internal/delivery"
	"telenotify/internal/eventbus"
	"telenotify/internal/metrics"
	rtsup "telenotify/internal/runtime/supervisor"
	logx "telenotify/pkg/logx"
)

// Service owns the queue and the worker.
//
// It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	cfg     SnapshotSource
	sender  Sender

	queue *Queue
	tick  time.Duration

	mu      sync.Mutex
	sup     *rtsup.Supervisor
	stopCh  chan struct{}
	running bool

	closed    atomic.Bool
	drainOnce sync.Once

	// suspendedOn is the snapshot whose credentials were rejected. Sends stay
	// paused while it is still the active snapshot.
	suspendedOn atomic.Pointer[config.Snapshot]
	// warnedOn limits the invalid-config warning to once per snapshot.
	warnedOn atomic.Pointer[config.Snapshot]

	submitted atomic.Uint64
	dropped   atomic.Uint64
	sent      atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
}

// New sizes the queue and tick from the current snapshot; both need a
// restart to change.
func New(src SnapshotSource, sender Sender, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	snap := src.Current()
	if snap == nil {
		snap = config.NewSnapshot(nil)
	}
	tick := snap.Policy.Tick
	if tick <= 0 {
		tick = config.DefaultTick
	}
	return &Service{
		log:     log,
		bus:     bus,
		metrics: m,
		cfg:     src,
		sender:  sender,
		queue:   NewQueue(snap.Policy.QueueSize),
		tick:    tick,
	}
}

// Queue exposes the dispatch queue (read-only use: Len/Cap).
func (s *Service) Queue() *Queue { return s.queue }

// Submit enqueues an already-rendered message. It never blocks and never
// returns an error: a full queue drops the message and returns false. Blank
// text and submits after Stop also return false without queueing.
func (s *Service) Submit(text string) bool {
	if strings.TrimSpace(text) == "" {
		s.metrics.Dropped("blank", 1)
		s.log.Debug("blank notification rejected", logx.Int("chars", len(text)))
		return false
	}
	if s.closed.Load() {
		s.log.Debug("notification rejected after shutdown", logx.Int("chars", len(text)))
		return false
	}
	if !s.queue.TryEnqueue(text) {
		s.dropped.Add(1)
		s.metrics.Dropped("queue_full", 1)
		s.log.Warn("notification queue full; message dropped", logx.Int("queue_cap", s.queue.Cap()), logx.Int("chars", len(text)))
		s.publish(eventbus.NotifierDropped, QueueEvent{Len: s.queue.Len(), Cap: s.queue.Cap(), Chars: len(text), Reason: "queue_full"})
		return false
	}
	s.submitted.Add(1)
	s.metrics.Submitted()
	s.metrics.QueueDepth(s.queue.Len())
	s.publish(eventbus.NotifierQueued, QueueEvent{Len: s.queue.Len(), Cap: s.queue.Cap(), Chars: len(text)})
	return true
}

// Start launches the worker. runCtx is the process run context: cancelling it
// interrupts retry backoff. Start is idempotent.
func (s *Service) Start(runCtx context.Context) {
	if runCtx == nil {
		runCtx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.closed.Load() {
		return
	}
	s.stopCh = make(chan struct{})
	s.sup = rtsup.New(runCtx,
		rtsup.WithLogger(s.log),
		// a crashed worker is restarted instead of taking the process down
		rtsup.WithCancelOnError(false),
	)
	s.running = true
	stop := s.stopCh
	s.sup.GoRestart("notifier.worker", func(ctx context.Context) error {
		return s.workerLoop(ctx, stop)
	}, rtsup.WithPublishFirstError(true))

	s.log.Info("notifier started",
		logx.Int("queue_cap", s.queue.Cap()),
		logx.Duration("tick", s.tick),
	)
}

// Stop prevents further ticks, waits for the tick in flight, then drains.
// After Stop, Submit returns false.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.closed.Store(true)

	s.mu.Lock()
	sup := s.sup
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	s.mu.Unlock()

	if sup != nil {
		if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
			s.log.Warn("notifier worker did not stop in time", logx.Err(err))
			sup.Cancel()
		}
	}

	s.drainOnce.Do(func() {
		snap := s.cfg.Current()
		limit := 0
		if snap != nil {
			limit = snap.Policy.DrainLimit
		}
		// The drain gets its own context: the run context is already
		// cancelled at this point.
		s.Drain(context.WithoutCancel(ctx), limit)
	})
}

// Drain sends up to limit queued messages with one attempt each and discards
// the rest. It returns how many sends were attempted. With an invalid or
// suspended snapshot nothing is sent.
func (s *Service) Drain(ctx context.Context, limit int) int {
	snap := s.cfg.Current()
	attempted := 0
	if s.canSend(snap) {
		creds, p := snap.Credentials(), snap.Policy
		for attempted < limit {
			msg, ok := s.queue.TryDequeue()
			if !ok {
				break
			}
			attempted++
			res := s.sender.DeliverOnce(ctx, creds, msg, p)
			s.record(res, len(msg), true)
		}
	}

	reason := "shutdown"
	if !snap.IsValid() {
		reason = "invalid_config"
	}
	if rest := s.queue.discard(); rest > 0 {
		s.discarded.Add(uint64(rest))
		s.metrics.Dropped(reason, rest)
		s.log.Warn("queued notifications discarded on shutdown", logx.Int("discarded", rest), logx.Int("drained", attempted), logx.String("reason", reason))
	} else if attempted > 0 {
		s.log.Info("notification queue drained", logx.Int("drained", attempted))
	}
	s.metrics.QueueDepth(0)
	return attempted
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	snap := s.cfg.Current()
	return Stats{
		Queued:    s.queue.Len(),
		Capacity:  s.queue.Cap(),
		Submitted: s.submitted.Load(),
		Dropped:   s.dropped.Load(),
		Sent:      s.sent.Load(),
		Failed:    s.failed.Load(),
		Discarded: s.discarded.Load(),
		Running:   running,
		Suspended: snap != nil && s.suspendedOn.Load() == snap,
	}
}

// Supervisor returns the worker supervisor (nil before Start).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) workerLoop(ctx context.Context, stop <-chan struct{}) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		// stop wins over a pending tick
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.runTick(ctx)
		}
	}
}

// runTick delivers up to batch_per_tick messages and returns how many were
// taken from the queue.
func (s *Service) runTick(ctx context.Context) int {
	snap := s.cfg.Current()
	if !s.canSend(snap) {
		if !snap.IsValid() && s.queue.Len() > 0 && s.warnedOn.Swap(snap) != snap {
			s.log.Warn("telegram credentials missing; notifications paused until reload", logx.Int("queued", s.queue.Len()))
		}
		return 0
	}

	creds, p := snap.Credentials(), snap.Policy
	n := 0
	for n < p.BatchPerTick && ctx.Err() == nil {
		msg, ok := s.queue.TryDequeue()
		if !ok {
			break
		}
		n++
		res := s.sender.Deliver(ctx, creds, msg, p)
		s.record(res, len(msg), false)

		if res.Outcome == delivery.AuthRejected && p.SuspendOnAuthFailure {
			if s.suspendedOn.Swap(snap) != snap {
				s.log.Warn("telegram rejected credentials; sends suspended until reload")
			}
			break
		}
	}
	if n > 0 {
		s.metrics.QueueDepth(s.queue.Len())
	}
	return n
}

func (s *Service) canSend(snap *config.Snapshot) bool {
	if !snap.IsValid() {
		return false
	}
	return s.suspendedOn.Load() != snap
}

func (s *Service) record(res delivery.Result, chars int, drain bool) {
	ev := DeliveryEvent{
		ID:          res.ID,
		Outcome:     res.Outcome.String(),
		Attempts:    res.Attempts,
		Status:      res.Status,
		Description: res.Description,
		Chars:       chars,
		Drain:       drain,
		Duration:    res.Duration,
		At:          time.Now(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if res.Outcome == delivery.Sent {
		s.sent.Add(1)
		s.publish(eventbus.NotifierSent, ev)
		return
	}
	s.failed.Add(1)
	s.publish(eventbus.NotifierFailed, ev)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
