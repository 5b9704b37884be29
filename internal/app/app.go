// Package app wires configuration, delivery and the operator surfaces into
// one process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"telenotify/internal/admin"
	"telenotify/internal/config"
	"telenotify/internal/delivery"
	"telenotify/internal/eventbus"
	"telenotify/internal/events"
	"telenotify/internal/ingest"
	"telenotify/internal/metrics"
	"telenotify/internal/notifier"
	"telenotify/internal/report"
	rtsup "telenotify/internal/runtime/supervisor"
	"telenotify/internal/storage"
	logx "telenotify/pkg/logx"
	"telenotify/pkg/systemd"
)

type App struct {
	cfgm *config.Manager

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	metrics *metrics.Metrics
	store   storage.Store

	sender *delivery.Sender
	notif  *notifier.Service
	events *events.Handler
	ingest *ingest.Server
	admin  *admin.Registry
	tg     *admin.Telegram
	report *report.Reporter

	sup     *rtsup.Supervisor
	journal *journal

	stopOnce sync.Once
	stopErr  error
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	snap, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(snap.Raw))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		metrics: metrics.New(),
	}

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(snap.Raw); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a.sender = delivery.New(log.With(logx.String("comp", "delivery")), a.metrics)
	a.notif = notifier.New(cfgm, a.sender, log.With(logx.String("comp", "notifier")), a.bus, a.metrics)
	a.events = events.NewHandler(cfgm, a.notif, log.With(logx.String("comp", "events")))

	a.admin = admin.NewRegistry(a.store, log.With(logx.String("comp", "admin")))
	if err := a.admin.Register(admin.ReloadCommand(a.reload)); err != nil {
		return nil, err
	}

	if snap.Raw.Ingest.Enabled {
		a.ingest = ingest.New(mapIngestConfig(snap.Raw), a.events, a.notif, a.metrics, log.With(logx.String("comp", "ingest")))
	}

	if snap.Raw.Admin.Telegram.Enabled {
		tc, err := mapAdminTelegramConfig(snap)
		if err != nil {
			return nil, err
		}
		if tc.Token == "" {
			log.Warn("admin.telegram enabled but telegram.token is blank; command listener disabled")
		} else if a.tg, err = admin.NewTelegram(tc, a.admin, log.With(logx.String("comp", "admin.telegram"))); err != nil {
			return nil, fmt.Errorf("admin telegram: %w", err)
		}
	}

	a.report = report.New(a.notif, log.With(logx.String("comp", "report")))
	if err := a.report.Apply(snap.Raw.Report.Schedule); err != nil {
		return nil, err
	}

	// checks beyond config.Validate, run on every reload before commit
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := report.ParseSchedule(cfg.Report.Schedule); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	return a, nil
}

func (a *App) Config() *config.Manager { return a.cfgm }
func (a *App) Notifier() *notifier.Service { return a.notif }
func (a *App) Events() *events.Handler { return a.events }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) Store() storage.Store { return a.store }
func (a *App) Bus() eventbus.Bus { return a.bus }
func (a *App) Ingest() *ingest.Server { return a.ingest }
func (a *App) Admin() *admin.Registry { return a.admin }
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if a.store != nil {
		a.journal = startJournal(a.bus, a.store, a.log.With(logx.String("comp", "journal")))
	}

	a.notif.Start(runCtx)

	if a.ingest != nil {
		if err := a.ingest.Start(runCtx); err != nil {
			a.sup.Cancel()
			return fmt.Errorf("ingest: %w", err)
		}
	}
	if a.tg != nil {
		a.tg.Start(runCtx)
	}
	a.report.Start()

	// Debug-level view of the lifecycle bus.
	evs, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-evs:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Current()
		for {
			select {
			case <-c.Done():
				return
			case snap, ok := <-sub:
				if !ok {
					return
				}
				a.applySnapshot(last, snap)
				last = snap
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})

	snap := a.cfgm.Current()
	if !snap.IsValid() {
		a.warnInvalid()
	}
	if _, err := systemd.Ready(a.statusLine()); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
	a.log.Info("app started",
		logx.Bool("config_valid", snap.IsValid()),
		logx.Bool("ingest", a.ingest != nil),
		logx.Bool("admin_telegram", a.tg != nil),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// ReloadFromSignal runs the reload command on behalf of the process operator.
func (a *App) ReloadFromSignal(ctx context.Context, sig string) error {
	inv := admin.ConsoleInvoker{Log: a.log.With(logx.String("comp", "admin.console")), Signal: sig}
	return a.admin.Dispatch(ctx, admin.CmdReload, inv)
}

func (a *App) reload(ctx context.Context) error {
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready(a.statusLine()) }()

	if _, err := a.cfgm.Reload(ctx); err != nil {
		a.metrics.Reload("error")
		return err
	}
	return nil
}

// applySnapshot fans a committed snapshot out to the live components.
func (a *App) applySnapshot(prev, snap *config.Snapshot) {
	sections, attrs := config.SummarizeChange(prev, snap)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
	}

	a.logs.Apply(mapLogConfig(snap.Raw))

	if need := config.RestartRequired(prev, snap); len(need) > 0 {
		a.log.Warn("config changed in sections that need a restart", logx.String("sections", strings.Join(need, ",")))
	}
	if err := a.report.Apply(snap.Raw.Report.Schedule); err != nil {
		a.log.Warn("invalid report schedule; keeping previous", logx.Err(err))
	}
	if a.tg != nil {
		a.tg.SetOwners(snap.Raw.Admin.Telegram.OwnerUserIDs)
	}

	a.metrics.Reload("ok")
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})

	if !snap.IsValid() {
		a.warnInvalid()
	}
	if len(sections) > 0 {
		a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")), logx.Bool("valid", snap.IsValid()))
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

// warnInvalid is the standing operator warning for blank credentials.
func (a *App) warnInvalid() {
	path := a.cfgm.Path()
	lines := []string{
		"telegram.token or telegram.chat_id is not configured; notifications are disabled",
		"set them in " + path + " (or " + config.EnvToken + "/" + config.EnvChatID + ")",
		"then run /" + admin.CmdReload + " or send SIGHUP to apply the change",
	}
	for _, l := range lines {
		a.log.Warn(l)
	}
}

func (a *App) statusLine() string {
	st := a.notif.Stats()
	valid := "valid"
	if !a.cfgm.Current().IsValid() {
		valid = "invalid"
	}
	return fmt.Sprintf("queue %d/%d, sent %d, failed %d, config %s", st.Queued, st.Capacity, st.Sent, st.Failed, valid)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.stopOnce.Do(func() { a.stopErr = a.stop(ctx, reason) })
	return a.stopErr
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancel the run context first: this interrupts retry backoff so shutdown
	// latency stays bounded. A request already on the wire still completes.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("ingest", 3*time.Second, func(c context.Context) error {
		if a.ingest == nil {
			return nil
		}
		return a.ingest.Stop(c)
	})
	step("admin.telegram", 3*time.Second, func(c context.Context) error {
		if a.tg == nil {
			return nil
		}
		return a.tg.Stop(c)
	})
	step("report", time.Second, func(c context.Context) error { a.report.Stop(c); return nil })
	// Worker first, then the bounded drain. The drain is bounded by its
	// message limit and the per-request timeout, not by this step.
	step("notifier", 0, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("journal", 2*time.Second, func(c context.Context) error {
		if a.journal == nil {
			return nil
		}
		return a.journal.close(c)
	})
	step("storage", 2*time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	err := a.sup.Wait(ctx)
	st := a.notif.Stats()
	a.log.Info("stopped",
		logx.Uint64("sent", st.Sent),
		logx.Uint64("failed", st.Failed),
		logx.Uint64("dropped", st.Dropped),
		logx.Uint64("discarded", st.Discarded),
		logx.Uint64("bus_dropped", eventbus.Dropped(a.bus)),
	)
	_ = a.logs.Close()
	return err
}
