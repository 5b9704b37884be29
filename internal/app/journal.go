package app

import (
	"context"
	"time"

	"telenotify/internal/eventbus"
	"telenotify/internal/notifier"
	"telenotify/internal/storage"
	logx "telenotify/pkg/logx"
)

// journal copies terminal delivery outcomes from the bus into storage.
//
// It runs until its subscription is closed, not until the run context is
// cancelled, so the shutdown drain is still recorded.
type journal struct {
	store storage.Store
	log   logx.Logger

	events <-chan eventbus.Event
	unsub  func()
	done   chan struct{}
}

func startJournal(bus eventbus.Bus, store storage.Store, log logx.Logger) *journal {
	ch, unsub := bus.Subscribe(256, eventbus.NotifierSent, eventbus.NotifierFailed)
	j := &journal{store: store, log: log, events: ch, unsub: unsub, done: make(chan struct{})}
	go j.run()
	return j
}

func (j *journal) run() {
	defer close(j.done)
	for e := range j.events {
		ev, ok := e.Data.(notifier.DeliveryEvent)
		if !ok {
			continue
		}
		rec := storage.DeliveryRecord{
			ID:          ev.ID,
			At:          ev.At,
			Outcome:     ev.Outcome,
			Attempts:    ev.Attempts,
			Status:      ev.Status,
			Description: ev.Description,
			Error:       ev.Error,
			Chars:       ev.Chars,
			Drain:       ev.Drain,
			DurationMS:  ev.Duration.Milliseconds(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := j.store.RecordDelivery(ctx, rec); err != nil {
			j.log.Warn("delivery journal write failed", logx.String("id", ev.ID), logx.Err(err))
		}
		cancel()
	}
}

// close unsubscribes, then waits for buffered events to be written.
func (j *journal) close(ctx context.Context) error {
	j.unsub()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
