package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_FiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	sent, unsubSent := b.Subscribe(4, NotifierSent)
	defer unsubSent()

	b.Publish(Event{Type: NotifierQueued})
	b.Publish(Event{Type: NotifierSent, Data: "x"})

	require.Len(t, all, 2)
	require.Len(t, sent, 1)
	e := <-sent
	assert.Equal(t, NotifierSent, e.Type)
	assert.False(t, e.Time.IsZero())
}

func TestPublish_NeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: NotifierDropped})
	}
	assert.Equal(t, uint64(4), Dropped(b))
}

func TestUnsubscribe_ClosesOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: ConfigReloaded})
}
