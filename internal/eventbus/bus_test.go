package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutWithFilter(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	only, unsubOnly := b.Subscribe(4, "broadcast.finished")
	defer unsubOnly()

	b.Publish(Event{Type: "broadcast.started"})
	b.Publish(Event{Type: "broadcast.finished", Data: 3})

	require.Len(t, all, 2)
	require.Len(t, only, 1)
	e := <-only
	require.Equal(t, 3, e.Data)
	require.False(t, e.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	require.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	require.NotPanics(t, func() { b.Publish(Event{Type: "x"}) })
}
