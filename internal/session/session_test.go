package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeginConsumeCycle(t *testing.T) {
	req := require.New(t)
	s := NewStore()

	req.Equal(Idle, s.State(1))
	req.False(s.Consume(1))

	s.Begin(1)
	s.Begin(1)
	req.Equal(AwaitingBroadcastText, s.State(1))
	req.Equal(Idle, s.State(2))

	req.True(s.Consume(1))
	req.Equal(Idle, s.State(1))
	req.False(s.Consume(1))
}

func TestCancelClearsPendingCapture(t *testing.T) {
	req := require.New(t)
	s := NewStore()

	req.False(s.Cancel(1))
	s.Begin(1)
	req.True(s.Cancel(1))
	req.Equal(Idle, s.State(1))
	req.False(s.Consume(1), "cancelled capture must not be consumed")
}

func TestConsumeIsExclusive(t *testing.T) {
	s := NewStore()
	s.Begin(9)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(9) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "awaiting_broadcast_text", AwaitingBroadcastText.String())
}
