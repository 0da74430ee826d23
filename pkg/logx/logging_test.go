package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	require.True(t, l.IsZero())
	l.Info("nothing happens", String("k", "v"))
	require.False(t, Nop().IsZero())
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Warn("hello", Int("n", 3), Err(nil))

	out := buf.String()
	require.Contains(t, out, `"comp":"test"`)
	require.Contains(t, out, `"n":3`)
	require.Contains(t, out, `"message":"hello"`)
	require.NotContains(t, out, `"error"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.WarnLevel, parseLevel(" warning ", zerolog.InfoLevel))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus", zerolog.InfoLevel))
	require.Equal(t, zerolog.DebugLevel, parseLevel("trace", zerolog.InfoLevel))
}

func TestFormatTelegramJSON(t *testing.T) {
	msg := formatTelegramJSON([]byte(`{"level":"warn","message":"send failed","time":"x","b":2,"a":"one"}`))
	require.Equal(t, "[WARN] send failed\n- a=one\n- b=2", msg)
	require.Equal(t, "raw line", formatTelegramJSON([]byte("raw line\n")))
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	sender := func(_ context.Context, chatID int64, text string) error {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, int64(77), chatID)
		sent = append(sent, text)
		return nil
	}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, ChatID: 77, MinLevel: "warn", RatePerSec: 10}}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("quiet")
	log.Error("loud")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, strings.HasPrefix(sent[0], "[ERROR] loud"))
}
