package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shopbot/internal/broadcast"
	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/eventbus"
	"shopbot/internal/storage"
	"shopbot/internal/transport/transporttest"
	logx "shopbot/pkg/logx"
)

const adminID = 42

const ordersJSON = `[
	{"id": "1", "telegram_user_id": 11, "total": 1000, "status": "completed"},
	{"id": "2", "telegram_user_id": "22", "total": 2500, "status": "new"},
	{"id": "3", "telegram_user_id": 11, "total": 500, "status": "completed"},
	{"id": "4", "telegram_user_id": null, "total": 700, "status": "cancelled"}
]`

func testConfig(ordersPath string) *config.Config {
	quiet := false
	return &config.Config{
		Telegram:  config.TelegramConfig{Token: "1:x", AdminID: adminID},
		Broadcast: config.BroadcastConfig{Delay: "1ms"},
		Storage:   config.StorageConfig{Driver: "file", Path: ordersPath},
		Shop:      config.ShopConfig{Name: "Sweet Shop", URL: "https://shop.example.com"},
		Logging:   config.LoggingConfig{Console: &quiet},
	}
}

func newTestApp(t *testing.T) (*App, *transporttest.Recorder, *config.Config) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(p, []byte(ordersJSON), 0o600))

	cfg := testConfig(p)
	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	store, err := storage.Open(sc, logx.Nop())
	require.NoError(t, err)

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	t.Cleanup(func() { _ = logSvc.Close() })

	rec := transporttest.New()
	a, err := assemble(config.NewConfigManager(""), cfg, logSvc, root, rec, store)
	require.NoError(t, err)
	return a, rec, cfg
}

func TestBroadcastEndToEnd(t *testing.T) {
	req := require.New(t)
	a, rec, _ := newTestApp(t)

	a.cmdm.Serve(context.Background(), transporttest.Text(adminID, "/broadcast Sale today"))

	req.Equal([]string{"Sale today"}, rec.SentTo(11))
	req.Equal([]string{"Sale today"}, rec.SentTo(22))
	admin := rec.SentTo(adminID)
	req.Len(admin, 2)
	req.Contains(admin[1], "Total customers: 2")
	req.Contains(admin[1], "Delivered: 2")
	req.Contains(admin[1], "Failed: 0")
}

func TestBroadcastDeniedForCustomer(t *testing.T) {
	a, rec, _ := newTestApp(t)

	a.cmdm.Serve(context.Background(), transporttest.Text(11, "/broadcast hi"))

	require.Empty(t, rec.SentTo(22))
	out := rec.SentTo(11)
	require.Len(t, out, 1)
	require.NotEqual(t, "hi", out[0])
}

func TestApplyConfigHotReload(t *testing.T) {
	req := require.New(t)
	a, rec, cfg := newTestApp(t)

	next := *cfg
	next.Telegram.AdminID = 43
	next.Broadcast.Delay = "2ms"
	next.Shop.Name = "Renamed"
	a.applyConfig(context.Background(), cfg, &next)

	req.Equal(domain.Identity(43), a.gate.Admin())
	req.Equal(2*time.Millisecond, a.dispatch.Config().Delay)

	var adminMenu bool
	for _, m := range rec.Menus() {
		if m.ChatID == 43 {
			adminMenu = true
		}
	}
	req.True(adminMenu)

	a.cmdm.Serve(context.Background(), transporttest.Text(adminID, "/broadcast hi"))
	req.Empty(rec.SentTo(11))
}

func TestStartStop(t *testing.T) {
	req := require.New(t)
	a, rec, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req.NoError(a.Start(ctx))

	a.updates <- transporttest.Text(adminID, "/stats")
	req.Eventually(func() bool { return len(rec.SentTo(adminID)) > 0 }, 2*time.Second, 10*time.Millisecond)
	req.Contains(rec.SentTo(adminID)[0], "Total orders: 4")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	req.NoError(a.Stop(stopCtx, StopAppStop))

	select {
	case <-a.Done():
	default:
		t.Fatal("app context not canceled after Stop")
	}
	req.NoError(a.Err())
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	a := &App{log: logx.NewWriter(&buf, "debug")}

	a.logEvent(eventbus.Event{Type: broadcast.EventFinished, Data: broadcast.FinishedEvent{
		RunID: "r1",
		Tally: broadcast.Tally{Total: 3, Succeeded: 2, Failed: 1},
	}})
	a.logEvent(eventbus.Event{Type: "other"})

	out := buf.String()
	require.Contains(t, out, `"message":"broadcast finished"`)
	require.Contains(t, out, `"failed":1`)
	require.Equal(t, 2, strings.Count(out, "\n"))
}

func TestStopStepDeadline(t *testing.T) {
	a := &App{log: logx.Nop()}
	release := make(chan struct{})
	defer close(release)

	err := a.stopStep(context.Background(), "slow", 20*time.Millisecond, func(context.Context) error {
		<-release
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = a.stopStep(context.Background(), "panics", time.Second, func(context.Context) error {
		panic("boom")
	})
	require.ErrorContains(t, err, "panic in stop step panics")
}

func TestMapStorageConfig(t *testing.T) {
	req := require.New(t)

	sc, err := mapStorageConfig(&config.Config{})
	req.NoError(err)
	req.Equal("sqlite", sc.Driver)
	req.Equal(defaultSQLitePath, sc.Path)
	req.Equal(time.Second, sc.BusyTimeout)

	sc, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{SupabaseURL: "https://db.example.com", SupabaseKey: "k", HTTPTimeout: "3s"}})
	req.NoError(err)
	req.Equal("supabase", sc.Driver)
	req.Equal(3*time.Second, sc.HTTPTimeout)

	_, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "file"}})
	req.Error(err)
	_, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "mongo"}})
	req.Error(err)
}

func TestMapBroadcastConfig(t *testing.T) {
	bc, err := mapBroadcastConfig(&config.Config{Broadcast: config.BroadcastConfig{Delay: "75ms", Workers: 3}})
	require.NoError(t, err)
	require.Equal(t, 75*time.Millisecond, bc.Delay)
	require.Equal(t, 3, bc.Workers)

	_, err = mapBroadcastConfig(&config.Config{Broadcast: config.BroadcastConfig{SendTimeout: "-1s"}})
	require.Error(t, err)
}

func TestReasonFromSignal(t *testing.T) {
	require.Equal(t, StopSIGINT, ReasonFromSignal(os.Interrupt))
	require.Equal(t, StopSIGTERM, ReasonFromSignal(syscall.SIGTERM))
	require.Equal(t, StopUnknown, ReasonFromSignal(syscall.SIGHUP))
}

func TestMapAdapterConfigUsesSendTimeout(t *testing.T) {
	ac := mapAdapterConfig(&config.Config{
		Telegram:  config.TelegramConfig{Token: "1:x", PollTimeout: "20s"},
		Broadcast: config.BroadcastConfig{SendTimeout: "7s"},
	})
	require.Equal(t, "1:x", ac.Token)
	require.Equal(t, 20*time.Second, ac.PollTimeout)
	require.Equal(t, 7*time.Second, ac.RequestTimeout)

	ac = mapAdapterConfig(&config.Config{})
	require.Equal(t, broadcast.DefaultSendTimeout, ac.RequestTimeout)
}
