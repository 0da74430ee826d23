package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{"BOT_TOKEN", "ADMIN_ID", "SUPABASE_URL", "SUPABASE_KEY", "STORAGE_DRIVER", "STORAGE_PATH", "LOG_LEVEL"}

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_id: 42
broadcast:
  delay: 100ms
  workers: 2
storage:
  driver: sqlite
  path: data/orders.db
shop:
  name: Sweet Shop
  url: https://shop.example.com
  contact:
    email: hi@example.com
`

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	req := require.New(t)

	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	cfg, err := m.Load()
	req.NoError(err)
	req.Same(cfg, m.Get())

	req.Equal("123:abc", cfg.Telegram.Token)
	req.Equal(int64(42), cfg.Telegram.AdminID)
	req.Equal("100ms", cfg.Broadcast.Delay)
	req.Equal(2, cfg.Broadcast.Workers)
	req.Equal("Sweet Shop", cfg.Shop.Name)
	req.Equal(DefaultPollTimeout, cfg.PollTimeout())
	req.Equal(DefaultRouterTimeout, cfg.RouterTimeout())
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	p := writeFile(t, dir, "config.json", `{"telegram": {"token": "t", "admin_id": 1, "colour": "red"}}`)
	_, err := NewConfigManager(p).Parse()
	require.Error(t, err)

	p = writeFile(t, dir, "trailing.json", `{"telegram": {"token": "t", "admin_id": 1}} {}`)
	_, err = NewConfigManager(p).Parse()
	require.ErrorContains(t, err, "trailing data")
}

func TestEnvOverridesFileValues(t *testing.T) {
	clearEnv(t)
	req := require.New(t)

	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("ADMIN_ID", "7")
	t.Setenv("STORAGE_DRIVER", "SUPABASE")
	t.Setenv("SUPABASE_URL", "https://db.example.com")
	t.Setenv("SUPABASE_KEY", "secret")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := NewConfigManager(p).Load()
	req.NoError(err)
	req.Equal("999:env", cfg.Telegram.Token)
	req.Equal(int64(7), cfg.Telegram.AdminID)
	req.Equal("supabase", cfg.Storage.Driver)
	req.Equal("https://db.example.com", cfg.Storage.SupabaseURL)
	req.Equal("debug", cfg.Logging.Level)
	// untouched by env
	req.Equal("data/orders.db", cfg.Storage.Path)
}

func TestEnvOnlyConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "1:x")
	t.Setenv("ADMIN_ID", "5")

	cfg, err := NewConfigManager("").Load()
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.Telegram.AdminID)
}

func TestEnvRejectsNonNumericAdminID(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_ID", "alice")

	var cfg Config
	require.Error(t, ApplyEnv(&cfg))
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	req := require.New(t)
	dir := t.TempDir()

	p := writeFile(t, dir, ".env", "BOT_TOKEN=from-dotenv\nADMIN_ID=11\n")
	t.Setenv("BOT_TOKEN", "from-process")

	req.NoError(LoadDotEnv(filepath.Join(dir, "missing.env"), p))

	var cfg Config
	req.NoError(ApplyEnv(&cfg))
	req.Equal("from-process", cfg.Telegram.Token)
	req.Equal(int64(11), cfg.Telegram.AdminID)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		Broadcast: BroadcastConfig{Delay: "soon", Workers: -1},
		Storage:   StorageConfig{Driver: "supabase"},
		Shop:      ShopConfig{Contact: ContactConfig{Email: "not-an-email"}},
	}
	err := Validate(cfg)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"telegram.token",
		"telegram.admin_id",
		"broadcast.workers",
		"shop.contact.email",
		`broadcast.delay: invalid duration "soon"`,
		"storage.supabase_url is required",
		"storage.supabase_key is required",
	} {
		require.Contains(t, msg, want)
	}

	require.Error(t, Validate(nil))
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "1:x", AdminID: 1}}
	require.NoError(t, Validate(cfg))
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	clearEnv(t)
	req := require.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	_, err := m.Load()
	req.NoError(err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	published, err := m.Reload(ctx)
	req.NoError(err)
	req.False(published)

	writeFile(t, dir, "config.yaml", sampleYAML+"\nrouter:\n  workers: 3\n")
	published, err = m.Reload(ctx)
	req.NoError(err)
	req.True(published)
	got := <-ch
	req.Equal(3, got.Router.Workers)
	req.Same(got, m.Get())

	writeFile(t, dir, "config.yaml", "telegram:\n  token: \"\"\n")
	published, err = m.Reload(ctx)
	req.Error(err)
	req.False(published)
	req.Equal(3, m.Get().Router.Workers)
}

func TestReloadRunsExtraValidator(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return context.DeadlineExceeded
	})
	writeFile(t, dir, "config.yaml", sampleYAML+"\nrouter:\n  workers: 9\n")
	_, err = m.Reload(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishKeepsNewestForSlowSubscriber(t *testing.T) {
	m := NewConfigManager("")
	ch := m.Subscribe(1)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	require.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.yaml", strings.Replace(sampleYAML, "Sweet Shop", "Renamed", 1))

	select {
	case got := <-ch:
		require.Equal(t, "Renamed", got.Shop.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a", AdminID: 1}}
	newCfg := *oldCfg
	newCfg.Telegram.AdminID = 2
	newCfg.Broadcast.Delay = "1s"

	changed, attrs := SummarizeConfigChange(oldCfg, &newCfg)
	require.Equal(t, []string{"telegram", "broadcast"}, changed)
	require.NotEmpty(t, attrs)
	require.Empty(t, RequiresRestart(oldCfg, &newCfg))

	newCfg.Telegram.Token = "b"
	require.Equal(t, []string{"telegram"}, RequiresRestart(oldCfg, &newCfg))
}
