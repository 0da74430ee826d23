package config

import "time"

// Config is the root config document. Durations are Go duration strings
// ("50ms", "15s") and are resolved through the accessor methods below.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Router    RouterConfig    `json:"router"`
	Storage   StorageConfig   `json:"storage"`
	Shop      ShopConfig      `json:"shop"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token       string `json:"token" validate:"required"`
	AdminID     int64  `json:"admin_id" validate:"gt=0"`
	PollTimeout string `json:"poll_timeout"`
}

type BroadcastConfig struct {
	Delay       string `json:"delay"`
	Workers     int    `json:"workers" validate:"gte=0,lte=32"`
	SendTimeout string `json:"send_timeout"`
	ParseMode   string `json:"parse_mode" validate:"omitempty,oneof=HTML MarkdownV2 Markdown"`
}

type RouterConfig struct {
	Workers   int    `json:"workers" validate:"gte=0,lte=64"`
	QueueSize int    `json:"queue_size" validate:"gte=0"`
	Timeout   string `json:"timeout"`
}

type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 supabase file"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
	SupabaseURL string `json:"supabase_url" validate:"omitempty,url"`
	SupabaseKey string `json:"supabase_key"`
	Table       string `json:"table"`
	HTTPTimeout string `json:"http_timeout"`
}

type ShopConfig struct {
	Name     string        `json:"name"`
	URL      string        `json:"url" validate:"omitempty,url"`
	AdminURL string        `json:"admin_url" validate:"omitempty,url"`
	Currency string        `json:"currency"`
	Contact  ContactConfig `json:"contact"`
}

type ContactConfig struct {
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
	Hours   string `json:"hours"`
}

type LoggingConfig struct {
	Level    string            `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console  *bool             `json:"console,omitempty"`
	File     LogFileConfig     `json:"file"`
	Telegram LogTelegramConfig `json:"telegram"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

const (
	DefaultPollTimeout   = 10 * time.Second
	DefaultRouterTimeout = 30 * time.Second
)

// PollTimeout returns the long-poll timeout. Call Validate first; invalid
// values fall back to the default here.
func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	if err != nil {
		return DefaultPollTimeout
	}
	return d
}

func (c *Config) RouterTimeout() time.Duration {
	d, err := ParseDurationOrDefault("router.timeout", c.Router.Timeout, DefaultRouterTimeout)
	if err != nil {
		return DefaultRouterTimeout
	}
	return d
}
