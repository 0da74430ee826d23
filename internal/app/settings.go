package app

import (
	"fmt"
	"strings"
	"time"

	"shopbot/internal/bot"
	"shopbot/internal/broadcast"
	"shopbot/internal/config"
	"shopbot/internal/storage"
	telegram "shopbot/internal/transport/telegram/adapter"
	"shopbot/internal/transport/telegram/router"
	logx "shopbot/pkg/logx"
)

const defaultSQLitePath = "data/shop.db"

// mapStorageConfig resolves the storage driver. An empty driver means sqlite,
// or supabase when a Supabase URL is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, fmt.Errorf("config is nil")
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
		if strings.TrimSpace(sc.SupabaseURL) != "" {
			driver = "supabase"
		}
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "supabase":
		httpTimeout, err := config.ParseDurationField("storage.http_timeout", sc.HTTPTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{
			Driver:      "supabase",
			SupabaseURL: strings.TrimSpace(sc.SupabaseURL),
			SupabaseKey: strings.TrimSpace(sc.SupabaseKey),
			Table:       strings.TrimSpace(sc.Table),
			HTTPTimeout: httpTimeout,
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapBroadcastConfig leaves unset fields at zero; the dispatcher fills its defaults.
func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	bc := cfg.Broadcast
	delay, err := config.ParseDurationField("broadcast.delay", bc.Delay)
	if err != nil {
		return broadcast.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("broadcast.send_timeout", bc.SendTimeout)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		Delay:       delay,
		Workers:     bc.Workers,
		SendTimeout: sendTimeout,
		ParseMode:   bc.ParseMode,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) telegram.Config {
	req := broadcast.DefaultSendTimeout
	if bc, err := mapBroadcastConfig(cfg); err == nil && bc.SendTimeout > 0 {
		req = bc.SendTimeout
	}
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    cfg.PollTimeout(),
		RequestTimeout: req,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	console := true
	if l.Console != nil {
		console = *l.Console
	}
	return logx.Config{
		Level:   l.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapBotConfig(cfg *config.Config) bot.Config {
	s := cfg.Shop
	return bot.Config{
		ShopName: s.Name,
		ShopURL:  s.URL,
		AdminURL: s.AdminURL,
		Currency: s.Currency,
		Contact: bot.Contact{
			Phone:   s.Contact.Phone,
			Email:   s.Contact.Email,
			Address: s.Contact.Address,
			Hours:   s.Contact.Hours,
		},
	}
}

func mapRouterOptions(cfg *config.Config) router.Options {
	return router.Options{
		Workers:    cfg.Router.Workers,
		QueueSize:  cfg.Router.QueueSize,
		Timeout:    cfg.RouterTimeout(),
		HelpFooter: bot.HelpFooter(),
	}
}
