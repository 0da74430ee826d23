package config

import (
	"reflect"

	logx "shopbot/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ between two
// configs plus log fields describing the new values. Secrets are never logged.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil || newCfg == nil {
		return nil, nil
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int64("telegram.admin_id", newCfg.Telegram.AdminID),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.delay", newCfg.Broadcast.Delay),
			logx.Int("broadcast.workers", newCfg.Broadcast.Workers),
			logx.String("broadcast.send_timeout", newCfg.Broadcast.SendTimeout),
			logx.String("broadcast.parse_mode", newCfg.Broadcast.ParseMode),
		)
	}
	if oldCfg.Router != newCfg.Router {
		changed = append(changed, "router")
		attrs = append(attrs,
			logx.Int("router.workers", newCfg.Router.Workers),
			logx.Int("router.queue_size", newCfg.Router.QueueSize),
			logx.String("router.timeout", newCfg.Router.Timeout),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.Bool("storage.key_changed", oldCfg.Storage.SupabaseKey != newCfg.Storage.SupabaseKey),
		)
	}
	if oldCfg.Shop != newCfg.Shop {
		changed = append(changed, "shop")
		attrs = append(attrs,
			logx.String("shop.name", newCfg.Shop.Name),
			logx.String("shop.currency", newCfg.Shop.Currency),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file.enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram.enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	return changed, attrs
}

// RequiresRestart reports sections that hot reload cannot apply.
func RequiresRestart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Router != newCfg.Router {
		out = append(out, "router")
	}
	return out
}
