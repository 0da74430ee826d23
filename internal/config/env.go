package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides are the environment variables that win over the config file.
// Unset variables leave the file value alone.
type envOverrides struct {
	BotToken      string `envconfig:"BOT_TOKEN"`
	AdminID       int64  `envconfig:"ADMIN_ID"`
	SupabaseURL   string `envconfig:"SUPABASE_URL"`
	SupabaseKey   string `envconfig:"SUPABASE_KEY"`
	StorageDriver string `envconfig:"STORAGE_DRIVER"`
	StoragePath   string `envconfig:"STORAGE_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set are kept. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if v := strings.TrimSpace(env.BotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if env.AdminID != 0 {
		cfg.Telegram.AdminID = env.AdminID
	}
	if v := strings.TrimSpace(env.SupabaseURL); v != "" {
		cfg.Storage.SupabaseURL = v
	}
	if v := strings.TrimSpace(env.SupabaseKey); v != "" {
		cfg.Storage.SupabaseKey = v
	}
	if v := strings.TrimSpace(env.StorageDriver); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(env.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return nil
}
