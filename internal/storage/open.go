package storage

import (
	"errors"
	"strings"

	logx "shopbot/pkg/logx"
)

// Open initializes the configured order store.
func Open(cfg Config, log logx.Logger) (OrderStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "supabase":
		return openSupabase(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
