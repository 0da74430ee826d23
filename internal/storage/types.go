package storage

import (
	"context"
	"errors"
	"time"

	"shopbot/internal/domain"
)

var ErrClosed = errors.New("storage closed")

// OrderStore is the read-only order history port.
type OrderStore interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "supabase": REST API at SupabaseURL using SupabaseKey
//   - "file": JSON file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	SupabaseURL string
	SupabaseKey string
	Table       string        // supabase only; default "orders"
	HTTPTimeout time.Duration // supabase only
}
