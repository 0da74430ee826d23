package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"shopbot/internal/domain"
	logx "shopbot/pkg/logx"
)

// fileStore reads a JSON array of orders on every call, so edits to the
// file show up in the next broadcast without a restart.
type fileStore struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (OrderStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read orders file: %w", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode orders file: %w", err)
	}
	return decodeOrders(rows, s.log), nil
}

func (s *fileStore) Close() error { return nil }
