package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopbot/internal/domain"
	logx "shopbot/pkg/logx"
)

const (
	supabaseDefaultTable = "orders"
	supabasePageSize     = 1000
	supabaseColumns      = "id,telegram_user_id,customer_name,total,status,date,items"
)

// supabaseStore reads orders through the PostgREST endpoint Supabase exposes
// at <url>/rest/v1/<table>. Rows are fetched in pages with Range headers.
type supabaseStore struct {
	base  string
	key   string
	table string
	log   logx.Logger
	http  *http.Client
}

func openSupabase(cfg Config, log logx.Logger) (OrderStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if base == "" {
		return nil, errors.New("supabase url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("supabase url: %w", err)
	}
	if strings.TrimSpace(cfg.SupabaseKey) == "" {
		return nil, errors.New("supabase key is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = supabaseDefaultTable
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &supabaseStore{
		base:  base,
		key:   strings.TrimSpace(cfg.SupabaseKey),
		table: table,
		log:   log,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *supabaseStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	for from := 0; ; from += supabasePageSize {
		rows, err := s.fetchPage(ctx, from, from+supabasePageSize-1)
		if err != nil {
			return nil, err
		}
		out = append(out, decodeOrders(rows, s.log)...)
		if len(rows) < supabasePageSize {
			break
		}
	}
	s.log.Debug("orders fetched", logx.String("table", s.table), logx.Int("count", len(out)))
	return out, nil
}

func (s *supabaseStore) fetchPage(ctx context.Context, from, to int) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("select", supabaseColumns)
	q.Set("order", "date.asc")
	u := s.base + "/rest/v1/" + url.PathEscape(s.table) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", from, to))

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("supabase: %s (code=%s http=%d)", apiErr.Message, apiErr.Code, resp.StatusCode)
		}
		return nil, fmt.Errorf("supabase: http=%d", resp.StatusCode)
	}

	var page []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("supabase decode: %w", err)
	}
	return page, nil
}

func (s *supabaseStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}
