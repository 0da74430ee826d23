package storage

import (
	"encoding/json"

	"shopbot/internal/domain"
	logx "shopbot/pkg/logx"
)

// decodeOrders decodes rows one by one. A row that cannot be decoded is
// logged and skipped so one bad record does not hide the rest.
func decodeOrders(rows []json.RawMessage, log logx.Logger) []domain.Order {
	out := make([]domain.Order, 0, len(rows))
	for i, raw := range rows {
		var o domain.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			log.Warn("order row undecodable; skipping", logx.Int("row", i), logx.Err(err))
			continue
		}
		out = append(out, o)
	}
	return out
}
