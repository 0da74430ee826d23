package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Identity is a platform user id (Telegram user id).
// Zero means "missing".
type Identity int64

func (id Identity) IsZero() bool { return id == 0 }

func (id Identity) String() string { return strconv.FormatInt(int64(id), 10) }

// UnmarshalJSON accepts a number (integral floats included), a numeric
// string, "" or null. The hosted order table stores telegram_user_id loosely,
// so all of these show up.
func (id *Identity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("identity: invalid id %q: %w", s, err)
		}
		*id = Identity(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if v, err := n.Int64(); err == nil {
		*id = Identity(v)
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return fmt.Errorf("identity: invalid id %s", n)
	}
	*id = Identity(f)
	return nil
}

type OrderStatus string

const (
	StatusNew            OrderStatus = "new"
	StatusProcessing     OrderStatus = "processing"
	StatusCompleted      OrderStatus = "completed"
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusCancelled      OrderStatus = "cancelled"
)

// Amount is a money value in whole currency units.
// JSON floats are rounded; null decodes to zero.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*a = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("amount: invalid value %s: %w", b, err)
	}
	*a = Amount(math.Round(f))
	return nil
}

type OrderItem struct {
	Name     string `json:"name"`
	Price    Amount `json:"price"`
	Quantity int    `json:"quantity"`
}

// Order is a read-only view of one row of the orders table.
type Order struct {
	ID           string      `json:"id"`
	RecipientID  Identity    `json:"telegram_user_id"`
	CustomerName string      `json:"customer_name,omitempty"`
	Total        Amount      `json:"total"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"date"`
	Items        []OrderItem `json:"items,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON tolerates missing or oddly formatted dates and unusable
// user ids. Both are left zero instead of failing the whole row, so the
// order still counts in stats and the resolver skips it as a recipient.
func (o *Order) UnmarshalJSON(b []byte) error {
	type plain Order
	aux := struct {
		*plain
		UserID json.RawMessage `json:"telegram_user_id"`
		Date   json.RawMessage `json:"date"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	o.RecipientID = 0
	if len(aux.UserID) > 0 {
		_ = o.RecipientID.UnmarshalJSON(aux.UserID)
	}
	o.CreatedAt = time.Time{}
	var s string
	if len(aux.Date) == 0 || json.Unmarshal(aux.Date, &s) != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			o.CreatedAt = t
			return nil
		}
	}
	return nil
}
