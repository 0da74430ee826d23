package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityUnmarshalLooseValues(t *testing.T) {
	req := require.New(t)

	var rows []struct {
		ID Identity `json:"telegram_user_id"`
	}
	raw := `[{"telegram_user_id": 42}, {"telegram_user_id": "43"}, {"telegram_user_id": ""}, {"telegram_user_id": null}, {}]`
	req.NoError(json.Unmarshal([]byte(raw), &rows))
	req.Len(rows, 5)
	req.Equal(Identity(42), rows[0].ID)
	req.Equal(Identity(43), rows[1].ID)
	req.True(rows[2].ID.IsZero())
	req.True(rows[3].ID.IsZero())
	req.True(rows[4].ID.IsZero())
}

func TestIdentityUnmarshalRejectsGarbage(t *testing.T) {
	var id Identity
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &id))
	require.Error(t, json.Unmarshal([]byte(`1.5`), &id))
}

func TestAmountUnmarshalRoundsAndTreatsNullAsZero(t *testing.T) {
	req := require.New(t)

	var o Order
	req.NoError(json.Unmarshal([]byte(`{"total": 1499.6, "items": [{"name": "cake", "price": "500", "quantity": 2}]}`), &o))
	req.Equal(Amount(1500), o.Total)
	req.Equal(Amount(500), o.Items[0].Price)

	req.NoError(json.Unmarshal([]byte(`{"total": null}`), &o))
	req.Equal(Amount(0), o.Total)
}

func TestOrderDateLayouts(t *testing.T) {
	req := require.New(t)

	var rows []Order
	raw := `[
		{"id": "a", "date": "2024-03-01T10:00:00.000Z"},
		{"id": "b", "date": "2024-03-01 10:00:00"},
		{"id": "c", "date": "yesterday"},
		{"id": "d", "date": null}
	]`
	req.NoError(json.Unmarshal([]byte(raw), &rows))
	req.Equal(2024, rows[0].CreatedAt.Year())
	req.Equal(10, rows[1].CreatedAt.Hour())
	req.True(rows[2].CreatedAt.IsZero())
	req.True(rows[3].CreatedAt.IsZero())
	req.Equal("c", rows[2].ID)
}

func TestIdentityAcceptsIntegralFloat(t *testing.T) {
	var id Identity
	require.NoError(t, json.Unmarshal([]byte(`123.0`), &id))
	require.Equal(t, Identity(123), id)
}

func TestOrderWithUnusableUserIDKeepsRow(t *testing.T) {
	req := require.New(t)

	var o Order
	req.NoError(json.Unmarshal([]byte(`{"id": "x", "telegram_user_id": "@someone", "total": 70}`), &o))
	req.Equal("x", o.ID)
	req.True(o.RecipientID.IsZero())
	req.Equal(Amount(70), o.Total)
}
