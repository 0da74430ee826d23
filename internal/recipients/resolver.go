// Package recipients turns the order history into a broadcast audience.
package recipients

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"shopbot/internal/domain"
	logx "shopbot/pkg/logx"
)

var (
	// ErrDataUnavailable means the order store could not be queried.
	ErrDataUnavailable = errors.New("recipients: order data unavailable")
	// ErrEmptyRecipientSet means the store answered but no order carries a usable identity.
	ErrEmptyRecipientSet = errors.New("recipients: no recipients")
)

// OrderLister is the slice of the order store the resolver needs.
type OrderLister interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

type Resolver struct {
	store OrderLister
	log   logx.Logger
}

func NewResolver(store OrderLister, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{store: store, log: log}
}

// Resolve returns every distinct non-zero identity that ever placed an order,
// in first-appearance order.
func (r *Resolver) Resolve(ctx context.Context) ([]domain.Identity, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("%w: no order store", ErrDataUnavailable)
	}
	orders, err := r.store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	ids := Distinct(lo.Map(orders, func(o domain.Order, _ int) domain.Identity { return o.RecipientID }))
	r.log.Debug("recipients resolved", logx.Int("orders", len(orders)), logx.Int("recipients", len(ids)))
	if len(ids) == 0 {
		return nil, ErrEmptyRecipientSet
	}
	return ids, nil
}

// Distinct drops zero identities and duplicates, keeping first-appearance order.
func Distinct(ids []domain.Identity) []domain.Identity {
	return lo.Uniq(lo.Filter(ids, func(id domain.Identity, _ int) bool { return !id.IsZero() }))
}
