// Package report renders dispatch tallies and order statistics for the admin.
// Everything here is pure: no I/O and no mutation of its inputs.
package report

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"shopbot/internal/domain"
)

// Stats is the aggregate shown by /stats.
type Stats struct {
	Orders       int
	Revenue      int64
	Customers    int
	ByStatus     map[domain.OrderStatus]int
	AverageOrder int64
}

// ComputeStats aggregates orders. AverageOrder is revenue/orders rounded down
// and zero when there are no orders.
func ComputeStats(orders []domain.Order) Stats {
	st := Stats{
		Orders:   len(orders),
		Revenue:  revenue(orders),
		ByStatus: lo.CountValuesBy(orders, func(o domain.Order) domain.OrderStatus { return o.Status }),
	}
	st.Customers = len(customerOrderCounts(orders))
	if st.Orders > 0 {
		st.AverageOrder = st.Revenue / int64(st.Orders)
	}
	return st
}

// Count returns the number of orders with the given status.
func (s Stats) Count(status domain.OrderStatus) int { return s.ByStatus[status] }

// Period is an order count and revenue over a time window.
type Period struct {
	Orders  int
	Revenue int64
}

type ProductSales struct {
	Name     string
	Quantity int
	Revenue  int64
}

// DetailedStats is the aggregate shown by /detailed_stats.
type DetailedStats struct {
	Stats
	CompletedRevenue int64
	Today            Period
	Week             Period
	Month            Period
	TopProducts      []ProductSales
	ConversionPct    int
	RepeatCustomers  int
	RepeatPct        int
}

const (
	topProductsLimit = 5
	unknownProduct   = "Unknown item"
)

// ComputeDetailed aggregates orders relative to now. "Today" starts at local
// midnight of now; the week and month windows reach 7 and 30 days back from it.
// Orders without a timestamp only count toward the all-time figures.
func ComputeDetailed(orders []domain.Order, now time.Time) DetailedStats {
	d := DetailedStats{Stats: ComputeStats(orders)}

	completed := lo.Filter(orders, func(o domain.Order, _ int) bool { return o.Status == domain.StatusCompleted })
	d.CompletedRevenue = revenue(completed)
	d.ConversionPct = percent(len(completed), d.Orders)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	d.Today = period(orders, today)
	d.Week = period(orders, today.AddDate(0, 0, -7))
	d.Month = period(orders, today.AddDate(0, 0, -30))

	d.TopProducts = topProducts(orders, topProductsLimit)

	counts := customerOrderCounts(orders)
	d.RepeatCustomers = len(lo.PickBy(counts, func(_ domain.Identity, n int) bool { return n > 1 }))
	d.RepeatPct = percent(d.RepeatCustomers, len(counts))
	return d
}

func revenue(orders []domain.Order) int64 {
	return lo.SumBy(orders, func(o domain.Order) int64 { return int64(o.Total) })
}

func customerOrderCounts(orders []domain.Order) map[domain.Identity]int {
	withID := lo.Filter(orders, func(o domain.Order, _ int) bool { return !o.RecipientID.IsZero() })
	return lo.CountValuesBy(withID, func(o domain.Order) domain.Identity { return o.RecipientID })
}

func period(orders []domain.Order, since time.Time) Period {
	in := lo.Filter(orders, func(o domain.Order, _ int) bool {
		return !o.CreatedAt.IsZero() && !o.CreatedAt.Before(since)
	})
	return Period{Orders: len(in), Revenue: revenue(in)}
}

func topProducts(orders []domain.Order, limit int) []ProductSales {
	byName := map[string]*ProductSales{}
	for _, o := range orders {
		for _, it := range o.Items {
			name := it.Name
			if name == "" {
				name = unknownProduct
			}
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			ps := byName[name]
			if ps == nil {
				ps = &ProductSales{Name: name}
				byName[name] = ps
			}
			ps.Quantity += qty
			ps.Revenue += int64(it.Price) * int64(qty)
		}
	}
	out := lo.MapToSlice(byName, func(_ string, ps *ProductSales) ProductSales { return *ps })
	slices.SortFunc(out, func(a, b ProductSales) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// percent returns round(part/whole*100), or 0 for an empty whole.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}
