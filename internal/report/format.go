package report

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"shopbot/internal/broadcast"
	"shopbot/internal/domain"
	"shopbot/pkg/tgui"
)

const DefaultCurrency = "₸"

// Formatter renders reports as Telegram HTML.
type Formatter struct {
	Currency string
}

func New(currency string) Formatter { return Formatter{Currency: currency} }

func (f Formatter) money(v int64) string {
	cur := f.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return humanize.Comma(v) + " " + tgui.Esc(cur).String()
}

func count(n int) string { return humanize.Comma(int64(n)) }

// FormatDispatchReport renders the final tally of one broadcast run.
func (f Formatter) FormatDispatchReport(t broadcast.Tally) string {
	return tgui.New().
		Title("✅", "Broadcast finished!").
		Blank().
		RawLine("👥 Total customers: " + count(t.Total)).
		RawLine("✅ Delivered: " + count(t.Succeeded)).
		RawLine("❌ Failed: " + count(t.Failed)).
		String()
}

// FormatDispatchAborted renders a run that stopped early, with the partial tally.
func (f Formatter) FormatDispatchAborted(t broadcast.Tally, err error) string {
	reason := "unexpected error"
	if err != nil {
		reason = err.Error()
		if errors.Is(err, broadcast.ErrDispatchAborted) {
			reason = stripAbortPrefix(reason)
		}
	}
	return tgui.New().
		Title("⚠️", "Broadcast aborted").
		Line("Reason: " + reason).
		Blank().
		RawLine("👥 Total customers: " + count(t.Total)).
		RawLine("✅ Delivered: " + count(t.Succeeded)).
		RawLine("❌ Failed or not attempted: " + count(t.Failed)).
		String()
}

func stripAbortPrefix(s string) string {
	p := broadcast.ErrDispatchAborted.Error() + ": "
	if len(s) > len(p) && s[:len(p)] == p {
		return s[len(p):]
	}
	return s
}

// FormatStats renders the fixed /stats layout.
func (f Formatter) FormatStats(s Stats) string {
	b := tgui.New().
		Title("📊", "Shop statistics").
		Blank().
		RawLine("📦 Total orders: " + count(s.Orders)).
		RawLine("💰 Total revenue: " + f.money(s.Revenue)).
		RawLine("👥 Unique customers: " + count(s.Customers)).
		Blank().
		Section("By status:").
		RawLine("🆕 New: " + count(s.Count(domain.StatusNew))).
		RawLine("⏳ Processing: " + count(s.Count(domain.StatusProcessing))).
		RawLine("✅ Completed: " + count(s.Count(domain.StatusCompleted))).
		RawLine("💳 Awaiting payment: " + count(s.Count(domain.StatusPendingPayment))).
		RawLine("❌ Cancelled: " + count(s.Count(domain.StatusCancelled)))
	if other := s.otherStatuses(); other > 0 {
		b.RawLine("❔ Other: " + count(other))
	}
	return b.
		Blank().
		RawLine("💵 Average order: " + f.money(s.AverageOrder)).
		Blank().
		RawLine(tgui.I("For more detail: /detailed_stats").String()).
		String()
}

func (s Stats) otherStatuses() int {
	n := 0
	for st, c := range s.ByStatus {
		switch st {
		case domain.StatusNew, domain.StatusProcessing, domain.StatusCompleted, domain.StatusPendingPayment, domain.StatusCancelled:
		default:
			n += c
		}
	}
	return n
}

// FormatDetailedStats renders the /detailed_stats layout relative to now.
func (f Formatter) FormatDetailedStats(orders []domain.Order, now time.Time) string {
	d := ComputeDetailed(orders, now)

	b := tgui.New().
		Title("📊", "Detailed statistics").
		Blank().
		Section("📈 Revenue:").
		RawLine("💰 Total: " + f.money(d.Revenue)).
		RawLine("✅ Completed: " + f.money(d.CompletedRevenue)).
		RawLine("📅 Today: " + f.money(d.Today.Revenue)).
		RawLine("📅 Last 7 days: " + f.money(d.Week.Revenue)).
		RawLine("📅 Last 30 days: " + f.money(d.Month.Revenue)).
		Blank().
		Section("📦 Orders:").
		RawLine("📊 Total: " + count(d.Orders)).
		RawLine("📅 Today: " + count(d.Today.Orders)).
		RawLine("📅 Last 7 days: " + count(d.Week.Orders)).
		RawLine("📅 Last 30 days: " + count(d.Month.Orders)).
		RawLine("💵 Average order: " + f.money(d.AverageOrder)).
		Blank().
		Section("🏆 Top products:")
	if len(d.TopProducts) == 0 {
		b.Line("No data")
	}
	for i, p := range d.TopProducts {
		b.RawLine(fmt.Sprintf("%d. %s - %s pcs (%s)", i+1, tgui.Esc(p.Name), count(p.Quantity), f.money(p.Revenue)))
	}
	return b.
		Blank().
		Section("🎯 Conversion:").
		RawLine("✅ Completed: " + count(d.Count(domain.StatusCompleted)) + " (" + strconv.Itoa(d.ConversionPct) + "%)").
		RawLine("⏳ Awaiting payment: " + count(d.Count(domain.StatusPendingPayment))).
		RawLine("❌ Cancelled: " + count(d.Count(domain.StatusCancelled))).
		Blank().
		Section("👥 Customers:").
		RawLine("👤 Unique: " + count(d.Customers)).
		RawLine("🔄 Returning: " + count(d.RepeatCustomers) + " (" + strconv.Itoa(d.RepeatPct) + "%)").
		String()
}
