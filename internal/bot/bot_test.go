package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shopbot/internal/auth"
	"shopbot/internal/broadcast"
	"shopbot/internal/domain"
	"shopbot/internal/recipients"
	"shopbot/internal/session"
	"shopbot/internal/transport/telegram/router"
	"shopbot/internal/transport/transporttest"
	logx "shopbot/pkg/logx"
)

const (
	adminID    = 1000
	customerID = 2000
)

type fakeOrders struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
	calls  int
}

func (f *fakeOrders) ListOrders(context.Context) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.orders, f.err
}

func (f *fakeOrders) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	rec      *transporttest.Recorder
	store    *fakeOrders
	sessions *session.Store
	router   *router.CommandManager
}

func newHarness(t *testing.T, orders ...domain.Order) *harness {
	t.Helper()
	rec := transporttest.New()
	store := &fakeOrders{orders: orders}
	gate := auth.NewGate(adminID)
	sessions := session.NewStore()

	b := New(Config{ShopName: "Sweet Bakery", ShopURL: "https://shop.example", AdminURL: "https://shop.example/admin.html",
		Contact: Contact{Phone: "+7 777 888-88-88", Email: "info@bakery.example", Hours: "Mon-Sun 09:00-21:00"}},
		Deps{
			Gate:       gate,
			Sessions:   sessions,
			Resolver:   recipients.NewResolver(store, logx.Nop()),
			Dispatcher: broadcast.New(broadcast.Config{ParseMode: "HTML"}, rec, logx.Nop()),
			Orders:     store,
			Now:        func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) },
		})

	r := router.NewCommandManager(logx.Nop(), rec, gate, router.Options{HelpFooter: HelpFooter()})
	r.SetRegistry(b.Commands())
	r.SetTextHandler(b.HandleText)
	return &harness{rec: rec, store: store, sessions: sessions, router: r}
}

func (h *harness) say(from int64, text string) {
	h.router.Serve(context.Background(), transporttest.Text(from, text))
}

func orderFrom(ids ...domain.Identity) []domain.Order {
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Order{RecipientID: id, Total: 1000, Status: domain.StatusNew})
	}
	return out
}

func TestInlineBroadcastSkipsSessionMachine(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, orderFrom(11, 11, 22, 0)...)

	h.say(adminID, "/broadcast Sale!")

	req.Equal([]string{"Sale!"}, h.rec.SentTo(11))
	req.Equal([]string{"Sale!"}, h.rec.SentTo(22))
	replies := h.rec.SentTo(adminID)
	req.Len(replies, 2)
	req.Equal(textBroadcastStarted, replies[0])
	req.Contains(replies[1], "👥 Total customers: 2")
	req.Contains(replies[1], "✅ Delivered: 2")
	req.Equal(session.Idle, h.sessions.State(adminID))
}

func TestCaptureFlowViaButton(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, orderFrom(11, 22)...)

	h.say(adminID, BroadcastButton)
	req.Equal(session.AwaitingBroadcastText, h.sessions.State(adminID))
	req.Equal([]string{textBroadcastPrompt}, h.rec.SentTo(adminID))
	req.Empty(h.rec.SentTo(11))

	h.say(adminID, "<b>New cakes</b> today")
	req.Equal(session.Idle, h.sessions.State(adminID))
	req.Equal([]string{"<b>New cakes</b> today"}, h.rec.SentTo(11))
	req.Equal([]string{"<b>New cakes</b> today"}, h.rec.SentTo(22))

	// The state is consumed: the next text gets the default reply.
	h.rec.Reset()
	h.say(adminID, "hello")
	req.Equal([]string{textDefaultReply}, h.rec.SentTo(adminID))
	req.Empty(h.rec.SentTo(11))
}

func TestBroadcastWithoutTextEntersCapture(t *testing.T) {
	h := newHarness(t, orderFrom(11)...)
	h.say(adminID, "/broadcast")

	require.Equal(t, session.AwaitingBroadcastText, h.sessions.State(adminID))
	require.Contains(t, h.rec.SentTo(adminID)[0], "<code>/broadcast Your message</code>")
	require.Zero(t, h.store.Calls())
}

func TestCancelClearsCapture(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, orderFrom(11)...)

	h.say(adminID, BroadcastButton)
	h.say(adminID, "/cancel")
	req.Equal(session.Idle, h.sessions.State(adminID))

	h.say(adminID, "this is not a broadcast")
	req.Empty(h.rec.SentTo(11))
	req.Zero(h.store.Calls())
	req.Equal([]string{textBroadcastPrompt, textCancelled, textDefaultReply}, h.rec.SentTo(adminID))

	h.say(adminID, "/cancel")
	req.Equal(textNothingToCancel, h.rec.SentTo(adminID)[3])
}

func TestIdleAdminTextFallsThrough(t *testing.T) {
	h := newHarness(t, orderFrom(11)...)
	h.say(adminID, "hello there")
	require.Equal(t, []string{textDefaultReply}, h.rec.SentTo(adminID))
	require.Zero(t, h.store.Calls())
}

func TestNonAdminIsDeniedWithoutSideEffects(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, orderFrom(11, 22)...)

	// The admin is mid-capture; nothing the customer does may touch that.
	h.say(adminID, BroadcastButton)
	h.rec.Reset()

	for _, text := range []string{"/broadcast Free cake!", "/broadcast", BroadcastButton, "/cancel", "/stats", "/detailed_stats"} {
		h.say(customerID, text)
	}

	replies := h.rec.SentTo(customerID)
	req.Len(replies, 6)
	for _, r := range replies {
		req.Equal(router.DefaultDeniedText, r)
	}
	req.Len(h.rec.Sent(), 6)
	req.Zero(h.store.Calls())
	req.Equal(session.Idle, h.sessions.State(customerID))
	req.Equal(session.AwaitingBroadcastText, h.sessions.State(adminID))
}

func TestNonAdminTextGetsDefaultReply(t *testing.T) {
	h := newHarness(t, orderFrom(11)...)
	h.say(customerID, "when do you open?")
	require.Equal(t, []string{textDefaultReply}, h.rec.SentTo(customerID))
	require.Equal(t, session.Idle, h.sessions.State(customerID))
}

func TestBroadcastCountsFailures(t *testing.T) {
	h := newHarness(t, orderFrom(11, 22, 33)...)
	h.rec.Fail(22, errors.New("Forbidden: bot was blocked by the user"))

	h.say(adminID, "/broadcast hi")
	require.Equal(t, []string{"hi"}, h.rec.SentTo(33))
	report := h.rec.SentTo(adminID)[1]
	require.Contains(t, report, "✅ Delivered: 2")
	require.Contains(t, report, "❌ Failed: 1")
}

func TestBroadcastNoRecipients(t *testing.T) {
	h := newHarness(t, orderFrom(0, 0)...)
	h.say(adminID, "/broadcast hi")
	require.Equal(t, []string{textBroadcastStarted, textNoRecipients}, h.rec.SentTo(adminID))
	require.Len(t, h.rec.Sent(), 2)
}

func TestBroadcastDataUnavailable(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("supabase: timeout")

	h.say(adminID, "/broadcast hi")
	require.Equal(t, []string{textBroadcastStarted, textDataUnavailable}, h.rec.SentTo(adminID))
	require.Len(t, h.rec.Sent(), 2)
}

func TestStats(t *testing.T) {
	h := newHarness(t,
		domain.Order{RecipientID: 11, Total: 1500, Status: domain.StatusNew},
		domain.Order{RecipientID: 11, Total: 2500, Status: domain.StatusCompleted},
	)
	h.say(adminID, "/stats")

	out := h.rec.SentTo(adminID)[0]
	require.Contains(t, out, "📦 Total orders: 2")
	require.Contains(t, out, "💰 Total revenue: 4,000 ₸")
	require.Contains(t, out, "👥 Unique customers: 1")
	require.Contains(t, out, "💵 Average order: 2,000 ₸")
}

func TestStatsQueryFailure(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("db <down>")
	h.say(adminID, "/stats")
	require.Equal(t, textStatsFailed+"db &lt;down&gt;", h.rec.SentTo(adminID)[0])
}

func TestDetailedStats(t *testing.T) {
	h := newHarness(t, domain.Order{RecipientID: 11, Total: 700, Status: domain.StatusCompleted,
		CreatedAt: time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)})
	h.say(adminID, "/detailed_stats")
	out := h.rec.SentTo(adminID)[0]
	require.Contains(t, out, "📅 Today: 700 ₸")
	require.Contains(t, out, "✅ Completed: 1 (100%)")
}

func TestStartKeyboard(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	h.say(customerID, "/start")
	h.say(adminID, "/start")
	sent := h.rec.Sent()
	req.Len(sent, 2)

	req.Contains(sent[0].Text, "Hi, Alice!")
	req.Contains(sent[0].Text, "Welcome to Sweet Bakery!")
	kb := sent[0].Opt.Keyboard
	req.Len(kb.Rows, 1)
	req.Equal(ShopButton, kb.Rows[0][0].Text)
	req.Equal("https://shop.example", kb.Rows[0][0].WebAppURL)

	adminKB := sent[1].Opt.Keyboard
	req.Len(adminKB.Rows, 3)
	req.Equal("https://shop.example/admin.html", adminKB.Rows[1][0].WebAppURL)
	req.Equal(BroadcastButton, adminKB.Rows[2][0].Text)
}

func TestHelpAndContact(t *testing.T) {
	h := newHarness(t)
	h.say(customerID, "/help")
	h.say(customerID, "/contact")

	out := h.rec.SentTo(customerID)
	require.Contains(t, out[0], "/contact - contacts")
	require.Contains(t, out[0], textHelpFooter)
	require.NotContains(t, out[0], "/stats")
	require.Contains(t, out[1], "Phone: +7 777 888-88-88")
	require.Contains(t, out[1], "Mon-Sun 09:00-21:00")
	require.NotContains(t, out[1], "Address:")
}

func TestBroadcastRunsThroughRunner(t *testing.T) {
	rec := transporttest.New()
	store := &fakeOrders{orders: orderFrom(11)}
	var ran []string
	b := New(Config{}, Deps{
		Gate:       auth.NewGate(adminID),
		Resolver:   recipients.NewResolver(store, logx.Nop()),
		Dispatcher: broadcast.New(broadcast.Config{}, rec, logx.Nop()),
		Run: func(name string, fn func(ctx context.Context)) {
			ran = append(ran, name)
			fn(context.Background())
		},
	})
	r := router.NewCommandManager(logx.Nop(), rec, auth.NewGate(adminID), router.Options{})
	r.SetRegistry(b.Commands())
	r.Serve(context.Background(), transporttest.Text(adminID, "/broadcast x"))

	require.Equal(t, []string{"broadcast"}, ran)
	require.Equal(t, []string{"x"}, rec.SentTo(11))
}

func TestCapturedTextKeepsLayout(t *testing.T) {
	h := newHarness(t, orderFrom(11)...)

	h.say(adminID, BroadcastButton)
	h.say(adminID, "\n  • cakes\n  • pies\n")

	require.Equal(t, []string{"\n  • cakes\n  • pies\n"}, h.rec.SentTo(11))
}

func TestOverlongBroadcastIsRejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, orderFrom(11)...)
	long := strings.Repeat("я", 4001)

	h.say(adminID, "/broadcast "+long)
	req.Empty(h.rec.SentTo(11))
	req.Zero(h.store.Calls())
	req.Equal([]string{textBroadcastTooLong}, h.rec.SentTo(adminID))

	h.rec.Reset()
	h.say(adminID, BroadcastButton)
	h.say(adminID, long)
	req.Empty(h.rec.SentTo(11))
	req.Equal(session.AwaitingBroadcastText, h.sessions.State(adminID))
	req.Equal([]string{textBroadcastPrompt, textBroadcastTooLong}, h.rec.SentTo(adminID))

	h.say(adminID, strings.Repeat("я", 4000))
	req.Len(h.rec.SentTo(11), 1)
	req.Equal(session.Idle, h.sessions.State(adminID))
}
