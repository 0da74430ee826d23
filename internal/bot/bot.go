// Package bot implements the shop bot's command surface on top of the router:
// static customer commands and the admin broadcast and statistics workflow.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"shopbot/internal/auth"
	"shopbot/internal/broadcast"
	"shopbot/internal/domain"
	"shopbot/internal/recipients"
	"shopbot/internal/report"
	"shopbot/internal/session"
	"shopbot/internal/transport"
	"shopbot/internal/transport/telegram/router"
	logx "shopbot/pkg/logx"
	"shopbot/pkg/tgui"
)

type Contact struct {
	Phone   string
	Email   string
	Address string
	Hours   string
}

type Config struct {
	ShopName string
	ShopURL  string
	AdminURL string
	Currency string
	Contact  Contact
}

type RecipientResolver interface {
	Resolve(ctx context.Context) ([]domain.Identity, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []domain.Identity, text string) (broadcast.Tally, error)
}

type OrderLister interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

// Runner starts fn in the background. The app passes its supervisor's Go0.
type Runner func(name string, fn func(ctx context.Context))

type Deps struct {
	Gate       *auth.Gate
	Sessions   *session.Store
	Resolver   RecipientResolver
	Dispatcher Dispatcher
	Orders     OrderLister
	Run        Runner
	Log        logx.Logger
	Now        func() time.Time
}

type Bot struct {
	mu  sync.RWMutex
	cfg Config

	gate     *auth.Gate
	sessions *session.Store
	resolver RecipientResolver
	dispatch Dispatcher
	orders   OrderLister
	run      Runner
	log      logx.Logger
	now      func() time.Time

	replyTimeout time.Duration
}

func New(cfg Config, d Deps) *Bot {
	b := &Bot{
		cfg:          cfg,
		gate:         d.Gate,
		sessions:     d.Sessions,
		resolver:     d.Resolver,
		dispatch:     d.Dispatcher,
		orders:       d.Orders,
		run:          d.Run,
		log:          d.Log,
		now:          d.Now,
		replyTimeout: 15 * time.Second,
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	if b.sessions == nil {
		b.sessions = session.NewStore()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.run == nil {
		b.run = func(_ string, fn func(ctx context.Context)) { fn(context.Background()) }
	}
	return b
}

// Apply swaps the presentation config (shop links, contacts, currency).
func (b *Bot) Apply(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bot) formatter() report.Formatter { return report.New(b.config().Currency) }

// HelpFooter is appended to the router's /help output.
func HelpFooter() string { return textHelpFooter }

// Commands returns the router registry for the bot.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "main menu", Handle: b.handleStart},
		{Name: "contact", Description: "contacts", Handle: b.handleContact},
		{Name: "broadcast", Usage: "/broadcast [text]", Description: "message every customer", Access: router.AccessAdminOnly, Handle: b.handleBroadcast},
		{Name: "stats", Description: "order statistics", Access: router.AccessAdminOnly, Handle: b.handleStats},
		{Name: "detailed_stats", Description: "detailed statistics", Access: router.AccessAdminOnly, Handle: b.handleDetailedStats},
		{Name: "cancel", Description: "cancel the current action", Access: router.AccessAdminOnly, Handle: b.handleCancel},
	}
}

func html() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
}

func (b *Bot) keyboard(admin bool) *transport.Keyboard {
	cfg := b.config()
	kb := &transport.Keyboard{Resize: true}
	kb.Rows = append(kb.Rows, []transport.Button{{Text: ShopButton, WebAppURL: cfg.ShopURL}})
	if admin {
		if cfg.AdminURL != "" {
			kb.Rows = append(kb.Rows, []transport.Button{{Text: AdminButton, WebAppURL: cfg.AdminURL}})
		}
		kb.Rows = append(kb.Rows, []transport.Button{{Text: BroadcastButton}})
	}
	return kb
}

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	cfg := b.config()
	name := strings.TrimSpace(req.FromName)
	if name == "" {
		name = "there"
	}
	shop := cfg.ShopName
	if shop == "" {
		shop = "our shop"
	}
	text := fmt.Sprintf(textGreetingFmt, tgui.Esc(name), tgui.Esc(shop))
	return req.Reply(ctx, text, &transport.SendOptions{ParseMode: "HTML", Keyboard: b.keyboard(req.IsAdmin)})
}

func (b *Bot) handleContact(ctx context.Context, req *router.Request) error {
	c := b.config().Contact
	msg := tgui.New().RawLine(textContactTitle).Blank()
	if c.Phone != "" {
		msg.Line("Phone: " + c.Phone)
	}
	if c.Email != "" {
		msg.Line("Email: " + c.Email)
	}
	if c.Address != "" {
		msg.Line("Address: " + c.Address)
	}
	if c.Hours != "" {
		msg.Blank().Line(textContactHoursTitle).Line(c.Hours)
	}
	return req.Reply(ctx, msg.String(), html())
}

func (b *Bot) handleBroadcast(ctx context.Context, req *router.Request) error {
	text := strings.TrimSpace(req.ArgText)
	if text == "" {
		b.sessions.Begin(req.From())
		return req.Reply(ctx, textBroadcastUsage+"\n\n"+textBroadcastPrompt, html())
	}
	if tooLong(text) {
		return req.Reply(ctx, textBroadcastTooLong, nil)
	}
	return b.startBroadcast(ctx, req, text)
}

// tooLong reports whether text exceeds one Telegram message.
func tooLong(text string) bool {
	return utf8.RuneCountInString(text) > tgui.MaxMessageRunes
}

func (b *Bot) handleCancel(ctx context.Context, req *router.Request) error {
	if b.sessions.Cancel(req.From()) {
		req.Logger.Info("broadcast capture cancelled")
		return req.Reply(ctx, textCancelled, nil)
	}
	return req.Reply(ctx, textNothingToCancel, nil)
}

func (b *Bot) handleStats(ctx context.Context, req *router.Request) error {
	orders, err := b.listOrders(ctx)
	if err != nil {
		req.Logger.Warn("stats query failed", logx.Err(err))
		return req.Reply(ctx, textStatsFailed+tgui.Esc(err.Error()).String(), html())
	}
	return req.Reply(ctx, b.formatter().FormatStats(report.ComputeStats(orders)), html())
}

func (b *Bot) handleDetailedStats(ctx context.Context, req *router.Request) error {
	orders, err := b.listOrders(ctx)
	if err != nil {
		req.Logger.Warn("detailed stats query failed", logx.Err(err))
		return req.Reply(ctx, textStatsFailed+tgui.Esc(err.Error()).String(), html())
	}
	return req.Reply(ctx, b.formatter().FormatDetailedStats(orders, b.now()), html())
}

func (b *Bot) listOrders(ctx context.Context) ([]domain.Order, error) {
	if b.orders == nil {
		return nil, recipients.ErrDataUnavailable
	}
	return b.orders.ListOrders(ctx)
}

// HandleText handles every non-command message: the broadcast menu button,
// the awaited broadcast text, and the default reply.
func (b *Bot) HandleText(ctx context.Context, req *router.Request) error {
	from := req.From()
	if strings.TrimSpace(req.Text) == BroadcastButton {
		if !b.gate.Authorize(from) {
			req.Logger.Warn("broadcast button denied")
			return req.Reply(ctx, router.DefaultDeniedText, nil)
		}
		b.sessions.Begin(from)
		return req.Reply(ctx, textBroadcastPrompt, html())
	}
	if b.gate.Authorize(from) && b.sessions.Consume(from) {
		if tooLong(req.Text) {
			b.sessions.Begin(from)
			return req.Reply(ctx, textBroadcastTooLong, nil)
		}
		return b.startBroadcast(ctx, req, req.Text)
	}
	return req.Reply(ctx, textDefaultReply, nil)
}

// startBroadcast acknowledges immediately and runs resolve, dispatch and the
// final report in the background. Exactly one terminal reply follows the ack.
func (b *Bot) startBroadcast(ctx context.Context, req *router.Request, text string) error {
	if err := req.Reply(ctx, textBroadcastStarted, nil); err != nil {
		req.Logger.Warn("broadcast ack failed", logx.Err(err))
	}
	log := req.Logger
	reply := func(text string) {
		rctx, cancel := context.WithTimeout(context.Background(), b.replyTimeout)
		defer cancel()
		if err := req.Reply(rctx, text, html()); err != nil {
			log.Warn("broadcast report not delivered", logx.Err(err))
		}
	}
	b.run("broadcast", func(ctx context.Context) {
		reply(b.executeBroadcast(ctx, log, text))
	})
	return nil
}

// executeBroadcast returns the terminal reply for one broadcast.
func (b *Bot) executeBroadcast(ctx context.Context, log logx.Logger, text string) string {
	ctx = context.WithoutCancel(ctx)
	ids, err := b.resolver.Resolve(ctx)
	switch {
	case errors.Is(err, recipients.ErrEmptyRecipientSet):
		log.Info("broadcast skipped: no recipients")
		return textNoRecipients
	case err != nil:
		log.Error("broadcast recipients unavailable", logx.Err(err))
		return textDataUnavailable
	}

	tally, err := b.dispatch.Dispatch(ctx, ids, text)
	if err != nil {
		return b.formatter().FormatDispatchAborted(tally, err)
	}
	return b.formatter().FormatDispatchReport(tally)
}
