package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "shopbot/internal/runtime/supervisor"
	kit "shopbot/internal/transport"
	"shopbot/pkg/logx"
	"shopbot/pkg/tgui"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RequestTimeout bounds one Bot API call on top of the long-poll wait.
	// telebot calls take no context, so this is the only cut-off for a stalled send.
	RequestTimeout time.Duration
	// Offline skips the getMe handshake. Used by tests.
	Offline bool
}

// Adapter implements transport.Adapter and transport.CommandMenuUpdater on top
// of telebot's long poller.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot   *tele.Bot
	out   atomic.Value // chan<- kit.Update
	runMu sync.Mutex
	sup   *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the router queue was full.
	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash map[int64]uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram.adapter"))
	poll, client := clientTimeouts(cfg)
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: poll},
		Client:  &http.Client{Timeout: client},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, menuHash: map[int64]uint64{}}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// clientTimeouts returns the long-poll wait and the HTTP client timeout.
// The client is shared by getUpdates, so it must outlast the poll wait.
func clientTimeouts(cfg Config) (poll, client time.Duration) {
	poll = cfg.PollTimeout
	if poll <= 0 {
		poll = 10 * time.Second
	}
	req := cfg.RequestTimeout
	if req <= 0 {
		req = 15 * time.Second
	}
	return poll, poll + req
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		if up, ok := callbackUpdate(c.Callback()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
}

func messageUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		IsGroup:  m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
		msg.FromFirstName = m.Sender.FirstName
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: msg}, true
}

func callbackUpdate(cb *tele.Callback) (kit.Update, bool) {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return kit.Update{}, false
	}
	out := &kit.Callback{
		ID:        cb.ID,
		ChatID:    cb.Message.Chat.ID,
		ThreadID:  cb.Message.ThreadID,
		MessageID: cb.Message.ID,
		Data:      cb.Data,
	}
	if cb.Sender != nil {
		out.FromID = cb.Sender.ID
	}
	return kit.Update{Kind: kit.UpdateCallback, Callback: out}, true
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.sup != nil {
		a.runMu.Unlock()
		return nil
	}
	a.out.Store(out)
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		// a broken poller must not take the app down; it is restarted instead.
		rtsup.WithCancelOnError(false),
	)
	a.sup = sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (queue full)", logx.Uint64("count", n), logx.Int("queue_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.GoRestart("telebot.poll", a.poll,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(true),
	)
	return nil
}

// poll runs telebot's blocking poll loop until ctx ends. An unexpected exit
// is reported as an error so the supervisor restarts it.
func (a *Adapter) poll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.bot.Start()
	}()
	a.log.Info("polling started")
	select {
	case <-ctx.Done():
		a.bot.Stop()
		<-done
		a.log.Info("polling stopped")
		return nil
	case <-done:
		return errors.New("telebot poller exited")
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// getUpdates may still be waiting on the long poll; keep shutdown short.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *kit.SendOptions, threadID int, withKeyboard bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if withKeyboard {
		so.ReplyMarkup = replyMarkup(opt.Keyboard)
	}
	return so
}

// replyMarkup converts a transport keyboard into a telebot reply keyboard.
// Buttons with a WebAppURL open the mini app.
func replyMarkup(kb *kit.Keyboard) *tele.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{ResizeKeyboard: kb.Resize}
	for _, row := range kb.Rows {
		btns := make([]tele.ReplyButton, 0, len(row))
		for _, b := range row {
			rb := tele.ReplyButton{Text: b.Text}
			if b.WebAppURL != "" {
				rb.WebApp = &tele.WebApp{URL: b.WebAppURL}
			}
			btns = append(btns, rb)
		}
		if len(btns) > 0 {
			rm.ReplyKeyboard = append(rm.ReplyKeyboard, btns)
		}
	}
	return rm
}

// SendText sends text, split into several messages when it exceeds the
// Telegram limit. The keyboard is attached to the first message only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := tgui.SplitRunes(text, tgui.MaxMessageRunes)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := &tele.SendOptions{ParseMode: tele.ParseMode(opt.ParseMode), DisableWebPagePreview: opt.DisablePreview}
	_, err := a.bot.Edit(m, tgui.TruncRunes(text, tgui.MaxMessageRunes), so)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// SendLog matches logx.Sender so the Telegram log sink can reuse the bot.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// UpdateMenuCommands sets the command menu (setMyCommands) for the default
// scope (chatID 0) or a single chat. Unchanged lists are not re-sent.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list := menuCommands(cmds)
	sum := menuHash(list)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if prev, ok := a.menuHash[chatID]; ok && prev == sum {
		return nil
	}

	scope := tele.CommandScope{Type: tele.CommandScopeDefault}
	if chatID != 0 {
		scope = tele.CommandScope{Type: tele.CommandScopeChat, ChatID: chatID}
	}
	if err := a.bot.SetCommands(list, scope); err != nil {
		return err
	}
	a.menuHash[chatID] = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)), logx.Int64("chat_id", chatID))
	return nil
}

// menuCommands applies Telegram's limits: at most 100 entries and
// descriptions of at most 256 characters.
func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		out = append(out, tele.Command{Text: c.Command, Description: tgui.TruncRunes(d, 256)})
		if len(out) >= 100 {
			break
		}
	}
	return out
}

func menuHash(cmds []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
