package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"shopbot/internal/domain"
	"shopbot/internal/transport"
	logx "shopbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string // shown in help instead of "/name", e.g. "/broadcast [text]"
	Access      Access
	Hidden      bool          // kept out of help and the Telegram menu
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Authorizer decides whether an identity may run admin-only commands.
type Authorizer interface {
	Authorize(caller domain.Identity) bool
}

type Request struct {
	Update    transport.Update
	Chat      transport.ChatTarget
	FromID    int64
	FromName  string
	MessageID int
	Command   string   // command name, or "text" for freeform messages
	Args      []string // whitespace-split ArgText
	ArgText   string   // everything after the command word, verbatim
	Text      string   // full message text
	ReqID     string

	Adapter transport.Adapter
	Logger  logx.Logger
	IsAdmin bool
}

// From returns the sender identity.
func (r *Request) From() domain.Identity { return domain.Identity(r.FromID) }

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	// Workers is the number of chat shards. Updates of one chat always land on
	// the same worker, so they are handled in arrival order.
	Workers     int
	QueueSize   int
	Timeout     time.Duration // default per-request timeout
	DeniedText  string
	UnknownText string
	BusyText    string
	HelpTitle   string
	HelpFooter  string
}

const (
	DefaultDeniedText  = "⛔ You don't have permission to use this command."
	DefaultUnknownText = "Unknown command. Try /help"
	DefaultBusyText    = "Busy, please try again in a moment."
)

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = max(2, runtime.NumCPU())
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.DeniedText == "" {
		o.DeniedText = DefaultDeniedText
	}
	if o.UnknownText == "" {
		o.UnknownText = DefaultUnknownText
	}
	if o.BusyText == "" {
		o.BusyText = DefaultBusyText
	}
	return o
}

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases -> command
	ordered  []Command
	text     HandlerFunc

	auth    Authorizer
	log     logx.Logger
	adapter transport.Adapter
	opts    Options

	runMu   sync.Mutex
	running bool
	sup     *Supervisor
	shards  []chan func()
}

func NewCommandManager(log logx.Logger, adapter transport.Adapter, auth Authorizer, opts Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		commands: map[string]*Command{},
		auth:     auth,
		log:      log,
		adapter:  adapter,
		opts:     opts.normalized(),
	}
}

// Supervisor returns the command manager's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetRegistry replaces the command set. A help command is always injected.
func (m *CommandManager) SetRegistry(cmds []Command) {
	helper := Command{
		Name:        "help",
		Description: "show help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.IsAdmin), &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[name]; dup {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := byName[sa]; !exists {
					byName[sa] = &cc
				}
			}
		}
	}

	m.mu.Lock()
	m.commands = byName
	m.ordered = ordered
	m.mu.Unlock()
}

// SetTextHandler installs the handler for messages that are not commands.
func (m *CommandManager) SetTextHandler(h HandlerFunc) {
	m.mu.Lock()
	m.text = h
	m.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.ordered...)
}

func (m *CommandManager) isAdmin(id int64) bool {
	return m.auth != nil && m.auth.Authorize(domain.Identity(id))
}

// PublishMenu pushes the command list to the platform menu: public commands
// for everyone, the full list for the admin chat.
func (m *CommandManager) PublishMenu(ctx context.Context, adminChatID int64) error {
	up, ok := m.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cmds := m.Commands()
	if err := up.UpdateMenuCommands(ctx, buildMenuCommands(cmds, false), 0); err != nil {
		return err
	}
	if adminChatID == 0 {
		return nil
	}
	return up.UpdateMenuCommands(ctx, buildMenuCommands(cmds, true), adminChatID)
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := m.opts.Workers

	sup := NewSupervisor(ctx,
		WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		WithCancelOnError(false),
	)
	shards := make([]chan func(), workers)
	for i := range shards {
		shards[i] = make(chan func(), m.opts.QueueSize)
	}
	m.runMu.Lock()
	m.sup, m.running, m.shards = sup, true, shards
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", m.opts.QueueSize))

	for i := 0; i < workers; i++ {
		idx := i
		jobs := shards[i]
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					// Middleware already recovers; keep the worker alive regardless.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			WithPublishFirstError(true),
			WithStopOnCleanExit(true),
		)
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		m.shards = nil
		m.runMu.Unlock()
		for _, ch := range shards {
			close(ch)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			if job := m.route(ctx, up); job != nil {
				m.enqueue(ctx, up, job)
			}
		}
	}
}

// Serve routes and handles one update on the calling goroutine.
func (m *CommandManager) Serve(ctx context.Context, up transport.Update) {
	if job := m.route(ctx, up); job != nil {
		job()
	}
}

func (m *CommandManager) enqueue(ctx context.Context, up transport.Update, job func()) {
	chatID := chatOf(up)
	m.runMu.Lock()
	shards := m.shards
	m.runMu.Unlock()
	if len(shards) == 0 {
		return
	}
	idx := int(uint64(chatID) % uint64(len(shards)))
	select {
	case shards[idx] <- job:
	default:
		m.log.Warn("command queue full", logx.Int64("chat_id", chatID), logx.Int("shard", idx))
		_, _ = m.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, m.opts.BusyText, nil)
	}
}

func chatOf(up transport.Update) int64 {
	switch {
	case up.Message != nil:
		return up.Message.ChatID
	case up.Callback != nil:
		return up.Callback.ChatID
	}
	return 0
}

// route resolves an update to a ready-to-run job. Denials and unknown
// commands are answered inline and yield nil.
func (m *CommandManager) route(root context.Context, up transport.Update) func() {
	switch up.Kind {
	case transport.UpdateMessage:
		return m.routeMessage(root, up)
	case transport.UpdateCallback:
		if up.Callback != nil {
			// No inline keyboards are published; just stop the client spinner.
			_ = m.adapter.AnswerCallback(root, up.Callback.ID, "")
		}
	}
	return nil
}

func (m *CommandManager) routeMessage(root context.Context, up transport.Update) func() {
	msg := up.Message
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	word, argText, isCmd := parseCommand(text)
	if !isCmd {
		m.mu.RLock()
		h := m.text
		m.mu.RUnlock()
		if h == nil {
			return nil
		}
		// Freeform text may become a broadcast payload; keep it as typed.
		return m.job(root, up, Command{Name: "text", Handle: h}, "", msg.Text)
	}

	m.mu.RLock()
	cmd := m.commands[word]
	m.mu.RUnlock()
	if cmd == nil {
		return func() { _, _ = m.adapter.SendText(root, chat, m.opts.UnknownText, nil) }
	}
	if cmd.Access == AccessAdminOnly && !m.isAdmin(msg.FromID) {
		m.log.Warn("admin command denied", logx.String("cmd", cmd.Name), logx.Int64("from_id", msg.FromID), logx.Int64("chat_id", msg.ChatID))
		return func() { _, _ = m.adapter.SendText(root, chat, m.opts.DeniedText, nil) }
	}
	return m.job(root, up, *cmd, argText, text)
}

func (m *CommandManager) job(root context.Context, up transport.Update, cmd Command, argText, text string) func() {
	msg := up.Message
	rid := newReqID()
	req := &Request{
		Update:    up,
		Chat:      transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:    msg.FromID,
		FromName:  msg.FromFirstName,
		MessageID: msg.ID,
		Command:   cmd.Name,
		Args:      strings.Fields(argText),
		ArgText:   argText,
		Text:      text,
		ReqID:     rid,
		Adapter:   m.adapter,
		IsAdmin:   m.isAdmin(msg.FromID),
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.opts.Timeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	return func() { _ = final(root, req) }
}
