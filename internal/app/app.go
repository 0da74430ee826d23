package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"shopbot/internal/auth"
	"shopbot/internal/bot"
	"shopbot/internal/broadcast"
	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/eventbus"
	"shopbot/internal/recipients"
	"shopbot/internal/runtime/supervisor"
	"shopbot/internal/session"
	"shopbot/internal/storage"
	kit "shopbot/internal/transport"
	telegram "shopbot/internal/transport/telegram/adapter"
	"shopbot/internal/transport/telegram/router"
	logx "shopbot/pkg/logx"
)

var errAdapterNotReady = errors.New("telegram adapter not ready")

type App struct {
	cfgm *config.ConfigManager
	sup  atomic.Pointer[supervisor.Supervisor]

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.OrderStore

	adapter kit.Adapter

	gate     *auth.Gate
	dispatch *broadcast.Dispatcher
	bot      *bot.Bot
	cmdm     *router.CommandManager

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := mapBroadcastConfig(cfg); err != nil {
		return nil, err
	}

	// The log sink may reach Telegram, but the adapter itself needs a logger,
	// so the sender resolves the adapter lazily.
	var tg atomic.Pointer[telegram.Adapter]
	sender := func(ctx context.Context, chatID int64, text string) error {
		ad := tg.Load()
		if ad == nil {
			return errAdapterNotReady
		}
		return ad.SendLog(ctx, chatID, text)
	}
	logSvc, root := logx.New(mapLogConfig(cfg), sender)

	ad, err := telegram.New(mapAdapterConfig(cfg), root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	tg.Store(ad)

	store, err := storage.Open(storeCfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	root.Info("storage ready", logx.String("driver", storeCfg.Driver))

	return assemble(cfgm, cfg, logSvc, root, ad, store)
}

// assemble wires the core components around an already built adapter and store.
func assemble(cfgm *config.ConfigManager, cfg *config.Config, logSvc *logx.Service, root logx.Logger, ad kit.Adapter, store storage.OrderStore) (*App, error) {
	bcCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfgm:    cfgm,
		log:     root.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		store:   store,
		adapter: ad,
		gate:    auth.NewGate(domain.Identity(cfg.Telegram.AdminID)),
		updates: make(chan kit.Update, 256),
	}
	a.dispatch = broadcast.New(bcCfg, ad, root.With(logx.String("comp", "broadcast")), broadcast.WithEventBus(a.bus))
	a.bot = bot.New(mapBotConfig(cfg), bot.Deps{
		Gate:       a.gate,
		Sessions:   session.NewStore(),
		Resolver:   recipients.NewResolver(store, root.With(logx.String("comp", "recipients"))),
		Dispatcher: a.dispatch,
		Orders:     store,
		Run:        a.background,
		Log:        root.With(logx.String("comp", "bot")),
	})
	a.cmdm = router.NewCommandManager(root.With(logx.String("comp", "commands")), ad, a.gate, mapRouterOptions(cfg))
	a.cmdm.SetRegistry(a.bot.Commands())
	a.cmdm.SetTextHandler(a.bot.HandleText)
	return a, nil
}

// background runs fn under the app supervisor, or inline before Start.
func (a *App) background(name string, fn func(ctx context.Context)) {
	sup := a.sup.Load()
	if sup == nil {
		fn(context.Background())
		return
	}
	sup.Go0(name, fn)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	sup := a.sup.Load()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	sup := a.sup.Load()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sup.Store(sup)

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := mapBroadcastConfig(cfg)
		return err
	})

	if err := a.adapter.Start(sup.Context(), a.updates); err != nil {
		return err
	}
	sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	sup.Go0("menu.publish", a.publishMenu)

	events, unsub := a.bus.Subscribe(128, broadcast.EventStarted, broadcast.EventDeliveryFailed, broadcast.EventFinished)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int64("admin_id", int64(a.gate.Admin())))
	return nil
}

func (a *App) publishMenu(ctx context.Context) {
	c, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.cmdm.PublishMenu(c, int64(a.gate.Admin())); err != nil {
		a.log.Warn("menu publish failed", logx.Err(err))
	}
}

// applyConfig pushes a reloaded config into the running components.
// Sections that need a restart are only reported.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(prev, next); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if bc, err := mapBroadcastConfig(next); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.dispatch.Apply(bc)
	}
	a.bot.Apply(mapBotConfig(next))

	if prev.Telegram.AdminID != next.Telegram.AdminID {
		a.gate.SetAdmin(domain.Identity(next.Telegram.AdminID))
		a.publishMenu(ctx)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) logEvent(e eventbus.Event) {
	switch ev := e.Data.(type) {
	case broadcast.StartedEvent:
		a.log.Info("broadcast started", logx.String("run_id", ev.RunID), logx.Int("total", ev.Total))
	case broadcast.FailedEvent:
		a.log.Debug("broadcast delivery failed",
			logx.String("run_id", ev.RunID),
			logx.Int64("recipient", int64(ev.Recipient)),
			logx.String("err", ev.Err),
		)
	case broadcast.FinishedEvent:
		a.log.Info("broadcast finished",
			logx.String("run_id", ev.RunID),
			logx.Int("total", ev.Tally.Total),
			logx.Int("succeeded", ev.Tally.Succeeded),
			logx.Int("failed", ev.Tally.Failed),
			logx.Bool("aborted", ev.Aborted),
			logx.Duration("took", ev.Took),
		)
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	sup := a.sup.Load()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		if err := a.stopStep(ctx, name, limit, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	step("adapter", 2*time.Second, a.adapter.Stop)
	// Running broadcasts ignore cancellation; give them the longest window.
	step("supervisor", 5*time.Second, sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	errs = slices.DeleteFunc(errs, func(err error) bool { return errors.Is(err, context.Canceled) })
	return errors.Join(errs...)
}

// stopStep runs one shutdown step bounded by limit and by the caller's
// deadline. A step that overruns is left running and logged when it ends.
func (a *App) stopStep(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
		}()
		return stepCtx.Err()
	}
}
