// Package broadcast delivers one text to a list of recipients at a bounded
// rate, isolating per-recipient failures and folding them into a Tally.
package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopbot/internal/domain"
	"shopbot/internal/eventbus"
	"shopbot/internal/transport"
	logx "shopbot/pkg/logx"
)

// Sender is the slice of the transport adapter used for delivery.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Option func(*Dispatcher)

func WithEventBus(bus eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = bus } }

// WithLimiterFactory replaces the per-run limiter constructor.
func WithLimiterFactory(fn func(time.Duration) Limiter) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newLimiter = fn
		}
	}
}

type Dispatcher struct {
	mu  sync.Mutex
	cfg Config

	sender     Sender
	bus        eventbus.Bus
	log        logx.Logger
	newLimiter func(time.Duration) Limiter
}

func New(cfg Config, sender Sender, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		cfg:        cfg.normalized(),
		sender:     sender,
		log:        log,
		newLimiter: func(delay time.Duration) Limiter { return NewIntervalLimiter(delay) },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Apply swaps the config used by subsequent runs. Runs in flight keep their snapshot.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.normalized()
	d.mu.Unlock()
	d.log.Debug("dispatcher config applied", logx.Duration("delay", cfg.Delay), logx.Int("workers", cfg.Workers))
}

func (d *Dispatcher) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Dispatch makes exactly one delivery attempt per recipient, in order, and
// returns the tally. Caller cancellation does not stop a run once started.
// A panic or limiter failure returns ErrDispatchAborted with the partial tally.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []domain.Identity, text string) (Tally, error) {
	r := &run{
		id:    uuid.NewString(),
		cfg:   d.Config(),
		text:  text,
		total: len(recipients),
	}
	r.lim = d.newLimiter(r.cfg.Delay)
	r.log = d.log.With(logx.String("run", r.id))
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	r.log.Info("broadcast started", logx.Int("total", r.total), logx.Duration("delay", r.cfg.Delay), logx.Int("workers", r.cfg.Workers))
	d.publish(EventStarted, StartedEvent{RunID: r.id, Total: r.total})

	if r.cfg.Workers > 1 && len(recipients) > 1 {
		d.runPool(ctx, r, recipients)
	} else {
		d.runSequential(ctx, r, recipients)
	}

	tally, err := r.result()
	took := time.Since(start)
	fields := []logx.Field{
		logx.Int("total", tally.Total),
		logx.Int("succeeded", tally.Succeeded),
		logx.Int("failed", tally.Failed),
		logx.Duration("took", took),
	}
	switch {
	case err != nil:
		r.log.Error("broadcast aborted", append(fields, logx.Err(err))...)
	case tally.Failed > 0:
		r.log.Warn("broadcast finished with failures", fields...)
	default:
		r.log.Info("broadcast finished", fields...)
	}
	d.publish(EventFinished, FinishedEvent{RunID: r.id, Tally: tally, Aborted: err != nil, Took: took})
	return tally, err
}

func (d *Dispatcher) runSequential(ctx context.Context, r *run, recipients []domain.Identity) {
	defer r.recoverPanic("dispatch loop")
	for _, id := range recipients {
		if !d.step(ctx, r, id) {
			return
		}
	}
}

func (d *Dispatcher) runPool(ctx context.Context, r *run, recipients []domain.Identity) {
	workers := min(r.cfg.Workers, len(recipients))
	jobs := make(chan domain.Identity)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer r.recoverPanic(fmt.Sprintf("dispatch worker %d", idx))
			for id := range jobs {
				if !d.step(ctx, r, id) {
					return
				}
			}
		}()
	}

	// Stop feeding once the run is aborted; idle workers drain and exit on close.
	func() {
		defer close(jobs)
		for _, id := range recipients {
			if r.isAborted() {
				return
			}
			select {
			case jobs <- id:
			case <-r.abortCh():
				return
			}
		}
	}()
	wg.Wait()
}

// step waits for the limiter and makes one attempt. It reports whether the run may continue.
func (d *Dispatcher) step(ctx context.Context, r *run, id domain.Identity) bool {
	if r.isAborted() {
		return false
	}
	if err := r.lim.Wait(ctx); err != nil {
		r.abort(fmt.Errorf("%w: limiter: %w", ErrDispatchAborted, err))
		return false
	}
	out := d.attempt(ctx, r, id)
	r.record(out)
	if out.Err != nil {
		r.log.Warn("broadcast delivery failed", logx.Int64("recipient", int64(id)), logx.Err(out.Err))
		d.publish(EventDeliveryFailed, FailedEvent{RunID: r.id, Recipient: id, Err: out.Err.Error()})
	}
	return true
}

func (d *Dispatcher) attempt(ctx context.Context, r *run, id domain.Identity) Outcome {
	sctx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	var opt *transport.SendOptions
	if r.cfg.ParseMode != "" {
		opt = &transport.SendOptions{ParseMode: r.cfg.ParseMode}
	}
	if _, err := d.sender.SendText(sctx, transport.ChatTarget{ChatID: int64(id)}, r.text, opt); err != nil {
		return Outcome{Recipient: id, Err: &DeliveryFailure{Recipient: id, Err: err}}
	}
	return Outcome{Recipient: id}
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// run is the per-invocation state. Nothing outlives a Dispatch call.
type run struct {
	id    string
	cfg   Config
	lim   Limiter
	text  string
	total int
	log   logx.Logger

	mu       sync.Mutex
	tally    Tally
	err      error
	abortedC chan struct{}
	once     sync.Once
}

func (r *run) record(o Outcome) {
	r.mu.Lock()
	r.tally.add(o)
	r.mu.Unlock()
}

func (r *run) abortCh() <-chan struct{} {
	r.once.Do(func() { r.abortedC = make(chan struct{}) })
	return r.abortedC
}

func (r *run) abort(err error) {
	r.abortCh()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = err
	close(r.abortedC)
}

func (r *run) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err != nil
}

func (r *run) recoverPanic(where string) {
	if p := recover(); p != nil {
		r.log.Error("panic in "+where, logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		r.abort(fmt.Errorf("%w: panic: %v", ErrDispatchAborted, p))
	}
}

func (r *run) result() (Tally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tally
	t.Total = r.total
	if r.err != nil {
		t.Failed = t.Total - t.Succeeded
	}
	return t, r.err
}
