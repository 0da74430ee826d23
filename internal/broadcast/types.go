package broadcast

import (
	"errors"
	"fmt"
	"time"

	"shopbot/internal/domain"
)

// ErrDispatchAborted ends a run early (panic or limiter failure). The tally
// returned with it counts every recipient that was never attempted as failed.
var ErrDispatchAborted = errors.New("broadcast: dispatch aborted")

const (
	EventStarted        = "broadcast.started"
	EventDeliveryFailed = "broadcast.delivery_failed"
	EventFinished       = "broadcast.finished"
)

const (
	DefaultDelay       = 50 * time.Millisecond
	DefaultSendTimeout = 15 * time.Second
	DefaultParseMode   = "HTML"
)

type Config struct {
	// Delay is the minimum spacing between two delivery attempts of one run.
	Delay time.Duration
	// Workers > 1 sends through a fixed pool sharing one limiter.
	Workers int
	// SendTimeout bounds one delivery attempt via the sender's context.
	// The Telegram adapter applies it as its HTTP client timeout, fixed at startup.
	SendTimeout time.Duration
	ParseMode   string
}

func (c Config) normalized() Config {
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Tally is the aggregate of one run. Total == Succeeded + Failed.
type Tally struct {
	Total     int
	Succeeded int
	Failed    int
}

func (t *Tally) add(o Outcome) {
	if o.Err == nil {
		t.Succeeded++
		return
	}
	t.Failed++
}

// Outcome is the result of one delivery attempt. A nil Err means delivered.
type Outcome struct {
	Recipient domain.Identity
	Err       error
}

// DeliveryFailure wraps the channel error for one recipient.
type DeliveryFailure struct {
	Recipient domain.Identity
	Err       error
}

func (f *DeliveryFailure) Error() string {
	return fmt.Sprintf("broadcast: deliver to %s: %v", f.Recipient, f.Err)
}

func (f *DeliveryFailure) Unwrap() error { return f.Err }

// StartedEvent is published with EventStarted.
type StartedEvent struct {
	RunID string `json:"run_id"`
	Total int    `json:"total"`
}

// FailedEvent is published with EventDeliveryFailed.
type FailedEvent struct {
	RunID     string          `json:"run_id"`
	Recipient domain.Identity `json:"recipient"`
	Err       string          `json:"err"`
}

// FinishedEvent is published with EventFinished.
type FinishedEvent struct {
	RunID   string        `json:"run_id"`
	Tally   Tally         `json:"tally"`
	Aborted bool          `json:"aborted"`
	Took    time.Duration `json:"took"`
}
