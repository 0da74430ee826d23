// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	"shopbot/internal/transport"
)

type Sent struct {
	To   transport.ChatTarget
	Text string
	Opt  *transport.SendOptions
}

type MenuUpdate struct {
	ChatID   int64
	Commands []transport.BotCommand
}

// Recorder records every outbound call. Set Fail to make SendText fail for a chat.
type Recorder struct {
	mu      sync.Mutex
	sent    []Sent
	menus   []MenuUpdate
	answers []string
	fail    map[int64]error
}

func New() *Recorder { return &Recorder{fail: map[int64]error{}} }

func (r *Recorder) Fail(chatID int64, err error) {
	r.mu.Lock()
	r.fail[chatID] = err
	r.mu.Unlock()
}

func (r *Recorder) Start(context.Context, chan<- transport.Update) error { return nil }

func (r *Recorder) Stop(context.Context) error { return nil }

func (r *Recorder) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	r.sent = append(r.sent, Sent{To: to, Text: text, Opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(r.sent)}, nil
}

func (r *Recorder) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, id string, _ string) error {
	r.mu.Lock()
	r.answers = append(r.answers, id)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand, chatID int64) error {
	r.mu.Lock()
	r.menus = append(r.menus, MenuUpdate{ChatID: chatID, Commands: append([]transport.BotCommand(nil), cmds...)})
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns the texts sent to one chat, in order.
func (r *Recorder) SentTo(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (r *Recorder) Menus() []MenuUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MenuUpdate(nil), r.menus...)
}

func (r *Recorder) Answers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.answers...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent, r.menus, r.answers = nil, nil, nil
	r.mu.Unlock()
}

// Text builds a private-chat text message update.
func Text(from int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ChatID: from, FromID: from, FromFirstName: "Alice", Text: text},
	}
}
