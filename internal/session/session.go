// Package session tracks the admin's broadcast capture conversation.
//
// Each admin identity is either Idle or AwaitingBroadcastText. The map lives
// for the process lifetime; nothing is persisted.
package session

import (
	"sync"

	"shopbot/internal/domain"
)

type State int

const (
	Idle State = iota
	AwaitingBroadcastText
)

func (s State) String() string {
	switch s {
	case AwaitingBroadcastText:
		return "awaiting_broadcast_text"
	default:
		return "idle"
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[domain.Identity]State
}

func NewStore() *Store {
	return &Store{sessions: map[domain.Identity]State{}}
}

// Begin moves admin to AwaitingBroadcastText. Calling it twice is a no-op.
// Callers must authorize admin first.
func (s *Store) Begin(admin domain.Identity) {
	s.mu.Lock()
	s.sessions[admin] = AwaitingBroadcastText
	s.mu.Unlock()
}

// Consume reports whether admin was awaiting text and, if so, returns it to Idle.
// The check and the transition happen under one lock so a text is consumed at most once.
func (s *Store) Consume(admin domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[admin] != AwaitingBroadcastText {
		return false
	}
	delete(s.sessions, admin)
	return true
}

// Cancel clears any pending capture and reports whether one existed.
func (s *Store) Cancel(admin domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[admin]
	delete(s.sessions, admin)
	return ok
}

func (s *Store) State(admin domain.Identity) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[admin]
}
