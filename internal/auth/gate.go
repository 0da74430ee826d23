// Package auth holds the single-admin authorization check.
package auth

import (
	"errors"
	"sync/atomic"

	"shopbot/internal/domain"
)

var ErrPermissionDenied = errors.New("permission denied")

// Gate authorizes exactly one admin identity.
// The admin can be swapped on config reload; a zero admin authorizes nobody.
type Gate struct {
	admin atomic.Int64
}

func NewGate(admin domain.Identity) *Gate {
	g := &Gate{}
	g.admin.Store(int64(admin))
	return g
}

func (g *Gate) SetAdmin(admin domain.Identity) { g.admin.Store(int64(admin)) }

func (g *Gate) Admin() domain.Identity { return domain.Identity(g.admin.Load()) }

func (g *Gate) Authorize(caller domain.Identity) bool {
	if g == nil {
		return false
	}
	admin := g.admin.Load()
	return admin != 0 && int64(caller) == admin
}

// Check is Authorize in error form.
func (g *Gate) Check(caller domain.Identity) error {
	if !g.Authorize(caller) {
		return ErrPermissionDenied
	}
	return nil
}
