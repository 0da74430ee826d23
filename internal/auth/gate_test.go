package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shopbot/internal/domain"
)

func TestGateAuthorizesOnlyAdmin(t *testing.T) {
	g := NewGate(100)
	require.True(t, g.Authorize(100))
	require.False(t, g.Authorize(101))
	require.False(t, g.Authorize(0))
	require.ErrorIs(t, g.Check(7), ErrPermissionDenied)
	require.NoError(t, g.Check(100))
}

func TestGateZeroAdminAuthorizesNobody(t *testing.T) {
	g := NewGate(0)
	require.False(t, g.Authorize(0))
	require.False(t, g.Authorize(1))

	var nilGate *Gate
	require.False(t, nilGate.Authorize(1))
}

func TestGateSetAdmin(t *testing.T) {
	g := NewGate(1)
	g.SetAdmin(domain.Identity(2))
	require.False(t, g.Authorize(1))
	require.True(t, g.Authorize(2))
	require.Equal(t, domain.Identity(2), g.Admin())
}
