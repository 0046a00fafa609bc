package main

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandle(r *Registry) *GameHandle {
	return &GameHandle{
		GameID:     r.newGameID(),
		InviteCode: r.newInviteCode(),
		commands:   make(chan GameCommand, commandBufferSize),
		events:     newEventBus(),
	}
}

func TestRegistryLookups(t *testing.T) {
	r := newRegistry()
	h := newTestHandle(r)
	r.Register(h)

	got, ok := r.Game(h.GameID)
	require.True(t, ok)
	assert.Same(t, h, got)

	got, ok = r.GameByInvite(h.InviteCode)
	require.True(t, ok)
	assert.Same(t, h, got)

	_, ok = r.Game("nope")
	assert.False(t, ok)
	_, ok = r.GameByInvite("000000")
	assert.False(t, ok)
}

func TestRegistrySocketBindings(t *testing.T) {
	r := newRegistry()
	h := newTestHandle(r)
	r.Register(h)

	r.BindPlayer("ps1", h.GameID)
	r.BindManager("ms1", h.GameID)

	gameID, ok := r.PlayerGame("ps1")
	require.True(t, ok)
	assert.Equal(t, h.GameID, gameID)

	gameID, ok = r.ManagerGame("ms1")
	require.True(t, ok)
	assert.Equal(t, h.GameID, gameID)

	// The maps are disjoint by role.
	_, ok = r.PlayerGame("ms1")
	assert.False(t, ok)
	_, ok = r.ManagerGame("ps1")
	assert.False(t, ok)

	r.UnbindPlayer("ps1")
	_, ok = r.PlayerGame("ps1")
	assert.False(t, ok)
}

func TestRegistryRemoveCleansEverything(t *testing.T) {
	r := newRegistry()
	h := newTestHandle(r)
	other := newTestHandle(r)
	r.Register(h)
	r.Register(other)

	r.BindPlayer("ps1", h.GameID)
	r.BindPlayer("ps2", other.GameID)
	r.BindManager("ms1", h.GameID)

	r.Remove(h.GameID)

	_, ok := r.Game(h.GameID)
	assert.False(t, ok)
	_, ok = r.GameByInvite(h.InviteCode)
	assert.False(t, ok)
	_, ok = r.PlayerGame("ps1")
	assert.False(t, ok)
	_, ok = r.ManagerGame("ms1")
	assert.False(t, ok)

	// Unrelated sessions are untouched.
	_, ok = r.Game(other.GameID)
	assert.True(t, ok)
	_, ok = r.PlayerGame("ps2")
	assert.True(t, ok)
}

func TestInviteCodeFormat(t *testing.T) {
	r := newRegistry()
	digits := regexp.MustCompile(`^[0-9]{6}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := r.newInviteCode()
		assert.Regexp(t, digits, code)
		seen[code] = struct{}{}
		// Claim the code so uniqueness among live sessions holds.
		r.inviteCodes.Store(code, "g")
	}
	assert.Len(t, seen, 100)
}

func TestHandleSendNeverBlocks(t *testing.T) {
	h := &GameHandle{
		commands: make(chan GameCommand, 2),
		events:   newEventBus(),
	}

	for i := 0; i < 10; i++ {
		h.send(CmdShowLeaderboard{})
	}
	assert.Len(t, h.commands, 2)
}
