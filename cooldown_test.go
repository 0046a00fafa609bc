package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCooldownTestGame() (*Game, chan GameEvent) {
	bus := newEventBus()
	g := &Game{
		id:              "g-test",
		managerSocketID: "mgr",
		started:         true,
		cmds:            make(chan GameCommand, commandBufferSize),
		bus:             bus,
	}
	return g, bus.Subscribe()
}

func TestRunCooldownEmitsDescendingCounts(t *testing.T) {
	g, events := newCooldownTestGame()

	start := time.Now()
	g.runCooldown(4)
	elapsed := time.Since(start)

	g.bus.Close()
	var counts []int
	for ev := range events {
		if msg, ok := ev.Msg.(CooldownMsg); ok {
			counts = append(counts, msg.Count)
		}
	}

	assert.Equal(t, []int{3, 2, 1}, counts)
	// Three counted ticks plus the final one.
	assert.GreaterOrEqual(t, elapsed, 4*cooldownTick)
	assert.Nil(t, g.cancelCooldown)
}

func TestRunCooldownCancelledByAbort(t *testing.T) {
	g, events := newCooldownTestGame()

	// Queued before the countdown starts; tickOrCancel services it on
	// its first pass and the abort cancels the rest of the window.
	g.cmds <- CmdAbortQuiz{SocketID: "mgr"}

	start := time.Now()
	g.runCooldown(100)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*cooldownTick)

	g.bus.Close()
	ticks := 0
	for ev := range events {
		if _, ok := ev.Msg.(CooldownMsg); ok {
			ticks++
		}
	}
	assert.Less(t, ticks, 99)
}

func TestRunCooldownIgnoresAbortFromNonManager(t *testing.T) {
	g, _ := newCooldownTestGame()

	g.cmds <- CmdAbortQuiz{SocketID: "someone-else"}

	start := time.Now()
	g.runCooldown(3)

	assert.GreaterOrEqual(t, time.Since(start), 3*cooldownTick)
}

func TestWaitKeepsServicingCommands(t *testing.T) {
	g, _ := newCooldownTestGame()

	// A command for some other session: handled (and ignored) without
	// ending the wait early.
	g.cmds <- CmdManagerDisconnectCheck{GameID: "not-this-game"}

	start := time.Now()
	g.wait(2 * cooldownTick)

	require.GreaterOrEqual(t, time.Since(start), 2*cooldownTick)
	assert.Empty(t, g.cmds)
	assert.False(t, g.destroyed)
}
