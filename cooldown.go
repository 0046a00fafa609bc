package main

import (
	"time"
)

// The scripted waits of the question state machine. Variables so the
// tests can shorten them.
var (
	showStartDelay    = 3 * time.Second
	showPreparedDelay = 2 * time.Second
	cooldownTick      = time.Second
	managerGrace      = 10 * time.Second
)

// runCooldown drives the cancellable countdown: it emits
// Cooldown{count} for count = seconds-1 down to 1, sleeping one tick
// between emissions, then sleeps one additional final tick. The
// session keeps servicing commands throughout, so an answer from the
// last connected player or an AbortQuiz cancels the countdown
// mid-tick and returns control immediately.
func (g *Game) runCooldown(seconds int) {
	cancel := make(chan struct{})
	g.cancelCooldown = cancel

	for i := seconds - 1; i >= 1; i-- {
		if !g.tickOrCancel(cancel) {
			return
		}
		g.broadcast(CooldownMsg{Type: "Cooldown", Count: i})
	}

	// Final second before results; skipped on cancellation.
	if !g.tickOrCancel(cancel) {
		return
	}

	g.cancelCooldown = nil
}

// tickOrCancel sleeps one tick while continuing to process commands.
// It returns false once the cooldown has been cancelled.
func (g *Game) tickOrCancel(cancel chan struct{}) bool {
	timer := time.NewTimer(cooldownTick)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-cancel:
			return false
		case cmd := <-g.cmds:
			g.handle(cmd)
		}
	}
}

// cancelActiveCooldown short-circuits the countdown currently running
// in the session task, if any.
func (g *Game) cancelActiveCooldown() {
	if g.cancelCooldown != nil {
		close(g.cancelCooldown)
		g.cancelCooldown = nil
	}
}

// wait sleeps for the scripted fixed delays of the state machine.
// Commands keep being processed so disconnects and answers are never
// starved behind a wait.
func (g *Game) wait(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return
		case cmd := <-g.cmds:
			g.handle(cmd)
		}
	}
}
