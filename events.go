package main

import (
	"sync"
)

const eventBufferSize = 256

type eventKind int

const (
	// eventSendTo delivers to one socket only.
	eventSendTo eventKind = iota
	// eventBroadcast delivers to every subscribed socket.
	eventBroadcast
	// eventBroadcastExcept delivers to every socket but one.
	eventBroadcastExcept
	// eventKickSocket delivers to one socket, which must then close.
	eventKickSocket
)

// GameEvent is what a session publishes on its event bus. SocketID is
// the target for SendTo/KickSocket and the excluded socket for
// BroadcastExcept.
type GameEvent struct {
	Kind     eventKind
	SocketID string
	Msg      any
}

// eventBus fans session events out to every connected socket's
// outbound loop. Each subscriber gets its own buffered channel; a
// subscriber that falls eventBufferSize events behind is dropped
// (its channel closed) and is expected to resubscribe. Missed frames
// are recovered through the reconnect status replay, not re-sent.
type eventBus struct {
	mu     sync.Mutex
	subs   map[chan GameEvent]struct{}
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{
		subs: make(map[chan GameEvent]struct{}),
	}
}

func (b *eventBus) Subscribe() chan GameEvent {
	ch := make(chan GameEvent, eventBufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}

	return ch
}

func (b *eventBus) Unsubscribe(ch chan GameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *eventBus) Publish(ev GameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Close drops every subscriber. Subscribers observe the closed
// channel and fall back to polling for a new session.
func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
