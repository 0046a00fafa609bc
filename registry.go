package main

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

const commandBufferSize = 256

// GameHandle is the registry's view of a live session: the send end
// of its command channel plus its event bus.
type GameHandle struct {
	GameID     string
	InviteCode string

	commands chan GameCommand
	events   *eventBus
}

// send enqueues a command without blocking. Commands to a session
// whose buffer is full (or whose task has exited) are dropped; the
// reconnect protocol covers any client that cared.
func (h *GameHandle) send(cmd GameCommand) {
	select {
	case h.commands <- cmd:
	default:
	}
}

// Registry maps game ids, invite codes, and socket ids to live
// sessions. Player and manager sockets live in separate maps because
// disconnect semantics differ by role.
type Registry struct {
	games          sync.Map // game id -> *GameHandle
	inviteCodes    sync.Map // invite code -> game id
	playerSockets  sync.Map // socket id -> game id
	managerSockets sync.Map // socket id -> game id
}

func newRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(h *GameHandle) {
	r.games.Store(h.GameID, h)
	r.inviteCodes.Store(h.InviteCode, h.GameID)
}

func (r *Registry) Game(gameID string) (*GameHandle, bool) {
	v, ok := r.games.Load(gameID)
	if !ok {
		return nil, false
	}
	return v.(*GameHandle), true
}

func (r *Registry) GameByInvite(inviteCode string) (*GameHandle, bool) {
	v, ok := r.inviteCodes.Load(inviteCode)
	if !ok {
		return nil, false
	}
	return r.Game(v.(string))
}

func (r *Registry) BindPlayer(socketID, gameID string) {
	r.playerSockets.Store(socketID, gameID)
}

func (r *Registry) BindManager(socketID, gameID string) {
	r.managerSockets.Store(socketID, gameID)
}

func (r *Registry) UnbindPlayer(socketID string) {
	r.playerSockets.Delete(socketID)
}

func (r *Registry) UnbindManager(socketID string) {
	r.managerSockets.Delete(socketID)
}

func (r *Registry) PlayerGame(socketID string) (string, bool) {
	v, ok := r.playerSockets.Load(socketID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *Registry) ManagerGame(socketID string) (string, bool) {
	v, ok := r.managerSockets.Load(socketID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Remove deletes the game entry, its invite code, and every socket
// binding that pointed to it.
func (r *Registry) Remove(gameID string) {
	if v, ok := r.games.LoadAndDelete(gameID); ok {
		r.inviteCodes.Delete(v.(*GameHandle).InviteCode)
	}

	r.playerSockets.Range(func(k, v any) bool {
		if v.(string) == gameID {
			r.playerSockets.Delete(k)
		}
		return true
	})
	r.managerSockets.Range(func(k, v any) bool {
		if v.(string) == gameID {
			r.managerSockets.Delete(k)
		}
		return true
	})
}

// newSocketID generates a crypto-random per-connection identifier.
func newSocketID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// newGameID generates a crypto-random game id and ensures it doesn't
// collide with existing games.
func (r *Registry) newGameID() string {
	for {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id := hex.EncodeToString(buf)

		if _, exists := r.games.Load(id); !exists {
			return id
		}
	}
}

// newInviteCode generates a uniformly random 6-digit code unique
// among live sessions.
func (r *Registry) newInviteCode() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = '0' + buf[i]%10
		}
		code := string(out)

		if _, exists := r.inviteCodes.Load(code); !exists {
			return code
		}
	}
}
