package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// socketConn guards the write half of a websocket. Both the inbound
// loop (direct replies) and the outbound loop (session events) write,
// so every write goes through the mutex.
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socketConn) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// connHandler is the per-socket state: a fresh socket id, the
// client-supplied stable client id, and the session this socket is
// currently attached to.
type connHandler struct {
	cfg        *Config
	registry   *Registry
	gameConfig GameConfig
	quizzes    []QuizWithId
	baseURL    string

	socketID string
	clientID string
	sock     *socketConn

	mu      sync.Mutex
	current *GameHandle

	done chan struct{}
}

func (h *connHandler) currentGame() *GameHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *connHandler) setCurrent(handle *GameHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = handle
}

// serveWS upgrades /ws?clientId=<id> and runs the two socket loops.
func serveWS(cfg *Config, registry *Registry, gameConfig GameConfig, quizzes []QuizWithId, baseURL string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			warnf("WS: Upgrade error: %v", err)
			return
		}

		h := &connHandler{
			cfg:        cfg,
			registry:   registry,
			gameConfig: gameConfig,
			quizzes:    quizzes,
			baseURL:    baseURL,
			socketID:   newSocketID(),
			clientID:   r.URL.Query().Get("clientId"),
			sock:       &socketConn{conn: conn},
			done:       make(chan struct{}),
		}

		metricActiveConnections.Inc()
		metricTotalConnections.Inc()
		logf(cfg, "WS: Connected socket %s client %s", h.socketID, h.clientID)

		go h.outboundLoop()
		h.inboundLoop()

		close(h.done)
		_ = conn.Close()
		metricActiveConnections.Dec()
		logf(cfg, "WS: Disconnected socket %s", h.socketID)

		h.notifyDisconnect()
	}
}

// notifyDisconnect tells the session this socket belonged to, if any,
// that it went away. The role-specific socket maps decide which
// command to send.
func (h *connHandler) notifyDisconnect() {
	if gameID, ok := h.registry.ManagerGame(h.socketID); ok {
		if handle, ok := h.registry.Game(gameID); ok {
			handle.send(CmdManagerDisconnect{SocketID: h.socketID})
		}
	}

	if gameID, ok := h.registry.PlayerGame(h.socketID); ok {
		if handle, ok := h.registry.Game(gameID); ok {
			handle.send(CmdPlayerDisconnect{SocketID: h.socketID})
		}
	}
}

// ─── Outbound: session events → socket ───────────────────────────

func (h *connHandler) outboundLoop() {
	for {
		select {
		case <-h.done:
			return
		default:
		}

		handle := h.currentGame()
		if handle == nil {
			select {
			case <-h.done:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		ch := handle.events.Subscribe()
		if !h.forwardEvents(handle, ch) {
			return
		}

		// The subscription ended: either we lagged and were dropped,
		// or the session's bus closed. If the game is gone, detach so
		// we go back to polling for a new session.
		if _, ok := h.registry.Game(handle.GameID); !ok {
			h.mu.Lock()
			if h.current == handle {
				h.current = nil
			}
			h.mu.Unlock()
		}
	}
}

// forwardEvents writes matching events to the socket until the
// subscription closes. It returns false when the handler should stop
// entirely.
func (h *connHandler) forwardEvents(handle *GameHandle, ch chan GameEvent) bool {
	for {
		select {
		case <-h.done:
			handle.events.Unsubscribe(ch)
			return false
		case ev, ok := <-ch:
			if !ok {
				return true
			}

			if !h.shouldReceive(ev) {
				continue
			}

			if err := h.sock.writeJSON(ev.Msg); err != nil {
				handle.events.Unsubscribe(ch)
				return false
			}

			if ev.Kind == eventKickSocket {
				// Final message delivered; the session wants this
				// socket gone.
				handle.events.Unsubscribe(ch)
				_ = h.sock.conn.Close()
				return false
			}
		}
	}
}

func (h *connHandler) shouldReceive(ev GameEvent) bool {
	switch ev.Kind {
	case eventSendTo, eventKickSocket:
		return ev.SocketID == h.socketID
	case eventBroadcastExcept:
		return ev.SocketID != h.socketID
	default:
		return true
	}
}

// ─── Inbound: socket frames → commands ───────────────────────────

func (h *connHandler) inboundLoop() {
	for {
		kind, data, err := h.sock.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			warnf("WS: Invalid message from %s: %v", h.socketID, err)
			continue
		}

		metricMessagesReceived.WithLabelValues(msg.Type).Inc()
		h.dispatch(msg)
	}
}

func (h *connHandler) dispatch(msg ClientMsg) {
	switch msg.Type {
	case MsgManagerAuth:
		h.handleManagerAuth(msg.Password)

	case MsgCreateGame:
		h.handleCreateGame(msg.QuizID)

	case MsgPlayerJoin:
		h.handlePlayerJoin(msg.InviteCode)

	case MsgPlayerLogin:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdJoin{
				SocketID: h.socketID,
				ClientID: h.clientID,
				Username: msg.Username,
			})
			h.setCurrent(handle)
		}

	case MsgSelectedAnswer:
		if msg.AnswerKey == nil {
			warnf("WS: SelectedAnswer without answer_key from %s", h.socketID)
			return
		}
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdSelectAnswer{
				SocketID:  h.socketID,
				AnswerKey: *msg.AnswerKey,
			})
		}

	case MsgStartGame:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdStartGame{SocketID: h.socketID})
		}

	case MsgAbortQuiz:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdAbortQuiz{SocketID: h.socketID})
		}

	case MsgNextQuestion:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdNextQuestion{SocketID: h.socketID})
		}

	case MsgShowLeaderboard:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdShowLeaderboard{})
		}

	case MsgKickPlayer:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdKickPlayer{
				SocketID: h.socketID,
				PlayerID: msg.PlayerID,
			})
		}

	case MsgPlayerReconnect:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdPlayerReconnect{
				SocketID: h.socketID,
				ClientID: h.clientID,
			})
			h.setCurrent(handle)
		} else {
			_ = h.sock.writeJSON(resetMsg("Game not found"))
		}

	case MsgManagerReconnect:
		if handle, ok := h.registry.Game(msg.GameID); ok {
			handle.send(CmdManagerReconnect{
				SocketID: h.socketID,
				ClientID: h.clientID,
			})
			h.setCurrent(handle)
		} else {
			_ = h.sock.writeJSON(resetMsg("Game expired"))
		}

	default:
		warnf("WS: Unknown message type %q from %s", msg.Type, h.socketID)
	}
}

// ─── Pre-session messages ────────────────────────────────────────

func (h *connHandler) handleManagerAuth(password string) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(h.gameConfig.ManagerPassword)) != 1 {
		_ = h.sock.writeJSON(errorMessage("Invalid password"))
		return
	}

	_ = h.sock.writeJSON(QuizList{Type: "QuizList", Quizzes: h.quizzes})
}

func (h *connHandler) handleCreateGame(quizID string) {
	var quiz *QuizWithId
	for i := range h.quizzes {
		if h.quizzes[i].ID == quizID {
			quiz = &h.quizzes[i]
			break
		}
	}
	if quiz == nil {
		_ = h.sock.writeJSON(errorMessage("Quiz not found"))
		return
	}

	handle := createGame(h.cfg, h.registry, h.socketID, h.clientID, quiz.quiz(), h.baseURL)

	_ = h.sock.writeJSON(GameCreated{
		Type:       "GameCreated",
		GameID:     handle.GameID,
		InviteCode: handle.InviteCode,
	})

	h.setCurrent(handle)
}

func (h *connHandler) handlePlayerJoin(inviteCode string) {
	if len(inviteCode) != 6 {
		_ = h.sock.writeJSON(errorMessage("Invalid invite code"))
		return
	}

	handle, ok := h.registry.GameByInvite(inviteCode)
	if !ok {
		_ = h.sock.writeJSON(errorMessage("Game not found"))
		return
	}

	_ = h.sock.writeJSON(SuccessRoom{Type: "SuccessRoom", GameID: handle.GameID})
	h.setCurrent(handle)
}
