package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	cfg := &Config{configPath: t.TempDir(), port: 3000}
	require.NoError(t, initConfigDir(cfg.configPath))

	gameConfig, err := loadGameConfig(cfg.configPath)
	require.NoError(t, err)
	quizzes := loadQuizzes(cfg, cfg.configPath)
	registry := newRegistry()

	errs := make(chan error, 64)
	go func() {
		for range errs {
		}
	}()

	mux := httprouter.New()
	mux.GET("/ws", serveWS(cfg, registry, gameConfig, quizzes, cfg.resolvedBaseURL()))
	mux.GET("/game/:game_id/qr", serveInviteQR(cfg, registry))
	mux.GET("/images/*filepath", serveImages(cfg, cfg.configPath, errs))
	mux.GET("/healthz", serveHealthCheck(cfg, errs))
	mux.GET("/version", serveVersion(cfg, errs))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, registry
}

// wsClient wraps a live websocket for the end-to-end tests.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server, clientID string) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?clientId=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg ClientMsg) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect reads frames until one satisfies pred, skipping unrelated
// interleaved frames (TotalPlayers, cooldowns, ...).
func (c *wsClient) expect(what string, pred func(any) bool) any {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "reading while waiting for %s", what)

		msg, err := decodeServerMsg(data)
		if err != nil {
			continue
		}
		if pred(msg) {
			return msg
		}
	}

	c.t.Fatalf("timed out waiting for %s", what)
	return nil
}

func errorWith(message string) func(any) bool {
	return func(msg any) bool {
		e, ok := msg.(*ErrorMessage)
		return ok && e.Message == message
	}
}

func TestWebSocketGameFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	manager := dialWS(t, srv, "mgr-client")

	manager.send(ClientMsg{Type: MsgManagerAuth, Password: "wrong"})
	manager.expect("invalid password error", errorWith("Invalid password"))

	manager.send(ClientMsg{Type: MsgManagerAuth, Password: "PASSWORD"})
	raw := manager.expect("quiz list", func(msg any) bool {
		_, ok := msg.(*QuizList)
		return ok
	})
	quizzes := raw.(*QuizList).Quizzes
	require.Len(t, quizzes, 1)
	assert.Equal(t, "example", quizzes[0].ID)

	manager.send(ClientMsg{Type: MsgCreateGame, QuizID: "missing"})
	manager.expect("unknown quiz error", errorWith("Quiz not found"))

	manager.send(ClientMsg{Type: MsgCreateGame, QuizID: "example"})
	raw = manager.expect("game created", func(msg any) bool {
		_, ok := msg.(*GameCreated)
		return ok
	})
	created := raw.(*GameCreated)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), created.InviteCode)

	player := dialWS(t, srv, "player-client")

	player.send(ClientMsg{Type: MsgPlayerJoin, InviteCode: "123"})
	player.expect("invalid code error", errorWith("Invalid invite code"))

	// A syntactically valid code for a game that doesn't exist.
	code, err := strconv.Atoi(created.InviteCode)
	require.NoError(t, err)
	bogus := fmt.Sprintf("%06d", (code+1)%1000000)
	player.send(ClientMsg{Type: MsgPlayerJoin, InviteCode: bogus})
	player.expect("unknown game error", errorWith("Game not found"))

	player.send(ClientMsg{Type: MsgPlayerJoin, InviteCode: created.InviteCode})
	raw = player.expect("success room", func(msg any) bool {
		_, ok := msg.(*SuccessRoom)
		return ok
	})
	gameID := raw.(*SuccessRoom).GameID
	assert.Equal(t, created.GameID, gameID)

	// Give the outbound loop a moment to attach to the session before
	// replies start flowing over the event bus.
	time.Sleep(150 * time.Millisecond)

	player.send(ClientMsg{Type: MsgPlayerLogin, GameID: gameID, Username: "abc"})
	player.expect("short username error", errorWith("Username cannot be less than 4 characters"))

	player.send(ClientMsg{Type: MsgPlayerLogin, GameID: gameID, Username: "alice"})
	player.expect("success join", func(msg any) bool {
		j, ok := msg.(*SuccessJoin)
		return ok && j.GameID == gameID
	})

	raw = manager.expect("new player", func(msg any) bool {
		_, ok := msg.(*NewPlayer)
		return ok
	})
	assert.Equal(t, "alice", raw.(*NewPlayer).Player.Username)
	manager.expect("total players", func(msg any) bool {
		tp, ok := msg.(*TotalPlayers)
		return ok && tp.Count == 1
	})
}

func TestWebSocketReconnectUnknownGame(t *testing.T) {
	srv, _ := newTestServer(t)

	client := dialWS(t, srv, "some-client")

	client.send(ClientMsg{Type: MsgPlayerReconnect, GameID: "nope"})
	client.expect("player reset", func(msg any) bool {
		r, ok := msg.(*ResetMsg)
		return ok && r.Message == "Game not found"
	})

	client.send(ClientMsg{Type: MsgManagerReconnect, GameID: "nope"})
	client.expect("manager reset", func(msg any) bool {
		r, ok := msg.(*ResetMsg)
		return ok && r.Message == "Game expired"
	})
}

// ─── HTTP surfaces ───────────────────────────────────────────────

func TestServeImages(t *testing.T) {
	srv, _ := newTestServer(t)

	// newTestServer seeded the config dir; drop a fixture image in.
	// The config root is not exposed, so rebuild the handler directly.
	root := t.TempDir()
	imagesDir := filepath.Join(root, "quizz", "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "pic.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "notes.txt"), []byte("x"), 0o644))

	errs := make(chan error, 8)
	handler := serveImages(&Config{}, root, errs)

	get := func(rel string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/images/x", nil)
		handler(w, r, httprouter.Params{{Key: "filepath", Value: rel}})
		return w
	}

	w := get("/pic.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, "png-bytes", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get("/../game.json").Code)
	assert.Equal(t, http.StatusNotFound, get("/notes.txt").Code)
	assert.Equal(t, http.StatusNotFound, get("/missing.png").Code)

	// And over the wire, through the router's catch-all parameter.
	resp, err := http.Get(srv.URL + "/images/missing.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServePageBindFailure(t *testing.T) {
	// Occupy a port so the server cannot bind to it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := &Config{
		configPath: t.TempDir(),
		bind:       "127.0.0.1",
		port:       ln.Addr().(*net.TCPAddr).Port,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The bind failure must abort the serve loop, not leave the
	// process idling with no listener.
	err = ServePage(ctx, cfg, nil)
	require.Error(t, err)
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestInviteQREndpoint(t *testing.T) {
	srv, registry := newTestServer(t)

	handle := newTestHandle(registry)
	registry.Register(handle)

	resp, err := http.Get(srv.URL + "/game/" + handle.GameID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	buf := make([]byte, 8)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, buf)

	resp, err = http.Get(srv.URL + "/game/does-not-exist/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
