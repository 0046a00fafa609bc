package main

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// Commands the connection handlers send to a session task. The task
// is the single writer to the session's state; everything reaches it
// through the command channel.
type GameCommand interface {
	isGameCommand()
}

type CmdJoin struct {
	SocketID string
	ClientID string
	Username string
}

type CmdSelectAnswer struct {
	SocketID  string
	AnswerKey int
}

type CmdStartGame struct {
	SocketID string
}

type CmdAbortQuiz struct {
	SocketID string
}

type CmdNextQuestion struct {
	SocketID string
}

type CmdShowLeaderboard struct{}

type CmdKickPlayer struct {
	SocketID string
	PlayerID string
}

type CmdPlayerDisconnect struct {
	SocketID string
}

type CmdManagerDisconnect struct {
	SocketID string
}

type CmdPlayerReconnect struct {
	SocketID string
	ClientID string
}

type CmdManagerReconnect struct {
	SocketID string
	ClientID string
}

// CmdManagerDisconnectCheck arrives one grace period after a manager
// disconnect; it tears the session down if the manager never came
// back and the game hasn't started.
type CmdManagerDisconnectCheck struct {
	GameID string
}

func (CmdJoin) isGameCommand()                   {}
func (CmdSelectAnswer) isGameCommand()           {}
func (CmdStartGame) isGameCommand()              {}
func (CmdAbortQuiz) isGameCommand()              {}
func (CmdNextQuestion) isGameCommand()           {}
func (CmdShowLeaderboard) isGameCommand()        {}
func (CmdKickPlayer) isGameCommand()             {}
func (CmdPlayerDisconnect) isGameCommand()       {}
func (CmdManagerDisconnect) isGameCommand()      {}
func (CmdPlayerReconnect) isGameCommand()        {}
func (CmdManagerReconnect) isGameCommand()       {}
func (CmdManagerDisconnectCheck) isGameCommand() {}

// statusFrame is a (status, payload) pair cached for reconnect
// replay.
type statusFrame struct {
	status GameStatus
	data   any
}

// Game is the state of one session, owned exclusively by its task.
type Game struct {
	cfg      *Config
	registry *Registry

	id         string
	inviteCode string

	managerSocketID  string
	managerClientID  string
	managerConnected bool

	started          bool
	inRound          bool
	acceptingAnswers bool
	destroyed        bool

	quiz    Quiz
	players []Player

	currentQuestion int
	roundAnswers    []Answer
	roundStartTime  time.Time

	leaderboard    []Player
	oldLeaderboard []Player

	cmds           chan GameCommand
	bus            *eventBus
	cancelCooldown chan struct{}

	// Status replay caches: the player's own last frame, then the
	// last broadcast frame, then a default Wait — in that order —
	// answer a reconnect.
	lastBroadcastStatus *statusFrame
	managerStatus       *statusFrame
	playerStatuses      map[string]statusFrame

	baseURL string
}

// createGame registers a new session, binds the creating socket as
// its manager, and spawns the session task.
func createGame(cfg *Config, registry *Registry, managerSocketID, managerClientID string, quiz Quiz, baseURL string) *GameHandle {
	gameID := registry.newGameID()
	inviteCode := registry.newInviteCode()

	handle := &GameHandle{
		GameID:     gameID,
		InviteCode: inviteCode,
		commands:   make(chan GameCommand, commandBufferSize),
		events:     newEventBus(),
	}

	registry.Register(handle)
	registry.BindManager(managerSocketID, gameID)

	g := &Game{
		cfg:              cfg,
		registry:         registry,
		id:               gameID,
		inviteCode:       inviteCode,
		managerSocketID:  managerSocketID,
		managerClientID:  managerClientID,
		managerConnected: true,
		quiz:             quiz,
		playerStatuses:   make(map[string]statusFrame),
		cmds:             handle.commands,
		bus:              handle.events,
		baseURL:          baseURL,
	}

	go g.run()

	metricTotalSessions.Inc()
	metricActiveSessions.Inc()
	logf(cfg, "GAMES: Created game %s invite %s", gameID, inviteCode)

	return handle
}

func (g *Game) run() {
	for cmd := range g.cmds {
		g.handle(cmd)
		if g.destroyed {
			break
		}
	}

	if !g.destroyed {
		g.registry.Remove(g.id)
	}
	g.bus.Close()
	metricActiveSessions.Dec()
	logf(g.cfg, "GAMES: Game %s task ended", g.id)
}

func (g *Game) handle(cmd GameCommand) {
	switch c := cmd.(type) {
	case CmdJoin:
		g.handleJoin(c.SocketID, c.ClientID, c.Username)
	case CmdSelectAnswer:
		g.handleSelectAnswer(c.SocketID, c.AnswerKey)
	case CmdStartGame:
		if c.SocketID == g.managerSocketID && !g.started && len(g.quiz.Questions) > 0 {
			g.started = true
			g.handleStartGame()
		}
	case CmdAbortQuiz:
		if c.SocketID == g.managerSocketID && g.started {
			g.cancelActiveCooldown()
		}
	case CmdNextQuestion:
		if c.SocketID == g.managerSocketID && g.started && !g.inRound {
			if g.currentQuestion+1 < len(g.quiz.Questions) {
				g.currentQuestion++
				g.newRound()
			}
		}
	case CmdShowLeaderboard:
		g.handleShowLeaderboard()
	case CmdKickPlayer:
		g.handleKickPlayer(c.SocketID, c.PlayerID)
	case CmdPlayerDisconnect:
		g.handlePlayerDisconnect(c.SocketID)
	case CmdManagerDisconnect:
		g.handleManagerDisconnect(c.SocketID)
	case CmdPlayerReconnect:
		g.handlePlayerReconnect(c.SocketID, c.ClientID)
	case CmdManagerReconnect:
		g.handleManagerReconnect(c.SocketID, c.ClientID)
	case CmdManagerDisconnectCheck:
		if c.GameID == g.id && !g.managerConnected && !g.started {
			g.cancelActiveCooldown()
			g.broadcast(resetMsg("Manager disconnected"))
			g.registry.Remove(g.id)
			g.destroyed = true
		}
	}
}

// ─── Event emission ──────────────────────────────────────────────

func (g *Game) broadcast(msg any) {
	g.bus.Publish(GameEvent{Kind: eventBroadcast, Msg: msg})
}

func (g *Game) sendTo(socketID string, msg any) {
	g.bus.Publish(GameEvent{Kind: eventSendTo, SocketID: socketID, Msg: msg})
}

func (g *Game) broadcastExcept(exclude string, msg any) {
	g.bus.Publish(GameEvent{Kind: eventBroadcastExcept, SocketID: exclude, Msg: msg})
}

func (g *Game) broadcastStatus(status GameStatus, data any) {
	g.lastBroadcastStatus = &statusFrame{status: status, data: data}
	g.broadcast(statusMsg(status, data))
}

func (g *Game) sendStatus(target string, status GameStatus, data any) {
	if target == g.managerSocketID {
		g.managerStatus = &statusFrame{status: status, data: data}
	} else {
		g.playerStatuses[target] = statusFrame{status: status, data: data}
	}
	g.sendTo(target, statusMsg(status, data))
}

func (g *Game) broadcastTotalPlayers() {
	g.broadcast(TotalPlayers{Type: "TotalPlayers", Count: g.connectedCount()})
}

func (g *Game) connectedCount() int {
	count := 0
	for _, p := range g.players {
		if p.Connected {
			count++
		}
	}
	return count
}

func (g *Game) questionProgress() QuestionProgress {
	return QuestionProgress{
		Current: g.currentQuestion + 1,
		Total:   len(g.quiz.Questions),
	}
}

func (g *Game) resolveImage(path *string) *string {
	return resolveImageURL(path, g.baseURL)
}

// ─── Scoring ─────────────────────────────────────────────────────

// timeToPoints awards up to 1000 points, decaying linearly to zero
// over the answer window.
func timeToPoints(start time.Time, maxSeconds int, now time.Time) float64 {
	elapsed := now.Sub(start).Seconds()
	points := 1000.0 - (1000.0/float64(maxSeconds))*elapsed
	return math.Max(points, 0.0)
}

func (g *Game) findAnswer(playerID string) *Answer {
	for i := range g.roundAnswers {
		if g.roundAnswers[i].PlayerID == playerID {
			return &g.roundAnswers[i]
		}
	}
	return nil
}

// ─── Command handlers ────────────────────────────────────────────

func (g *Game) handleJoin(socketID, clientID, username string) {
	for _, p := range g.players {
		if p.ClientID == clientID {
			g.sendTo(socketID, errorMessage("Player already connected"))
			return
		}
	}

	if len(username) < 4 {
		g.sendTo(socketID, errorMessage("Username cannot be less than 4 characters"))
		return
	}
	if len(username) > 20 {
		g.sendTo(socketID, errorMessage("Username cannot exceed 20 characters"))
		return
	}

	player := Player{
		ID:        socketID,
		ClientID:  clientID,
		Connected: true,
		Username:  username,
	}

	g.players = append(g.players, player)
	g.registry.BindPlayer(socketID, g.id)

	g.sendTo(g.managerSocketID, NewPlayer{Type: "NewPlayer", Player: player})
	g.broadcastTotalPlayers()
	g.sendTo(socketID, SuccessJoin{Type: "SuccessJoin", GameID: g.id})

	logf(g.cfg, "GAMES: Player %q joined %s", username, g.inviteCode)
}

func (g *Game) handleSelectAnswer(socketID string, answerKey int) {
	// Submissions only count while the answer window is open; anything
	// earlier (lobby, question display) or later is dropped so the
	// player keeps their shot at the real window.
	if !g.acceptingAnswers {
		return
	}

	found := false
	for _, p := range g.players {
		if p.ID == socketID {
			found = true
			break
		}
	}
	if !found {
		return
	}

	if g.findAnswer(socketID) != nil {
		return
	}

	question := g.quiz.Questions[g.currentQuestion]
	points := timeToPoints(g.roundStartTime, question.Time, time.Now())

	g.roundAnswers = append(g.roundAnswers, Answer{
		PlayerID: socketID,
		AnswerID: answerKey,
		Points:   points,
	})

	g.sendStatus(socketID, StatusWait, map[string]any{
		"text": "Waiting for the players to answer",
	})

	g.broadcastExcept(socketID, PlayerAnswerMsg{Type: "PlayerAnswer", Count: len(g.roundAnswers)})
	g.broadcastTotalPlayers()

	// Everyone connected has answered: end the round early.
	if len(g.roundAnswers) >= g.connectedCount() {
		g.cancelActiveCooldown()
	}
}

func (g *Game) handleStartGame() {
	g.inRound = true
	defer func() { g.inRound = false }()

	g.broadcastStatus(StatusShowStart, map[string]any{
		"time":    3,
		"subject": g.quiz.Subject,
	})

	g.wait(showStartDelay)

	g.broadcast(StartCooldown{Type: "StartCooldown"})
	g.runCooldown(3)

	g.newRound()
}

func (g *Game) newRound() {
	if !g.started {
		return
	}

	g.inRound = true
	defer func() { g.inRound = false }()

	question := g.quiz.Questions[g.currentQuestion]
	g.playerStatuses = make(map[string]statusFrame)
	g.roundAnswers = nil

	g.broadcast(UpdateQuestion{
		Type:    "UpdateQuestion",
		Current: g.currentQuestion + 1,
		Total:   len(g.quiz.Questions),
	})

	g.managerStatus = nil
	g.broadcastStatus(StatusShowPrepared, map[string]any{
		"totalAnswers":   len(question.Answers),
		"questionNumber": g.currentQuestion + 1,
	})

	g.wait(showPreparedDelay)

	if !g.started {
		return
	}

	g.broadcastStatus(StatusShowQuestion, map[string]any{
		"question": question.Question,
		"image":    g.resolveImage(question.Image),
		"cooldown": question.Cooldown,
	})

	g.wait(time.Duration(question.Cooldown) * cooldownTick)

	if !g.started {
		return
	}

	g.roundStartTime = time.Now()
	g.acceptingAnswers = true

	g.broadcastStatus(StatusSelectAnswer, map[string]any{
		"question":    question.Question,
		"answers":     question.Answers,
		"image":       g.resolveImage(question.Image),
		"video":       question.Video,
		"audio":       question.Audio,
		"time":        question.Time,
		"totalPlayer": g.connectedCount(),
	})

	g.runCooldown(question.Time)
	g.acceptingAnswers = false

	if !g.started {
		return
	}

	g.showResults()
}

func (g *Game) showResults() {
	question := g.quiz.Questions[g.currentQuestion]

	old := g.leaderboard
	if len(old) == 0 {
		old = clonePlayers(g.players)
	}

	responses := make(map[int]int)
	for _, ans := range g.roundAnswers {
		responses[ans.AnswerID]++
	}

	// Apply earned points, then rank by sorting.
	for i := range g.players {
		answer := g.findAnswer(g.players[i].ID)
		if answer != nil && answer.AnswerID == question.Solution {
			g.players[i].Points += math.Round(answer.Points)
		}
	}

	sort.SliceStable(g.players, func(i, j int) bool {
		return g.players[i].Points > g.players[j].Points
	})

	answerImage := g.resolveImage(question.AnswerImage)

	for rank, player := range g.players {
		answer := g.findAnswer(player.ID)
		correct := answer != nil && answer.AnswerID == question.Solution

		earned := 0.0
		message := "Too bad"
		if correct {
			earned = math.Round(answer.Points)
			message = "Nice!"
		}

		var ahead *string
		if rank > 0 {
			ahead = &g.players[rank-1].Username
		}

		g.sendStatus(player.ID, StatusShowResult, map[string]any{
			"correct":     correct,
			"message":     message,
			"points":      int(earned),
			"myPoints":    int(player.Points),
			"rank":        rank + 1,
			"aheadOfMe":   ahead,
			"answerImage": answerImage,
		})
	}

	responsesJSON := make(map[string]int, len(responses))
	for key, count := range responses {
		responsesJSON[strconv.Itoa(key)] = count
	}

	g.sendStatus(g.managerSocketID, StatusShowResponses, map[string]any{
		"question":  question.Question,
		"responses": responsesJSON,
		"correct":   question.Solution,
		"answers":   question.Answers,
		"image":     g.resolveImage(question.Image),
	})

	g.leaderboard = clonePlayers(g.players)
	g.oldLeaderboard = old
}

func (g *Game) handleShowLeaderboard() {
	isLast := g.currentQuestion+1 == len(g.quiz.Questions)

	if isLast {
		g.started = false
		g.broadcastStatus(StatusFinished, map[string]any{
			"subject": g.quiz.Subject,
			"top":     topN(g.leaderboard, 3),
		})
		return
	}

	old := g.oldLeaderboard
	if old == nil {
		old = clonePlayers(g.leaderboard)
	}
	g.oldLeaderboard = nil

	g.sendStatus(g.managerSocketID, StatusShowLeaderboard, map[string]any{
		"oldLeaderboard": topN(old, 5),
		"leaderboard":    topN(g.leaderboard, 5),
	})
}

func (g *Game) handleKickPlayer(socketID, playerID string) {
	if socketID != g.managerSocketID {
		return
	}

	var kicked *Player
	for i := range g.players {
		if g.players[i].ID == playerID {
			kicked = &g.players[i]
			break
		}
	}
	if kicked == nil {
		return
	}

	kickedID := kicked.ID
	g.players = removePlayer(g.players, playerID)
	delete(g.playerStatuses, playerID)
	g.registry.UnbindPlayer(playerID)

	g.bus.Publish(GameEvent{
		Kind:     eventKickSocket,
		SocketID: kickedID,
		Msg:      resetMsg("You have been kicked by the manager"),
	})

	g.sendTo(g.managerSocketID, PlayerKicked{Type: "PlayerKicked", PlayerID: kickedID})
	g.broadcastTotalPlayers()
}

func (g *Game) handlePlayerDisconnect(socketID string) {
	g.registry.UnbindPlayer(socketID)

	for i := range g.players {
		if g.players[i].ID != socketID {
			continue
		}

		if !g.started {
			// Pre-start drops forget the player entirely.
			g.players = removePlayer(g.players, socketID)
			g.sendTo(g.managerSocketID, RemovePlayer{Type: "RemovePlayer", PlayerID: socketID})
		} else {
			// Mid-game, keep points and rank for a possible reconnect.
			g.players[i].Connected = false
		}

		g.broadcastTotalPlayers()
		return
	}
}

func (g *Game) handleManagerDisconnect(socketID string) {
	if socketID != g.managerSocketID {
		return
	}

	g.managerConnected = false
	g.registry.UnbindManager(socketID)

	// Give the manager a grace period to reconnect, e.g. during page
	// navigation from /manager to /game/{id}.
	handle, ok := g.registry.Game(g.id)
	if !ok {
		return
	}
	gameID := g.id
	time.AfterFunc(managerGrace, func() {
		handle.send(CmdManagerDisconnectCheck{GameID: gameID})
	})
}

func (g *Game) handlePlayerReconnect(socketID, clientID string) {
	var player *Player
	for i := range g.players {
		if g.players[i].ClientID == clientID {
			player = &g.players[i]
			break
		}
	}
	if player == nil {
		g.sendTo(socketID, resetMsg("Game not found"))
		return
	}

	if player.Connected {
		g.sendTo(socketID, resetMsg("Player already connected"))
		return
	}

	oldID := player.ID
	player.ID = socketID
	player.Connected = true

	g.registry.UnbindPlayer(oldID)
	g.registry.BindPlayer(socketID, g.id)

	if frame, ok := g.playerStatuses[oldID]; ok {
		delete(g.playerStatuses, oldID)
		g.playerStatuses[socketID] = frame
	}

	status, data := g.resumeFrame(g.playerStatuses, socketID)

	g.sendTo(socketID, PlayerReconnected{
		Type:            "PlayerReconnected",
		GameID:          g.id,
		Status:          status,
		Data:            data,
		Username:        player.Username,
		Points:          player.Points,
		CurrentQuestion: g.questionProgress(),
	})
	g.broadcastTotalPlayers()

	logf(g.cfg, "GAMES: Player reconnected to game %s", g.inviteCode)
}

func (g *Game) handleManagerReconnect(socketID, clientID string) {
	if g.managerClientID != clientID {
		g.sendTo(socketID, resetMsg("Game not found"))
		return
	}

	if g.managerConnected {
		g.sendTo(socketID, resetMsg("Manager already connected"))
		return
	}

	oldID := g.managerSocketID
	g.managerSocketID = socketID
	g.managerConnected = true

	g.registry.UnbindManager(oldID)
	g.registry.BindManager(socketID, g.id)

	status, data := g.managerResumeFrame()

	g.sendTo(socketID, ManagerReconnected{
		Type:            "ManagerReconnected",
		GameID:          g.id,
		Status:          status,
		Data:            data,
		Players:         clonePlayers(g.players),
		CurrentQuestion: g.questionProgress(),
	})
	g.broadcastTotalPlayers()

	logf(g.cfg, "GAMES: Manager reconnected to game %s", g.inviteCode)
}

// resumeFrame picks the frame a returning player should render: its
// own last status, else the last broadcast, else a default Wait.
func (g *Game) resumeFrame(statuses map[string]statusFrame, socketID string) (GameStatus, any) {
	if frame, ok := statuses[socketID]; ok {
		return frame.status, frame.data
	}
	if g.lastBroadcastStatus != nil {
		return g.lastBroadcastStatus.status, g.lastBroadcastStatus.data
	}
	return StatusWait, map[string]any{"text": "Waiting for players"}
}

func (g *Game) managerResumeFrame() (GameStatus, any) {
	if g.managerStatus != nil {
		return g.managerStatus.status, g.managerStatus.data
	}
	if g.lastBroadcastStatus != nil {
		return g.lastBroadcastStatus.status, g.lastBroadcastStatus.data
	}
	return StatusWait, map[string]any{"text": "Waiting for players"}
}

// ─── Helpers ─────────────────────────────────────────────────────

func clonePlayers(players []Player) []Player {
	out := make([]Player, len(players))
	copy(out, players)
	return out
}

func removePlayer(players []Player, playerID string) []Player {
	dst := players[:0]
	for _, p := range players {
		if p.ID == playerID {
			continue
		}
		dst = append(dst, p)
	}
	return dst
}

func topN(players []Player, n int) []Player {
	if len(players) < n {
		n = len(players)
	}
	return clonePlayers(players[:n])
}

