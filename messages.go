package main

import (
	"encoding/json"
	"fmt"
)

// Wire types. Every frame in both directions is a JSON object carrying a
// "type" discriminant; remaining fields are message-specific.

// Player is a roster entry in a game session. The id is the current
// socket id and changes across reconnects; client_id is the stable
// browser-scoped identity.
type Player struct {
	ID        string  `json:"id"`
	ClientID  string  `json:"client_id"`
	Connected bool    `json:"connected"`
	Username  string  `json:"username"`
	Points    float64 `json:"points"`
}

// Answer is a recorded submission for the current round. Points are
// computed at submission time and applied at round end if correct.
type Answer struct {
	PlayerID string  `json:"player_id"`
	AnswerID int     `json:"answer_id"`
	Points   float64 `json:"points"`
}

type Question struct {
	Question    string   `json:"question"`
	Image       *string  `json:"image"`
	Video       *string  `json:"video"`
	Audio       *string  `json:"audio"`
	AnswerImage *string  `json:"answer-image"`
	Answers     []string `json:"answers"`
	Solution    int      `json:"solution"`
	Cooldown    int      `json:"cooldown"`
	Time        int      `json:"time"`
}

type Quiz struct {
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
}

// QuizWithId is a quiz plus its catalog id, derived from the quiz
// file stem on load.
type QuizWithId struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
}

func (q QuizWithId) quiz() Quiz {
	return Quiz{Subject: q.Subject, Questions: q.Questions}
}

type GameConfig struct {
	ManagerPassword string   `json:"managerPassword"`
	ManagerEmails   []string `json:"managerEmails"`
}

type QuestionProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// GameStatus names the screen every participant should currently render.
type GameStatus string

const (
	StatusShowRoom        GameStatus = "SHOW_ROOM"
	StatusShowStart       GameStatus = "SHOW_START"
	StatusShowPrepared    GameStatus = "SHOW_PREPARED"
	StatusShowQuestion    GameStatus = "SHOW_QUESTION"
	StatusSelectAnswer    GameStatus = "SELECT_ANSWER"
	StatusShowResult      GameStatus = "SHOW_RESULT"
	StatusShowResponses   GameStatus = "SHOW_RESPONSES"
	StatusShowLeaderboard GameStatus = "SHOW_LEADERBOARD"
	StatusFinished        GameStatus = "FINISHED"
	StatusWait            GameStatus = "WAIT"
)

// ClientMsg covers every message a client may send. Unused fields are
// omitted on the wire, so a single struct serves all variants.
type ClientMsg struct {
	Type       string `json:"type"`
	Password   string `json:"password,omitempty"`    // ManagerAuth
	QuizID     string `json:"quiz_id,omitempty"`     // CreateGame
	GameID     string `json:"game_id,omitempty"`     // in-session messages
	Username   string `json:"username,omitempty"`    // PlayerLogin
	InviteCode string `json:"invite_code,omitempty"` // PlayerJoin
	AnswerKey  *int   `json:"answer_key,omitempty"`  // SelectedAnswer
	PlayerID   string `json:"player_id,omitempty"`   // KickPlayer
}

// Client message type discriminants.
const (
	MsgManagerAuth      = "ManagerAuth"
	MsgCreateGame       = "CreateGame"
	MsgManagerReconnect = "ManagerReconnect"
	MsgStartGame        = "StartGame"
	MsgAbortQuiz        = "AbortQuiz"
	MsgNextQuestion     = "NextQuestion"
	MsgShowLeaderboard  = "ShowLeaderboard"
	MsgKickPlayer       = "KickPlayer"
	MsgPlayerJoin       = "PlayerJoin"
	MsgPlayerLogin      = "PlayerLogin"
	MsgPlayerReconnect  = "PlayerReconnect"
	MsgSelectedAnswer   = "SelectedAnswer"
)

// Server messages, one struct per variant.

// GameStatusMsg drives the client's screen. Data is status-specific.
type GameStatusMsg struct {
	Type   string     `json:"type"`
	Status GameStatus `json:"status"`
	Data   any        `json:"data"`
}

type SuccessRoom struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
}

type SuccessJoin struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
}

type TotalPlayers struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type StartCooldown struct {
	Type string `json:"type"`
}

type CooldownMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ResetMsg tells the client to abandon its current view and return to
// the lobby.
type ResetMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type UpdateQuestion struct {
	Type    string `json:"type"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

type PlayerAnswerMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type QuizList struct {
	Type    string       `json:"type"`
	Quizzes []QuizWithId `json:"quizzes"`
}

type GameCreated struct {
	Type       string `json:"type"`
	GameID     string `json:"game_id"`
	InviteCode string `json:"invite_code"`
}

type ManagerReconnected struct {
	Type            string           `json:"type"`
	GameID          string           `json:"game_id"`
	Status          GameStatus       `json:"status"`
	Data            any              `json:"data"`
	Players         []Player         `json:"players"`
	CurrentQuestion QuestionProgress `json:"current_question"`
}

type NewPlayer struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

type RemovePlayer struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

type PlayerKicked struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

type PlayerReconnected struct {
	Type            string           `json:"type"`
	GameID          string           `json:"game_id"`
	Status          GameStatus       `json:"status"`
	Data            any              `json:"data"`
	Username        string           `json:"username"`
	Points          float64          `json:"points"`
	CurrentQuestion QuestionProgress `json:"current_question"`
}

// UpdateLeaderboard is part of the protocol but currently never
// emitted by the server; retained for wire compatibility.
type UpdateLeaderboard struct {
	Type        string   `json:"type"`
	Leaderboard []Player `json:"leaderboard"`
}

func errorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: "ErrorMessage", Message: message}
}

func resetMsg(message string) ResetMsg {
	return ResetMsg{Type: "Reset", Message: message}
}

func statusMsg(status GameStatus, data any) GameStatusMsg {
	return GameStatusMsg{Type: "GameStatus", Status: status, Data: data}
}

// decodeServerMsg dispatches a server frame to its concrete type. The
// server itself only encodes; this is the client half of the codec,
// used by tests and kept for embedding clients.
func decodeServerMsg(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	decode := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}

	switch envelope.Type {
	case "GameStatus":
		return decode(&GameStatusMsg{})
	case "SuccessRoom":
		return decode(&SuccessRoom{})
	case "SuccessJoin":
		return decode(&SuccessJoin{})
	case "TotalPlayers":
		return decode(&TotalPlayers{})
	case "ErrorMessage":
		return decode(&ErrorMessage{})
	case "StartCooldown":
		return decode(&StartCooldown{})
	case "Cooldown":
		return decode(&CooldownMsg{})
	case "Reset":
		return decode(&ResetMsg{})
	case "UpdateQuestion":
		return decode(&UpdateQuestion{})
	case "PlayerAnswer":
		return decode(&PlayerAnswerMsg{})
	case "QuizList":
		return decode(&QuizList{})
	case "GameCreated":
		return decode(&GameCreated{})
	case "ManagerReconnected":
		return decode(&ManagerReconnected{})
	case "NewPlayer":
		return decode(&NewPlayer{})
	case "RemovePlayer":
		return decode(&RemovePlayer{})
	case "PlayerKicked":
		return decode(&PlayerKicked{})
	case "PlayerReconnected":
		return decode(&PlayerReconnected{})
	case "UpdateLeaderboard":
		return decode(&UpdateLeaderboard{})
	default:
		return nil, fmt.Errorf("unknown server message type: %q", envelope.Type)
	}
}
