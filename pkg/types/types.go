package types

import (
	"time"
)

// Room visibility types accepted at creation time.
const (
	RoomTypePublic      = "public"
	RoomTypeSemiPrivate = "semi-private"
	RoomTypePrivate     = "private"
)

// Game session states.
const (
	GameStateWaiting  = "waiting"
	GameStatePlaying  = "playing"
	GameStateFinished = "finished"
)

// Supported game type discriminators.
const (
	GameTypeTicTacToe = "tic-tac-toe"
)

// Player symbols for tic-tac-toe.
const (
	SymbolX = "X"
	SymbolO = "O"
)

// DrawMarker is reported as the winner when a game ends with no winner.
const DrawMarker = "draw"

// ParticipantView is one room member as reported to clients, including the
// current content of their live text buffer.
type ParticipantView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Location string `json:"location"`
	Text     string `json:"text"`
}

// RoomView is the full current state of a room, used to answer a fresh join
// and for "room update" broadcasts. Members appear in join order.
type RoomView struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Layout    string            `json:"layout"`
	Members   []ParticipantView `json:"users"`
	MaxUsers  int               `json:"maxUsers"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RoomSummary is the lobby listing entry for a room. Access codes are never
// exposed; only their presence is.
type RoomSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Layout        string    `json:"layout"`
	MemberCount   int       `json:"userCount"`
	MaxUsers      int       `json:"maxUsers"`
	HasAccessCode bool      `json:"hasAccessCode"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GamePlayer is one seated player in a game session.
type GamePlayer struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Symbol   string `json:"symbol"`
	Score    int    `json:"score"`
}

// GameMove is one entry in a session's append-only move log.
type GameMove struct {
	UserID   string    `json:"userId"`
	Symbol   string    `json:"symbol"`
	Position int       `json:"position"`
	PlayedAt time.Time `json:"playedAt"`
}

// GameView is the full session state broadcast after every successful game
// operation. Board cells hold a symbol or "" when empty.
type GameView struct {
	GameID         string       `json:"gameId"`
	RoomID         string       `json:"roomId"`
	Type           string       `json:"type"`
	State          string       `json:"state"`
	Players        []GamePlayer `json:"players"`
	Board          []string     `json:"board"`
	CurrentTurn    string       `json:"currentTurn,omitempty"` // userID of the player to move
	Winner         string       `json:"winner,omitempty"`      // symbol or DrawMarker
	WinningLine    []int        `json:"winningLine,omitempty"`
	MoveHistory    []GameMove   `json:"moveHistory"`
	SpectatorCount int          `json:"spectatorCount"`
	GameNumber     int          `json:"gameNumber"`
}

// GameResult is the record persisted when a game reaches a terminal state.
type GameResult struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	RoomID     string    `json:"roomId"`
	GameType   string    `json:"gameType"`
	Winner     string    `json:"winner"` // symbol or DrawMarker
	GameNumber int       `json:"gameNumber"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RoomRecord is the persisted form of a room, used to rebuild the lobby
// listing across restarts. Live membership and text buffers are never stored.
type RoomRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Layout     string    `json:"layout"`
	AccessCode string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event is one outbound notification addressed to a room. Exclude names a
// user ID to skip during fanout (the sender of a chat update).
type Event struct {
	RoomID  string
	Exclude string
	Name    string
	Payload interface{}
}
