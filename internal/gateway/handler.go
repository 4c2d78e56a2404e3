// Package gateway is the websocket transport: it upgrades connections,
// decodes client intents, and dispatches them to the room registry and game
// manager.
package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"talkomatic/internal/delta"
	"talkomatic/internal/game"
	"talkomatic/internal/ratelimit"
	"talkomatic/internal/room"
	"talkomatic/pkg/interfaces"
	"talkomatic/pkg/types"
)

const (
	readDeadline   = 60 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler owns the websocket endpoint and the inbound event dispatch.
type Handler struct {
	registry  *Registry
	rooms     *room.Registry
	games     *game.Manager
	limiter   *ratelimit.Manager
	publisher interfaces.Publisher
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, rooms *room.Registry, games *game.Manager, limiter *ratelimit.Manager, publisher interfaces.Publisher) *Handler {
	return &Handler{
		registry:  registry,
		rooms:     rooms,
		games:     games,
		limiter:   limiter,
		publisher: publisher,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read loop.
// A fresh connection gets a server-assigned user ID; a reconnecting client
// may resume its identity by passing the ID from its earlier "connected"
// frame as the user_id query parameter, which displaces any stale connection
// still registered under that ID.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = uuid.New().String()
	} else if _, err := uuid.Parse(userID); err != nil {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, userID)
	h.registry.Register(conn)
	log.Printf("Client connected: user=%s remote=%s", conn.UserID(), r.RemoteAddr)

	if err := conn.Send("connected", map[string]string{"userId": conn.UserID()}); err != nil {
		log.Printf("Failed to send connected frame to %s: %v", conn.UserID(), err)
	}

	h.readLoop(conn)
	h.disconnect(conn)
}

func (h *Handler) readLoop(conn *Connection) {
	conn.conn.SetReadLimit(maxMessageSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Unexpected close from user %s: %v", conn.UserID(), err)
			}
			return
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(readDeadline))

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_ENVELOPE", "malformed message"))
			continue
		}
		h.dispatch(conn, env)
	}
}

// disconnect releases every association the connection holds: room seat, game
// seat, spectator entries, rate-limit bucket, and the connection index. A
// connection displaced by a reconnect skips the user-level cleanup; the user
// lives on under the new connection.
func (h *Handler) disconnect(conn *Connection) {
	if current, ok := h.registry.UserConnection(conn.UserID()); ok && current == conn {
		h.rooms.LeaveCurrentRoom(conn.UserID())
		h.games.ReleaseUser(conn.UserID())
		h.limiter.Remove(conn.UserID())
	}
	h.registry.Unregister(conn)
	_ = conn.Close()
	log.Printf("Client disconnected: user=%s", conn.UserID())
}

func (h *Handler) dispatch(conn *Connection, env envelope) {
	switch env.Event {
	case "join room":
		h.handleJoinRoom(conn, env.Data)
	case "leave room":
		h.handleLeaveRoom(conn)
	case "chat update":
		h.handleChatUpdate(conn, env.Data)
	case "typing":
		h.handleTyping(conn, env.Data)
	case "create game":
		h.handleCreateGame(conn, env.Data)
	case "join game":
		h.handleJoinGame(conn, env.Data)
	case "game move":
		h.handleGameMove(conn, env.Data)
	case "reset game":
		h.handleResetGame(conn, env.Data)
	case "leave game":
		h.handleLeaveGame(conn, env.Data)
	case "spectate game":
		h.handleSpectate(conn, env.Data, true)
	case "stop spectating":
		h.handleSpectate(conn, env.Data, false)
	default:
		h.sendError(conn, types.NewError(types.KindInvalidInput, "UNKNOWN_EVENT", "unknown event: "+env.Event))
	}
}

func (h *Handler) handleJoinRoom(conn *Connection, data json.RawMessage) {
	var req struct {
		RoomID     string `json:"roomId"`
		Username   string `json:"username"`
		Location   string `json:"location"`
		AccessCode string `json:"accessCode"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_PAYLOAD", "malformed join room payload"))
		return
	}

	intent := room.JoinIntent{
		UserID:   conn.UserID(),
		Username: req.Username,
		Location: req.Location,
	}
	view, err := h.rooms.JoinRoom(req.RoomID, intent, req.AccessCode)
	if err != nil {
		h.sendError(conn, err)
		return
	}

	conn.SetIdentity(req.Username, req.Location)
	h.registry.SetRoom(conn, req.RoomID)

	if err := conn.Send("room joined", view); err != nil {
		log.Printf("Failed to send room joined to %s: %v", conn.UserID(), err)
	}
	// Running games are replayed to the joiner so mid-game arrival works.
	for _, gv := range h.games.GamesInRoom(req.RoomID) {
		if err := conn.Send("game state", gv); err != nil {
			break
		}
	}
}

func (h *Handler) handleLeaveRoom(conn *Connection) {
	roomID := conn.RoomID()
	if roomID == "" {
		return
	}
	h.games.ReleaseUser(conn.UserID())
	h.rooms.LeaveRoom(roomID, conn.UserID())
	h.registry.SetRoom(conn, "")
	if err := conn.Send("room left", map[string]string{"roomId": roomID}); err != nil {
		log.Printf("Failed to send room left to %s: %v", conn.UserID(), err)
	}
}

func (h *Handler) handleChatUpdate(conn *Connection, data json.RawMessage) {
	roomID := conn.RoomID()
	if roomID == "" {
		h.sendError(conn, types.NewError(types.KindStateViolation, "NOT_IN_ROOM", "join a room first"))
		return
	}
	if !h.limiter.Allow(conn.UserID()) {
		h.sendError(conn, types.NewError(types.KindConflict, "RATE_LIMITED", "slow down"))
		return
	}

	var req struct {
		Diff delta.Delta `json:"diff"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_PAYLOAD", "malformed chat update payload"))
		return
	}

	if _, err := h.rooms.ApplyTextUpdate(roomID, conn.UserID(), req.Diff); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleTyping(conn *Connection, data json.RawMessage) {
	roomID := conn.RoomID()
	if roomID == "" {
		return
	}
	var req struct {
		IsTyping bool `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if err := h.publisher.Publish(types.Event{
		RoomID:  roomID,
		Exclude: conn.UserID(),
		Name:    "typing",
		Payload: map[string]interface{}{
			"userId":   conn.UserID(),
			"username": conn.Username(),
			"isTyping": req.IsTyping,
		},
	}); err != nil {
		log.Printf("Failed to publish typing for %s: %v", conn.UserID(), err)
	}
}

func (h *Handler) handleCreateGame(conn *Connection, data json.RawMessage) {
	roomID := conn.RoomID()
	if roomID == "" {
		h.sendError(conn, types.NewError(types.KindStateViolation, "NOT_IN_ROOM", "join a room first"))
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_PAYLOAD", "malformed create game payload"))
		return
	}
	if req.Type == "" {
		req.Type = types.GameTypeTicTacToe
	}

	if _, err := h.games.CreateGame(roomID, req.Type, conn.UserID(), conn.Username()); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleJoinGame(conn *Connection, data json.RawMessage) {
	gameID, ok := h.gameID(conn, data)
	if !ok {
		return
	}
	if _, err := h.games.JoinGame(gameID, conn.UserID(), conn.Username()); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleGameMove(conn *Connection, data json.RawMessage) {
	var req struct {
		GameID   string `json:"gameId"`
		Position int    `json:"position"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_PAYLOAD", "malformed game move payload"))
		return
	}
	if _, err := h.games.MakeMove(req.GameID, conn.UserID(), req.Position); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleResetGame(conn *Connection, data json.RawMessage) {
	gameID, ok := h.gameID(conn, data)
	if !ok {
		return
	}
	if _, err := h.games.ResetGame(gameID); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleLeaveGame(conn *Connection, data json.RawMessage) {
	gameID, ok := h.gameID(conn, data)
	if !ok {
		return
	}
	if err := h.games.LeaveGame(gameID, conn.UserID()); err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) handleSpectate(conn *Connection, data json.RawMessage, spectate bool) {
	gameID, ok := h.gameID(conn, data)
	if !ok {
		return
	}
	var err error
	if spectate {
		_, err = h.games.AddSpectator(gameID, conn.UserID())
	} else {
		_, err = h.games.RemoveSpectator(gameID, conn.UserID())
	}
	if err != nil {
		h.sendError(conn, err)
	}
}

func (h *Handler) gameID(conn *Connection, data json.RawMessage) (string, bool) {
	var req struct {
		GameID string `json:"gameId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		h.sendError(conn, types.NewError(types.KindInvalidInput, "BAD_PAYLOAD", "missing gameId"))
		return "", false
	}
	return req.GameID, true
}

// sendError writes an error frame. Structured errors keep their code; anything
// else is reported as internal.
func (h *Handler) sendError(conn *Connection, err error) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.NewError(types.KindConflict, "INTERNAL", "internal error")
		log.Printf("Unstructured error for user %s: %v", conn.UserID(), err)
	}
	if sendErr := conn.Send("error", map[string]interface{}{
		"error": map[string]string{
			"code":    typed.Code,
			"message": typed.Message,
		},
	}); sendErr != nil {
		log.Printf("Failed to send error frame to %s: %v", conn.UserID(), sendErr)
	}
}
