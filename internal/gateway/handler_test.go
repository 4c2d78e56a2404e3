package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"talkomatic/internal/game"
	"talkomatic/internal/hub"
	"talkomatic/internal/ratelimit"
	"talkomatic/internal/room"
	"talkomatic/pkg/types"
)

// testServer wires a real registry, game manager, hub, and handler behind an
// httptest server.
type testServer struct {
	server  *httptest.Server
	rooms   *room.Registry
	games   *game.Manager
	hub     *hub.Hub
	limiter *ratelimit.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	connections := NewRegistry()
	h := hub.NewHub(connections)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Hub start failed: %v", err)
	}

	rooms := room.NewRegistry(room.Config{
		MaxMembers:     5,
		MaxTextLength:  5000,
		EmptyRoomGrace: 15 * time.Second,
	}, h, nil)
	games := game.NewManager(30*time.Minute, h, nil)
	limiter := ratelimit.NewManager(rate.Limit(100), 100, time.Minute)

	handler := NewHandler(connections, rooms, games, limiter, h)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))

	t.Cleanup(func() {
		server.Close()
		limiter.Stop()
		_ = h.Stop()
	})

	return &testServer{server: server, rooms: rooms, games: games, hub: h, limiter: limiter}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testServer) dialAs(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial as %s failed: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := conn.WriteJSON(map[string]json.RawMessage{
		"event": json.RawMessage(`"` + event + `"`),
		"data":  payload,
	}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

// readUntil reads frames until one matches the wanted event, failing the test
// on timeout. Interleaved broadcasts are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON while waiting for %q failed: %v", event, err)
		}
		if f.Event == event {
			return f
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %q", event)
		}
	}
}

func createRoom(t *testing.T, ts *testServer) string {
	t.Helper()
	summary, err := ts.rooms.CreateRoom(context.Background(), room.RoomConfig{
		Name: "lounge",
		Type: types.RoomTypePublic,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	return summary.ID
}

func TestConnectAssignsUserID(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	f := readUntil(t, conn, "connected")
	var data struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if data.UserID == "" {
		t.Errorf("Expected a server-assigned user id")
	}
}

func TestReconnectResumesIdentity(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	first := ts.dial(t)
	f := readUntil(t, first, "connected")
	var data struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	send(t, first, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	readUntil(t, first, "room joined")

	// A reconnect presenting the earlier identity takes over the user ID
	// and the stale connection is closed out from under it.
	second := ts.dialAs(t, data.UserID)
	f = readUntil(t, second, "connected")
	var resumed struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(f.Data, &resumed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resumed.UserID != data.UserID {
		t.Errorf("Expected the resumed connection to keep user %s, got %s", data.UserID, resumed.UserID)
	}

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := first.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Errorf("Expected the stale connection to be closed, reads still pending: %v", err)
		}
		break
	}

	// The stale connection's teardown must not evict the resumed user
	// from their room. The close above means the server-side read loop has
	// ended; give its cleanup a moment to run before checking.
	time.Sleep(200 * time.Millisecond)
	if got, ok := ts.rooms.RoomOf(data.UserID); !ok || got != roomID {
		t.Errorf("Expected user %s to remain in room %s after the reconnect, got %q %v", data.UserID, roomID, got, ok)
	}
}

func TestRejectsMalformedUserID(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "?user_id=not-a-uuid"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected the handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected a 400 response, got %+v", resp)
	}
}

func TestJoinRoomRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	conn := ts.dial(t)
	readUntil(t, conn, "connected")

	send(t, conn, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	f := readUntil(t, conn, "room joined")

	var view types.RoomView
	if err := json.Unmarshal(f.Data, &view); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if view.ID != roomID || len(view.Members) != 1 || view.Members[0].Username != "Ada" {
		t.Errorf("Unexpected room view: %+v", view)
	}
}

func TestJoinRoomBroadcasts(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	first := ts.dial(t)
	readUntil(t, first, "connected")
	send(t, first, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	readUntil(t, first, "room joined")

	second := ts.dial(t)
	readUntil(t, second, "connected")
	send(t, second, "join room", map[string]string{"roomId": roomID, "username": "Bea"})
	readUntil(t, second, "room joined")

	f := readUntil(t, first, "user joined")
	var joined types.ParticipantView
	if err := json.Unmarshal(f.Data, &joined); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if joined.Username != "Bea" {
		t.Errorf("Expected Bea announced, got %q", joined.Username)
	}
}

func TestChatUpdateReachesOthersOnly(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	sender := ts.dial(t)
	readUntil(t, sender, "connected")
	send(t, sender, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	readUntil(t, sender, "room joined")

	receiver := ts.dial(t)
	readUntil(t, receiver, "connected")
	send(t, receiver, "join room", map[string]string{"roomId": roomID, "username": "Bea"})
	readUntil(t, receiver, "room joined")

	send(t, sender, "chat update", map[string]interface{}{
		"diff": map[string]interface{}{"type": "add", "index": 0, "text": "hello"},
	})

	f := readUntil(t, receiver, "chat update")
	var update struct {
		Username string `json:"username"`
		Diff     struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"diff"`
	}
	if err := json.Unmarshal(f.Data, &update); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if update.Username != "Ada" || update.Diff.Type != "add" || update.Diff.Text != "hello" {
		t.Errorf("Unexpected chat update: %+v", update)
	}
}

func TestChatUpdateOutsideRoomFails(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t)
	readUntil(t, conn, "connected")

	send(t, conn, "chat update", map[string]interface{}{
		"diff": map[string]interface{}{"type": "add", "text": "x"},
	})
	f := readUntil(t, conn, "error")
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if payload.Error.Code != "NOT_IN_ROOM" {
		t.Errorf("Expected NOT_IN_ROOM, got %q", payload.Error.Code)
	}
}

func TestGameFlowOverWire(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	conn := ts.dial(t)
	readUntil(t, conn, "connected")
	send(t, conn, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	readUntil(t, conn, "room joined")

	send(t, conn, "create game", map[string]string{"type": types.GameTypeTicTacToe})
	f := readUntil(t, conn, "game state")

	var view types.GameView
	if err := json.Unmarshal(f.Data, &view); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if view.State != types.GameStateWaiting || view.RoomID != roomID {
		t.Errorf("Unexpected game view: %+v", view)
	}

	// A move before the game starts is rejected over the wire.
	send(t, conn, "game move", map[string]interface{}{"gameId": view.GameID, "position": 0})
	errFrame := readUntil(t, conn, "error")
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(errFrame.Data, &payload); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if payload.Error.Code != "GAME_NOT_PLAYING" {
		t.Errorf("Expected GAME_NOT_PLAYING, got %q", payload.Error.Code)
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	ts := newTestServer(t)
	roomID := createRoom(t, ts)

	stayer := ts.dial(t)
	readUntil(t, stayer, "connected")
	send(t, stayer, "join room", map[string]string{"roomId": roomID, "username": "Ada"})
	readUntil(t, stayer, "room joined")

	leaver := ts.dial(t)
	readUntil(t, leaver, "connected")
	send(t, leaver, "join room", map[string]string{"roomId": roomID, "username": "Bea"})
	readUntil(t, leaver, "room joined")
	readUntil(t, stayer, "user joined")

	_ = leaver.Close()

	f := readUntil(t, stayer, "user left")
	var left struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(f.Data, &left); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if left.UserID == "" {
		t.Errorf("Expected the leaver identified in the broadcast")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := ts.rooms.Snapshot(roomID)
		if err == nil && len(view.Members) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Expected the room membership reduced after disconnect")
}

func TestUnknownEventRejected(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t)
	readUntil(t, conn, "connected")

	send(t, conn, "dance", map[string]string{})
	f := readUntil(t, conn, "error")
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if payload.Error.Code != "UNKNOWN_EVENT" {
		t.Errorf("Expected UNKNOWN_EVENT, got %q", payload.Error.Code)
	}
}
