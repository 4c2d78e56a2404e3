package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"talkomatic/internal/room"
	"talkomatic/pkg/types"
)

// fakeStore implements interfaces.Store in memory for handler tests.
type fakeStore struct {
	results   []*types.GameResult
	healthErr error
}

func (s *fakeStore) SaveRoom(context.Context, *types.RoomRecord) error      { return nil }
func (s *fakeStore) DeleteRoom(context.Context, string) error               { return nil }
func (s *fakeStore) ListRooms(context.Context) ([]*types.RoomRecord, error) { return nil, nil }
func (s *fakeStore) SaveGameResult(_ context.Context, r *types.GameResult) error {
	s.results = append(s.results, r)
	return nil
}
func (s *fakeStore) RecentGameResults(_ context.Context, limit int) ([]*types.GameResult, error) {
	if limit > len(s.results) {
		limit = len(s.results)
	}
	return s.results[:limit], nil
}
func (s *fakeStore) HealthCheck(context.Context) error { return s.healthErr }
func (s *fakeStore) Close() error                      { return nil }

func newTestServer(t *testing.T, store *fakeStore) (*Server, *room.Registry) {
	t.Helper()
	rooms := room.NewRegistry(room.Config{
		MaxMembers:     5,
		MaxTextLength:  5000,
		EmptyRoomGrace: 15 * time.Second,
	}, nil, nil)
	if store == nil {
		return NewServer(rooms, nil), rooms
	}
	return NewServer(rooms, store), rooms
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreateRoomEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/rooms", map[string]string{
		"name": "lounge",
		"type": types.RoomTypePublic,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Room types.RoomSummary `json:"room"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp.Room.ID == "" || resp.Room.Name != "lounge" {
		t.Errorf("Unexpected room summary: %+v", resp.Room)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected JSON content type, got %q", got)
	}
}

func TestCreateRoomValidationError(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/rooms", map[string]string{
		"name": "",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp.Error.Code != "INVALID_ROOM_NAME" {
		t.Errorf("Expected INVALID_ROOM_NAME, got %q", resp.Error.Code)
	}
}

func TestGetRoomEndpoint(t *testing.T) {
	s, rooms := newTestServer(t, nil)

	summary, err := rooms.CreateRoom(context.Background(), room.RoomConfig{
		Name: "vault", Type: types.RoomTypePrivate, AccessCode: "123456",
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/rooms/"+summary.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for an existing room, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/rooms/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing room, got %d", rec.Code)
	}
}

func TestListRoomsEndpoint(t *testing.T) {
	s, rooms := newTestServer(t, nil)
	for _, name := range []string{"one", "two"} {
		if _, err := rooms.CreateRoom(context.Background(), room.RoomConfig{Name: name, Type: types.RoomTypePublic}); err != nil {
			t.Fatalf("CreateRoom failed: %v", err)
		}
	}

	rec := doJSON(t, s, http.MethodGet, "/api/rooms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Rooms []types.RoomSummary `json:"rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(resp.Rooms) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(resp.Rooms))
	}
}

func TestCloseRoomEndpoint(t *testing.T) {
	s, rooms := newTestServer(t, nil)
	summary, err := rooms.CreateRoom(context.Background(), room.RoomConfig{Name: "lounge", Type: types.RoomTypePublic})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	rec := doJSON(t, s, http.MethodDelete, "/api/rooms/"+summary.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodDelete, "/api/rooms/"+summary.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on double delete, got %d", rec.Code)
	}
}

func TestRecentGamesEndpoint(t *testing.T) {
	store := &fakeStore{results: []*types.GameResult{
		{ID: "a", GameID: "g1", Winner: types.SymbolX},
		{ID: "b", GameID: "g1", Winner: types.DrawMarker},
	}}
	s, _ := newTestServer(t, store)

	rec := doJSON(t, s, http.MethodGet, "/api/games/recent?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Results []types.GameResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "a" {
		t.Errorf("Unexpected results: %+v", resp.Results)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/games/recent?limit=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "healthy" {
		t.Errorf("Unexpected health response: %+v", resp)
	}

	broken := &fakeStore{healthErr: errors.New("disk gone")}
	s, _ = newTestServer(t, broken)
	rec = doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when the store is down, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Errorf("Expected metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
