// Package api is the HTTP surface: room management for the lobby page,
// health, and metrics. All realtime traffic goes over the websocket gateway
// instead.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"talkomatic/internal/metrics"
	"talkomatic/internal/room"
	"talkomatic/pkg/interfaces"
	"talkomatic/pkg/types"
)

// Server exposes the REST endpoints. No business logic lives here; it
// translates HTTP to registry and store calls.
type Server struct {
	rooms  *room.Registry
	store  interfaces.Store // may be nil when persistence is disabled
	router *mux.Router
}

// NewServer builds the router with CORS and JSON middleware on every route.
func NewServer(rooms *room.Registry, store interfaces.Store) *Server {
	s := &Server{
		rooms:  rooms,
		store:  store,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.jsonMiddleware)
	apiRouter.HandleFunc("/rooms", s.createRoom).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/rooms", s.listRooms).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/{id}", s.getRoom).Methods(http.MethodGet)
	apiRouter.HandleFunc("/rooms/{id}", s.closeRoom).Methods(http.MethodDelete, http.MethodOptions)
	apiRouter.HandleFunc("/games/recent", s.recentGames).Methods(http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type createRoomRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Layout     string `json:"layout"`
	AccessCode string `json:"accessCode"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// createRoom handles POST /api/rooms.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, types.NewError(types.KindInvalidInput, "BAD_JSON", "invalid JSON body"))
		return
	}
	if req.Type == "" {
		req.Type = types.RoomTypePublic
	}

	summary, err := s.rooms.CreateRoom(r.Context(), room.RoomConfig{
		Name:       req.Name,
		Type:       req.Type,
		Layout:     req.Layout,
		AccessCode: req.AccessCode,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.encode(w, map[string]interface{}{"room": summary})
}

// listRooms handles GET /api/rooms, the lobby listing.
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	summaries := s.rooms.ListRooms()
	s.encode(w, map[string]interface{}{"rooms": summaries})
}

// getRoom handles GET /api/rooms/{id} with the full membership snapshot.
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	view, err := s.rooms.Snapshot(roomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.encode(w, map[string]interface{}{"room": view})
}

// closeRoom handles DELETE /api/rooms/{id}.
func (s *Server) closeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	if err := s.rooms.CloseRoom(r.Context(), roomID); err != nil {
		s.sendError(w, err)
		return
	}
	s.encode(w, map[string]string{"message": "room closed"})
}

// recentGames handles GET /api/games/recent?limit=N.
func (s *Server) recentGames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.encode(w, map[string]interface{}{"results": []*types.GameResult{}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			s.sendError(w, types.NewError(types.KindInvalidInput, "BAD_LIMIT", "limit must be 1-100"))
			return
		}
		limit = n
	}

	results, err := s.store.RecentGameResults(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to load recent game results: %v", err)
		s.sendServerError(w, "failed to load results")
		return
	}
	if results == nil {
		results = []*types.GameResult{}
	}
	s.encode(w, map[string]interface{}{"results": results})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Rooms     int       `json:"rooms"`
}

// healthCheck handles GET /health, returning 503 when a component is down.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.store == nil {
		dbStatus = "disabled"
	} else if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	s.encode(w, healthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Rooms:     len(s.rooms.ListRooms()),
	})
}

// sendError maps the error taxonomy onto HTTP status codes.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		s.sendServerError(w, "internal error")
		return
	}

	var status int
	switch typed.Kind {
	case types.KindNotFound:
		status = http.StatusNotFound
	case types.KindInvalidInput:
		status = http.StatusBadRequest
	case types.KindForbidden:
		status = http.StatusForbidden
	case types.KindConflict, types.KindStateViolation:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	var resp errorResponse
	resp.Error.Code = typed.Code
	resp.Error.Message = typed.Message
	w.WriteHeader(status)
	s.encode(w, resp)
}

func (s *Server) sendServerError(w http.ResponseWriter, message string) {
	var resp errorResponse
	resp.Error.Code = "INTERNAL"
	resp.Error.Message = message
	w.WriteHeader(http.StatusInternalServerError)
	s.encode(w, resp)
}

func (s *Server) encode(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
