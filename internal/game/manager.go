package game

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"talkomatic/internal/metrics"
	"talkomatic/pkg/interfaces"
	"talkomatic/pkg/types"
)

type player struct {
	userID   string
	username string
	symbol   string
	score    int
}

// session is one live game instance. State is mutated only under mu, so
// concurrent moves on different sessions never contend.
type session struct {
	mu sync.Mutex

	id       string
	roomID   string
	gameType string
	state    string

	players            []*player // join order; index 0 created the game
	engine             Engine
	currentPlayerIndex int
	winner             string // symbol or types.DrawMarker, "" while undecided
	winningLine        []int
	moveHistory        []types.GameMove
	spectators         map[string]struct{}

	createdAt    time.Time
	lastActivity time.Time
	gameNumber   int
}

// view builds the full session snapshot. Caller holds s.mu.
func (s *session) view() types.GameView {
	players := make([]types.GamePlayer, len(s.players))
	for i, p := range s.players {
		players[i] = types.GamePlayer{
			UserID:   p.userID,
			Username: p.username,
			Symbol:   p.symbol,
			Score:    p.score,
		}
	}
	moves := make([]types.GameMove, len(s.moveHistory))
	copy(moves, s.moveHistory)

	v := types.GameView{
		GameID:         s.id,
		RoomID:         s.roomID,
		Type:           s.gameType,
		State:          s.state,
		Players:        players,
		Board:          s.engine.Board(),
		Winner:         s.winner,
		WinningLine:    s.winningLine,
		MoveHistory:    moves,
		SpectatorCount: len(s.spectators),
		GameNumber:     s.gameNumber,
	}
	if s.state == types.GameStatePlaying {
		v.CurrentTurn = s.players[s.currentPlayerIndex].userID
	}
	return v
}

// Manager owns every game session and keeps three indices consistent on each
// create, join, and remove: sessions by id, room -> session-id set, and
// player -> session id. It is an explicit object passed to its callers, with
// its lifetime tied to the server process.
type Manager struct {
	mu       sync.RWMutex
	games    map[string]*session
	byRoom   map[string]map[string]struct{}
	byPlayer map[string]string

	idleTimeout time.Duration
	publisher   interfaces.Publisher // may be nil
	store       interfaces.GameStore // may be nil

	now func() time.Time
}

// NewManager creates a game session manager. publisher and store may be nil.
func NewManager(idleTimeout time.Duration, publisher interfaces.Publisher, store interfaces.GameStore) *Manager {
	return &Manager{
		games:       make(map[string]*session),
		byRoom:      make(map[string]map[string]struct{}),
		byPlayer:    make(map[string]string),
		idleTimeout: idleTimeout,
		publisher:   publisher,
		store:       store,
		now:         time.Now,
	}
}

// CreateGame allocates a new session in the waiting state with the creator
// seated as player one (X).
func (m *Manager) CreateGame(roomID, gameType, creatorID, creatorName string) (types.GameView, error) {
	newEngine, ok := engines[gameType]
	if !ok {
		return types.GameView{}, ErrUnknownGameType
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.byPlayer[creatorID]; busy {
		return types.GameView{}, ErrAlreadyInGame
	}

	now := m.now()
	s := &session{
		id:       uuid.New().String(),
		roomID:   roomID,
		gameType: gameType,
		state:    types.GameStateWaiting,
		players: []*player{{
			userID:   creatorID,
			username: creatorName,
			symbol:   types.SymbolX,
		}},
		engine:       newEngine(),
		spectators:   make(map[string]struct{}),
		createdAt:    now,
		lastActivity: now,
		gameNumber:   1,
	}

	m.games[s.id] = s
	if m.byRoom[roomID] == nil {
		m.byRoom[roomID] = make(map[string]struct{})
	}
	m.byRoom[roomID][s.id] = struct{}{}
	m.byPlayer[creatorID] = s.id
	gaugeTransition("", s.state)

	log.Printf("Created game: id=%s type=%s room=%s creator=%s", s.id, gameType, roomID, creatorID)

	view := s.view()
	m.publish(types.Event{RoomID: roomID, Name: "game state", Payload: view})
	return view, nil
}

// JoinGame seats the second player (O) and starts the game.
func (m *Manager) JoinGame(gameID, userID, username string) (types.GameView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return types.GameView{}, ErrGameNotFound
	}
	if _, busy := m.byPlayer[userID]; busy {
		return types.GameView{}, ErrAlreadyInGame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.GameStateWaiting {
		return types.GameView{}, ErrGameNotAccepting
	}
	if len(s.players) >= 2 {
		return types.GameView{}, ErrGameFull
	}

	s.players = append(s.players, &player{
		userID:   userID,
		username: username,
		symbol:   types.SymbolO,
	})
	s.state = types.GameStatePlaying
	s.currentPlayerIndex = 0
	s.lastActivity = m.now()
	m.byPlayer[userID] = gameID
	gaugeTransition(types.GameStateWaiting, s.state)

	log.Printf("User joined game: game=%s user=%s", gameID, userID)

	view := s.view()
	m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
	return view, nil
}

// MakeMove places the mover's symbol, evaluates terminal conditions, and
// returns the resulting session view. A rejected move changes nothing.
func (m *Manager) MakeMove(gameID, userID string, position int) (types.GameView, error) {
	m.mu.RLock()
	s, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return types.GameView{}, ErrGameNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.GameStatePlaying {
		return types.GameView{}, ErrNotPlaying
	}
	mover := s.players[s.currentPlayerIndex]
	if mover.userID != userID {
		return types.GameView{}, ErrNotYourTurn
	}
	if err := s.engine.Place(position, mover.symbol); err != nil {
		return types.GameView{}, err
	}

	now := m.now()
	s.moveHistory = append(s.moveHistory, types.GameMove{
		UserID:   userID,
		Symbol:   mover.symbol,
		Position: position,
		PlayedAt: now,
	})
	s.lastActivity = now

	winner, line, over := s.engine.Terminal()
	switch {
	case over && winner != "":
		s.winner = winner
		s.winningLine = line
		s.state = types.GameStateFinished
		mover.score++
		log.Printf("Game won: game=%s winner=%s line=%v", gameID, winner, line)
		m.recordResult(s)
	case over:
		s.winner = types.DrawMarker
		s.state = types.GameStateFinished
		log.Printf("Game drawn: game=%s", gameID)
		m.recordResult(s)
	default:
		s.currentPlayerIndex = 1 - s.currentPlayerIndex
	}
	if over {
		gaugeTransition(types.GameStatePlaying, types.GameStateFinished)
	}

	view := s.view()
	m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
	return view, nil
}

// ResetGame starts a rematch in place: fresh board and move log, same
// players and scores, next game number. Which player starts alternates on
// the game number's parity.
func (m *Manager) ResetGame(gameID string) (types.GameView, error) {
	m.mu.RLock()
	s, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return types.GameView{}, ErrGameNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.players) < 2 {
		return types.GameView{}, ErrNotEnoughPlayers
	}

	previous := s.state
	s.engine.Reset()
	s.moveHistory = nil
	s.winner = ""
	s.winningLine = nil
	s.gameNumber++
	s.currentPlayerIndex = (s.gameNumber - 1) % 2
	s.state = types.GameStatePlaying
	s.lastActivity = m.now()
	gaugeTransition(previous, s.state)

	log.Printf("Game reset: game=%s number=%d starts=%s", gameID, s.gameNumber, s.players[s.currentPlayerIndex].userID)

	view := s.view()
	m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
	return view, nil
}

// GetGame returns the current session view.
func (m *Manager) GetGame(gameID string) (types.GameView, error) {
	m.mu.RLock()
	s, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return types.GameView{}, ErrGameNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// GamesInRoom returns views of every session scoped to a room.
func (m *Manager) GamesInRoom(roomID string) []types.GameView {
	m.mu.RLock()
	ids := make([]string, 0, len(m.byRoom[roomID]))
	for id := range m.byRoom[roomID] {
		ids = append(ids, id)
	}
	sessions := make([]*session, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.games[id]; ok {
			sessions = append(sessions, s)
		}
	}
	m.mu.RUnlock()

	views := make([]types.GameView, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		views = append(views, s.view())
		s.mu.Unlock()
	}
	return views
}

// AddSpectator registers an observer. Bookkeeping only; the game state
// machine and the idle clock are unaffected.
func (m *Manager) AddSpectator(gameID, userID string) (types.GameView, error) {
	return m.updateSpectator(gameID, userID, true)
}

// RemoveSpectator drops an observer. Removing an absent one is a no-op.
func (m *Manager) RemoveSpectator(gameID, userID string) (types.GameView, error) {
	return m.updateSpectator(gameID, userID, false)
}

func (m *Manager) updateSpectator(gameID, userID string, add bool) (types.GameView, error) {
	m.mu.RLock()
	s, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return types.GameView{}, ErrGameNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.spectators[userID] = struct{}{}
	} else {
		delete(s.spectators, userID)
	}

	view := s.view()
	m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
	return view, nil
}

// LeaveGame releases the user's seat. Leaving a game in progress forfeits
// it: the remaining player wins the round. A session with no players left is
// removed outright.
func (m *Manager) LeaveGame(gameID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return ErrGameNotFound
	}

	s.mu.Lock()
	idx := -1
	for i, p := range s.players {
		if p.userID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Not a seated player; drop any spectator entry and move on.
		delete(s.spectators, userID)
		view := s.view()
		s.mu.Unlock()
		m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
		return nil
	}

	s.players = append(s.players[:idx], s.players[idx+1:]...)
	delete(m.byPlayer, userID)

	if len(s.players) == 0 {
		s.mu.Unlock()
		m.removeLocked(s)
		return nil
	}

	previous := s.state
	if s.state == types.GameStatePlaying {
		remaining := s.players[0]
		remaining.score++
		s.winner = remaining.symbol
		s.winningLine = nil
		s.state = types.GameStateFinished
		log.Printf("Game forfeited: game=%s leaver=%s winner=%s", gameID, userID, remaining.symbol)
		m.recordResult(s)
	} else {
		s.state = types.GameStateFinished
	}
	s.currentPlayerIndex = 0
	gaugeTransition(previous, s.state)

	view := s.view()
	s.mu.Unlock()
	m.publish(types.Event{RoomID: s.roomID, Name: "game state", Payload: view})
	return nil
}

// ReleaseUser tears down every game association a user holds, called on
// transport disconnect. Idempotent.
func (m *Manager) ReleaseUser(userID string) {
	m.mu.RLock()
	gameID, seated := m.byPlayer[userID]
	var spectating []string
	for id, s := range m.games {
		s.mu.Lock()
		if _, ok := s.spectators[userID]; ok {
			spectating = append(spectating, id)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	if seated {
		if err := m.LeaveGame(gameID, userID); err != nil && err != ErrGameNotFound {
			log.Printf("Failed to release user %s from game %s: %v", userID, gameID, err)
		}
	}
	for _, id := range spectating {
		_, _ = m.RemoveSpectator(id, userID)
	}
}

// RemoveGame destroys a session and prunes all three indices.
func (m *Manager) RemoveGame(gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	m.removeLocked(s)
	return nil
}

// removeLocked prunes the session from every index and announces removal.
// Caller holds m.mu.
func (m *Manager) removeLocked(s *session) {
	delete(m.games, s.id)
	if set, ok := m.byRoom[s.roomID]; ok {
		delete(set, s.id)
		if len(set) == 0 {
			delete(m.byRoom, s.roomID)
		}
	}
	s.mu.Lock()
	for _, p := range s.players {
		if m.byPlayer[p.userID] == s.id {
			delete(m.byPlayer, p.userID)
		}
	}
	gaugeTransition(s.state, "")
	s.mu.Unlock()

	log.Printf("Removed game: game=%s room=%s", s.id, s.roomID)
	m.publish(types.Event{RoomID: s.roomID, Name: "game removed", Payload: map[string]string{"gameId": s.id}})
}

// SweepIdle removes every session idle longer than the configured threshold
// and returns the count removed. Routine maintenance, never surfaced to
// clients as a failure.
func (m *Manager) SweepIdle(now time.Time) int {
	m.mu.Lock()
	var expired []*session
	for _, s := range m.games {
		s.mu.Lock()
		if now.Sub(s.lastActivity) >= m.idleTimeout {
			expired = append(expired, s)
		}
		s.mu.Unlock()
	}
	for _, s := range expired {
		m.removeLocked(s)
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		metrics.SweptGames.Add(float64(len(expired)))
		log.Printf("Swept %d idle games", len(expired))
	}
	return len(expired)
}

// recordResult persists a terminal outcome. Caller holds s.mu.
func (m *Manager) recordResult(s *session) {
	if m.store == nil {
		return
	}
	result := &types.GameResult{
		ID:         uuid.New().String(),
		GameID:     s.id,
		RoomID:     s.roomID,
		GameType:   s.gameType,
		Winner:     s.winner,
		GameNumber: s.gameNumber,
		FinishedAt: m.now(),
	}
	if err := m.store.SaveGameResult(context.Background(), result); err != nil {
		log.Printf("Failed to persist result for game %s: %v", s.id, err)
	}
}

// gaugeTransition moves one session between per-state gauges. Either side may
// be empty for session creation or removal.
func gaugeTransition(from, to string) {
	if from != "" {
		metrics.ActiveGames.WithLabelValues(from).Dec()
	}
	if to != "" {
		metrics.ActiveGames.WithLabelValues(to).Inc()
	}
}

func (m *Manager) publish(event types.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(event); err != nil {
		log.Printf("Failed to publish %q for room %s: %v", event.Name, event.RoomID, err)
	}
}
