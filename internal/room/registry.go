package room

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"talkomatic/internal/delta"
	"talkomatic/internal/metrics"
	"talkomatic/pkg/interfaces"
	"talkomatic/pkg/types"
)

// Config carries the room policy knobs.
type Config struct {
	MaxMembers     int           // capacity of a room
	MaxTextLength  int           // hard cap on a participant's buffer, in runes
	EmptyRoomGrace time.Duration // how long an empty room survives before destruction
}

// RoomConfig is the caller's intent when creating a room.
type RoomConfig struct {
	Name       string
	Type       string
	Layout     string
	AccessCode string
}

// JoinIntent identifies the joining user.
type JoinIntent struct {
	UserID   string
	Username string
	Location string
}

// Registry is the authoritative owner of all rooms, their membership, and
// the per-participant text buffers. It holds two consistent indices: rooms
// by id and a userID -> roomID index enforcing single-room presence.
// Operations on different rooms do not contend; the registry lock is held
// only for index access, the per-room lock for room state.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	memberOf map[string]string // userID -> roomID

	cfg       Config
	publisher interfaces.Publisher // may be nil (tests)
	store     interfaces.RoomStore // may be nil (tests, in-memory mode)

	now func() time.Time // injected for sweep tests
}

// NewRegistry creates a room registry. publisher and store may be nil.
func NewRegistry(cfg Config, publisher interfaces.Publisher, store interfaces.RoomStore) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		memberOf:  make(map[string]string),
		cfg:       cfg,
		publisher: publisher,
		store:     store,
		now:       time.Now,
	}
}

// LoadPersistedRooms recreates rooms from the store so the lobby survives a
// restart. Restored rooms start empty with the grace clock running, giving
// reconnecting clients one grace window before the sweep removes them.
func (reg *Registry) LoadPersistedRooms(ctx context.Context) error {
	if reg.store == nil {
		return nil
	}
	records, err := reg.store.ListRooms(ctx)
	if err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, rec := range records {
		if _, exists := reg.rooms[rec.ID]; exists {
			continue
		}
		r := newRoom(rec.ID, rec.Name, rec.Type, rec.Layout, rec.AccessCode, reg.now())
		r.createdAt = rec.CreatedAt
		reg.rooms[rec.ID] = r
	}
	log.Printf("Restored %d rooms from store", len(records))
	metrics.RoomsOpen.Set(float64(len(reg.rooms)))
	return nil
}

// CreateRoom validates the config and creates an empty room. A private room
// must carry an access code; any supplied code must be exactly 6 digits.
func (reg *Registry) CreateRoom(ctx context.Context, cfg RoomConfig) (types.RoomSummary, error) {
	if !types.IsValidRoomName(cfg.Name) {
		return types.RoomSummary{}, ErrInvalidRoomName
	}
	if !types.IsValidRoomType(cfg.Type) {
		return types.RoomSummary{}, ErrInvalidRoomType
	}
	if cfg.AccessCode != "" && !types.IsValidAccessCode(cfg.AccessCode) {
		return types.RoomSummary{}, ErrMalformedAccessCode
	}
	if cfg.AccessCode == "" && (cfg.Type == types.RoomTypeSemiPrivate || cfg.Type == types.RoomTypePrivate) {
		return types.RoomSummary{}, ErrAccessCodeMissing
	}

	r := newRoom(uuid.New().String(), cfg.Name, cfg.Type, cfg.Layout, cfg.AccessCode, reg.now())

	reg.mu.Lock()
	reg.rooms[r.id] = r
	count := len(reg.rooms)
	reg.mu.Unlock()

	if reg.store != nil {
		if err := reg.store.SaveRoom(ctx, r.record()); err != nil {
			log.Printf("Failed to persist room %s: %v", r.id, err)
		}
	}

	metrics.RoomsOpen.Set(float64(count))
	log.Printf("Created room: id=%s name=%q type=%s", r.id, r.name, r.roomType)
	return r.summary(reg.cfg.MaxMembers), nil
}

// JoinRoom adds a participant to a room with an empty text buffer and
// returns the full room view for the "room joined" reply. A malformed access
// code fails before the room lookup; a well-formed wrong code fails after. A
// user already in another room is moved out of it first.
func (reg *Registry) JoinRoom(roomID string, intent JoinIntent, accessCode string) (types.RoomView, error) {
	if !types.IsValidUsername(intent.Username) {
		return types.RoomView{}, ErrInvalidUsername
	}
	if accessCode != "" && !types.IsValidAccessCode(accessCode) {
		return types.RoomView{}, ErrMalformedAccessCode
	}

	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return types.RoomView{}, ErrRoomNotFound
	}

	prevID, wasMember := reg.memberOf[intent.UserID]
	rejoining := wasMember && prevID == roomID

	r.mu.Lock()
	if r.accessCode != "" {
		if accessCode == "" {
			r.mu.Unlock()
			reg.mu.Unlock()
			return types.RoomView{}, ErrAccessCodeRequired
		}
		if accessCode != r.accessCode {
			r.mu.Unlock()
			reg.mu.Unlock()
			return types.RoomView{}, ErrAccessDenied
		}
	}
	if !rejoining && len(r.members) >= reg.cfg.MaxMembers {
		r.mu.Unlock()
		reg.mu.Unlock()
		return types.RoomView{}, ErrRoomFull
	}
	r.mu.Unlock()

	// Single-presence invariant: leaving the previous room happens before
	// the new membership is recorded.
	if wasMember && !rejoining {
		reg.leaveLocked(prevID, intent.UserID)
	}

	now := reg.now()
	r.mu.Lock()
	p := r.addMember(intent.UserID, intent.Username, intent.Location, now)
	view := r.view(reg.cfg.MaxMembers)
	r.mu.Unlock()
	reg.memberOf[intent.UserID] = roomID
	reg.mu.Unlock()

	if !rejoining {
		metrics.Participants.Inc()
	}
	log.Printf("User joined room: user=%s username=%q room=%s", p.userID, p.username, roomID)

	if !rejoining {
		reg.publish(types.Event{RoomID: roomID, Name: "user joined", Payload: types.ParticipantView{
			UserID:   p.userID,
			Username: p.username,
			Location: p.location,
		}})
	}
	reg.publish(types.Event{RoomID: roomID, Name: "room update", Payload: view})
	return view, nil
}

// LeaveRoom removes a participant. Removing an absent member is a no-op; an
// emptied room is not destroyed immediately but enters the grace window, so
// reconnect races do not lose the room.
func (reg *Registry) LeaveRoom(roomID, userID string) {
	reg.mu.Lock()
	reg.leaveLocked(roomID, userID)
	reg.mu.Unlock()
}

// LeaveCurrentRoom removes the user from whichever room they are in, used on
// transport disconnect when the client cannot name the room.
func (reg *Registry) LeaveCurrentRoom(userID string) {
	reg.mu.Lock()
	if roomID, ok := reg.memberOf[userID]; ok {
		reg.leaveLocked(roomID, userID)
	}
	reg.mu.Unlock()
}

// leaveLocked does the membership removal and event publishing. Caller holds
// the registry write lock.
func (reg *Registry) leaveLocked(roomID, userID string) {
	r, ok := reg.rooms[roomID]
	if !ok {
		delete(reg.memberOf, userID)
		return
	}

	now := reg.now()
	r.mu.Lock()
	removed := r.removeMember(userID, now)
	view := r.view(reg.cfg.MaxMembers)
	r.mu.Unlock()

	if !removed {
		return
	}
	delete(reg.memberOf, userID)
	metrics.Participants.Dec()
	log.Printf("User left room: user=%s room=%s remaining=%d", userID, roomID, len(view.Members))

	reg.publish(types.Event{RoomID: roomID, Name: "user left", Payload: map[string]string{"userId": userID}})
	reg.publish(types.Event{RoomID: roomID, Name: "room update", Payload: view})
}

// ApplyTextUpdate applies one delta to the participant's buffer and returns
// the new buffer content. Updates for users who already left surface as
// ErrParticipantNotFound; that is a benign race, not a fault. The per-room
// lock serializes updates per participant, which the non-commutative delta
// scheme requires, and the "chat update" event is published under the same
// lock so broadcasts leave in application order.
func (reg *Registry) ApplyTextUpdate(roomID, userID string, d delta.Delta) (string, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return "", ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[userID]
	if !ok {
		return "", ErrParticipantNotFound
	}

	p.textBuffer = delta.Apply(p.textBuffer, d, reg.cfg.MaxTextLength)
	metrics.DeltasApplied.Inc()

	reg.publish(types.Event{
		RoomID:  roomID,
		Exclude: userID,
		Name:    "chat update",
		Payload: map[string]interface{}{
			"userId":   userID,
			"username": p.username,
			"diff":     d,
		},
	})
	return p.textBuffer, nil
}

// Snapshot returns the full current membership and buffers of a room.
func (reg *Registry) Snapshot(roomID string) (types.RoomView, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return types.RoomView{}, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(reg.cfg.MaxMembers), nil
}

// RoomOf returns the room the user is currently in, if any.
func (reg *Registry) RoomOf(userID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	roomID, ok := reg.memberOf[userID]
	return roomID, ok
}

// ListRooms returns lobby summaries for every live room.
func (reg *Registry) ListRooms() []types.RoomSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	summaries := make([]types.RoomSummary, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		r.mu.Lock()
		summaries = append(summaries, r.summary(reg.cfg.MaxMembers))
		r.mu.Unlock()
	}
	return summaries
}

// CloseRoom explicitly destroys a room, evicting any remaining members.
func (reg *Registry) CloseRoom(ctx context.Context, roomID string) error {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return ErrRoomNotFound
	}

	r.mu.Lock()
	evicted := make([]string, 0, len(r.members))
	for _, p := range r.members {
		evicted = append(evicted, p.userID)
	}
	r.mu.Unlock()

	reg.publish(types.Event{RoomID: roomID, Name: "room closed", Payload: map[string]string{"roomId": roomID}})

	for _, userID := range evicted {
		delete(reg.memberOf, userID)
	}
	delete(reg.rooms, roomID)
	count := len(reg.rooms)
	reg.mu.Unlock()

	if n := len(evicted); n > 0 {
		metrics.Participants.Sub(float64(n))
	}
	metrics.RoomsOpen.Set(float64(count))
	reg.deleteRecord(ctx, roomID)
	log.Printf("Closed room: room=%s evicted=%d", roomID, len(evicted))
	return nil
}

// SweepIdle destroys every room that has been empty longer than the grace
// window and returns how many were removed. Routine maintenance, never a
// user-facing failure.
func (reg *Registry) SweepIdle(now time.Time) int {
	reg.mu.Lock()
	var expired []string
	for id, r := range reg.rooms {
		r.mu.Lock()
		if !r.emptySince.IsZero() && now.Sub(r.emptySince) >= reg.cfg.EmptyRoomGrace {
			expired = append(expired, id)
		}
		r.mu.Unlock()
	}
	for _, id := range expired {
		delete(reg.rooms, id)
	}
	count := len(reg.rooms)
	reg.mu.Unlock()

	for _, id := range expired {
		reg.deleteRecord(context.Background(), id)
	}
	if len(expired) > 0 {
		metrics.RoomsOpen.Set(float64(count))
		metrics.SweptRooms.Add(float64(len(expired)))
		log.Printf("Swept %d idle rooms", len(expired))
	}
	return len(expired)
}

func (reg *Registry) deleteRecord(ctx context.Context, roomID string) {
	if reg.store == nil {
		return
	}
	if err := reg.store.DeleteRoom(ctx, roomID); err != nil {
		log.Printf("Failed to delete room record %s: %v", roomID, err)
	}
}

func (reg *Registry) publish(event types.Event) {
	if reg.publisher == nil {
		return
	}
	if err := reg.publisher.Publish(event); err != nil {
		log.Printf("Failed to publish %q for room %s: %v", event.Name, event.RoomID, err)
	}
}
