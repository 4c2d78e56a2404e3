package room

import (
	"sync"
	"time"

	"talkomatic/pkg/types"
)

// participant is one live room member. Owned by exactly one Room; the text
// buffer is mutated only under the owning room's lock.
type participant struct {
	userID     string
	username   string
	location   string
	textBuffer string
	joinedAt   time.Time
}

// Room holds the live state of one room: ordered membership and each
// member's text buffer. All read-modify-write sequences go through mu, which
// serializes updates per participant while leaving other rooms uncontended.
type Room struct {
	mu sync.Mutex

	id         string
	name       string
	roomType   string
	layout     string
	accessCode string
	createdAt  time.Time

	members []*participant          // join order preserved
	byID    map[string]*participant // userID -> participant

	// emptySince is non-zero while the room has no members and is counting
	// down its destruction grace window. Cleared on rejoin.
	emptySince time.Time
}

func newRoom(id, name, roomType, layout, accessCode string, now time.Time) *Room {
	return &Room{
		id:         id,
		name:       name,
		roomType:   roomType,
		layout:     layout,
		accessCode: accessCode,
		createdAt:  now,
		byID:       make(map[string]*participant),
		emptySince: now,
	}
}

// addMember appends a participant with an empty text buffer. Rejoining the
// same room refreshes the identity fields but keeps the seat and buffer.
// Caller holds mu.
func (r *Room) addMember(userID, username, location string, now time.Time) *participant {
	if p, ok := r.byID[userID]; ok {
		p.username = username
		p.location = location
		return p
	}
	p := &participant{
		userID:   userID,
		username: username,
		location: location,
		joinedAt: now,
	}
	r.members = append(r.members, p)
	r.byID[userID] = p
	r.emptySince = time.Time{}
	return p
}

// removeMember drops a participant, preserving the order of the rest.
// Returns false if the user was not a member. Caller holds mu.
func (r *Room) removeMember(userID string, now time.Time) bool {
	if _, ok := r.byID[userID]; !ok {
		return false
	}
	delete(r.byID, userID)
	for i, p := range r.members {
		if p.userID == userID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		r.emptySince = now
	}
	return true
}

// view builds the full room snapshot in join order. Caller holds mu.
func (r *Room) view(maxMembers int) types.RoomView {
	members := make([]types.ParticipantView, len(r.members))
	for i, p := range r.members {
		members[i] = types.ParticipantView{
			UserID:   p.userID,
			Username: p.username,
			Location: p.location,
			Text:     p.textBuffer,
		}
	}
	return types.RoomView{
		ID:        r.id,
		Name:      r.name,
		Type:      r.roomType,
		Layout:    r.layout,
		Members:   members,
		MaxUsers:  maxMembers,
		CreatedAt: r.createdAt,
	}
}

// summary builds the lobby listing entry. Caller holds mu.
func (r *Room) summary(maxMembers int) types.RoomSummary {
	return types.RoomSummary{
		ID:            r.id,
		Name:          r.name,
		Type:          r.roomType,
		Layout:        r.layout,
		MemberCount:   len(r.members),
		MaxUsers:      maxMembers,
		HasAccessCode: r.accessCode != "",
		CreatedAt:     r.createdAt,
	}
}

// record builds the persisted form of the room.
func (r *Room) record() *types.RoomRecord {
	return &types.RoomRecord{
		ID:         r.id,
		Name:       r.name,
		Type:       r.roomType,
		Layout:     r.layout,
		AccessCode: r.accessCode,
		CreatedAt:  r.createdAt,
	}
}
