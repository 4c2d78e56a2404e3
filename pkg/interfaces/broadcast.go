package interfaces

import (
	"talkomatic/pkg/types"
)

// Publisher accepts outbound events for asynchronous fanout to room members.
// The room registry and game manager publish through this interface so they
// never block on, or know about, the transport layer.
type Publisher interface {
	Publish(event types.Event) error
}

// Sender is one deliverable endpoint, a connected client.
type Sender interface {
	UserID() string
	Send(event string, data interface{}) error
}

// Directory resolves a room to its currently deliverable endpoints.
type Directory interface {
	RoomSenders(roomID string) []Sender
}
