package interfaces

import (
	"context"

	"talkomatic/pkg/types"
)

// RoomStore persists room records for the lobby listing. Live membership and
// text buffers are deliberately not part of this interface; they exist only
// in memory for the lifetime of the room.
type RoomStore interface {
	// SaveRoom inserts or replaces the persisted record for a room.
	SaveRoom(ctx context.Context, record *types.RoomRecord) error

	// DeleteRoom removes the persisted record when a room is destroyed.
	// Deleting an absent record is not an error.
	DeleteRoom(ctx context.Context, roomID string) error

	// ListRooms returns all persisted room records, newest first.
	ListRooms(ctx context.Context) ([]*types.RoomRecord, error)
}

// GameStore persists terminal game outcomes for observability. Nothing in
// the live game state machine depends on it.
type GameStore interface {
	// SaveGameResult records one finished game (win or draw).
	SaveGameResult(ctx context.Context, result *types.GameResult) error

	// RecentGameResults returns up to limit results, newest first.
	RecentGameResults(ctx context.Context, limit int) ([]*types.GameResult, error)
}

// Store is the full persistence surface the application wires up.
type Store interface {
	RoomStore
	GameStore

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the underlying connection.
	Close() error
}
