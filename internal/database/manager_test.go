package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dbconfig "talkomatic/pkg/database"
	"talkomatic/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return m
}

func TestNewManagerAppliesSchema(t *testing.T) {
	m := newTestManager(t)

	if err := dbconfig.ValidateTablesExist(m.db); err != nil {
		t.Errorf("Expected schema applied on startup: %v", err)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestNewManagerInvalidConfig(t *testing.T) {
	if _, err := NewManager(&dbconfig.Config{}); err == nil {
		t.Errorf("Expected an empty config to be rejected")
	}
}

func TestRoomPersistence(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	rec := &types.RoomRecord{
		ID:         "room-1",
		Name:       "lounge",
		Type:       types.RoomTypePrivate,
		Layout:     "horizontal",
		AccessCode: "123456",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := m.SaveRoom(ctx, rec); err != nil {
		t.Fatalf("SaveRoom failed: %v", err)
	}

	records, err := m.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID != rec.ID || got.Name != rec.Name || got.Type != rec.Type ||
		got.Layout != rec.Layout || got.AccessCode != rec.AccessCode {
		t.Errorf("Record round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	// Saving the same id again replaces the row.
	rec.Name = "renamed"
	if err := m.SaveRoom(ctx, rec); err != nil {
		t.Fatalf("SaveRoom replace failed: %v", err)
	}
	records, _ = m.ListRooms(ctx)
	if len(records) != 1 || records[0].Name != "renamed" {
		t.Errorf("Expected the row replaced, got %+v", records)
	}

	if err := m.DeleteRoom(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	records, _ = m.ListRooms(ctx)
	if len(records) != 0 {
		t.Errorf("Expected no records after delete, got %d", len(records))
	}

	// Deleting an absent row is a no-op.
	if err := m.DeleteRoom(ctx, "missing"); err != nil {
		t.Errorf("Expected deleting a missing room to succeed, got %v", err)
	}
}

func TestGameResults(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		res := &types.GameResult{
			ID:         string(rune('a' + i)),
			GameID:     "game-1",
			RoomID:     "room-1",
			GameType:   types.GameTypeTicTacToe,
			Winner:     types.SymbolX,
			GameNumber: i + 1,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := m.SaveGameResult(ctx, res); err != nil {
			t.Fatalf("SaveGameResult failed: %v", err)
		}
	}

	results, err := m.RecentGameResults(ctx, 2)
	if err != nil {
		t.Fatalf("RecentGameResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].GameNumber != 3 || results[1].GameNumber != 2 {
		t.Errorf("Expected newest first, got numbers %d, %d", results[0].GameNumber, results[1].GameNumber)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	if err := m.SaveRoom(context.Background(), &types.RoomRecord{ID: "x", CreatedAt: time.Now()}); err == nil {
		t.Errorf("Expected writes after close to fail")
	}
}
