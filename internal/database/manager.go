package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "talkomatic/pkg/database"
	"talkomatic/pkg/types"
)

// Manager implements interfaces.Store on sqlite. All writes funnel through a
// single goroutine; sqlite allows concurrent reads under WAL but only one
// writer.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the schema, and starts the write
// loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}
	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after a short delay on failure.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// SaveRoom inserts or replaces a room record.
func (m *Manager) SaveRoom(ctx context.Context, record *types.RoomRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO rooms (id, name, type, layout, access_code, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			record.ID,
			record.Name,
			record.Type,
			record.Layout,
			record.AccessCode,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

// DeleteRoom removes a room record. Deleting an absent row is not an error.
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		return nil
	})
}

// ListRooms returns every persisted room record, newest first.
func (m *Manager) ListRooms(ctx context.Context) ([]*types.RoomRecord, error) {
	query := `
		SELECT id, name, type, layout, access_code, created_at
		FROM rooms
		ORDER BY created_at DESC
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.RoomRecord
	for rows.Next() {
		var rec types.RoomRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Layout, &rec.AccessCode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		records = append(records, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return records, nil
}

// SaveGameResult appends a terminal game outcome.
func (m *Manager) SaveGameResult(ctx context.Context, result *types.GameResult) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO game_results (id, game_id, room_id, game_type, winner, game_number, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			result.ID,
			result.GameID,
			result.RoomID,
			result.GameType,
			result.Winner,
			result.GameNumber,
			result.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert game result: %w", err)
		}
		return nil
	})
}

// RecentGameResults returns the most recent terminal outcomes, newest first.
func (m *Manager) RecentGameResults(ctx context.Context, limit int) ([]*types.GameResult, error) {
	query := `
		SELECT id, game_id, room_id, game_type, winner, game_number, finished_at
		FROM game_results
		ORDER BY finished_at DESC
		LIMIT ?
	`
	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*types.GameResult
	for rows.Next() {
		var res types.GameResult
		if err := rows.Scan(&res.ID, &res.GameID, &res.RoomID, &res.GameType, &res.Winner, &res.GameNumber, &res.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game result row: %w", err)
		}
		results = append(results, &res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game result rows: %w", err)
	}
	return results, nil
}

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
