// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"talkomatic/internal/api"
	"talkomatic/internal/config"
	"talkomatic/internal/database"
	"talkomatic/internal/game"
	"talkomatic/internal/gateway"
	"talkomatic/internal/hub"
	"talkomatic/internal/ratelimit"
	"talkomatic/internal/room"
	pkgdatabase "talkomatic/pkg/database"
	"talkomatic/pkg/interfaces"
)

// Application coordinates all components. Initialization order follows the
// dependency chain: Database -> Connections -> Hub -> Registry -> Games ->
// Gateway -> API -> HTTP.
type Application struct {
	config      *config.Config
	dbManager   *database.Manager // nil when persistence is disabled
	connections *gateway.Registry
	eventHub    *hub.Hub
	rooms       *room.Registry
	games       *game.Manager
	limiter     *ratelimit.Manager
	apiServer   *api.Server
	httpServer  *http.Server

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewApplication builds the component graph from the configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var dbManager *database.Manager
	var store interfaces.Store
	if cfg.Database.Enabled {
		dbConfig := &pkgdatabase.Config{
			DatabasePath:    cfg.Database.Path,
			MaxConnections:  10,
			ConnMaxLifetime: cfg.Database.Timeout,
			ConnMaxIdleTime: cfg.Database.Timeout / 3,
		}
		var err error
		dbManager, err = database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		store = dbManager
	}

	connections := gateway.NewRegistry()
	eventHub := hub.NewHub(connections)

	rooms := room.NewRegistry(room.Config{
		MaxMembers:     cfg.Room.MaxMembers,
		MaxTextLength:  cfg.Room.MaxTextLength,
		EmptyRoomGrace: cfg.Room.EmptyRoomGrace,
	}, eventHub, store)
	if err := rooms.LoadPersistedRooms(context.Background()); err != nil {
		if dbManager != nil {
			_ = dbManager.Close()
		}
		return nil, fmt.Errorf("failed to load persisted rooms: %w", err)
	}

	games := game.NewManager(cfg.Game.IdleTimeout, eventHub, store)
	limiter := ratelimit.NewManager(rate.Limit(cfg.WebSocket.ChatRate), cfg.WebSocket.ChatBurst, 5*time.Minute)

	wsHandler := gateway.NewHandler(connections, rooms, games, limiter, eventHub)
	apiServer := api.NewServer(rooms, store)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		dbManager:   dbManager,
		connections: connections,
		eventHub:    eventHub,
		rooms:       rooms,
		games:       games,
		limiter:     limiter,
		apiServer:   apiServer,
		httpServer:  httpServer,
		sweepStop:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}, nil
}

// Start brings the hub and sweep loops up, then the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting Talkomatic on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	go app.sweepLoop()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Talkomatic started successfully")
		return nil
	case <-ctx.Done():
		_ = app.eventHub.Stop()
		return ctx.Err()
	}
}

// sweepLoop runs the periodic idle sweeps for rooms and games.
func (app *Application) sweepLoop() {
	defer close(app.sweepDone)

	roomTicker := time.NewTicker(app.config.Room.SweepInterval)
	gameTicker := time.NewTicker(app.config.Game.SweepInterval)
	defer roomTicker.Stop()
	defer gameTicker.Stop()

	for {
		select {
		case now := <-roomTicker.C:
			app.rooms.SweepIdle(now)
		case now := <-gameTicker.C:
			app.games.SweepIdle(now)
		case <-app.sweepStop:
			return
		}
	}
}

// Stop shuts everything down in reverse dependency order: HTTP, sweeps, hub,
// limiter, database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Talkomatic")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	close(app.sweepStop)
	<-app.sweepDone

	if err := app.eventHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}
	app.limiter.Stop()

	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			log.Printf("Database shutdown error: %v", err)
		}
	}

	log.Printf("Talkomatic shutdown complete")
	return nil
}

// Addr returns the server address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
