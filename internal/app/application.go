package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"ruangkelas/internal/api"
	"ruangkelas/internal/config"
	"ruangkelas/internal/database"
	"ruangkelas/internal/history"
	"ruangkelas/internal/hub"
	"ruangkelas/internal/logging"
	"ruangkelas/internal/presence"
	"ruangkelas/internal/router"
	"ruangkelas/internal/session"
	"ruangkelas/internal/websocket"
	pkgdatabase "ruangkelas/pkg/database"
)

var log = logging.ForService("app")

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	registry       *websocket.Registry
	messageHub     *hub.Hub
	apiServer      *api.Server
	httpServer     *http.Server
	listener       net.Listener
}

// DatabaseConfig maps the application settings onto the SQLite pool settings
func DatabaseConfig(cfg *config.Config) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3
	return dbConfig
}

// OpenDatabase opens the directory database and applies pending migrations.
// The CLI maintenance commands share it with NewApplication.
func OpenDatabase(cfg *config.Config) (*database.Manager, error) {
	dbManager, err := database.NewManager(DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	applied, err := dbManager.Migrate()
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Infof("Applied migrations: %v", applied)
	}
	if err := dbManager.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema is invalid: %w", err)
	}
	return dbManager, nil
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Session → Registry → Router → History → Presence → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.SetGlobalDebug(cfg.Log.Debug)

	// STEP 1: Database (foundation layer)
	dbManager, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	// STEP 2: Session manager over the user directory
	sessionManager, err := session.NewManager(dbManager, []byte(cfg.Auth.SessionSecret), cfg.Auth.TokenTTL)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	// STEP 3: Connection registry, frame router, history and presence
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(router.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window))
	store := history.NewStore()
	tracker := presence.NewTracker(registry, dbManager)

	// STEP 4: Discussion hub
	hubConfig := hub.DefaultConfig()
	hubConfig.RoomHistoryLimit = cfg.Discussion.RoomHistoryLimit
	hubConfig.MaterialHistoryLimit = cfg.Discussion.MaterialHistoryLimit
	messageHub := hub.NewHub(registry, messageRouter, store, tracker, dbManager, dbManager, hubConfig)

	// STEP 5: WebSocket handler feeding the hub
	wsHandler := websocket.NewHandler(sessionManager, messageHub, websocket.Options{
		BufferSize:     cfg.WebSocket.BufferSize,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongTimeout:    cfg.WebSocket.PongTimeout,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	// STEP 6: API server mounting /api, /health and /ws
	apiServer := api.NewServer(api.Deps{
		Sessions:   sessionManager,
		Database:   dbManager,
		Registry:   registry,
		Discussion: messageHub,
		Presence:   tracker,
		WebSocket:  http.HandlerFunc(wsHandler.HandleWebSocket),
		SessionTTL: cfg.Auth.TokenTTL,
	})

	// TECHNICAL DISCOVERY: no WriteTimeout; it would cut hijacked WebSocket
	// connections, which set their own per-frame deadlines
	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       2 * cfg.HTTP.ReadTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		registry:       registry,
		messageHub:     messageHub,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle messages, then the listener accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Infof("Starting ruangkelas on %s", app.httpServer.Addr)

	// STEP 1: Start message hub (background message processing)
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Bind synchronously so address errors surface here
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.messageHub.Stop()
		return fmt.Errorf("HTTP server error: %w", err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	log.Infof("ruangkelas started successfully")
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Infof("Shutting down ruangkelas")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Stop message processing; closes every live WebSocket
	if app.messageHub.IsRunning() {
		if err := app.messageHub.Stop(); err != nil {
			log.Warnf("Message hub shutdown error: %v", err)
		}
	}

	// STEP 3: Close database connections
	if err := app.dbManager.Close(); err != nil {
		log.Warnf("Database shutdown error: %v", err)
		return err
	}

	log.Infof("ruangkelas shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP handler for in-process tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Sessions exposes the session manager so tools can mint tokens
func (app *Application) Sessions() *session.Manager {
	return app.sessionManager
}

// Database exposes the directory and catalog store
func (app *Application) Database() *database.Manager {
	return app.dbManager
}
