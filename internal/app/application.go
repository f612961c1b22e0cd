package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"classlock/internal/api"
	"classlock/internal/config"
	"classlock/internal/hub"
	"classlock/internal/journal"
	"classlock/internal/logging"
	"classlock/internal/relay"
	"classlock/internal/router"
	"classlock/internal/websocket"
	"classlock/pkg/interfaces"
)

// Application coordinates all relay components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	journal    interfaces.Journal
	registry   *websocket.Registry
	limiter    *router.RateLimiter
	relay      *relay.Relay
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized.
// Component initialization follows strict dependency order:
// Journal → Registry → Relay → Hub → API → HTTP
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NewLogger(logging.LoggerConfig{
			Format: cfg.Log.Format,
			Level:  logging.ParseLevel(cfg.Log.Level),
		})
	}

	// STEP 1: Journal (audit trail, never read back into relay state)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessionJournal, err := journal.New(ctx, cfg.Journal, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	// STEP 2: Transport registry (presence + delivery)
	registry := websocket.NewRegistry()

	// STEP 3: Relay logic and the hub that serializes it
	limiter := router.NewRateLimiter(cfg.Relay.MessagesPerMinute)
	classRelay := relay.New(registry, sessionJournal, limiter, logger)
	relayHub := hub.NewHub(classRelay, cfg.Relay.EventBuffer, logger)

	// STEP 4: HTTP surfaces
	apiServer := api.NewServer(relayHub, classRelay.Sessions(), classRelay.Connections(), sessionJournal, registry, cfg.API.Token, logger)
	wsHandler := websocket.NewHandler(registry, relayHub, cfg.WebSocket, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		journal:    sessionJournal,
		registry:   registry,
		limiter:    limiter,
		relay:      classRelay,
		hub:        relayHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start starts the hub, binds the listener and serves in the background
func (app *Application) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	// STEP 1: Start hub (relay processing)
	if err := app.hub.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start relay hub: %w", err)
	}

	// STEP 2: Bind before returning so callers can dial immediately
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		cancel()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", "error", err)
		}
	}()

	go app.limiterJanitor(ctx)

	app.logger.Info("classlock relay started", "addr", ln.Addr().String(), "journal", app.config.Journal.Driver)
	return nil
}

// limiterJanitor drops rate-limit state for idle connections
func (app *Application) limiterJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.limiter.Cleanup()
			app.logger.Debug("rate limiter swept", "tracked_connections", app.limiter.Tracked())
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → Hub → Journal
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down classlock relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", "error", err)
	}

	// Ends every read pump; connections are not reused across restarts
	app.registry.CloseAll()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.logger.Warn("relay hub shutdown error", "error", err)
	}
	if app.cancel != nil {
		app.cancel()
	}

	if err := app.journal.Close(); err != nil {
		app.logger.Warn("journal shutdown error", "error", err)
	}

	app.logger.Info("classlock relay shutdown complete")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
