package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"medroom/internal/analysis"
	"medroom/internal/api"
	"medroom/internal/assistant"
	"medroom/internal/config"
	"medroom/internal/database"
	"medroom/internal/emergency"
	"medroom/internal/extract"
	"medroom/internal/hub"
	"medroom/internal/llm"
	"medroom/internal/router"
	"medroom/internal/session"
	"medroom/internal/websocket"
	"medroom/pkg/interfaces"
	pkgdatabase "medroom/pkg/database"
)

// limiterCleanupInterval is how often expired rate-limit windows are dropped
const limiterCleanupInterval = 10 * time.Minute

// Application coordinates all system components.
// ARCHITECTURAL DISCOVERY: Initialization runs in dependency order
// Audit -> Model -> Store -> Registry -> Hub -> API -> HTTP, and shutdown in reverse
type Application struct {
	config      *config.Config
	audit       *database.AuditLog
	store       *session.Store
	registry    *websocket.Registry
	hub         *hub.Hub
	limiter     *router.RateLimiter
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
	stopCleanup context.CancelFunc
	logger      zerolog.Logger
}

// NewApplication builds every component from cfg; nothing runs until Start
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Audit trail, optional
	var (
		auditLog   *database.AuditLog
		auditSink  interfaces.AuditLog
		auditCheck api.HealthChecker
	)
	if cfg.Audit.Path != "" {
		dbConfig := pkgdatabase.DefaultConfig(cfg.Audit.Path)
		dbConfig.WriteTimeout = cfg.Audit.Timeout
		var err error
		auditLog, err = database.NewAuditLog(dbConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit log: %w", err)
		}
		// TECHNICAL DISCOVERY: Interfaces stay nil when disabled; a typed nil
		// pointer would look enabled
		auditSink = auditLog
		auditCheck = auditLog
	} else {
		logger.Info().Msg("audit trail disabled")
	}

	// STEP 2: Model-backed collaborators
	model := llm.NewClient(cfg.AI, logger)
	if !model.Configured() {
		logger.Warn().Msg("no language model API key; AI features will use fallback responses")
	}
	extractor := extract.NewExtractor(model, logger)

	// STEP 3: State and connections
	store := session.NewStore(auditSink, logger)
	registry := websocket.NewRegistry()

	// STEP 4: Hub owns every room mutation
	hubOptions := hub.DefaultOptions()
	hubOptions.AsyncTimeout = cfg.AI.Timeout * 2
	messageHub := hub.NewHub(hub.Dependencies{
		Registry:   registry,
		Store:      store,
		Responder:  assistant.NewEngine(model, logger),
		Documenter: assistant.NewEngine(model, logger),
		Detector:   emergency.NewDetector(model, logger),
		Analyzer:   analysis.NewPipeline(model, logger),
		Extractor:  extractor,
	}, hubOptions, logger)

	// STEP 5: Transport
	wsHandler := websocket.NewHandler(registry, messageHub, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		Connection: websocket.Options{
			BufferSize:   cfg.WebSocket.BufferSize,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
		},
	}, logger)

	limiter := router.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	apiServer := api.NewServer(api.Dependencies{
		Store:       store,
		Rooms:       messageHub,
		Connections: registry,
		Limiter:     limiter,
		Audit:       auditCheck,
		WebSocket:   http.HandlerFunc(wsHandler.HandleWebSocket),
	}, api.Options{
		PublicURL:      cfg.HTTP.PublicURL,
		UploadDir:      cfg.Upload.Dir,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}, logger)

	// FUNCTIONAL DISCOVERY: No WriteTimeout on the server; it would cut
	// long-lived websocket connections, which manage their own deadlines
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	return &Application{
		config:     cfg,
		audit:      auditLog,
		store:      store,
		registry:   registry,
		hub:        messageHub,
		limiter:    limiter,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger.With().Str("component", "app").Logger(),
	}, nil
}

// Start runs the hub, then begins accepting HTTP connections
func (app *Application) Start(ctx context.Context) error {
	if err := os.MkdirAll(app.config.Upload.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	cleanupCtx, cancel := context.WithCancel(ctx)
	app.stopCleanup = cancel
	go app.cleanupLimiter(cleanupCtx)

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	app.logger.Info().Str("addr", listener.Addr().String()).Msg("medroom started")
	return nil
}

func (app *Application) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.limiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts down in reverse order: HTTP, hub, then the audit trail
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down")
	var errs []error

	if app.stopCleanup != nil {
		app.stopCleanup()
	}
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if app.audit != nil {
		if err := app.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit shutdown: %w", err))
		}
	}

	app.logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound address once started, otherwise the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
