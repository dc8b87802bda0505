package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"medroom/internal/router"
	"medroom/internal/session"
	"medroom/pkg/types"
)

// RoomService is the hub surface HTTP handlers mutate rooms through
type RoomService interface {
	AddUpload(roomID string, file *types.UploadedFile) error
	DeleteRoom(token, email string) (*types.Invitation, error)
	GetStats() map[string]interface{}
}

// Connections reports live connection counts
type Connections interface {
	CountRoom(roomID string) int
	GetStats() map[string]int
}

// HealthChecker is satisfied by the audit log
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies wires the server to the engine
type Dependencies struct {
	Store       *session.Store
	Rooms       RoomService
	Connections Connections
	Limiter     *router.RateLimiter
	// Audit is nil when the audit trail is disabled
	Audit HealthChecker
	// WebSocket serves /ws; nil leaves the route unregistered
	WebSocket http.Handler
}

// Options carries the HTTP-facing settings
type Options struct {
	PublicURL      string
	UploadDir      string
	MaxUploadBytes int64
}

// ARCHITECTURAL DISCOVERY: HTTP layer only validates, maps errors and hands
// room mutations to the hub; it holds no room state of its own
type Server struct {
	store       *session.Store
	rooms       RoomService
	connections Connections
	limiter     *router.RateLimiter
	audit       HealthChecker
	options     Options
	router      *mux.Router
	handler     http.Handler
	started     time.Time
	logger      zerolog.Logger
}

// NewServer creates the HTTP surface and registers its routes
func NewServer(deps Dependencies, options Options, logger zerolog.Logger) *Server {
	s := &Server{
		store:       deps.Store,
		rooms:       deps.Rooms,
		connections: deps.Connections,
		limiter:     deps.Limiter,
		audit:       deps.Audit,
		options:     options,
		router:      mux.NewRouter(),
		started:     time.Now(),
		logger:      logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes(deps.WebSocket)
	// TECHNICAL DISCOVERY: Outer middleware wraps the router itself so preflight
	// and unmatched requests are logged and answered too
	s.handler = s.recoverPanic(s.requestLogger(corsMiddleware(s.router)))
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	if ws != nil {
		s.router.Handle("/ws", ws).Methods(http.MethodGet)
	}
	s.router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.options.UploadDir)))).Methods(http.MethodGet)

	// FUNCTIONAL DISCOVERY: Every /api route counts against the per-IP window
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimit)
	}
	api.HandleFunc("/rooms", s.createRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms", s.listRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/validate", s.validateRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{token}", s.deleteRoom).Methods(http.MethodDelete)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Route not found", http.StatusNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Uptime      string                 `json:"uptime"`
	Audit       string                 `json:"audit"`
	Connections map[string]int         `json:"connections"`
	Rooms       map[string]interface{} `json:"rooms"`
	Hub         map[string]interface{} `json:"hub"`
}

// healthCheck reports component status; 503 when the audit sink is failing
// or the hub loop is down
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	auditStatus := "disabled"
	if s.audit != nil {
		auditStatus = "healthy"
		if err := s.audit.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			auditStatus = "error: " + err.Error()
		}
	}

	hubStats := s.rooms.GetStats()
	if running, ok := hubStats["running"].(bool); ok && !running {
		status = "unhealthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Audit:       auditStatus,
		Connections: s.connections.GetStats(),
		Rooms:       s.store.GetStats(),
		Hub:         hubStats,
	})
}
