package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"ruangkelas/internal/logging"
	"ruangkelas/internal/websocket"
	"ruangkelas/pkg/interfaces"
	"ruangkelas/pkg/types"
)

var log = logging.ForService("api")

// Sessions is the login side of the session manager
type Sessions interface {
	Login(ctx context.Context, name, password string) (string, *types.User, error)
	Authenticate(ctx context.Context, token string) (*types.User, error)
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// Discussion exposes the in-memory history kept by the hub
type Discussion interface {
	HistoryLimit(kind types.TopicKind) int
	RecentViews(ctx context.Context, topic types.TopicKey, limit int) []types.MessageView
}

// Presence lists the users with at least one live connection
type Presence interface {
	OnlineUsers(ctx context.Context) []types.OnlineUser
}

// Deps are the collaborators the HTTP layer delegates to
type Deps struct {
	Sessions   Sessions
	Database   interfaces.DatabaseManager
	Registry   Registry
	Discussion Discussion
	Presence   Presence
	// WebSocket is mounted at /ws when set
	WebSocket http.Handler
	// SessionTTL sets the cookie lifetime; zero yields a browser-session cookie
	SessionTTL time.Duration
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Deps
	router  *http.ServeMux
	started time.Time
}

// MaxHistoryLimit caps the ?limit= parameter of the history endpoints
const MaxHistoryLimit = 200

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// JSON middleware is applied per route so the WebSocket upgrade keeps its own headers
func (s *Server) setupRoutes() {
	s.handle("POST /api/login", s.login)
	s.handle("POST /api/logout", s.logout)
	s.handle("GET /api/me", s.requireUser(s.me))

	s.handle("GET /api/users", s.requireUser(s.listUsers))
	s.handle("POST /api/users", s.requireUser(s.createUser))

	s.handle("GET /api/rooms", s.requireUser(s.listRooms))
	s.handle("POST /api/rooms", s.requireUser(s.createRoom))
	s.handle("GET /api/rooms/{id}/materials", s.requireUser(s.listMaterials))
	s.handle("POST /api/rooms/{id}/materials", s.requireUser(s.createMaterial))
	s.handle("GET /api/rooms/{id}/history", s.requireUser(s.roomHistory))
	s.handle("GET /api/materials/{id}/discussion", s.requireUser(s.materialDiscussion))

	s.handle("GET /api/online", s.requireUser(s.online))
	s.handle("GET /health", s.healthCheck)

	if s.deps.WebSocket != nil {
		s.router.Handle("GET /ws", s.deps.WebSocket)
	}
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.router.Handle(pattern, s.jsonMiddleware(h))
}

// FUNCTIONAL DISCOVERY: CORS wraps the whole mux so preflight requests are
// answered before method-specific routes reject them
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.router).ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
		log.Warnf("Health check failed: %v", err)
	}

	connectionStats := map[string]int{}
	if s.deps.Registry != nil {
		connectionStats = s.deps.Registry.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: connectionStats,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, response)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendStoreError maps directory and catalog errors to HTTP statuses
func (s *Server) sendStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		s.sendError(w, what+" not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrConflict):
		s.sendError(w, what+" already exists", http.StatusConflict)
	case isValidationError(err):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Errorf("%s operation failed: %v", what, err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

// requireUser resolves the Bearer token or session cookie into a directory user
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = websocket.TokenFromRequest(r)
		}

		user, err := s.deps.Sessions.Authenticate(r.Context(), token)
		if err != nil {
			s.sendError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func currentUser(r *http.Request) *types.User {
	user, _ := r.Context().Value(userKey{}).(*types.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
