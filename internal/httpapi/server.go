package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/messagelog"
)

// Route prefixes with path parameters
const (
	tagsPrefix          = "/api/v1/tags/"
	adminPluginsPrefix  = "/api/v1/admin/plugins/"
	tagMessagesSuffix   = "/messages"
	pluginUnloadSuffix  = "/unload"
	defaultDevSecretKey = "tagmesh-dev-secret-key-change-in-production"
)

// Server represents the HTTP API server
type Server struct {
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	logger     *slog.Logger
}

// Config holds server configuration
type Config struct {
	Port      string
	SecretKey string
	NoAuth    bool
	Logger    *slog.Logger
}

// NewServer creates a new HTTP API server
func NewServer(host PluginHost, table RoutingTable, journal messagelog.MessageLog, config Config) *Server {
	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = defaultDevSecretKey
	}
	logger := logging.OrDiscard(config.Logger).With("component", "httpapi")

	jwtAuth := NewJWTAuth(secretKey)
	server := &Server{
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(host, table, journal, jwtAuth),
		middleware: NewMiddleware(jwtAuth, config.NoAuth, logger),
		logger:     logger,
	}

	server.server = &http.Server{
		Addr:           ":" + config.Port,
		Handler:        server.setupRoutes(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return server
}

// Start listens on the configured port and serves in the background.
// It returns the address actually bound.
func (s *Server) Start() (net.Addr, error) {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("http api listening", "addr", lis.Addr().String())

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", "error", err)
		}
	}()
	return lis.Addr(), nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Auth returns the server's token authority.
func (s *Server) Auth() *JWTAuth {
	return s.jwtAuth
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	// Authentication endpoints
	mux.Handle("/api/v1/auth/login", withMiddleware(s.handlers.Login))
	mux.Handle("/api/v1/auth/logout", withMiddleware(s.middleware.AuthRequired(s.handlers.Logout)))

	// Routing table and journal (auth required)
	mux.Handle("/api/v1/alternatives", withMiddleware(s.middleware.AuthRequired(s.handlers.ListAlternatives)))
	mux.Handle(tagsPrefix, withMiddleware(s.middleware.AuthRequired(s.handleTagMessages)))
	mux.Handle("/api/v1/plugins", withMiddleware(s.middleware.AuthRequired(s.handlers.ListPlugins)))

	// Admin endpoints (admin auth required)
	mux.Handle(adminPluginsPrefix, withMiddleware(s.middleware.AdminRequired(s.handleAdminPlugin)))
	mux.Handle("/api/v1/admin/stats", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminGetStats)))

	// Health endpoint (no auth required)
	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))

	// Root endpoint with API info
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// handleTagMessages parses /api/v1/tags/{tag}/messages
func (s *Server) handleTagMessages(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, tagsPrefix)
	if !strings.HasSuffix(rest, tagMessagesSuffix) {
		writeError(w, "Invalid path, expected /messages", http.StatusNotFound)
		return
	}

	tag := strings.TrimSuffix(rest, tagMessagesSuffix)
	if tag == "" {
		writeError(w, "Tag name required", http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := context.WithValue(r.Context(), TagKey, tag)
	s.handlers.ReadTagMessages(w, r.WithContext(ctx))
}

// handleAdminPlugin parses /api/v1/admin/plugins/{name}/unload
func (s *Server) handleAdminPlugin(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, adminPluginsPrefix)
	if !strings.HasSuffix(rest, pluginUnloadSuffix) {
		writeError(w, "Invalid path, expected /unload", http.StatusNotFound)
		return
	}

	name := strings.TrimSuffix(rest, pluginUnloadSuffix)
	if name == "" || strings.Contains(name, "/") {
		writeError(w, "Plugin name required", http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := context.WithValue(r.Context(), PluginKey, name)
	s.handlers.AdminUnloadPlugin(w, r.WithContext(ctx))
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "TagMesh HTTP API",
		"version":     "1.0.0",
		"description": "Inspection and administration API for the tagmesh alternative routing engine",
		"endpoints": map[string]interface{}{
			"auth": map[string]string{
				"login":  "POST /api/v1/auth/login",
				"logout": "POST /api/v1/auth/logout",
			},
			"alternatives": map[string]string{
				"list": "GET /api/v1/alternatives?tag={tag}",
			},
			"tags": map[string]string{
				"readMessages": "GET /api/v1/tags/{tag}/messages?offset={offset}&limit={limit}",
			},
			"plugins": map[string]string{
				"list": "GET /api/v1/plugins",
			},
			"admin": map[string]string{
				"unload": "POST /api/v1/admin/plugins/{name}/unload",
				"stats":  "GET /api/v1/admin/stats",
			},
			"health": "GET /api/v1/health",
		},
		"authentication": "Bearer JWT token required for most endpoints",
	}

	writeJSON(w, info, http.StatusOK)
}
