package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
)

// ContextKey type for context keys to avoid collisions
type ContextKey string

const (
	// ClientIDKey is the context key for the authenticated client ID
	ClientIDKey ContextKey = "client_id"
	// IsAdminKey is the context key for admin status
	IsAdminKey ContextKey = "is_admin"
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "jwt_claims"
	// TagKey is the context key for the tag name from the URL path
	TagKey ContextKey = "tag"
	// PluginKey is the context key for the plugin name from the URL path
	PluginKey ContextKey = "plugin"
)

// DevClientID is the identity assumed for requests in no-auth mode
const DevClientID = "dev-client"

// Middleware provides HTTP middleware functions
type Middleware struct {
	jwtAuth *JWTAuth
	noAuth  bool // Development mode: bypass authentication
	logger  *slog.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(jwtAuth *JWTAuth, noAuth bool, logger *slog.Logger) *Middleware {
	return &Middleware{
		jwtAuth: jwtAuth,
		noAuth:  noAuth,
		logger:  logging.OrDiscard(logger),
	}
}

// AuthRequired middleware requires valid JWT authentication
func (m *Middleware) AuthRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.noAuth {
			next(w, r.WithContext(withClaims(r.Context(), &JWTClaims{ClientID: DevClientID})))
			return
		}

		claims, ok := m.authenticate(w, r, "")
		if !ok {
			return
		}
		next(w, r.WithContext(withClaims(r.Context(), claims)))
	}
}

// AdminRequired middleware requires admin privileges.
// Admin endpoints are never bypassed, even in no-auth mode.
func (m *Middleware) AdminRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(w, r, " for admin access")
		if !ok {
			return
		}
		if !claims.IsAdmin {
			writeError(w, "Admin privileges required", http.StatusForbidden)
			return
		}
		next(w, r.WithContext(withClaims(r.Context(), claims)))
	}
}

// authenticate validates the bearer token of r, writing a 401 when it is missing or invalid
func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request, scope string) (*JWTClaims, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		writeError(w, "Authorization header required"+scope, http.StatusUnauthorized)
		return nil, false
	}

	claims, err := m.jwtAuth.ValidateToken(token)
	if err != nil {
		writeError(w, "Invalid token"+scope+": "+err.Error(), http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// CORS middleware adds CORS headers for browser compatibility
func (m *Middleware) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// ContentType middleware sets the content type to JSON
func (m *Middleware) ContentType(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// Logging middleware logs one structured line per request
func (m *Middleware) Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(recorder, r)

		level := slog.LevelDebug
		if recorder.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		m.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	}
}

// Recovery middleware recovers from panics and returns 500 error
func (m *Middleware) Recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic serving request", "path", r.URL.Path, "panic", err)
				writeError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// statusRecorder remembers the status code written through it
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withClaims(ctx context.Context, claims *JWTClaims) context.Context {
	ctx = context.WithValue(ctx, ClientIDKey, claims.ClientID)
	ctx = context.WithValue(ctx, IsAdminKey, claims.IsAdmin)
	return context.WithValue(ctx, ClaimsKey, claims)
}

func contextValue[T any](r *http.Request, key ContextKey) T {
	v, _ := r.Context().Value(key).(T)
	return v
}

// GetClientID extracts the client ID from the request context
func GetClientID(r *http.Request) string { return contextValue[string](r, ClientIDKey) }

// IsAdmin checks if the current request is from an admin user
func IsAdmin(r *http.Request) bool { return contextValue[bool](r, IsAdminKey) }

// GetClaims extracts the JWT claims from the request context, nil when unauthenticated
func GetClaims(r *http.Request) *JWTClaims { return contextValue[*JWTClaims](r, ClaimsKey) }

// GetTagFromPath returns the tag parsed from /api/v1/tags/{tag}/messages
func GetTagFromPath(r *http.Request) string { return contextValue[string](r, TagKey) }

// GetPluginFromPath returns the plugin name parsed from the admin unload path
func GetPluginFromPath(r *http.Request) string { return contextValue[string](r, PluginKey) }

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already out, so an encoding failure cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}
