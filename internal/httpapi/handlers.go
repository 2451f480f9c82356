package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rmacdonaldsmith/tagmesh/internal/host"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/messagelog"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// Paging limits for journal reads
const (
	DefaultReadLimit = 100
	MaxReadLimit     = 1000
)

// PluginHost is the part of the plugin host served over HTTP.
type PluginHost interface {
	Plugins() []plugin.Info
	Unload(ctx context.Context, name string) error
	Health() plugin.HealthStatus
}

// RoutingTable exposes the live alternatives table.
// The boolean results are false while no table is loaded.
type RoutingTable interface {
	Snapshot() (alternatives.Snapshot, bool)
	Stats() (alternatives.Stats, bus.Statistics, bool)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	host    PluginHost
	table   RoutingTable
	journal messagelog.MessageLog
	jwtAuth *JWTAuth
}

// NewHandlers creates a new handlers instance
func NewHandlers(host PluginHost, table RoutingTable, journal messagelog.MessageLog, jwtAuth *JWTAuth) *Handlers {
	return &Handlers{
		host:    host,
		table:   table,
		journal: journal,
		jwtAuth: jwtAuth,
	}
}

// Auth endpoints

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validateAuthRequest(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// clientId-based authentication; "admin" receives admin rights
	isAdmin := req.ClientID == "admin"

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID, isAdmin)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AuthResponse{
		Token:     token,
		ClientID:  req.ClientID,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Logout handles POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims := GetClaims(r)
	if claims == nil {
		writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	// Development identities carry no token to revoke
	revoked := false
	if claims.ID != "" {
		if err := h.jwtAuth.Revoke(claims); err != nil {
			writeError(w, fmt.Sprintf("Failed to revoke token: %v", err), http.StatusInternalServerError)
			return
		}
		revoked = true
	}

	writeJSON(w, LogoutResponse{ClientID: claims.ClientID, Revoked: revoked}, http.StatusOK)
}

// Alternatives endpoints

// ListAlternatives handles GET /api/v1/alternatives[?tag=X]
func (h *Handlers) ListAlternatives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, ok := h.table.Snapshot()
	if !ok {
		writeError(w, "Alternatives table is not loaded", http.StatusServiceUnavailable)
		return
	}

	if tag := r.URL.Query().Get("tag"); tag != "" {
		row, found := snapshot[tag]
		if !found {
			writeError(w, fmt.Sprintf("No alternatives registered for tag %s", tag), http.StatusNotFound)
			return
		}
		snapshot = alternatives.Snapshot{tag: row}
	}

	writeJSON(w, toAlternativesResponse(snapshot), http.StatusOK)
}

// Journal endpoints

// ReadTagMessages handles GET /api/v1/tags/{tag}/messages?offset={offset}&limit={limit}
func (h *Handlers) ReadTagMessages(w http.ResponseWriter, r *http.Request) {
	tag := GetTagFromPath(r)
	if tag == "" {
		writeError(w, "Tag name required", http.StatusBadRequest)
		return
	}

	offset, limit, err := h.parsePaging(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	records, err := h.journal.Read(ctx, tag, offset, limit)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read messages: %v", err), http.StatusInternalServerError)
		return
	}
	end, err := h.journal.EndOffset(ctx, tag)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read end offset: %v", err), http.StatusInternalServerError)
		return
	}

	messages := make([]MessageRecord, 0, len(records))
	for _, record := range records {
		messages = append(messages, toMessageRecord(record))
	}

	writeJSON(w, ReadMessagesResponse{
		Messages:    messages,
		Tag:         tag,
		StartOffset: offset,
		EndOffset:   end,
		Count:       len(messages),
	}, http.StatusOK)
}

// Plugin endpoints

// ListPlugins handles GET /api/v1/plugins
func (h *Handlers) ListPlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.host.Plugins()
	resp := PluginsResponse{Plugins: make([]PluginInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Plugins = append(resp.Plugins, PluginInfo{
			Name:      info.Name,
			Listeners: info.Listeners,
			Core:      info.Core,
			LoadedAt:  info.LoadedAt,
		})
	}

	writeJSON(w, resp, http.StatusOK)
}

// Admin endpoints

// AdminUnloadPlugin handles POST /api/v1/admin/plugins/{name}/unload
func (h *Handlers) AdminUnloadPlugin(w http.ResponseWriter, r *http.Request) {
	name := GetPluginFromPath(r)
	if name == "" {
		writeError(w, "Plugin name required", http.StatusBadRequest)
		return
	}

	err := h.host.Unload(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, UnloadResponse{Plugin: name, Unloaded: true}, http.StatusOK)
	case errors.Is(err, host.ErrPluginNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, host.ErrCorePluginUnload):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, host.ErrHostNotStarted), errors.Is(err, host.ErrHostClosed):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, fmt.Sprintf("Failed to unload plugin: %v", err), http.StatusInternalServerError)
	}
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := AdminStatsResponse{
		Plugins: len(h.host.Plugins()),
	}

	if tableStats, busStats, ok := h.table.Stats(); ok {
		resp.Alternatives = AlternativeStats{
			Rows:    tableStats.Rows,
			Entries: tableStats.Entries,
			Owners:  tableStats.Owners,
		}
		resp.Bus = BusStats{
			Published:     busStats.Published,
			Delivered:     busStats.Delivered,
			Unrouted:      busStats.Unrouted,
			Overflow:      busStats.Overflow,
			Panics:        busStats.Panics,
			Subscriptions: busStats.Subscriptions,
		}
	}

	journalStats, err := h.journal.Statistics(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to read journal statistics: %v", err), http.StatusInternalServerError)
		return
	}
	resp.Journal = JournalStats{
		TotalMessages: journalStats.TotalMessages,
		Retained:      journalStats.Retained,
		Tags:          journalStats.TagCount,
	}

	writeJSON(w, resp, http.StatusOK)
}

// Health endpoint

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.host.Health()
	_, loaded := h.table.Snapshot()

	resp := HealthResponse{
		Healthy:            health.Healthy && loaded,
		Started:            health.Started,
		AlternativesLoaded: loaded,
		LoadedPlugins:      health.LoadedPlugins,
		Subscriptions:      health.Subscriptions,
		Message:            health.Message,
	}
	if health.Healthy && !loaded {
		resp.Message = "alternatives table is not loaded"
	}

	statusCode := http.StatusOK
	if !resp.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// Helper methods

// validateJSON validates that the request has valid JSON content-type
func (h *Handlers) validateJSON(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func (h *Handlers) validateAuthRequest(req *AuthRequest) error {
	if req.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if len(req.ClientID) < 2 {
		return fmt.Errorf("clientId must be at least 2 characters")
	}
	return nil
}

// parsePaging reads the offset and limit query parameters
func (h *Handlers) parsePaging(r *http.Request) (int64, int, error) {
	query := r.URL.Query()

	var offset int64
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = parsed
	}

	limit := DefaultReadLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		limit = min(parsed, MaxReadLimit)
	}

	return offset, limit, nil
}

func toAlternativesResponse(snapshot alternatives.Snapshot) AlternativesResponse {
	resp := AlternativesResponse{
		Alternatives: make(map[string][]AlternativeEntry, len(snapshot)),
		Rows:         len(snapshot),
	}
	for sourceTag, row := range snapshot {
		entries := make([]AlternativeEntry, len(row))
		for i, entry := range row {
			entries[i] = AlternativeEntry{
				Tag:      entry.DestinationTag,
				Plugin:   entry.OwnerPlugin,
				Priority: entry.Priority,
			}
		}
		resp.Alternatives[sourceTag] = entries
	}
	return resp
}

func toMessageRecord(record *messagelog.Record) MessageRecord {
	var payload interface{}
	if raw := record.Payload(); raw != nil {
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = string(raw)
		}
	}
	return MessageRecord{
		ID:        record.ID(),
		Tag:       record.Tag(),
		Sender:    record.Sender(),
		Payload:   payload,
		Timestamp: record.Timestamp(),
		Offset:    record.Offset(),
	}
}
