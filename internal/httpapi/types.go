package httpapi

import "time"

// Request/Response types for the HTTP API

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LogoutResponse represents a logout response
type LogoutResponse struct {
	ClientID string `json:"clientId"`
	Revoked  bool   `json:"revoked"`
}

// AlternativeEntry is one destination of a routing table row
type AlternativeEntry struct {
	Tag      string `json:"tag"`
	Plugin   string `json:"plugin"`
	Priority int    `json:"priority"`
}

// AlternativesResponse maps source tags to their alternatives, highest priority first
type AlternativesResponse struct {
	Alternatives map[string][]AlternativeEntry `json:"alternatives"`
	Rows         int                           `json:"rows"`
}

// MessageRecord represents one journaled bus delivery
type MessageRecord struct {
	ID        string      `json:"id"`
	Tag       string      `json:"tag"`
	Sender    string      `json:"sender"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Offset    int64       `json:"offset"`
}

// ReadMessagesResponse represents a page of journaled messages for one tag
type ReadMessagesResponse struct {
	Messages    []MessageRecord `json:"messages"`
	Tag         string          `json:"tag"`
	StartOffset int64           `json:"startOffset"`
	EndOffset   int64           `json:"endOffset"`
	Count       int             `json:"count"`
}

// PluginInfo describes a loaded plugin
type PluginInfo struct {
	Name      string    `json:"name"`
	Listeners int       `json:"listeners"`
	Core      bool      `json:"core"`
	LoadedAt  time.Time `json:"loadedAt"`
}

// PluginsResponse lists loaded plugins in load order
type PluginsResponse struct {
	Plugins []PluginInfo `json:"plugins"`
}

// UnloadResponse represents the result of an admin plugin unload
type UnloadResponse struct {
	Plugin   string `json:"plugin"`
	Unloaded bool   `json:"unloaded"`
}

// AlternativeStats summarizes the routing table
type AlternativeStats struct {
	Rows    int            `json:"rows"`
	Entries int            `json:"entries"`
	Owners  map[string]int `json:"owners"`
}

// BusStats summarizes bus traffic
type BusStats struct {
	Published     int64 `json:"published"`
	Delivered     int64 `json:"delivered"`
	Unrouted      int64 `json:"unrouted"`
	Overflow      int64 `json:"overflow"`
	Panics        int64 `json:"panics"`
	Subscriptions int   `json:"subscriptions"`
}

// JournalStats summarizes the message journal
type JournalStats struct {
	TotalMessages int64 `json:"totalMessages"`
	Retained      int64 `json:"retained"`
	Tags          int   `json:"tags"`
}

// AdminStatsResponse represents system statistics
type AdminStatsResponse struct {
	Plugins      int              `json:"plugins"`
	Alternatives AlternativeStats `json:"alternatives"`
	Bus          BusStats         `json:"bus"`
	Journal      JournalStats     `json:"journal"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy            bool   `json:"healthy"`
	Started            bool   `json:"started"`
	AlternativesLoaded bool   `json:"alternativesLoaded"`
	LoadedPlugins      int    `json:"loadedPlugins"`
	Subscriptions      int    `json:"subscriptions"`
	Message            string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
