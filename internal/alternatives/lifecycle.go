package alternatives

import (
	"log/slog"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// LifecycleManager purges a plugin's alternatives when the plugin unloads.
type LifecycleManager struct {
	registry alternatives.Registry
	logger   *slog.Logger
}

// NewLifecycleManager creates a lifecycle manager over registry.
func NewLifecycleManager(registry alternatives.Registry, logger *slog.Logger) *LifecycleManager {
	return &LifecycleManager{
		registry: registry,
		logger:   logging.OrDiscard(logger).With("component", "alternatives"),
	}
}

// HandleUnload is the bus handler for plugin-unload events.
func (l *LifecycleManager) HandleUnload(msg bus.Message) {
	owner, ok := OwnerFromPayload(msg.Payload)
	if !ok {
		l.logger.Warn("attempt to unload null plugin", "sender", msg.Sender, "payload", msg.Payload)
		return
	}
	l.PluginUnloaded(owner)
}

// PluginUnloaded purges every alternative owned by owner.
func (l *LifecycleManager) PluginUnloaded(owner string) alternatives.PurgeResult {
	if owner == "" {
		l.logger.Warn("attempt to unload null plugin")
		return alternatives.PurgeResult{}
	}

	result := l.registry.Purge(owner)
	l.logger.Info("purged alternatives of unloaded plugin",
		"owner", owner,
		"removed", len(result.Removed),
		"vacated_tags", len(result.VacatedTags),
	)
	return result
}

// OwnerFromPayload extracts the plugin identifier from an unload payload:
// either the name itself or a map holding it under "name" or "plugin".
func OwnerFromPayload(payload any) (string, bool) {
	var owner string
	switch p := payload.(type) {
	case string:
		owner = p
	case map[string]any:
		owner = firstString(p, "name", "plugin")
	case map[string]string:
		owner = p["name"]
		if owner == "" {
			owner = p["plugin"]
		}
	}
	return owner, owner != ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
