package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/tagmesh/internal/plugins/speech"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// ErrUnknownPlugin is returned when an enabled plugin has no factory
var ErrUnknownPlugin = errors.New("unknown plugin")

// Catalog maps plugin names to their factories
type Catalog map[string]plugin.Factory

// DefaultCatalog returns the plugins built into tagmesh
func DefaultCatalog() Catalog {
	return Catalog{
		speech.Name: func() plugin.Plugin { return speech.New() },
	}
}

// StaticDiscovery implements Discovery using a static list of enabled plugins
type StaticDiscovery struct {
	enabled []string
	catalog Catalog
}

// NewStaticDiscovery creates a new static discovery service for the given plugin names
func NewStaticDiscovery(enabled []string, catalog Catalog) *StaticDiscovery {
	return &StaticDiscovery{
		enabled: enabled,
		catalog: catalog,
	}
}

// FindPlugins resolves the enabled names against the catalog, in order
func (s *StaticDiscovery) FindPlugins(ctx context.Context) ([]Descriptor, error) {
	descriptors := make([]Descriptor, 0, len(s.enabled))
	for _, name := range s.enabled {
		factory, ok := s.catalog[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
		}
		descriptors = append(descriptors, Descriptor{Name: name, Factory: factory})
	}
	return descriptors, nil
}
