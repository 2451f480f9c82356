package discovery

import (
	"context"

	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// Descriptor names a plugin and how to build it
type Descriptor struct {
	Name    string
	Factory plugin.Factory
}

// Discovery defines the interface for plugin discovery mechanisms
type Discovery interface {
	// FindPlugins discovers and returns the plugins to load
	FindPlugins(ctx context.Context) ([]Descriptor, error)
}
