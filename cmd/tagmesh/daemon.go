package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/config"
	"github.com/rmacdonaldsmith/tagmesh/internal/coreplugin"
	"github.com/rmacdonaldsmith/tagmesh/internal/diagnostics"
	"github.com/rmacdonaldsmith/tagmesh/internal/discovery"
	"github.com/rmacdonaldsmith/tagmesh/internal/host"
	"github.com/rmacdonaldsmith/tagmesh/internal/httpapi"
	"github.com/rmacdonaldsmith/tagmesh/internal/tracing"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// daemon wires the host, the core plugin and the outer surfaces together
type daemon struct {
	cfg    config.Config
	logger *slog.Logger

	tracing *tracing.Provider
	host    *host.Host
	core    *coreplugin.Plugin

	watcher     *config.SeedWatcher
	httpServer  *httpapi.Server
	httpAddr    net.Addr
	diagnostics *diagnostics.Server
}

// newDaemon creates the tracer and host described by cfg. Nothing runs until start.
func newDaemon(cfg config.Config, logger *slog.Logger) (*daemon, error) {
	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	hostConfig := host.NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		return coreplugin.New(b, coreplugin.Config{
			Tracer: provider.Tracer(),
			Logger: logger,
		}), nil
	}).
		WithBusConfig(inprocess.Config{
			Synchronous: cfg.Bus.Synchronous,
			Workers:     cfg.Bus.Workers,
			QueueSize:   cfg.Bus.QueueSize,
		}).
		WithJournalMaxPerTag(cfg.Journal.MaxPerTag).
		WithLogger(logger)

	h, err := host.NewHost(hostConfig)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	return &daemon{
		cfg:     cfg,
		logger:  logger,
		tracing: provider,
		host:    h,
	}, nil
}

// start loads the core plugin, the enabled plugins and the seed, then opens
// the HTTP and diagnostics servers. Call stop even when start fails.
func (d *daemon) start(ctx context.Context) error {
	if err := d.host.Start(ctx); err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	p, ok := d.host.Plugin(coreplugin.Name)
	if !ok {
		return fmt.Errorf("core plugin %q is not loaded", coreplugin.Name)
	}
	core, ok := p.(*coreplugin.Plugin)
	if !ok {
		return fmt.Errorf("unexpected core plugin type %T", p)
	}
	d.core = core

	if err := d.loadPlugins(ctx); err != nil {
		return err
	}
	if err := d.startSeed(); err != nil {
		return err
	}

	if d.cfg.HTTP.Enabled {
		d.httpServer = httpapi.NewServer(d.host, d.core, d.host.Journal(), httpapi.Config{
			Port:      strconv.Itoa(d.cfg.HTTP.Port),
			SecretKey: d.cfg.HTTP.SecretKey,
			NoAuth:    d.cfg.HTTP.NoAuth,
			Logger:    d.logger,
		})
		addr, err := d.httpServer.Start()
		if err != nil {
			d.httpServer = nil
			return fmt.Errorf("failed to start HTTP API: %w", err)
		}
		d.httpAddr = addr
		if d.cfg.HTTP.NoAuth {
			d.logger.Warn("⚠️  HTTP API authentication is disabled")
		}
	}

	if d.cfg.GRPC.Enabled {
		server, err := diagnostics.NewServer(diagnostics.Config{ListenAddress: d.cfg.GRPC.Listen}, d.core, d.logger)
		if err != nil {
			return fmt.Errorf("failed to create diagnostics server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start diagnostics server: %w", err)
		}
		d.diagnostics = server
		server.SetServing(true)
	}

	return nil
}

// loadPlugins loads the enabled plugins in order after the core plugin
func (d *daemon) loadPlugins(ctx context.Context) error {
	descriptors, err := discovery.NewStaticDiscovery(d.cfg.Plugins.Enabled, discovery.DefaultCatalog()).FindPlugins(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover plugins: %w", err)
	}
	for _, desc := range descriptors {
		d.logger.Info("🔌 Loading plugin", "plugin", desc.Name)
		if err := d.host.Load(ctx, desc.Factory()); err != nil {
			return fmt.Errorf("failed to load plugin %s: %w", desc.Name, err)
		}
	}
	return nil
}

// startSeed applies the seed file and, when enabled, watches it for changes.
// A malformed seed entry is logged; an unreadable seed file fails startup.
func (d *daemon) startSeed() error {
	path := d.cfg.Seed.File
	if path == "" {
		return nil
	}

	regs, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	d.applySeed(path, regs)

	if !d.cfg.Seed.Watch {
		return nil
	}
	watcher, err := config.NewSeedWatcher(path, d.cfg.Seed.Debounce, d.reloadSeed, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create seed watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("failed to watch seed file: %w", err)
	}
	d.watcher = watcher
	return nil
}

// reloadSeed is the watcher callback. A broken edit keeps the current table.
func (d *daemon) reloadSeed(path string) {
	regs, err := config.LoadSeed(path)
	if err != nil {
		d.logger.Warn("⚠️  Seed reload failed, keeping current alternatives", "path", path, "error", err)
		return
	}
	d.applySeed(path, regs)
}

func (d *daemon) applySeed(path string, regs []alternatives.Registration) {
	service := d.core.Service()
	if service == nil {
		d.logger.Warn("⚠️  Core plugin is not loaded, seed ignored", "path", path)
		return
	}
	applied, err := config.ApplySeed(service.Registry(), regs)
	if err != nil {
		d.logger.Warn("⚠️  Some seed entries were rejected", "path", path, "error", err)
	}
	d.logger.Info("🌱 Seed applied", "path", path, "alternatives", applied)
}

// stop tears everything down in reverse order of start
func (d *daemon) stop(ctx context.Context) error {
	var errs []error

	if d.diagnostics != nil {
		d.diagnostics.SetServing(false)
		errs = append(errs, d.diagnostics.Close())
	}
	if d.httpServer != nil {
		if err := d.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping HTTP API: %w", err))
		}
	}
	if d.watcher != nil {
		errs = append(errs, d.watcher.Stop())
	}
	if err := d.host.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping host: %w", err))
	}
	errs = append(errs, d.host.Close())
	if err := d.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing traces: %w", err))
	}

	return errors.Join(errs...)
}

// logStartupInfo displays the host health and listening addresses
func (d *daemon) logStartupInfo() {
	health := d.host.Health()
	d.logger.Info("🏥 Health Status",
		"overall", healthStatus(health.Healthy),
		"plugins", health.LoadedPlugins,
		"subscriptions", health.Subscriptions,
	)
	if !health.Healthy {
		d.logger.Warn("⚠️  Health issues", "message", health.Message)
	}

	if stats, _, ok := d.core.Stats(); ok {
		d.logger.Info("🔀 Alternatives", "rows", stats.Rows, "entries", stats.Entries)
	}
	if d.httpAddr != nil {
		d.logger.Info("🌐 HTTP API", "addr", d.httpAddr.String())
	}
	if d.diagnostics != nil {
		d.logger.Info("🩺 Diagnostics", "addr", d.diagnostics.Addr())
	}
}
