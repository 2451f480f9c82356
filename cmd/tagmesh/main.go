package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/config"
	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Application info
	appName    = "TagMesh"
	appVersion = "0.1.0"

	envPrefix       = "TAGMESH"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the daemon command with its own viper instance
func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "tagmesh",
		Short:   "Alternative routing engine daemon",
		Long:    `tagmesh hosts the core plugin and its alternative routing table, loads the enabled plugins and serves the admin HTTP API.`,
		Version: appVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("sync-bus", false, "deliver bus messages synchronously")
	flags.Bool("http", true, "enable the HTTP admin API")
	flags.Int("http-port", 8081, "HTTP admin API port")
	flags.String("secret", "", "JWT secret key for the HTTP admin API")
	flags.Bool("no-auth", false, "disable authentication on the HTTP admin API (development only)")
	flags.Bool("grpc", false, "enable the gRPC diagnostics server")
	flags.String("grpc-listen", "localhost:9091", "gRPC diagnostics listen address")
	flags.StringSlice("plugins", []string{"core-utils"}, "plugins to load after the core plugin")
	flags.String("seed", "", "YAML file of alternatives registered at startup")
	flags.Bool("seed-watch", false, "reapply the seed file when it changes")

	// Bind flags to viper
	bindings := map[string]string{
		"log.level":       "log-level",
		"log.format":      "log-format",
		"bus.synchronous": "sync-bus",
		"http.enabled":    "http",
		"http.port":       "http-port",
		"http.secret_key": "secret",
		"http.no_auth":    "no-auth",
		"grpc.enabled":    "grpc",
		"grpc.listen":     "grpc-listen",
		"plugins.enabled": "plugins",
		"seed.file":       "seed",
		"seed.watch":      "seed-watch",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newValidateSeedCommand(v))
	return rootCmd
}

// initConfig registers defaults, the environment and an optional config file on v
func initConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}
	return nil
}

// run starts the daemon and blocks until a shutdown signal or ctx is done
func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger.Info("🚀 Starting "+appName, "version", appVersion)

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("▶️  Starting host")
	if err := d.start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, d.stop(shutdownCtx))
	}

	d.logStartupInfo()
	logger.Info("✅ " + appName + " started successfully, use Ctrl+C to shut down")

	<-ctx.Done()
	logger.Info("🛑 Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.stop(shutdownCtx); err != nil {
		logger.Warn("⚠️  Error during graceful stop", "error", err)
		return err
	}

	logger.Info("👋 " + appName + " stopped")
	return nil
}

// healthStatus returns a colored health status string
func healthStatus(healthy bool) string {
	if healthy {
		return "✅ Healthy"
	}
	return "❌ Unhealthy"
}
