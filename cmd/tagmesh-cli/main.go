package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/pkg/httpclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global flags
	serverURL string
	clientID  string
	token     string
	timeout   time.Duration
	noAuth    bool

	// Global client instance
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TAGMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "tagmesh-cli",
		Short: "TagMesh HTTP API command line interface",
		Long: `tagmesh-cli is a command line interface for the TagMesh HTTP API.
It provides commands for authentication, inspecting the alternative routing table,
reading journaled messages and administering loaded plugins.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			serverURL = v.GetString("server")
			clientID = v.GetString("client-id")
			token = v.GetString("token")
			return initializeClient(cmd, args)
		},
		SilenceUsage: true,
	}

	// Add global flags; each can also be set as TAGMESH_<FLAG>
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", "http://localhost:8081", "TagMesh server URL")
	flags.StringVar(&clientID, "client-id", "", "Client ID for authentication")
	flags.StringVar(&token, "token", "", "JWT token (if already authenticated)")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	flags.BoolVar(&noAuth, "no-auth", false, "Skip authentication (for development with --no-auth servers)")
	for _, name := range []string{"server", "client-id", "token"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	// Add subcommands
	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newAlternativesCommand())
	rootCmd.AddCommand(newMessagesCommand())
	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newAdminCommand())
	rootCmd.AddCommand(newHealthCommand())

	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	// Skip client initialization for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	// In no-auth mode, client-id is not required
	if !noAuth && clientID == "" && token == "" {
		return fmt.Errorf("client-id is required (unless using --no-auth or --token)")
	}

	effectiveClientID := clientID
	if effectiveClientID == "" {
		effectiveClientID = "dev-client"
	}

	var err error
	client, err = httpclient.NewClient(httpclient.Config{
		ServerURL: serverURL,
		ClientID:  effectiveClientID,
		Timeout:   timeout,
		NoAuth:    noAuth,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if token != "" {
		client.SetToken(token)
	}
	return nil
}

// requireAuthentication checks if the client is authenticated
func requireAuthentication() error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}

	// Skip authentication check in no-auth mode
	if noAuth {
		return nil
	}

	if !client.IsAuthenticated() {
		return fmt.Errorf("not authenticated - run 'tagmesh-cli auth' first or provide --token")
	}
	return nil
}
