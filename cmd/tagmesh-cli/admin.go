package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires admin privileges)",
		Long:  "Administrative commands for managing plugins and monitoring the TagMesh host",
	}

	cmd.AddCommand(newAdminUnloadCommand())
	cmd.AddCommand(newAdminStatsCommand())

	return cmd
}

func newAdminUnloadCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "unload",
		Short: "Unload a plugin",
		Long: `Unload a plugin from the host. Every alternative the plugin registered
is removed from the routing table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminUnload(cmd, name)
		},
	}

	cmd.Flags().StringVar(&name, "plugin", "", "Name of the plugin to unload (required)")

	// Mark plugin as required
	if err := cmd.MarkFlagRequired("plugin"); err != nil {
		panic(fmt.Sprintf("Failed to mark plugin flag as required: %v", err))
	}

	return cmd
}

func newAdminStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show system statistics",
		Long:  "Display routing table, bus and journal statistics",
		RunE:  runAdminStats,
	}

	return cmd
}

func runAdminUnload(cmd *cobra.Command, name string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	response, err := client.AdminUnloadPlugin(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🛑 Plugin %s unloaded\n", response.Plugin)
	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	response, err := client.AdminGetStats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 TagMesh System Statistics:\n\n")
	fmt.Fprintf(out, "Plugins: %d\n", response.Plugins)

	fmt.Fprintf(out, "\nAlternatives:\n")
	fmt.Fprintf(out, "  Rows: %d\n", response.Alternatives.Rows)
	fmt.Fprintf(out, "  Entries: %d\n", response.Alternatives.Entries)
	owners := make([]string, 0, len(response.Alternatives.Owners))
	for owner := range response.Alternatives.Owners {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	for _, owner := range owners {
		fmt.Fprintf(out, "    %s: %d\n", owner, response.Alternatives.Owners[owner])
	}

	fmt.Fprintf(out, "\nBus:\n")
	fmt.Fprintf(out, "  Published: %d\n", response.Bus.Published)
	fmt.Fprintf(out, "  Delivered: %d\n", response.Bus.Delivered)
	fmt.Fprintf(out, "  Unrouted: %d\n", response.Bus.Unrouted)
	fmt.Fprintf(out, "  Overflow: %d\n", response.Bus.Overflow)
	fmt.Fprintf(out, "  Handler Panics: %d\n", response.Bus.Panics)
	fmt.Fprintf(out, "  Subscriptions: %d\n", response.Bus.Subscriptions)

	fmt.Fprintf(out, "\nJournal:\n")
	fmt.Fprintf(out, "  Total Messages: %d\n", response.Journal.TotalMessages)
	fmt.Fprintf(out, "  Retained: %d\n", response.Journal.Retained)
	fmt.Fprintf(out, "  Tags: %d\n", response.Journal.Tags)

	return nil
}
