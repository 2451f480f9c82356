package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPluginsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List loaded plugins",
		Long:  "List the plugins loaded by the host, in load order",
		RunE:  runPlugins,
	}
}

func runPlugins(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	response, err := client.ListPlugins(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(response.Plugins) == 0 {
		fmt.Fprintln(out, "No plugins loaded")
		return nil
	}

	fmt.Fprintf(out, "🔌 %d plugin(s) loaded:\n\n", len(response.Plugins))
	for i, p := range response.Plugins {
		role := ""
		if p.Core {
			role = " [core]"
		}
		fmt.Fprintf(out, "%d. %s%s\n", i+1, p.Name, role)
		fmt.Fprintf(out, "   Listeners: %d\n", p.Listeners)
		if !p.LoadedAt.IsZero() {
			fmt.Fprintf(out, "   Loaded:    %s\n", p.LoadedAt.Format(time.RFC3339))
		}
	}
	return nil
}
