package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with TagMesh server",
		Long: `Authenticate with the TagMesh server using your client ID.
This will generate a JWT token that can be used for subsequent requests.
The client ID "admin" receives an admin token.`,
		RunE: runAuth,
	}

	return cmd
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with server %s as client %s...\n", serverURL, clientID)

	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	token := client.GetToken()
	fmt.Fprintf(out, "✅ Authentication successful!\n")
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "\nYou can now use other commands or save this token for future use:\n")
	fmt.Fprintf(out, "  export TAGMESH_TOKEN=\"%s\"\n", token)
	fmt.Fprintf(out, "  tagmesh-cli alternatives --tag DeskChan:user-said\n")

	return nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token",
		Long:  "Revoke the token given with --token or TAGMESH_TOKEN so it can no longer be used",
		RunE:  runLogout,
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	response, err := client.Logout(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if response.Revoked {
		fmt.Fprintf(out, "👋 Token for %s revoked\n", response.ClientID)
	} else {
		fmt.Fprintf(out, "👋 Logged out %s (nothing to revoke)\n", response.ClientID)
	}
	return nil
}
