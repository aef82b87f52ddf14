package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the agent access token",
		Long: `Read an access token issued for this agent and store it locally. The token
is checked against the sync server when it can be reached; an unreachable
server does not prevent storing it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := s.app
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			token, err := readSecret(out, cmd.InOrStdin(), "Access token: ")
			if err != nil {
				return err
			}
			agentID, err := a.Auth.Login(ctx, a.API, token)
			if err != nil {
				return err
			}

			if agentID == "" {
				yellow.Fprintln(out, "Token stored; the server could not be reached to verify it.")
				return nil
			}
			green.Fprintf(out, "Logged in as %s\n", agentID)
			return nil
		},
	}
}

func newLogoutCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
