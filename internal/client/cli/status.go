package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status <localId>",
		Short: "Show how the server recorded a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rec, err := s.app.API.GetIntervention(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cyan.Fprintf(out, "%s\n", rec.Number)
			fmt.Fprintf(out, "Id:       %s\n", rec.ID)
			fmt.Fprintf(out, "Local id: %s\n", rec.LocalID)
			fmt.Fprintf(out, "Title:    %s\n", rec.Title)
			fmt.Fprintf(out, "Status:   %s\n", rec.Status)
			if rec.SyncedAt != nil {
				fmt.Fprintf(out, "Synced:   %s\n", rec.SyncedAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Photos:   %d\n", len(rec.Photos))
			return nil
		},
	}
}
