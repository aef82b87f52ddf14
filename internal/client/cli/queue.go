package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/services"
	"github.com/dmitrijs2005/fleetzen/internal/common"
)

func newQueueCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage submissions waiting to sync",
		Long: `Without a subcommand, lists every queued submission.

Examples:
  fleetzen-agent queue
  fleetzen-agent queue retry 12 13
  fleetzen-agent queue cleanup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error { return listQueue(cmd, s) },
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List queued submissions, oldest first",
			Args:    cobra.NoArgs,
			RunE:    func(cmd *cobra.Command, _ []string) error { return listQueue(cmd, s) },
		},
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of pending submissions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := s.app.Queue.GetPendingCount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "retry [seq]...",
			Short: "Move failed submissions back to pending (all when no seq is given)",
			RunE: func(cmd *cobra.Command, args []string) error {
				seqs := make([]int64, 0, len(args))
				for _, arg := range args {
					seq, err := strconv.ParseInt(arg, 10, 64)
					if err != nil {
						return fmt.Errorf("%w: invalid seq %q", common.ErrValidation, arg)
					}
					seqs = append(seqs, seq)
				}
				n, err := s.app.Queue.RequeueFailed(cmd.Context(), seqs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s requeued\n", plural(n, "submission"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete failed submissions older than seven days",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := s.app.Queue.CleanupOldFailed(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", plural(n, "submission"))
				return nil
			},
		},
	)
	return cmd
}

func listQueue(cmd *cobra.Command, s *session) error {
	out := cmd.OutOrStdout()
	all, err := s.app.Queue.ListInterventions(cmd.Context())
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	for _, q := range all {
		printQueued(out, q)
	}
	return nil
}

func printQueued(out io.Writer, q *models.QueuedSubmission) {
	status := string(q.Status)
	switch q.Status {
	case models.QueueStatusPending:
		status = yellow.Sprint(status)
	case models.QueueStatusSyncing:
		status = cyan.Sprint(status)
	case models.QueueStatusFailed:
		status = red.Sprint(status)
	}

	fmt.Fprintf(out, "%4d  %s  %-8s  %-20s  %s  retries %d",
		q.Seq, shortID(q.TempID), status, q.Payload.Title, q.CreatedAt.Format("2006-01-02 15:04"), q.RetryCount)
	if len(q.Photos) > 0 {
		fmt.Fprintf(out, "  %s", plural(len(q.Photos), "photo"))
	}
	fmt.Fprintln(out)
	if q.LastError != "" {
		fmt.Fprintf(out, "      last error: %s\n", q.LastError)
	}
}

func newSyncCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued submissions to the server now",
		Long: `Drain the queue once. Failed submissions that have not used up their
automatic attempts are retried without waiting for their backoff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := s.app
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !a.probe(ctx) {
				return errOffline
			}

			d := a.drainer()
			d.RetryFailedNow()
			rep, err := d.Drain(ctx)
			printReport(out, rep)
			if err != nil && !errors.Is(err, services.ErrOffline) {
				return err
			}
			return nil
		},
	}
}

func printReport(out io.Writer, rep services.DrainReport) {
	if rep.Attempted == 0 {
		fmt.Fprintln(out, "Nothing to sync")
		return
	}
	green.Fprintf(out, "%s synced", plural(rep.Synced, "submission"))
	if rep.Failed > 0 {
		red.Fprintf(out, ", %d failed", rep.Failed)
	}
	fmt.Fprintln(out)
}
