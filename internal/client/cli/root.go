package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/fleetzen/internal/client/config"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// session opens the App once per invocation, after flags are parsed.
type session struct {
	open func(cmd *cobra.Command) (*App, error)
	app  *App
}

func (s *session) preRun(cmd *cobra.Command, _ []string) error {
	app, err := s.open(cmd)
	if err != nil {
		return err
	}
	s.app = app
	return nil
}

func (s *session) close() {
	if s.app != nil {
		_ = s.app.Close()
		s.app = nil
	}
}

func openFromFlags(cmd *cobra.Command) (*App, error) {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), "text", cfg.LogLevel)
	return OpenApp(cmd.Context(), cfg, logger)
}

func newRootCommand(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "fleetzen-agent",
		Short: "FleetZen field agent",
		Long: `fleetzen-agent keeps intervention drafts on this device, submits finished
interventions to the FleetZen sync server and queues them while the server
cannot be reached.

Examples:
  fleetzen-agent login
  fleetzen-agent draft new wash
  fleetzen-agent draft submit <id>
  fleetzen-agent queue list
  fleetzen-agent run`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.preRun,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newLoginCommand(s),
		newLogoutCommand(s),
		newDraftCommand(s),
		newQueueCommand(s),
		newSyncCommand(s),
		newStatusCommand(s),
		newRunCommand(s),
		newGatewayCommand(s),
	)
	return root
}

// Execute runs the agent command line with args taken from os.Args.
func Execute(ctx context.Context) error {
	s := &session{open: openFromFlags}
	defer s.close()
	return newRootCommand(s).ExecuteContext(ctx)
}

// shortID returns the first 8 characters of an id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
