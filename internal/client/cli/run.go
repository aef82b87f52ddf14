package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/fleetzen/internal/client/gateway"
	"github.com/dmitrijs2005/fleetzen/internal/client/network"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver"
)

// GatewayDBFile is the gateway cache file inside the data directory.
const GatewayDBFile = "gateway.db"

func newRunCommand(s *session) *cobra.Command {
	var noGateway bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent: watch connectivity, drain the queue and serve the gateway",
		Long: `Run until interrupted. The queue is drained on every reconnect, on every
submission registered for background sync and periodically. The gateway
proxies the web origin and serves cached pages while it is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, s.app, !noGateway)
		},
	}
	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "do not start the fetch gateway")
	return cmd
}

func runAgent(ctx context.Context, a *App, withGateway bool) error {
	cfg := a.Config
	logger := a.Logger

	// a failed gateway must also stop the detector and drainer
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.maintain(ctx); err != nil {
		logger.Warn(ctx, "startup cleanup failed", "error", err)
	}

	detector := network.NewDetector(a.API, cfg.OnlineCheckInterval, cfg.ReconnectPulse, logger)
	drainer := a.drainer()
	drainer.Online = detector
	drainer.OnPendingCount = func(n int) {
		logger.Info(ctx, "pending submissions", "count", n)
	}

	unsubscribe := detector.Subscribe(drainer.OnNetworkChange)
	defer unsubscribe()
	detector.Subscribe(func(st network.State) {
		if st.Online {
			logger.Info(ctx, "sync server reachable")
			drainer.Trigger()
		} else {
			logger.Warn(ctx, "sync server unreachable")
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		detector.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		drainer.Run(ctx, cfg.DrainInterval)
	}()

	var err error
	if withGateway {
		err = serveGateway(ctx, a)
	} else {
		<-ctx.Done()
	}

	cancel()
	wg.Wait()
	return err
}

func serveGateway(ctx context.Context, a *App) error {
	cfg := a.Config
	gin.SetMode(gin.ReleaseMode)

	store, err := gateway.OpenStore(filepath.Join(cfg.DataDir, GatewayDBFile))
	if err != nil {
		return err
	}
	defer store.Close()

	gw, err := gateway.New(cfg.WebOrigin, store, cfg.OfflinePage, a.Logger)
	if err != nil {
		return err
	}

	go func() {
		if _, err := gw.Install(ctx, cfg.CacheVersion, cfg.PrecacheURLs); err != nil {
			a.Logger.Warn(ctx, "precache not installed", "version", cfg.CacheVersion, "error", err)
		}
	}()

	return httpserver.NewServer(cfg.GatewayAddr, gw.Handler(), a.Logger).Run(ctx)
}
