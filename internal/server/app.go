// Package server wires the sync server: PostgreSQL, migrations, object
// storage, the optional Redis lock and the HTTP API. It handles graceful
// shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/logging"
	"github.com/dmitrijs2005/fleetzen/internal/server/config"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver"
	"github.com/dmitrijs2005/fleetzen/internal/server/locks"
	"github.com/dmitrijs2005/fleetzen/internal/server/photoproc"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fleetzen/internal/server/services"
	"github.com/dmitrijs2005/fleetzen/internal/server/shared/db"
	"github.com/dmitrijs2005/fleetzen/internal/server/storage"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	closers []io.Closer
	server  *httpserver.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, "json", c.LogLevel)

	conn, err := db.Connect(ctx, c.DatabaseDSN, db.DefaultServerOptions())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: conn, closers: []io.Closer{conn}}

	var locker locks.Locker = locks.Nop{}
	if c.RedisAddr != "" {
		rl := locks.NewRedisLocker(c.RedisAddr, c.LockTTL, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rl.Ping(pingCtx); err != nil {
			logger.Warn(ctx, "redis unreachable; locks are best-effort", "addr", c.RedisAddr, "error", err)
		}
		cancel()
		locker = rl
		app.closers = append(app.closers, rl)
	}

	opts := photoproc.DefaultOptions()
	opts.MaxDimension = c.PhotoMaxDimension
	opts.TargetBytes = c.PhotoTargetBytes

	gin.SetMode(gin.ReleaseMode)
	router := httpserver.NewRouter(httpserver.Deps{
		Logger:         logger,
		SecretKey:      []byte(c.SecretKey),
		CORSOrigins:    c.CORSAllowedOrigins,
		MaxUploadBytes: c.MaxUploadBytes,
		Interventions:  services.NewInterventionService(conn, rm, locker, store, logger),
		Photos:         services.NewPhotoService(conn, rm, store, logger, c.MaxUploadBytes, opts),
		Health:         conn.PingContext,
	})

	app.server = httpserver.NewServer(c.HTTPAddr, router, logger)
	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close error", "error", err)
		}
	}
	app.logger.Info(context.Background(), "App stopped")
}
