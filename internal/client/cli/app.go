package cli

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/config"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/fleetzen/internal/client/services"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// App holds the resources shared by the agent commands.
type App struct {
	Config      *config.Config
	Logger      logging.Logger
	DBs         *client.Databases
	API         client.Client
	Meta        metadata.Repository
	Auth        *services.AuthService
	Drafts      *services.DraftService
	Queue       outbox.Repository
	LastContext *services.LastContextCache
}

// OpenApp opens the local databases under cfg.DataDir and wires the
// services around them.
func OpenApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	dbs, err := client.OpenDatabases(ctx, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	app, err := newApp(cfg, logger, dbs, nil)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}
	return app, nil
}

// newApp wires services over dbs. A nil api gets an HTTP client for
// cfg.ServerURL authenticated with the stored token.
func newApp(cfg *config.Config, logger logging.Logger, dbs *client.Databases, api client.Client) (*App, error) {
	meta := metadata.NewSQLiteRepository(dbs.Drafts)
	auth := services.NewAuthService(meta, logger)

	if api == nil {
		hc, err := client.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout, auth.Token)
		if err != nil {
			return nil, err
		}
		api = hc
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		DBs:         dbs,
		API:         api,
		Meta:        meta,
		Auth:        auth,
		Drafts:      services.NewDraftService(dbs.Drafts, logger),
		Queue:       outbox.NewSQLiteRepository(dbs.Outbox),
		LastContext: services.NewLastContextCache(meta),
	}, nil
}

func (a *App) Close() error {
	if a.DBs == nil {
		return nil
	}
	return a.DBs.Close()
}

// probe reports whether the sync server answers right now.
func (a *App) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return a.API.Ping(ctx) == nil
}

func (a *App) dispatcher(online bool) *services.Dispatcher {
	return services.NewDispatcher(a.API, a.Queue, staticState(online), a.Logger)
}

func (a *App) drainer() *services.Drainer {
	return services.NewDrainer(a.API, a.Queue, services.DefaultRetryPolicy(), a.Logger)
}

// maintain removes expired local data. It runs before long-lived work.
func (a *App) maintain(ctx context.Context) error {
	removed, err := a.Queue.CleanupOldFailed(ctx, time.Now())
	if err != nil {
		return err
	}
	if removed > 0 {
		a.Logger.Info(ctx, "old failed submissions removed", "count", removed)
	}
	_, err = a.Meta.DeleteExpired(ctx)
	return err
}

type staticState bool

func (s staticState) IsOnline() bool { return bool(s) }

var errOffline = errors.New("sync server unreachable")
