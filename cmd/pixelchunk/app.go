package main

import (
	"context"
	"net/http"

	"github.com/c0deZ3R0/pixel-chunk/config"
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/resolver"
	"github.com/c0deZ3R0/pixel-chunk/session"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
	"github.com/c0deZ3R0/pixel-chunk/storage/postgres"
	"github.com/c0deZ3R0/pixel-chunk/storage/sqlite"
	"github.com/c0deZ3R0/pixel-chunk/transport/httptransport"
	"github.com/c0deZ3R0/pixel-chunk/transport/sse"
	"github.com/c0deZ3R0/pixel-chunk/transport/wstransport"
)

const opStart = errors.Op("pixelchunk.start")

// app is the wired server: one store, one resolver, one session manager and
// the three transports sharing a router.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   snapshot.Store
	manager *session.Manager
	edit    *wstransport.Server
	feed    *sse.Server
	api     *httptransport.Server

	// listener is set for the postgres driver; it wakes feeds on commits
	// made by any server sharing the database.
	listener *postgres.Listener
}

func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.store = snapshot.NewCachedStore(store, snapshot.CacheConfig{
		TTL:      cfg.Storage.CacheTTL,
		Capacity: cfg.Storage.CacheCapacity,
	})

	a.feed = sse.NewServer(a.store, logger.WithComponent("transport/sse"))
	a.feed.PollInterval = cfg.Feed.PollInterval

	hooks := resolver.Hooks{}
	if a.listener != nil {
		a.feed.Notifier = a.listener
	} else {
		broadcaster := sse.NewBroadcaster()
		a.feed.Notifier = broadcaster
		hooks.OnCommitted = func(projectID, _ string, _ string) { broadcaster.Publish(projectID) }
	}

	r, err := resolver.New(a.store,
		resolver.WithMaxAttempts(cfg.Resolver.MaxAttempts),
		resolver.WithHooks(hooks),
		resolver.WithLogger(logger.WithComponent("resolver")),
	)
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.manager = session.NewManager(a.store, r, logger.WithComponent("session"))
	a.edit = wstransport.NewServer(a.manager, &wstransport.Settings{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		PingInterval:     cfg.Session.PingInterval,
		ReadTimeout:      cfg.Session.ReadTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
		MaxMessageBytes:  cfg.Session.MaxMessageBytes,
	}, logger.WithComponent("transport/ws"))

	a.api = httptransport.NewServer(a.store, logger.WithComponent("transport/http"),
		httptransport.WithDefaultDimensions(cfg.Grid.DefaultRows, cfg.Grid.DefaultCols))
	a.api.Edit = a.edit.Handler()
	a.api.Feed = a.feed.Handler()
	return a, nil
}

func (a *app) openStore() (snapshot.Store, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		return snapshot.NewMemoryStore(), nil
	case config.DriverSQLite:
		c := sqlite.DefaultConfig(a.cfg.Storage.DSN)
		c.Logger = a.logger.WithComponent("storage/sqlite")
		return sqlite.New(c)
	case config.DriverPostgres:
		c := postgres.DefaultConfig(a.cfg.Storage.DSN)
		c.Logger = a.logger.WithComponent("storage/postgres")
		store, err := postgres.New(c)
		if err != nil {
			return nil, err
		}
		a.listener = store.Listener()
		return store, nil
	}
	return nil, errors.E(opStart, errors.KindInvalid, "unknown storage driver "+a.cfg.Storage.Driver)
}

// start begins background work tied to ctx.
func (a *app) start(ctx context.Context) error {
	if a.listener != nil {
		return a.listener.Start(ctx)
	}
	return nil
}

func (a *app) handler() http.Handler {
	return a.api.Handler()
}

// close drops every edit connection, then the sessions and the store.
func (a *app) close() error {
	a.edit.Close()
	a.manager.CloseAll()
	if a.listener != nil {
		a.listener.Close()
	}
	return a.store.Close()
}
