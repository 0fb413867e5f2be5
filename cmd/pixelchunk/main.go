// Command pixelchunk serves collaborative pixel-grid projects.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/sync/errgroup"

	"github.com/c0deZ3R0/pixel-chunk/config"
	"github.com/c0deZ3R0/pixel-chunk/logging"
)

const version = "0.1.0"

const usage = `Pixel chunk server.

Usage:
    pixelchunk [--config=<path>] [--addr=<addr>]
    pixelchunk -h | --help
    pixelchunk --version

Options:
    -h --help         Show this screen.
    --version         Show version.
    --config=<path>   YAML configuration file.
    --addr=<addr>     Listen address, overrides the configuration.`

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		logging.Fatalf("parse arguments: %v", err)
	}
	path, _ := opts.String("--config")

	cfg, err := config.Load(path)
	if err != nil {
		logging.Fatalf("load config: %v", err)
	}
	if addr, _ := opts.String("--addr"); addr != "" {
		cfg.Addr = addr
	}

	logging.Init(cfg.Logging)
	logger := logging.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.LogError(ctx, err, "Server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	if err := a.start(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: cfg.Session.HandshakeTimeout,
		// version streams end with ctx; Shutdown does not cancel them
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("Listening", slog.String("addr", cfg.Addr), slog.String("storage", cfg.Storage.Driver))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.edit.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
