// Package main runs the job watcher:
// - resumes tracking of persisted jobs that have not finished
// - picks up jobs persisted by other processes on every rescan
// - serves job status, asset queries and Prometheus metrics over HTTP
// - optionally logs newly created models and kiosk listings from the node
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imaigine-lab/internal/api"
	"imaigine-lab/internal/app"
	"imaigine-lab/internal/assets"
	"imaigine-lab/internal/config"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/observability"
	"imaigine-lab/internal/sui"
)

func main() {
	configPath := flag.String("config", os.Getenv("IMAIGINE_CONFIG"), "Path to a yaml config file")
	rescan := flag.Duration("rescan", app.DefaultRescanInterval, "Interval between scans for unfinished jobs")
	watchAssets := flag.Bool("watch-assets", false, "Log new models and listings from the websocket feed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.NewJSON(os.Stdout, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	tracking := app.NewTracking(a.Flow, a.Stores.Handles, log)
	handler := api.NewHandler(tracking, a.Stores.Handles, a.Assets, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(observability.HandlerFor(a.Registry)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(ctx, "shutting down", "signal", sig.String())
		cancel()

		// Second signal exits immediately
		sig = <-sigCh
		log.Warn(ctx, "forced exit", "signal", sig.String())
		os.Exit(1)
	}()

	go tracking.Run(ctx, *rescan)

	if *watchAssets {
		if err := watch(ctx, cfg, log); err != nil {
			log.Error(ctx, "asset watcher failed", "error", err)
		}
	}

	go func() {
		log.Info(ctx, "http server listening", "addr", cfg.Server.Addr, "network", cfg.Network)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown failed", "error", err)
	}
	log.Info(shutdownCtx, "shutdown complete", "tracked", tracking.Active())
}

// watch subscribes to model creation and listing events and logs them
// until ctx ends.
func watch(ctx context.Context, cfg config.Config, log logging.Logger) error {
	ws, err := sui.NewWSClient(ctx, cfg.Sui.WSURL, nil, log)
	if err != nil {
		return err
	}
	w := assets.NewWatcher(ws, cfg.Contracts, log)

	created, err := w.Created(ctx, domain.AssetKindModel)
	if err != nil {
		ws.Close()
		return err
	}
	listed, err := w.Listings(ctx)
	if err != nil {
		ws.Close()
		return err
	}

	go func() {
		defer ws.Close()
		for created != nil || listed != nil {
			select {
			case n, ok := <-created:
				if !ok {
					created = nil
					continue
				}
				log.Info(ctx, "model created", "id", n.AssetID, "tx", n.TxDigest)
			case n, ok := <-listed:
				if !ok {
					listed = nil
					continue
				}
				log.Info(ctx, "model listed", "id", n.AssetID, "kiosk", n.Listing.KioskID, "price_mist", n.Listing.Price)
			}
		}
	}()
	return nil
}
