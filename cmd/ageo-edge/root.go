package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/civitasgis/ageo-edge/internal/api"
	"github.com/civitasgis/ageo-edge/internal/cache"
	"github.com/civitasgis/ageo-edge/internal/config"
	"github.com/civitasgis/ageo-edge/internal/geo"
	"github.com/civitasgis/ageo-edge/internal/intercept"
	"github.com/civitasgis/ageo-edge/internal/netmon"
	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/syncer"
	"github.com/civitasgis/ageo-edge/internal/upstream"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ageo-edge",
	Short: "ageo-edge - offline-first edge gateway for the AGeo municipal portal",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Log.Level),
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Log.Level),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	instance := uuid.NewString()
	slog.Info("starting", "version", Version, "instance", instance,
		"upstream", cfg.Upstream.BaseURL)

	// 4. Notification hub for kiosk UIs
	hub := notify.NewHub()

	// 5. Open the durable queue. A storage failure is loud but not fatal:
	// the daemon keeps serving direct traffic with the queue disabled.
	var qs store.QueueStore
	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		slog.Error("queue store unavailable, running degraded",
			"path", cfg.Database.Path, "error", err)
		hub.Publish(notify.StorageError(err))
	} else {
		qs = sqlStore
		slog.Info("queue store initialized", "path", cfg.Database.Path)
	}

	// 6. Open the response cache
	cacheStore, err := cache.NewStore(cfg.Cache.Path, cfg.Cache.Generation)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	slog.Info("cache initialized",
		"path", cfg.Cache.Path, "generation", cfg.Cache.Generation)

	// 7. Upstream portal client and connectivity monitor
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL,
		cfg.Upstream.CSRFToken, time.Duration(cfg.Upstream.Timeout))
	probe := netmon.NewHTTPProbe(cfg.GetProbeURL(),
		time.Duration(cfg.Monitor.ProbeTimeout))
	monitor := netmon.NewMonitor(probe, time.Duration(cfg.Monitor.Interval))
	monitor.OnChange(func(online bool) {
		hub.Publish(notify.Connectivity(online))
	})

	// 8. Sync engine and its worker. Regaining connectivity triggers an
	// immediate pass on top of the periodic schedule.
	engine := syncer.NewEngine(qs, upstreamClient, hub)
	worker := syncer.NewWorker(engine, monitor, time.Duration(cfg.Sync.Interval))
	monitor.OnOnline(worker.Trigger)

	// 9. Interceptor, cache policy, geocoder
	interceptor := intercept.New(qs, upstreamClient, monitor, hub)
	policy := cache.NewPolicy(cacheStore, upstreamClient, cfg.Cache.OfflineURL,
		cfg.Cache.StaticPrefixes, cfg.Cache.APIPrefixes, logger)
	geocoder := geo.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.CSRFToken,
		time.Duration(cfg.Upstream.Timeout))

	// 10. HTTP surface
	apiHandler := api.NewHandler(qs, engine, cacheStore, geocoder, monitor,
		hub, hub, cfg.Auth.APIKey, Version, instance)
	gateway := api.NewGateway(interceptor, policy, upstreamClient,
		cfg.Upstream.SubmissionPaths, logger)
	router := api.NewRouter(apiHandler, gateway)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 11. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "monitor", monitor.Run)
	if qs != nil {
		startWorker(ctx, &wg, "syncer", worker.Run)
	}

	// Warm the cache so first offline use already has the shell.
	go policy.Warmup(ctx, cfg.Cache.PrecacheURLs)

	// 12. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 13. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 14. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 14a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 14b. Wait for workers to complete
	wg.Wait()

	// 14c. Close stores
	if err := cacheStore.Close(); err != nil {
		slog.Error("cache close error", "error", err)
	}
	if qs != nil {
		if err := qs.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
