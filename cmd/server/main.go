// Package main is the entry point for the simplane server. It serves the
// websocket protocol and runs simulation jobs one at a time in worker
// processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"simplane/internal/cache"
	"simplane/internal/circuit"
	"simplane/internal/config"
	"simplane/internal/eventloop"
	"simplane/internal/gateway"
	"simplane/internal/logger"
	"simplane/internal/observability"
	"simplane/internal/scheduler"
	"simplane/internal/worker/runtime"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: simplane.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	l := logger.New(os.Stderr, level)
	slog.SetDefault(l)

	ctx := context.Background()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "simplane-server", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			l.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("simplane-server")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			l.Error("failed to shutdown metrics", "error", err)
		}
	}()

	loop := eventloop.New(l)
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go func() {
		if err := loop.Run(loopCtx); err != nil {
			l.Error("event loop stopped", "error", err)
		}
	}()

	// Circuit store
	c, err := cache.Open(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()
	sqlite := circuit.NewSQLiteStore(nil)
	sqlite.MorphEpsilon = cfg.AstrocyteMorphEpsilon
	defer sqlite.Close()
	store := circuit.NewCached(sqlite, c, cfg.CacheTTL, l)

	// Scheduler
	binary, err := workerBinary(cfg.WorkerBinary)
	if err != nil {
		log.Fatalf("Failed to locate worker binary: %v", err)
	}
	rt := runtime.NewExecRuntime(binary, "")
	l.Info("using exec runtime", "binary", binary, "workdir", rt.WorkDir)

	env := map[string]string{"LOG_LEVEL": cfg.LogLevel}
	if cfg.SimModelsPath != "" {
		env["SIM_MODELS_PATH"] = cfg.SimModelsPath
	}
	if cfg.OTELEndpoint != "" {
		env["OTEL_EXPORTER_OTLP_ENDPOINT"] = cfg.OTELEndpoint
	}
	sched, err := scheduler.New(loop, rt, scheduler.Config{
		JoinTimeout: cfg.WorkerJoinTimeout,
		StopTimeout: cfg.WorkerStopTimeout,
		Env:         env,
		Logger:      l,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// Gateway
	gw, err := gateway.New(loop, sched, store, gateway.Options{
		Maintenance: cfg.Maintenance,
		ChunkCount:  cfg.ChunkCount,
		RateLimit:   cfg.CommandRateLimit,
		RateBurst:   cfg.CommandRateBurst,
		Logger:      l,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := gateway.NewServer(addr, gw, metricsHandler)

	go func() {
		l.Info("simplane server starting", "addr", addr, "maintenance", cfg.Maintenance)
		if err := srv.Run(ctx); err != nil {
			l.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := sched.TerminateAll(shutdownCtx); err != nil {
		l.Error("failed to terminate jobs", "error", err)
	}
	gw.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", "error", err)
	}
	if err := loop.Shutdown(shutdownCtx); err != nil {
		l.Error("event loop did not drain", "error", err)
	}
	l.Info("server exited properly")
}

// workerBinary resolves the worker executable: the configured path, or
// simworker next to the server executable.
func workerBinary(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "simworker"), nil
}
