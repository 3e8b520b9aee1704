// Package main is the simplane worker process. It runs exactly one
// simulation job: the job spec arrives on stdin and status messages are
// written to the result pipe on file descriptor 3. SIGINT stops the job.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"simplane/internal/engine"
	"simplane/internal/logger"
	"simplane/internal/observability"
	"simplane/internal/sim"
	"simplane/internal/worker"
	"simplane/internal/worker/runtime"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("simworker: %v", err)
	}
}

func run() error {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return err
	}
	l := logger.New(os.Stderr, level).With("component", "simworker", "pid", os.Getpid())

	results := os.NewFile(runtime.ResultFD, "results")
	if results == nil {
		return fmt.Errorf("result pipe (fd %d) is not open", runtime.ResultFD)
	}
	defer results.Close()

	var spec sim.JobSpec
	if err := json.NewDecoder(os.Stdin).Decode(&spec); err != nil {
		return fmt.Errorf("failed to decode job spec: %w", err)
	}
	l = l.With("job_id", spec.JobID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "simplane-worker", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		l.Warn("failed to init tracing", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}
	ctx = observability.ExtractTrace(ctx, spec.Trace)

	models := engine.NewRegistry()
	if path := os.Getenv("SIM_MODELS_PATH"); path != "" {
		if err := models.LoadFile(path); err != nil {
			l.Warn("failed to load simulation models", "path", path, "error", err)
		}
	}

	lc := worker.New(engine.NewLIF(models), worker.NewJSONEmitter(results), worker.Config{Logger: l})

	l.Info("job started")
	if err := lc.Run(ctx, spec); err != nil {
		// already reported on the result pipe
		l.Warn("job failed", "error", err)
		return nil
	}
	l.Info("job finished")
	return nil
}
