// Package worker runs a single simulation job inside an isolated worker
// process and reports its progress as a stream of status messages.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"simplane/internal/engine"
	"simplane/internal/sim"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Emitter writes status messages to the result channel.
type Emitter interface {
	Emit(msg sim.Message) error
}

// Config holds tuning for the lifecycle.
type Config struct {
	// Yield is slept after each progress message so the reader on the other
	// end of the result channel can keep up (default: 1ms).
	Yield time.Duration

	// InterruptGrace bounds how long Run waits for the engine to return
	// after an interrupt has been reported (default: 5s).
	InterruptGrace time.Duration

	Logger *slog.Logger
}

// Lifecycle drives one job through initialization and run, emitting
// Initializing, zero or more Running, and exactly one terminal message.
type Lifecycle struct {
	engine  engine.Engine
	emitter Emitter
	config  Config
}

// New creates a lifecycle.
func New(e engine.Engine, emitter Emitter, config Config) *Lifecycle {
	if config.Yield <= 0 {
		config.Yield = time.Millisecond
	}
	if config.InterruptGrace <= 0 {
		config.InterruptGrace = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Lifecycle{engine: e, emitter: emitter, config: config}
}

// Run executes the job. Cancelling ctx is the external interrupt: the job is
// reported Finished and Run returns once the engine stops or the grace
// period expires. The returned error is the init or run failure, if any.
func (l *Lifecycle) Run(ctx context.Context, spec sim.JobSpec) error {
	id := spec.JobID
	g := &guard{emitter: l.emitter, logger: l.config.Logger.With("job_id", id)}

	ctx, span := otel.Tracer("simplane-worker").Start(ctx, "simulation.lifecycle",
		trace.WithAttributes(attribute.Int64("job.id", id)),
	)
	defer span.End()

	g.send(sim.Initializing(id))

	h, err := l.initialize(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			g.send(sim.Finished(id))
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "init failed")
		g.send(sim.InitError(id, err.Error()))
		return err
	}
	span.AddEvent("initialized")

	h.SetProgressHook(func() {
		if g.send(sim.Running(id, h.TraceDiff())) {
			time.Sleep(l.config.Yield)
		}
	})

	runErr := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				runErr <- &engine.RunError{Err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		runErr <- h.Run(ctx)
	}()

	select {
	case err := <-runErr:
		if err == nil || ctx.Err() != nil {
			g.send(sim.Finished(id))
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		g.send(sim.RunError(id, err.Error()))
		return err

	case <-ctx.Done():
		g.send(sim.Finished(id))
		span.AddEvent("interrupted")
		select {
		case <-runErr:
		case <-time.After(l.config.InterruptGrace):
			g.logger.Warn("engine did not stop within grace period", "grace", l.config.InterruptGrace)
		}
		return nil
	}
}

func (l *Lifecycle) initialize(ctx context.Context, spec sim.JobSpec) (h engine.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, &engine.InitError{Err: fmt.Errorf("engine panicked: %v", r)}
		}
	}()

	var circuit sim.CircuitConfig
	if len(spec.Circuit) > 0 {
		if err := json.Unmarshal(spec.Circuit, &circuit); err != nil {
			return nil, &engine.InitError{Err: fmt.Errorf("invalid circuit config: %w", err)}
		}
	}
	return l.engine.Initialize(ctx, circuit, spec.Simulation)
}

// guard serializes emission and drops everything after the first terminal
// message.
type guard struct {
	mu      sync.Mutex
	emitter Emitter
	closed  bool
	logger  *slog.Logger
}

func (g *guard) send(msg sim.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if msg.Status.Terminal() {
		g.closed = true
	}
	if err := g.emitter.Emit(msg); err != nil {
		g.logger.Error("failed to emit status", "status", msg.Status.String(), "error", err)
	}
	return true
}
