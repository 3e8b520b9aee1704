// Package scheduler admits simulation jobs into a strictly FIFO queue and
// runs at most one of them at a time in an isolated worker.
//
// All queue state is owned by the event loop: public methods only post work
// to it. A single watcher goroutine blocks on the result channel and posts
// every worker message back to the loop, where it is routed to the
// subscriber of the active job.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"simplane/internal/sim"
	"simplane/internal/worker/runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ErrShuttingDown is reported to jobs submitted after TerminateAll.
var ErrShuttingDown = errors.New("scheduler is shutting down")

// Loop is the event loop the scheduler's state lives on.
type Loop interface {
	Submit(fn func()) error
}

// Subscriber receives the status messages of one job. It is always invoked
// on the event loop.
type Subscriber func(sim.Message)

// Config holds scheduler tuning.
type Config struct {
	// JoinTimeout bounds how long a worker may take to exit after reporting
	// a terminal status before it is killed (default: 10s).
	JoinTimeout time.Duration

	// StopTimeout bounds how long a cancelled worker may take to complete
	// the interrupt handshake before it is killed (default: 30s).
	StopTimeout time.Duration

	// Env is passed to every worker.
	Env map[string]string

	Logger *slog.Logger
}

type job struct {
	id         int64
	circuit    json.RawMessage
	simulation json.RawMessage
	subscriber Subscriber

	handle     runtime.Handle
	done       bool
	cancelling bool
	killTimer  *time.Timer

	span      trace.Span
	submitted time.Time
	started   time.Time
}

// Scheduler is the single-concurrency FIFO job scheduler.
type Scheduler struct {
	loop    Loop
	rt      runtime.Runtime
	results *Channel
	config  Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics

	nextID atomic.Int64

	// loop-owned
	pending      []*job
	active       *job
	shuttingDown bool

	// mirrors for metric callbacks
	depth     atomic.Int64
	activePid atomic.Int64

	terminateOnce sync.Once
	watcherDone   chan struct{}
}

// New creates a scheduler and starts its result watcher. A failure here is
// fatal for the server.
func New(loop Loop, rt runtime.Runtime, config Config) (*Scheduler, error) {
	if loop == nil {
		return nil, fmt.Errorf("event loop is required")
	}
	if rt == nil {
		return nil, fmt.Errorf("worker runtime is required")
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = 10 * time.Second
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Scheduler{
		loop:        loop,
		rt:          rt,
		results:     NewChannel(),
		config:      config,
		logger:      config.Logger.With("component", "scheduler"),
		tracer:      otel.Tracer("simplane-scheduler"),
		watcherDone: make(chan struct{}),
	}

	m, err := newMetrics(s)
	if err != nil {
		return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
	}
	s.metrics = m

	go s.watch()
	return s, nil
}

// Submit queues a job and returns its id. The job starts immediately when
// nothing else is running; otherwise the subscriber is told its queue
// position.
func (s *Scheduler) Submit(circuit, simulation json.RawMessage, sub Subscriber) (int64, error) {
	j := &job{
		id:         s.nextID.Add(1),
		circuit:    circuit,
		simulation: simulation,
		subscriber: sub,
		submitted:  time.Now(),
	}
	if err := s.loop.Submit(func() { s.enqueue(j) }); err != nil {
		return 0, ErrShuttingDown
	}
	return j.id, nil
}

// Cancel stops a job. An active job is interrupted and reports Finished once
// its worker completes the handshake. A queued job is removed and reports
// Finished immediately. Unknown or already finished jobs are ignored.
func (s *Scheduler) Cancel(id int64) {
	s.post(func() { s.cancel(id) })
}

// TerminateAll kills the active worker without a handshake, drops queued
// jobs and stops the watcher. Subscribers of the killed and dropped jobs
// receive no terminal status. It must be called while the event loop is
// still running and is safe to call more than once.
func (s *Scheduler) TerminateAll(ctx context.Context) error {
	s.terminateOnce.Do(func() {
		done := make(chan struct{})
		if err := s.loop.Submit(func() {
			s.terminate()
			close(done)
		}); err != nil {
			s.logger.Warn("event loop closed before shutdown, terminating inline")
			s.terminate()
			close(done)
		}

		select {
		case <-done:
		case <-ctx.Done():
		}

		s.results.Send(sim.ShuttingDown())
		s.results.Close()
	})

	select {
	case <-s.watcherDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch is the only goroutine that blocks on the result channel.
func (s *Scheduler) watch() {
	defer close(s.watcherDone)
	s.logger.Info("result watcher started")

	for {
		msg, ok := s.results.Receive()
		if !ok {
			return
		}
		if msg.Status == sim.StatusShuttingDown {
			s.logger.Info("result watcher stopped")
			return
		}
		s.post(func() { s.dispatch(msg) })
	}
}

func (s *Scheduler) post(fn func()) {
	if err := s.loop.Submit(fn); err != nil {
		s.logger.Debug("event loop closed, dropping task", "error", err)
	}
}

func (s *Scheduler) enqueue(j *job) {
	if s.shuttingDown {
		j.subscriber(sim.InitError(j.id, ErrShuttingDown.Error()))
		return
	}

	s.pending = append(s.pending, j)
	s.depth.Store(int64(len(s.pending)))
	s.metrics.submitted.Add(context.Background(), 1)
	s.logger.Info("job submitted", "job_id", j.id, "pending", len(s.pending))

	if s.active == nil {
		s.runNext()
		return
	}
	j.subscriber(sim.Queued(j.id, len(s.pending)-1))
}

func (s *Scheduler) runNext() {
	if s.shuttingDown || len(s.pending) == 0 {
		s.active = nil
		s.activePid.Store(0)
		return
	}

	j := s.pending[0]
	s.pending = slices.Delete(s.pending, 0, 1)
	s.depth.Store(int64(len(s.pending)))
	s.active = j

	s.broadcastPositions()
	s.launch(j)
}

func (s *Scheduler) broadcastPositions() {
	for i, p := range s.pending {
		p.subscriber(sim.Queued(p.id, i))
	}
}

func (s *Scheduler) launch(j *job) {
	ctx, span := s.tracer.Start(context.Background(), "simulation.job",
		trace.WithAttributes(attribute.Int64("job.id", j.id)),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	j.span = span
	j.started = time.Now()
	s.metrics.wait.Record(ctx, j.started.Sub(j.submitted).Seconds())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	h, err := s.rt.Start(ctx, runtime.StartOptions{
		Spec: sim.JobSpec{
			JobID:      j.id,
			Circuit:    j.circuit,
			Simulation: j.simulation,
			Trace:      carrier,
		},
		Env:  s.config.Env,
		Sink: s.deliver,
	})
	if err != nil {
		s.logger.Error("failed to launch worker", "job_id", j.id, "error", err)
		msg := sim.InitError(j.id, fmt.Sprintf("failed to start simulation worker: %v", err))
		j.subscriber(msg)
		s.complete(j, msg)
		return
	}

	j.handle = h
	s.activePid.Store(int64(h.Pid()))
	s.logger.Info("job started", "job_id", j.id, "pid", h.Pid())
}

// deliver is the runtime sink. It runs on runtime goroutines.
func (s *Scheduler) deliver(msg sim.Message) {
	if !s.results.Send(msg) {
		s.logger.Debug("result channel closed, dropping status", "job_id", msg.JobID, "status", msg.Status.String())
	}
}

func (s *Scheduler) dispatch(msg sim.Message) {
	j := s.active
	if j == nil || j.id != msg.JobID || j.done {
		s.logger.Debug("dropping stale status", "job_id", msg.JobID, "status", msg.Status.String())
		return
	}
	if s.shuttingDown {
		return
	}

	// a worker killed after a cancel request never completes the handshake
	if j.cancelling && msg.Status == sim.StatusRunError {
		msg = sim.Finished(j.id)
	}

	j.subscriber(msg)
	if msg.Status.Terminal() {
		s.complete(j, msg)
	}
}

// complete records a terminal status, then joins the worker off the loop and
// promotes the next job once it is gone.
func (s *Scheduler) complete(j *job, msg sim.Message) {
	j.done = true
	if j.killTimer != nil {
		j.killTimer.Stop()
	}

	status := msg.Status.String()
	if j.cancelling {
		status = "cancelled"
	}
	attrs := attribute.String("status", status)
	s.metrics.finished.Add(context.Background(), 1, metricAttrs(attrs))
	s.metrics.duration.Record(context.Background(), time.Since(j.started).Seconds(), metricAttrs(attrs))

	if j.span != nil {
		j.span.SetAttributes(attrs)
		if msg.Error != "" {
			j.span.SetStatus(codes.Error, msg.Error)
		}
		j.span.End()
	}
	s.logger.Info("job completed", "job_id", j.id, "status", status)

	if j.handle == nil {
		s.post(func() { s.promote(j) })
		return
	}
	go s.join(j)
}

func (s *Scheduler) join(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JoinTimeout)
	res, err := j.handle.Wait(ctx)
	cancel()

	if err != nil {
		s.logger.Warn("worker did not exit after completing, killing", "job_id", j.id, "timeout", s.config.JoinTimeout)
		if kerr := j.handle.Kill(); kerr != nil {
			s.logger.Error("failed to kill worker", "job_id", j.id, "error", kerr)
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.config.JoinTimeout)
		res, err = j.handle.Wait(ctx)
		cancel()
	}

	if err != nil {
		s.logger.Error("worker could not be joined", "job_id", j.id, "error", err)
	} else {
		s.logger.Debug("worker exited", "job_id", j.id, "exit_code", res.ExitCode)
	}

	s.post(func() { s.promote(j) })
}

func (s *Scheduler) promote(j *job) {
	if s.active != j {
		return
	}
	s.active = nil
	s.activePid.Store(0)
	s.runNext()
}

func (s *Scheduler) cancel(id int64) {
	if j := s.active; j != nil && j.id == id {
		if j.done || j.cancelling || j.handle == nil {
			return
		}
		j.cancelling = true
		j.span.AddEvent("cancel requested")
		s.logger.Info("interrupting active job", "job_id", id)

		if err := j.handle.Interrupt(); err != nil {
			s.logger.Error("failed to interrupt worker", "job_id", id, "error", err)
		}
		j.killTimer = time.AfterFunc(s.config.StopTimeout, func() {
			s.post(func() {
				if j.done {
					return
				}
				s.logger.Warn("worker ignored interrupt, killing", "job_id", id, "timeout", s.config.StopTimeout)
				if err := j.handle.Kill(); err != nil {
					s.logger.Error("failed to kill worker", "job_id", id, "error", err)
				}
			})
		})
		return
	}

	for i, p := range s.pending {
		if p.id != id {
			continue
		}
		s.pending = slices.Delete(s.pending, i, i+1)
		s.depth.Store(int64(len(s.pending)))
		s.metrics.finished.Add(context.Background(), 1, metricAttrs(attribute.String("status", "cancelled")))
		s.logger.Info("removed queued job", "job_id", id, "position", i)

		p.subscriber(sim.Finished(id))
		s.broadcastPositions()
		return
	}

	s.logger.Debug("cancel for unknown or finished job ignored", "job_id", id)
}

func (s *Scheduler) terminate() {
	s.shuttingDown = true

	if dropped := len(s.pending); dropped > 0 {
		s.logger.Info("dropping queued jobs on shutdown", "count", dropped)
	}
	s.pending = nil
	s.depth.Store(0)

	j := s.active
	if j == nil || j.done || j.handle == nil {
		return
	}
	j.done = true
	if j.killTimer != nil {
		j.killTimer.Stop()
	}
	if j.span != nil {
		j.span.AddEvent("terminated")
		j.span.End()
	}
	s.logger.Info("killing active worker on shutdown", "job_id", j.id)
	if err := j.handle.Kill(); err != nil {
		s.logger.Error("failed to kill worker", "job_id", j.id, "error", err)
	}
}
