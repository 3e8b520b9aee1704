package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"simplane/internal/eventloop"
	"simplane/internal/sim"
	"simplane/internal/worker/runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// fakeRuntime hands out fakeHandles the test drives by hand.
type fakeRuntime struct {
	started     chan *fakeHandle
	failures    atomic.Int32
	onInterrupt func(*fakeHandle)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{started: make(chan *fakeHandle, 16)}
}

func (f *fakeRuntime) Start(ctx context.Context, opts runtime.StartOptions) (runtime.Handle, error) {
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("exec: simworker: not found")
	}
	h := &fakeHandle{
		spec:        opts.Spec,
		sink:        opts.Sink,
		onInterrupt: f.onInterrupt,
		exited:      make(chan struct{}),
	}
	f.started <- h
	return h, nil
}

type fakeHandle struct {
	spec        sim.JobSpec
	sink        func(sim.Message)
	onInterrupt func(*fakeHandle)

	mu         sync.Mutex
	interrupts int
	kills      int
	terminal   bool

	exited   chan struct{}
	exitOnce sync.Once
}

func (h *fakeHandle) emit(msg sim.Message) {
	h.mu.Lock()
	h.terminal = h.terminal || msg.Status.Terminal()
	h.mu.Unlock()
	h.sink(msg)
}

func (h *fakeHandle) exit() {
	h.exitOnce.Do(func() { close(h.exited) })
}

func (h *fakeHandle) counts() (interrupts, kills int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupts, h.kills
}

func (h *fakeHandle) Pid() int { return 4242 }

func (h *fakeHandle) Interrupt() error {
	h.mu.Lock()
	h.interrupts++
	fn := h.onInterrupt
	h.mu.Unlock()
	if fn != nil {
		go fn(h)
	}
	return nil
}

// Kill behaves like the exec runtime: a worker that never reported a
// terminal status gets a synthesized run error.
func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	synthesize := !h.terminal
	h.terminal = true
	h.mu.Unlock()

	select {
	case <-h.exited:
		return nil
	default:
	}
	if synthesize {
		h.sink(sim.RunError(h.spec.JobID, runtime.ErrChannelClosed.Error()))
	}
	h.exit()
	return nil
}

func (h *fakeHandle) Wait(ctx context.Context) (runtime.ExitResult, error) {
	select {
	case <-h.exited:
		return runtime.ExitResult{}, nil
	case <-ctx.Done():
		return runtime.ExitResult{ExitCode: -1}, ctx.Err()
	}
}

func gracefulInterrupt(h *fakeHandle) {
	h.emit(sim.Finished(h.spec.JobID))
	h.exit()
}

type inbox struct {
	mu   sync.Mutex
	msgs []sim.Message
}

func (b *inbox) receive(msg sim.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *inbox) snapshot() []sim.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sim.Message(nil), b.msgs...)
}

func (b *inbox) waitLen(t *testing.T, n int) []sim.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := b.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %+v", n, b.snapshot())
	return nil
}

func newTestScheduler(t *testing.T, rt *fakeRuntime, cfg Config) *Scheduler {
	t.Helper()
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	loop := eventloop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	s, err := New(loop, rt, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		s.TerminateAll(stopCtx)
		cancel()
		<-loop.Done()
	})
	return s
}

// syncScheduler waits until every task already posted to the loop has run.
func syncScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	done := make(chan struct{})
	if err := s.loop.Submit(func() { close(done) }); err != nil {
		t.Fatalf("loop closed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not drain")
	}
}

func expectStarted(t *testing.T, rt *fakeRuntime) *fakeHandle {
	t.Helper()
	select {
	case h := <-rt.started:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("expected a worker to be started")
		return nil
	}
}

func expectNotStarted(t *testing.T, rt *fakeRuntime) {
	t.Helper()
	select {
	case h := <-rt.started:
		t.Fatalf("unexpected worker start for job %d", h.spec.JobID)
	case <-time.After(50 * time.Millisecond):
	}
}

func submit(t *testing.T, s *Scheduler, b *inbox) int64 {
	t.Helper()
	id, err := s.Submit(json.RawMessage(`{"path":"circuit.db"}`), json.RawMessage(`{"tStop":10}`), b.receive)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return id
}

func assertStatuses(t *testing.T, msgs []sim.Message, want ...sim.Status) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), msgs)
	}
	for i, m := range msgs {
		if m.Status != want[i] {
			t.Errorf("message %d: expected %s, got %s", i, want[i], m.Status)
		}
	}
}

func finish(h *fakeHandle, status sim.Status) {
	switch status {
	case sim.StatusInitError:
		h.emit(sim.InitError(h.spec.JobID, "unknown cell model"))
	case sim.StatusRunError:
		h.emit(sim.RunError(h.spec.JobID, "solver diverged"))
	default:
		h.emit(sim.Finished(h.spec.JobID))
	}
	h.exit()
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, newFakeRuntime(), Config{}); err == nil {
		t.Error("expected error without a loop")
	}
	if _, err := New(eventloop.New(nil), nil, Config{}); err == nil {
		t.Error("expected error without a runtime")
	}
}

func TestSubmit_StartsFirstJobImmediately(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a := &inbox{}

	id := submit(t, s, a)
	if id != 1 {
		t.Errorf("expected first job id 1, got %d", id)
	}

	h := expectStarted(t, rt)
	if h.spec.JobID != id {
		t.Errorf("expected spec for job %d, got %d", id, h.spec.JobID)
	}
	if string(h.spec.Circuit) != `{"path":"circuit.db"}` || string(h.spec.Simulation) != `{"tStop":10}` {
		t.Errorf("unexpected spec payload %s %s", h.spec.Circuit, h.spec.Simulation)
	}

	h.emit(sim.Initializing(id))
	h.emit(sim.Running(id, &sim.ProgressPayload{Time: []float64{0.025}}))
	msgs := a.waitLen(t, 2)
	assertStatuses(t, msgs, sim.StatusInitializing, sim.StatusRunning)
	if msgs[1].Progress == nil || len(msgs[1].Progress.Time) != 1 {
		t.Errorf("expected progress payload, got %+v", msgs[1])
	}
}

func TestScenario_TwoJobsRunInOrder(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	idB := submit(t, s, b)
	hA := expectStarted(t, rt)

	queued := b.waitLen(t, 1)
	if queued[0].Status != sim.StatusQueued || queued[0].Position != 0 || queued[0].JobID != idB {
		t.Errorf("expected B queued at position 0, got %+v", queued[0])
	}
	expectNotStarted(t, rt)

	hA.emit(sim.Initializing(idA))
	hA.emit(sim.Running(idA, nil))
	finish(hA, sim.StatusFinished)

	hB := expectStarted(t, rt)
	if hB.spec.JobID != idB {
		t.Errorf("expected job %d to start, got %d", idB, hB.spec.JobID)
	}
	assertStatuses(t, a.waitLen(t, 3), sim.StatusInitializing, sim.StatusRunning, sim.StatusFinished)

	syncScheduler(t, s)
	if got := len(b.snapshot()); got != 1 {
		t.Errorf("expected no further notifications for B, got %d", got)
	}
}

func TestScenario_PositionsShiftWhenActiveCompletes(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a, b, c := &inbox{}, &inbox{}, &inbox{}

	submit(t, s, a)
	submit(t, s, b)
	idC := submit(t, s, c)
	hA := expectStarted(t, rt)

	if msgs := c.waitLen(t, 1); msgs[0].Position != 1 {
		t.Errorf("expected C at position 1, got %+v", msgs[0])
	}

	finish(hA, sim.StatusFinished)
	expectStarted(t, rt)

	msgs := c.waitLen(t, 2)
	if msgs[1].Status != sim.StatusQueued || msgs[1].Position != 0 || msgs[1].JobID != idC {
		t.Errorf("expected C moved to position 0, got %+v", msgs[1])
	}
}

func TestCancel_QueuedJob(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a, b, c := &inbox{}, &inbox{}, &inbox{}

	submit(t, s, a)
	idB := submit(t, s, b)
	idC := submit(t, s, c)
	hA := expectStarted(t, rt)
	c.waitLen(t, 1)

	s.Cancel(idB)

	msgs := b.waitLen(t, 2)
	assertStatuses(t, msgs, sim.StatusQueued, sim.StatusFinished)
	if msgs[1].JobID != idB {
		t.Errorf("expected Finished for job %d, got %d", idB, msgs[1].JobID)
	}
	cm := c.waitLen(t, 2)
	if cm[1].Status != sim.StatusQueued || cm[1].Position != 0 {
		t.Errorf("expected C moved to position 0, got %+v", cm[1])
	}
	if interrupts, _ := hA.counts(); interrupts != 0 {
		t.Error("cancelling a queued job must not touch the active worker")
	}

	finish(hA, sim.StatusFinished)
	if h := expectStarted(t, rt); h.spec.JobID != idC {
		t.Errorf("expected job %d to start after the cancelled one, got %d", idC, h.spec.JobID)
	}
	if got := len(b.snapshot()); got != 2 {
		t.Errorf("cancelled job received %d messages", got)
	}
}

func TestCancel_ActiveJobHandshake(t *testing.T) {
	rt := newFakeRuntime()
	rt.onInterrupt = gracefulInterrupt
	s := newTestScheduler(t, rt, Config{})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	idB := submit(t, s, b)
	hA := expectStarted(t, rt)
	hA.emit(sim.Initializing(idA))
	a.waitLen(t, 1)

	s.Cancel(idA)

	assertStatuses(t, a.waitLen(t, 2), sim.StatusInitializing, sim.StatusFinished)
	if h := expectStarted(t, rt); h.spec.JobID != idB {
		t.Errorf("expected job %d to start, got %d", idB, h.spec.JobID)
	}
	if interrupts, kills := hA.counts(); interrupts != 1 || kills != 0 {
		t.Errorf("expected one interrupt and no kill, got %d/%d", interrupts, kills)
	}
}

func TestCancel_UnresponsiveWorkerIsKilled(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{StopTimeout: 50 * time.Millisecond})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	submit(t, s, b)
	hA := expectStarted(t, rt)

	s.Cancel(idA)

	msgs := a.waitLen(t, 1)
	if msgs[0].Status != sim.StatusFinished {
		t.Errorf("expected a killed cancelled job to report Finished, got %+v", msgs[0])
	}
	expectStarted(t, rt)
	if interrupts, kills := hA.counts(); interrupts != 1 || kills != 1 {
		t.Errorf("expected interrupt then kill, got %d/%d", interrupts, kills)
	}
}

func TestCancel_RepeatedAndUnknownAreIgnored(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a := &inbox{}

	idA := submit(t, s, a)
	hA := expectStarted(t, rt)

	s.Cancel(idA)
	s.Cancel(idA)
	s.Cancel(99)
	syncScheduler(t, s)

	if interrupts, _ := hA.counts(); interrupts != 1 {
		t.Errorf("expected a single interrupt, got %d", interrupts)
	}
	if got := len(a.snapshot()); got != 0 {
		t.Errorf("expected no messages yet, got %d", got)
	}

	gracefulInterrupt(hA)
	a.waitLen(t, 1)

	// the job is done; cancelling it again does nothing
	s.Cancel(idA)
	syncScheduler(t, s)
	if interrupts, _ := hA.counts(); interrupts != 1 {
		t.Errorf("expected no interrupt after completion, got %d", interrupts)
	}
}

func TestTerminalStatuses_PromoteNextJob(t *testing.T) {
	for _, status := range []sim.Status{sim.StatusFinished, sim.StatusInitError, sim.StatusRunError} {
		t.Run(status.String(), func(t *testing.T) {
			rt := newFakeRuntime()
			s := newTestScheduler(t, rt, Config{})
			a, b := &inbox{}, &inbox{}

			submit(t, s, a)
			idB := submit(t, s, b)
			hA := expectStarted(t, rt)

			finish(hA, status)

			if h := expectStarted(t, rt); h.spec.JobID != idB {
				t.Errorf("expected job %d to start, got %d", idB, h.spec.JobID)
			}
			msgs := a.waitLen(t, 1)
			if msgs[0].Status != status {
				t.Errorf("expected %s to be delivered, got %+v", status, msgs[0])
			}
		})
	}
}

func TestDispatch_DropsStaleMessages(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	idB := submit(t, s, b)
	hA := expectStarted(t, rt)
	finish(hA, sim.StatusFinished)
	hB := expectStarted(t, rt)

	hA.sink(sim.Running(idA, nil))
	hA.sink(sim.Running(99, nil))
	hB.emit(sim.Initializing(idB))

	// results are dispatched in order, so B's message arrives last
	msgs := b.waitLen(t, 2)
	if msgs[1].Status != sim.StatusInitializing {
		t.Errorf("expected B to be initializing, got %+v", msgs[1])
	}
	assertStatuses(t, a.snapshot(), sim.StatusFinished)
}

func TestLaunchFailure_ReportsInitErrorAndContinues(t *testing.T) {
	rt := newFakeRuntime()
	rt.failures.Store(1)
	s := newTestScheduler(t, rt, Config{})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	idB := submit(t, s, b)

	msgs := a.waitLen(t, 1)
	if msgs[0].Status != sim.StatusInitError || msgs[0].JobID != idA {
		t.Fatalf("expected init error for job %d, got %+v", idA, msgs[0])
	}
	if !strings.Contains(msgs[0].Error, "failed to start simulation worker") {
		t.Errorf("unexpected error text %q", msgs[0].Error)
	}
	if h := expectStarted(t, rt); h.spec.JobID != idB {
		t.Errorf("expected job %d to start, got %d", idB, h.spec.JobID)
	}
}

func TestJoinTimeout_KillsLingeringWorker(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{JoinTimeout: 50 * time.Millisecond})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	submit(t, s, b)
	hA := expectStarted(t, rt)

	// terminal status but the process never exits on its own
	hA.emit(sim.Finished(idA))

	expectStarted(t, rt)
	if _, kills := hA.counts(); kills != 1 {
		t.Errorf("expected the lingering worker to be killed once, got %d", kills)
	}
	assertStatuses(t, a.waitLen(t, 1), sim.StatusFinished)
}

func TestTerminateAll(t *testing.T) {
	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	a, b := &inbox{}, &inbox{}

	idA := submit(t, s, a)
	submit(t, s, b)
	hA := expectStarted(t, rt)
	hA.emit(sim.Initializing(idA))
	a.waitLen(t, 1)
	b.waitLen(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.TerminateAll(ctx); err != nil {
		t.Fatalf("TerminateAll failed: %v", err)
	}
	if err := s.TerminateAll(ctx); err != nil {
		t.Errorf("second TerminateAll failed: %v", err)
	}

	if _, kills := hA.counts(); kills != 1 {
		t.Errorf("expected the active worker to be killed, got %d kills", kills)
	}
	expectNotStarted(t, rt)

	syncScheduler(t, s)
	assertStatuses(t, a.snapshot(), sim.StatusInitializing)
	assertStatuses(t, b.snapshot(), sim.StatusQueued)

	late := &inbox{}
	submit(t, s, late)
	msgs := late.waitLen(t, 1)
	if msgs[0].Status != sim.StatusInitError || msgs[0].Error != ErrShuttingDown.Error() {
		t.Errorf("expected shutdown init error, got %+v", msgs[0])
	}
}

func TestLaunch_PropagatesTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		tp.Shutdown(context.Background())
	}()

	rt := newFakeRuntime()
	s := newTestScheduler(t, rt, Config{})
	submit(t, s, &inbox{})

	h := expectStarted(t, rt)
	if h.spec.Trace["traceparent"] == "" {
		t.Errorf("expected a traceparent in the job spec, got %v", h.spec.Trace)
	}
}
