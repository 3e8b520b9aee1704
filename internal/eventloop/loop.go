// Package eventloop provides a cooperative single-threaded task loop.
//
// All connection and scheduler state is mutated from tasks running on one
// Loop, so that state needs no locking. Tasks run one at a time in
// submission order. A task that needs to do more work later submits a new
// task instead of blocking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Submit once the loop has been shut down.
	ErrClosed = errors.New("eventloop: closed")

	// ErrRunning is returned when Run is called on a loop that is already running.
	ErrRunning = errors.New("eventloop: already running")
)

// Loop executes submitted tasks sequentially on the goroutine calling Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool

	logger *slog.Logger
}

// New creates a loop. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Submit enqueues fn to run on the loop. It never blocks and is safe to
// call from any goroutine, including from a task running on the loop.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return errors.New("eventloop: nil task")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run executes tasks until Shutdown is called or ctx is cancelled. Tasks
// already queued at that point are still executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(l.done)

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.exec(fn)
		}

		select {
		case <-l.wake:
		case <-l.stop:
			l.drain()
			return nil
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		}
	}
}

// Shutdown stops accepting tasks and waits for Run to drain the queue.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })

	if !l.running.Load() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) drain() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
