// Package runtime launches isolated worker processes and connects their
// result channel back to the server.
package runtime

import (
	"context"
	"errors"

	"simplane/internal/sim"
)

// ErrChannelClosed is reported as a run error when a worker's result channel
// closes before it sent a terminal status.
var ErrChannelClosed = errors.New("worker exited without completing the handshake")

// Runtime defines the interface for launching workers.
type Runtime interface {
	// Start launches a worker for one job and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting a worker.
type StartOptions struct {
	Spec sim.JobSpec
	Env  map[string]string

	// Sink receives every status message read from the worker, in order,
	// stamped with Spec.JobID. It is called from a runtime goroutine and must
	// not block.
	Sink func(sim.Message)
}

// ExitResult describes how a worker process ended.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running worker.
type Handle interface {
	// Pid returns the OS process id.
	Pid() int

	// Interrupt asks the worker to stop cooperatively. The worker is
	// expected to report Finished.
	Interrupt() error

	// Kill terminates the worker without a handshake.
	Kill() error

	// Wait blocks until the worker has exited and every message it wrote has
	// been passed to the sink.
	Wait(ctx context.Context) (ExitResult, error)
}
