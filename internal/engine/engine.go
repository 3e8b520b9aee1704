// Package engine defines the contract between the worker lifecycle and a
// numerical simulation engine, and ships a built-in compartmental
// integrate-and-fire engine.
//
// Engine results are two-phase: Initialize fails with an *InitError and
// Handle.Run fails with a *RunError, so callers never have to guess which
// phase a failure came from.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"simplane/internal/sim"
)

// ErrUnknownModel is wrapped by InitError when a circuit names a simulation
// model that is not registered.
var ErrUnknownModel = errors.New("unknown simulation model")

// Engine prepares simulations.
type Engine interface {
	// Initialize builds a simulation from the circuit and the client's
	// simulation config. Errors are of type *InitError.
	Initialize(ctx context.Context, circuit sim.CircuitConfig, config json.RawMessage) (Handle, error)
}

// Handle is an initialized simulation.
type Handle interface {
	// SetProgressHook registers a callback the engine invokes at points of
	// its choosing while Run executes, on the goroutine calling Run.
	SetProgressHook(hook func())

	// Run executes the simulation to completion. It checks ctx at progress
	// points and returns ctx.Err() when cancelled. Other errors are of type
	// *RunError.
	Run(ctx context.Context) error

	// TraceDiff returns the samples recorded since the previous call. It
	// must be called from the progress hook or after Run has returned.
	TraceDiff() *sim.ProgressPayload
}

// InitError reports a failure while setting up a simulation.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// RunError reports a failure while a simulation was running.
type RunError struct {
	Err error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }
