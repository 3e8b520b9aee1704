// Package sim holds the job and status types shared by the scheduler, the
// worker process and the gateway. A Message is the only value that crosses
// the process boundary between the server and a worker.
package sim

import "fmt"

// Status is the lifecycle state reported for a simulation job.
type Status int

const (
	StatusQueued Status = iota
	StatusInitializing
	StatusInitError
	StatusRunning
	StatusRunError
	StatusFinished

	// StatusShuttingDown never reaches a subscriber. It is pushed onto the
	// result channel to stop the watcher on server shutdown.
	StatusShuttingDown
)

var statusNames = map[Status]string{
	StatusQueued:       "queued",
	StatusInitializing: "initializing",
	StatusInitError:    "init_error",
	StatusRunning:      "running",
	StatusRunError:     "run_error",
	StatusFinished:     "finished",
	StatusShuttingDown: "shutting_down",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further messages follow a message with this
// status for the same job.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusInitError, StatusRunError:
		return true
	}
	return false
}

// MarshalText encodes the status by name so worker output stays readable.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}
