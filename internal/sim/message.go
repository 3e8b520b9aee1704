package sim

import "encoding/json"

// ProgressPayload carries the trace samples recorded since the previous
// snapshot. Voltage and Current are keyed by gid, then by section name.
type ProgressPayload struct {
	Time    []float64                    `json:"time"`
	Voltage map[int]map[string][]float64 `json:"voltage"`
	Current map[int]map[string][]float64 `json:"current"`
}

// Message is a single status update on the result channel.
type Message struct {
	JobID    int64            `json:"job_id"`
	Status   Status           `json:"status"`
	Position int              `json:"position,omitempty"`
	Error    string           `json:"error,omitempty"`
	Progress *ProgressPayload `json:"progress,omitempty"`
}

func Queued(jobID int64, position int) Message {
	return Message{JobID: jobID, Status: StatusQueued, Position: position}
}

func Initializing(jobID int64) Message {
	return Message{JobID: jobID, Status: StatusInitializing}
}

func Running(jobID int64, progress *ProgressPayload) Message {
	return Message{JobID: jobID, Status: StatusRunning, Progress: progress}
}

func InitError(jobID int64, msg string) Message {
	return Message{JobID: jobID, Status: StatusInitError, Error: msg}
}

func RunError(jobID int64, msg string) Message {
	return Message{JobID: jobID, Status: StatusRunError, Error: msg}
}

func Finished(jobID int64) Message {
	return Message{JobID: jobID, Status: StatusFinished}
}

// ShuttingDown is the watcher stop sentinel.
func ShuttingDown() Message {
	return Message{Status: StatusShuttingDown}
}

// CircuitConfig is the part of a client's circuit configuration the
// simulator needs. Unknown fields are ignored.
type CircuitConfig struct {
	Path     string `json:"path"`
	SimModel string `json:"simModel"`
}

// JobSpec is handed to a worker process on its standard input.
type JobSpec struct {
	JobID      int64             `json:"job_id"`
	Circuit    json.RawMessage   `json:"circuit"`
	Simulation json.RawMessage   `json:"simulation"`
	Trace      map[string]string `json:"trace,omitempty"`
}
