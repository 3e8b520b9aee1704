package worker

import (
	"encoding/json"
	"io"
	"sync"

	"simplane/internal/sim"
)

// JSONEmitter writes each message as one JSON document to w.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter creates an emitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

// Emit implements Emitter.
func (e *JSONEmitter) Emit(msg sim.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(msg)
}
