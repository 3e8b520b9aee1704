// Package api contains the websocket protocol shared by the gateway and the
// CLI.
package api

import (
	"encoding/json"
	"fmt"
)

// Commands sent by clients.
const (
	CmdGetServerStatus         = "get_server_status"
	CmdGetCircuitMetadata      = "get_circuit_metadata"
	CmdGetCircuitPropValues    = "get_circuit_prop_values"
	CmdGetCircuitPropIndex     = "get_circuit_prop_index"
	CmdGetCircuitCellPositions = "get_circuit_cell_positions"
	CmdGetCircuitCells         = "get_circuit_cells"
	CmdGetCellConnectome       = "get_cell_connectome"
	CmdGetSynConnections       = "get_syn_connections"
	CmdGetCellMorphology       = "get_cell_morphology"
	CmdGetAstrocytesSomas      = "get_astrocytes_somas"
	CmdGetAstrocyteProps       = "get_astrocyte_props"
	CmdGetEfferentNeurons      = "get_efferent_neurons"
	CmdGetAstrocyteMorph       = "get_astrocyte_morph"
	CmdGetAstrocyteMicrodomain = "get_astrocyte_microdomain"
	CmdGetAstrocyteSynapses    = "get_astrocyte_synapses"
	CmdRunSimulation           = "run_simulation"
	CmdCancelSimulation        = "cancel_simulation"
)

// Events sent by the server.
const (
	EventServerStatus      = "server_status"
	EventCircuitMetadata   = "circuit_metadata"
	EventCircuitPropValues = "circuit_prop_values"
	EventCircuitPropIndex  = "circuit_prop_index"
	EventCellPositions     = "circuit_cell_positions"
	EventCellInfo          = "circuit_cell_info"
	EventCellsData         = "circuit_cells_data"
	EventCellConnectome    = "cell_connectome"
	EventSynConnections    = "syn_connections"
	EventCellMorphology    = "cell_morphology"
	EventError             = "error"

	EventAstrocytesSomas      = "astrocytes_somas"
	EventAstrocyteProps       = "astrocyte_props"
	EventEfferentNeurons      = "efferent_neuron_ids"
	EventAstrocyteMorph       = "astrocyte_morph"
	EventAstrocyteMicrodomain = "astrocyte_microdomain"
	EventAstrocyteSynapses    = "synapses"

	EventSimulationQueued    = "simulation_queued"
	EventSimulationInit      = "simulation_init"
	EventSimulationResult    = "simulation_result"
	EventSimulationFinish    = "simulation_finish"
	EventSimulationInitError = "simulation_init_error"
	EventSimulationRunError  = "simulation_run_error"
)

// AstrocyteSynapsesRequest is the data of get_astrocyte_synapses.
type AstrocyteSynapsesRequest struct {
	Astrocyte int `json:"astrocyte"`
	Neuron    int `json:"neuron"`
}

// Server status values.
const (
	StatusOperational = "operational"
	StatusMaintenance = "maintenance"
)

// Request is a command sent by a client. CmdID is opaque and echoed back in
// replies.
type Request struct {
	Cmd     string          `json:"cmd"`
	CmdID   json.RawMessage `json:"cmdid,omitempty"`
	Context RequestContext  `json:"context"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RequestContext carries the circuit a command refers to.
type RequestContext struct {
	CircuitConfig json.RawMessage `json:"circuitConfig,omitempty"`
}

// Message is an event sent by the server.
type Message struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// NewMessage encodes data into a Message. A nil data is sent as null.
func NewMessage(cmd string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s: %w", cmd, err)
	}
	return Message{Cmd: cmd, Data: raw}, nil
}

// ServerStatus is the data of a server_status event.
type ServerStatus struct {
	Status string          `json:"status"`
	CmdID  json.RawMessage `json:"cmdid,omitempty"`
}

// ErrorReply is sent under a command's reply event when it fails.
type ErrorReply struct {
	Error       string          `json:"error"`
	Description string          `json:"description,omitempty"`
	CmdID       json.RawMessage `json:"cmdid,omitempty"`
}

// PropMeta describes one cell property.
type PropMeta struct {
	Size int `json:"size"`
}

// CircuitMetadata is the data of a circuit_metadata event.
type CircuitMetadata struct {
	Prop  map[string]PropMeta `json:"prop"`
	Props []string            `json:"props"`
	Count int                 `json:"count"`
	CmdID json.RawMessage     `json:"cmdid,omitempty"`
}

// PropChunk is one chunk of a circuit_prop_values or circuit_prop_index
// stream.
type PropChunk struct {
	Prop   string `json:"prop"`
	Values any    `json:"values"`
}

// PositionsChunk is one chunk of a circuit_cell_positions stream.
type PositionsChunk struct {
	Positions []float64 `json:"positions"`
}

// CellInfo precedes a circuit_cells_data stream.
type CellInfo struct {
	Properties []string       `json:"properties"`
	PropMeta   map[string]int `json:"prop_meta"`
	Count      int            `json:"count"`
}
