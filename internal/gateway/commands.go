package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"simplane/internal/chunk"
	"simplane/internal/circuit"
	"simplane/internal/sim"
	"simplane/pkg/api"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const storeErrorMessage = "Error accessing circuit data"

// handle dispatches one command. It runs on the loop.
func (c *conn) handle(req api.Request) {
	if c.closed {
		return
	}
	c.g.commands.Add(c.ctx, 1, metric.WithAttributes(attribute.String("cmd", req.Cmd)))
	c.logger.Debug("command received", "cmd", req.Cmd)

	switch req.Cmd {
	case api.CmdGetServerStatus:
		status := api.StatusOperational
		if c.g.opts.Maintenance {
			status = api.StatusMaintenance
		}
		c.send(api.EventServerStatus, api.ServerStatus{Status: status, CmdID: req.CmdID})

	case api.CmdGetCircuitMetadata:
		c.circuitMetadata(req)
	case api.CmdGetCircuitPropValues:
		c.circuitProp(req, api.EventCircuitPropValues)
	case api.CmdGetCircuitPropIndex:
		c.circuitProp(req, api.EventCircuitPropIndex)
	case api.CmdGetCircuitCellPositions:
		c.cellPositions(req)
	case api.CmdGetCircuitCells:
		c.circuitCells(req)
	case api.CmdGetCellConnectome:
		c.cellConnectome(req)
	case api.CmdGetSynConnections:
		c.synConnections(req)
	case api.CmdGetCellMorphology:
		c.cellMorphology(req)
	case api.CmdGetAstrocytesSomas:
		c.astrocytesSomas(req)
	case api.CmdGetAstrocyteProps:
		c.astrocyteProps(req)
	case api.CmdGetEfferentNeurons:
		c.efferentNeurons(req)
	case api.CmdGetAstrocyteMorph:
		c.astrocyteMorph(req)
	case api.CmdGetAstrocyteMicrodomain:
		c.astrocyteMicrodomain(req)
	case api.CmdGetAstrocyteSynapses:
		c.astrocyteSynapses(req)
	case api.CmdRunSimulation:
		c.runSimulation(req)
	case api.CmdCancelSimulation:
		c.cancelSimulation()

	default:
		c.replyError(api.EventError, req.CmdID, "unknown command", req.Cmd)
	}
}

// circuitPath extracts the circuit path of a data command.
func circuitPath(req api.Request) (string, error) {
	if len(req.Context.CircuitConfig) == 0 {
		return "", errors.New("circuitConfig is required")
	}
	var cfg sim.CircuitConfig
	if err := json.Unmarshal(req.Context.CircuitConfig, &cfg); err != nil {
		return "", fmt.Errorf("malformed circuitConfig: %w", err)
	}
	if cfg.Path == "" {
		return "", errors.New("circuitConfig.path is required")
	}
	return cfg.Path, nil
}

// fetch runs load off the loop and hands its result to done on the loop.
// Results for connections closed in the meantime are dropped.
func fetch[T any](c *conn, load func(ctx context.Context) (T, error), done func(T, error)) {
	go func() {
		v, err := load(c.ctx)
		c.g.post(func() {
			if c.closed {
				return
			}
			done(v, err)
		})
	}()
}

// withCircuit resolves the circuit path and the decoded command data, or
// replies with an error under event.
func withCircuit[T any](c *conn, req api.Request, event string, data *T) (string, bool) {
	path, err := circuitPath(req)
	if err != nil {
		c.replyError(event, req.CmdID, "invalid request", err.Error())
		return "", false
	}
	if data != nil {
		if len(req.Data) == 0 {
			c.replyError(event, req.CmdID, "invalid request", "data is required")
			return "", false
		}
		if err := json.Unmarshal(req.Data, data); err != nil {
			c.replyError(event, req.CmdID, "invalid request", err.Error())
			return "", false
		}
	}
	return path, true
}

func (c *conn) storeError(event string, req api.Request, err error) {
	c.logger.Warn("circuit store read failed", "cmd", req.Cmd, "error", err)
	c.replyError(event, req.CmdID, storeErrorMessage, err.Error())
}

func (c *conn) circuitMetadata(req api.Request) {
	path, ok := withCircuit[struct{}](c, req, api.EventCircuitMetadata, nil)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.CellTable, error) {
		return c.g.store.Cells(ctx, path)
	}, func(cells *circuit.CellTable, err error) {
		if err != nil {
			c.storeError(api.EventCircuitMetadata, req, err)
			return
		}

		meta := api.CircuitMetadata{
			Prop:  make(map[string]api.PropMeta),
			Props: cells.Props(),
			Count: cells.Len(),
			CmdID: req.CmdID,
		}
		for _, p := range meta.Props {
			n, _ := cells.UniqueCount(p)
			meta.Prop[p] = api.PropMeta{Size: n}
		}
		c.send(api.EventCircuitMetadata, meta)
	})
}

// circuitProp streams the factorized values of one cell property: the
// distinct values for circuit_prop_values, the per-cell indices into them
// for circuit_prop_index.
func (c *conn) circuitProp(req api.Request, event string) {
	var prop string
	path, ok := withCircuit(c, req, event, &prop)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.CellTable, error) {
		return c.g.store.Cells(ctx, path)
	}, func(cells *circuit.CellTable, err error) {
		if err != nil {
			c.storeError(event, req, err)
			return
		}
		col, err := cells.Column(prop)
		if err != nil {
			c.replyError(event, req.CmdID, "invalid request", err.Error())
			return
		}

		codes, uniques := circuit.Factorize(col)
		if event == api.EventCircuitPropIndex {
			stream(c, event, codes, func(part []int) any {
				return api.PropChunk{Prop: prop, Values: part}
			})
			return
		}
		stream(c, event, uniques, func(part []any) any {
			return api.PropChunk{Prop: prop, Values: part}
		})
	})
}

func (c *conn) cellPositions(req api.Request) {
	path, ok := withCircuit[struct{}](c, req, api.EventCellPositions, nil)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) ([]float64, error) {
		cells, err := c.g.store.Cells(ctx, path)
		if err != nil {
			return nil, err
		}
		return cells.Positions()
	}, func(positions []float64, err error) {
		if err != nil {
			c.storeError(api.EventCellPositions, req, err)
			return
		}
		stream(c, api.EventCellPositions, positions, func(part []float64) any {
			return api.PositionsChunk{Positions: part}
		})
	})
}

func (c *conn) circuitCells(req api.Request) {
	path, ok := withCircuit[struct{}](c, req, api.EventCellInfo, nil)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.CellTable, error) {
		return c.g.store.Cells(ctx, path)
	}, func(cells *circuit.CellTable, err error) {
		if err != nil {
			c.storeError(api.EventCellInfo, req, err)
			return
		}

		info := api.CellInfo{
			Properties: cells.Columns,
			PropMeta:   make(map[string]int),
			Count:      cells.Len(),
		}
		for _, p := range cells.Props() {
			info.PropMeta[p], _ = cells.UniqueCount(p)
		}
		c.send(api.EventCellInfo, info)

		stream(c, api.EventCellsData, cells.Rows, func(rows [][]any) any {
			return rows
		})
	})
}

type connectomeReply struct {
	*circuit.Connectome
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) cellConnectome(req api.Request) {
	var gid int
	path, ok := withCircuit(c, req, api.EventCellConnectome, &gid)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.Connectome, error) {
		return c.g.store.Connectome(ctx, path, gid)
	}, func(res *circuit.Connectome, err error) {
		if err != nil {
			c.storeError(api.EventCellConnectome, req, err)
			return
		}
		c.send(api.EventCellConnectome, connectomeReply{Connectome: res, CmdID: req.CmdID})
	})
}

type synConnectionsReply struct {
	*circuit.SynConnections
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) synConnections(req api.Request) {
	var gids []int
	path, ok := withCircuit(c, req, api.EventSynConnections, &gids)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.SynConnections, error) {
		return c.g.store.SynConnections(ctx, path, gids)
	}, func(syns *circuit.SynConnections, err error) {
		if err != nil {
			c.storeError(api.EventSynConnections, req, err)
			return
		}
		c.send(api.EventSynConnections, synConnectionsReply{SynConnections: syns, CmdID: req.CmdID})
	})
}

type morphologyReply struct {
	*circuit.Morphology
	CmdID json.RawMessage `json:"cmdid,omitempty"`
}

func (c *conn) cellMorphology(req api.Request) {
	var gids []int
	path, ok := withCircuit(c, req, api.EventCellMorphology, &gids)
	if !ok {
		return
	}

	fetch(c, func(ctx context.Context) (*circuit.Morphology, error) {
		return c.g.store.Morphology(ctx, path, gids)
	}, func(morph *circuit.Morphology, err error) {
		if err != nil {
			c.storeError(api.EventCellMorphology, req, err)
			return
		}
		c.send(api.EventCellMorphology, morphologyReply{Morphology: morph, CmdID: req.CmdID})
	})
}

// stream delivers seq in chunks under event, one chunk per loop turn.
func stream[T any](c *conn, event string, seq []T, wrap func([]T) any) {
	attrs := metric.WithAttributes(attribute.String("event", event))
	n := chunk.Count(len(seq), c.g.opts.ChunkCount)
	c.logger.Debug("streaming", "event", event, "items", len(seq), "chunks", n)

	err := chunk.Stream(c.g.loop, seq, c.g.opts.ChunkCount, func(part []T) {
		c.g.chunks.Add(c.ctx, 1, attrs)
		c.send(event, wrap(part))
	})
	if err != nil {
		c.logger.Warn("failed to schedule stream", "event", event, "error", err)
	}
}

// simRun is the simulation a connection submitted. A replaced run no longer
// reaches the client.
type simRun struct {
	id       int64
	replaced bool
}

func (c *conn) runSimulation(req api.Request) {
	if len(req.Data) == 0 {
		c.send(api.EventSimulationInitError, "simulation config is required")
		return
	}
	circuitConfig := req.Context.CircuitConfig
	if len(circuitConfig) == 0 {
		circuitConfig = json.RawMessage(`{}`)
	}

	// one simulation per connection: a new run replaces the previous one
	if prev := c.sim; prev != nil {
		c.logger.Info("replacing running simulation", "job_id", prev.id)
		prev.replaced = true
		c.g.scheduler.Cancel(prev.id)
		c.sim = nil
	}

	run := &simRun{}
	id, err := c.g.scheduler.Submit(circuitConfig, req.Data, func(msg sim.Message) {
		c.onSimStatus(run, msg)
	})
	if err != nil {
		c.send(api.EventSimulationInitError, err.Error())
		return
	}
	run.id = id
	c.sim = run
	c.logger.Info("simulation submitted", "job_id", id)
}

func (c *conn) cancelSimulation() {
	if c.sim == nil {
		return
	}
	c.logger.Info("cancelling simulation", "job_id", c.sim.id)
	c.g.scheduler.Cancel(c.sim.id)
	c.sim = nil
}

// onSimStatus forwards a job status to the client. It runs on the loop.
func (c *conn) onSimStatus(run *simRun, msg sim.Message) {
	if run.replaced {
		return
	}
	if msg.Status.Terminal() && c.sim == run {
		c.sim = nil
	}

	switch msg.Status {
	case sim.StatusQueued:
		c.send(api.EventSimulationQueued, msg.Position)
	case sim.StatusInitializing:
		c.send(api.EventSimulationInit, nil)
	case sim.StatusRunning:
		c.send(api.EventSimulationResult, msg.Progress)
	case sim.StatusFinished:
		c.send(api.EventSimulationFinish, nil)
	case sim.StatusInitError:
		c.send(api.EventSimulationInitError, msg.Error)
	case sim.StatusRunError:
		c.send(api.EventSimulationRunError, msg.Error)
	}
}
