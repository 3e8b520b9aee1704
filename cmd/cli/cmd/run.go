package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"simplane/internal/sim"
	"simplane/pkg/api"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation and follow its progress",
	Long: `Submit a simulation for a circuit and print every status update until it
ends. The simulation config is read from a YAML or JSON file. Ctrl+C asks the
server to cancel the simulation; simctl keeps listening until the server
confirms.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		circuit, err := circuitFromFlags(cmd)
		if err != nil {
			return err
		}
		simFile, _ := cmd.Flags().GetString("sim")
		outFile, _ := cmd.Flags().GetString("out")

		simulation, err := loadSimulation(simFile)
		if err != nil {
			cmd.Printf("Failed to load simulation config: %v\n", err)
			return err
		}

		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()
		// a job may wait in the queue for a long time
		client.Timeout = 0

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		traces, err := follow(ctx, cmd, client, circuit, simulation)
		if traces != nil && outFile != "" {
			if werr := writeTraces(outFile, traces); werr != nil {
				cmd.Printf("Failed to write traces: %v\n", werr)
			} else {
				cmd.Printf("Traces written to %s\n", outFile)
			}
		}
		return err
	},
}

// follow submits the simulation and prints its events until a terminal one.
// It returns the traces received so far.
func follow(ctx context.Context, cmd *cobra.Command, client *SimClient, circuit *sim.CircuitConfig, simulation json.RawMessage) (*sim.ProgressPayload, error) {
	if _, err := client.Send(api.CmdRunSimulation, circuit, simulation); err != nil {
		return nil, err
	}

	msgs := make(chan api.Message)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			msg, err := client.Read()
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	traces := &sim.ProgressPayload{}
	started := time.Now()
	interrupt := ctx.Done()

	for {
		select {
		case <-interrupt:
			interrupt = nil
			cmd.Println("Cancelling simulation...")
			if _, err := client.Send(api.CmdCancelSimulation, nil, nil); err != nil {
				return traces, err
			}

		case err := <-errs:
			return traces, err

		case msg := <-msgs:
			switch msg.Cmd {
			case api.EventSimulationQueued:
				var position int
				json.Unmarshal(msg.Data, &position)
				cmd.Printf("%s waiting, position %d\n", colorizeStatus(msg.Cmd), position)

			case api.EventSimulationInit:
				started = time.Now()
				cmd.Printf("%s\n", colorizeStatus(msg.Cmd))

			case api.EventSimulationResult:
				var p sim.ProgressPayload
				if err := json.Unmarshal(msg.Data, &p); err != nil {
					return traces, fmt.Errorf("failed to parse progress: %w", err)
				}
				mergeTraces(traces, &p)
				if n := len(p.Time); n > 0 {
					cmd.Printf("%s t=%.2fms %s(+%d samples)%s\n", colorizeStatus(msg.Cmd), p.Time[n-1], colorDim, n, colorReset)
				}

			case api.EventSimulationFinish:
				cmd.Printf("%s in %s%s%s, %d samples\n", colorizeStatus(msg.Cmd),
					colorCyan, formatDuration(time.Since(started)), colorReset, len(traces.Time))
				return traces, nil

			case api.EventSimulationInitError, api.EventSimulationRunError:
				var reason string
				json.Unmarshal(msg.Data, &reason)
				cmd.Printf("%s %s%s%s\n", colorizeStatus(msg.Cmd), colorRed, reason, colorReset)
				return traces, &ServerError{Event: msg.Cmd, Message: reason}

			case api.EventError:
				return traces, replyError(msg)
			}
		}
	}
}

// mergeTraces appends the samples of p to dst.
func mergeTraces(dst, p *sim.ProgressPayload) {
	dst.Time = append(dst.Time, p.Time...)
	dst.Voltage = mergeSeries(dst.Voltage, p.Voltage)
	dst.Current = mergeSeries(dst.Current, p.Current)
}

func mergeSeries(dst, src map[int]map[string][]float64) map[int]map[string][]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[int]map[string][]float64)
	}
	for gid, sections := range src {
		if dst[gid] == nil {
			dst[gid] = make(map[string][]float64)
		}
		for name, values := range sections {
			dst[gid][name] = append(dst[gid][name], values...)
		}
	}
	return dst
}

func writeTraces(path string, traces *sim.ProgressPayload) error {
	data, err := json.MarshalIndent(traces, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadSimulation reads a YAML or JSON simulation config and returns it as
// JSON. JSON is valid YAML, so one decoder serves both.
func loadSimulation(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		if _, ok := doc.(map[any]any); !ok {
			return nil, fmt.Errorf("%s: simulation config must be a mapping", path)
		}
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys converts the map[any]any values yaml produces for mappings with
// non-string keys (gids under synapses) into JSON-encodable maps.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	}
	return v
}

func init() {
	addCircuitFlags(runCmd)
	runCmd.Flags().String("sim", "", "simulation config file, YAML or JSON (required)")
	runCmd.Flags().String("out", "", "write the recorded traces to this JSON file")
	runCmd.MarkFlagRequired("sim")
	rootCmd.AddCommand(runCmd)
}
