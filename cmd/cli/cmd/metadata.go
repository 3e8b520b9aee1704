package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"simplane/internal/sim"
	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Describe the cells of a circuit",
	Long:  `Print the cell count of a circuit and the number of distinct values of every cell property.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		circuit, err := circuitFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		meta, err := fetchMetadata(client, circuit)
		if err != nil {
			return err
		}

		cmd.Printf("%sCircuit%s %s\n", colorBold, colorReset, circuit.Path)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sCells:%s %d\n", colorDim, colorReset, meta.Count)

		props := append([]string(nil), meta.Props...)
		sort.Strings(props)
		for _, p := range props {
			cmd.Printf("  %-16s %s%d values%s\n", p, colorCyan, meta.Prop[p].Size, colorReset)
		}
		return nil
	},
}

func fetchMetadata(client *SimClient, circuit *sim.CircuitConfig) (*api.CircuitMetadata, error) {
	msg, err := client.Call(api.CmdGetCircuitMetadata, circuit, nil, api.EventCircuitMetadata)
	if err != nil {
		return nil, err
	}
	var meta api.CircuitMetadata
	if err := json.Unmarshal(msg.Data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &meta, nil
}

// addCircuitFlags registers the flags addressing a circuit.
func addCircuitFlags(cmd *cobra.Command) {
	cmd.Flags().String("circuit", "", "path of the circuit database on the server (required)")
	cmd.Flags().String("model", "", "simulation model of the circuit")
	cmd.MarkFlagRequired("circuit")
}

func circuitFromFlags(cmd *cobra.Command) (*sim.CircuitConfig, error) {
	path, _ := cmd.Flags().GetString("circuit")
	model, _ := cmd.Flags().GetString("model")
	if path == "" {
		return nil, fmt.Errorf("--circuit is required")
	}
	return &sim.CircuitConfig{Path: path, SimModel: model}, nil
}

func init() {
	addCircuitFlags(metadataCmd)
	rootCmd.AddCommand(metadataCmd)
}
