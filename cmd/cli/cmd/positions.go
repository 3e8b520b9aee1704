package cmd

import (
	"encoding/json"
	"fmt"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Download the cell positions of a circuit",
	Long: `Stream the x, y, z position of every cell of a circuit. The server sends
positions in chunks; simctl reassembles them and prints the first cells.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		circuit, err := circuitFromFlags(cmd)
		if err != nil {
			return err
		}
		head, _ := cmd.Flags().GetInt("head")

		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		meta, err := fetchMetadata(client, circuit)
		if err != nil {
			return err
		}

		if _, err := client.Send(api.CmdGetCircuitCellPositions, circuit, nil); err != nil {
			return err
		}

		want := meta.Count * 3
		positions := make([]float64, 0, want)
		chunks := 0
		for len(positions) < want {
			msg, err := client.Read()
			if err != nil {
				return err
			}
			if msg.Cmd != api.EventCellPositions {
				continue
			}
			if err := replyError(msg); err != nil {
				return err
			}
			var part api.PositionsChunk
			if err := json.Unmarshal(msg.Data, &part); err != nil {
				return fmt.Errorf("failed to parse positions: %w", err)
			}
			positions = append(positions, part.Positions...)
			chunks++
		}

		cmd.Printf("Received %d cell positions in %d chunks\n", meta.Count, chunks)
		for i := 0; i < meta.Count && i < head; i++ {
			p := positions[i*3 : i*3+3]
			cmd.Printf("  %s%6d%s  %10.2f %10.2f %10.2f\n", colorDim, i, colorReset, p[0], p[1], p[2])
		}
		return nil
	},
}

func init() {
	addCircuitFlags(positionsCmd)
	positionsCmd.Flags().Int("head", 10, "number of cells to print")
	rootCmd.AddCommand(positionsCmd)
}
