package cmd

import (
	"context"
	"encoding/json"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Get the server status",
	Long:  `Report whether the server is operational or in maintenance mode.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		msg, err := client.Call(api.CmdGetServerStatus, nil, nil, api.EventServerStatus)
		if err != nil {
			return err
		}

		var status api.ServerStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			cmd.Printf("Failed to parse response: %v\n", err)
			return err
		}

		cmd.Printf("%s %sServer%s  %s\n", statusIcon(status.Status), colorBold, colorReset, viper.GetString("url"))
		cmd.Printf("%sStatus:%s %s\n", colorDim, colorReset, colorizeStatus(status.Status))
		return nil
	},
}

// connect dials the configured server.
func connect(cmd *cobra.Command) (*SimClient, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := DialSimClient(ctx, viper.GetString("url"), viper.GetDuration("timeout"))
	if err != nil {
		cmd.Printf("Failed to connect: %v\n", err)
		return nil, err
	}
	return client, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
