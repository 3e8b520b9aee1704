package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "simctl",
	Short: "simctl is a command line tool for interacting with a simplane server",
	Long: `simctl is the command-line interface for the simplane simulation server.

simplane serves circuit data and runs neuron simulations over a websocket
API. Simulations run one at a time, in submission order, each in its own
worker process. Every other client waits in the queue and is told its
position as it moves up.

Common workflows:

  Check the server:
    simctl status

  Inspect a circuit:
    simctl metadata --circuit /data/circuit.db
    simctl positions --circuit /data/circuit.db --head 5

  Run a simulation and follow its progress (Ctrl+C cancels it):
    simctl run --circuit /data/circuit.db --sim sim.yaml

  Create a circuit database:
    simctl circuit-init /data/circuit.db --demo-cells 100

Configuration:
  Set the server endpoint via flags, environment variables or a config file:
    SIMPLANE_URL        websocket endpoint (default: ws://localhost:8000/ws)
    SIMPLANE_TIMEOUT    reply timeout for data commands (default: 30s)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".simctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".simctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SIMPLANE_VARNAME"
	viper.SetEnvPrefix("SIMPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.simctl.yaml)")

	rootCmd.PersistentFlags().String("url", "ws://localhost:8000/ws", "simplane websocket URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "reply timeout for data commands")
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}
