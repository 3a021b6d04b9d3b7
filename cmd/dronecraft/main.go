// The dronecraft command operates one drone of a coordinated swarm over
// its ESP-NOW serial radio bridge: it flies missions, watches live swarm
// traffic, benchmarks the link and manages the flight log database.
package main

import (
	"os"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/config"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagPort   string
	flagID     uint8
)

var rootCmd = &cobra.Command{
	Use:   "dronecraft",
	Short: "Operate a swarm drone over an ESP-NOW serial bridge",
	Long: `dronecraft runs one drone of a coordinated swarm. The drone talks to an
ESP-NOW radio bridge over a serial port, discovers its peers from their
telemetry broadcasts and flies declarative YAML missions under a collision
avoidance law.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "tuning config JSON (empty uses built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "serial port of the radio bridge (empty uses the tuning value)")
	rootCmd.PersistentFlags().Uint8Var(&flagID, "id", 0, "drone id (0 derives one from the host address)")
}

// loadTuning loads the tuning file named on the command line, or built-in
// defaults when none was given.
func loadTuning() (*config.TuningConfig, error) {
	if flagConfig == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(flagConfig)
}

// openLink opens the radio bridge serial port with tuning-derived settings.
// Commands that talk to the bridge without assembling a full drone use this.
func openLink(cfg *config.TuningConfig) (*link.Link, error) {
	port := flagPort
	if port == "" {
		port = cfg.GetPort()
	}
	return link.Open(port, link.PortOptions{BaudRate: cfg.GetBaudRate()}, link.Options{
		NetworkID: cfg.GetNetworkID(),
		Channel:   cfg.GetWifiChannel(),
		TxPower:   cfg.GetTxPower(),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
