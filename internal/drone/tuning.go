package drone

import (
	"github.com/Max-lab10/Dronecraft-archipelago/internal/avoidance"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/config"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
)

// OptionsFromTuning builds drone Options from a loaded TuningConfig. The
// drone ID is not a tuning key; the zero ID derives one from the host
// address when the drone is assembled.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		Port: cfg.GetPort(),
		Serial: link.PortOptions{
			BaudRate: cfg.GetBaudRate(),
		},
		Radio: link.Options{
			NetworkID: cfg.GetNetworkID(),
			Channel:   cfg.GetWifiChannel(),
			TxPower:   cfg.GetTxPower(),
		},
		BroadcastRate:  cfg.GetBroadcastRate(),
		NavigationRate: cfg.GetNavigationRate(),
		PeerExpiry:     cfg.GetPeerExpiry(),
		Avoidance:      avoidance.ConfigFromTuning(cfg),
	}
}
