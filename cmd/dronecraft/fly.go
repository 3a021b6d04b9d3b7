package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/config"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/drone"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/flightlog"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/mission"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
)

const (
	defaultDiscoveryTimeout = 30 * time.Second

	// The link is lossy and the start signal is not acknowledged, so the
	// master repeats it a few times.
	startMessage = "start"
	startRepeats = 3
	startSpacing = 100 * time.Millisecond
)

var (
	flagFC         string
	flagLogDB      string
	flagMigrations string
	flagNotes      string
)

var flyCmd = &cobra.Command{
	Use:   "fly <mission.yaml>",
	Short: "Fly a mission with the swarm",
	Long: `fly loads a mission file, waits for the peers the mission requires,
optionally elects the lowest drone id as master to broadcast the start
signal, then flies the mission waypoints under collision avoidance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadTuning()
		if err != nil {
			return err
		}
		m, err := mission.Load(args[0])
		if err != nil {
			return err
		}
		return fly(cfg, m)
	},
}

func init() {
	flyCmd.Flags().StringVar(&flagFC, "fc", "", "flight controller: gRPC address, or \"sim\" for in-process simulation")
	flyCmd.Flags().StringVar(&flagLogDB, "log-db", "", "record the flight into this SQLite database (empty disables logging)")
	flyCmd.Flags().StringVar(&flagMigrations, "migrations", "db/migrations", "flight log schema migrations directory")
	flyCmd.Flags().StringVar(&flagNotes, "notes", "", "free-form note stored with the flight log session")
	rootCmd.AddCommand(flyCmd)
}

func fly(cfg *config.TuningConfig, m *mission.Mission) error {
	opts := drone.OptionsFromTuning(cfg)
	opts.ID = flagID
	if flagPort != "" {
		opts.Port = flagPort
	}
	if m.Frame != "" {
		opts.Frame = m.Frame
	}
	if m.Speed > 0 {
		opts.Avoidance.MaxSpeed = m.Speed
	}

	d, err := drone.New(opts)
	if err != nil {
		return err
	}

	fc, closeFC, err := dialFlightController(flagFC)
	if err != nil {
		return err
	}
	defer closeFC()
	d.SetFlightController(fc)

	if flagLogDB != "" {
		rec, closeRec, err := attachFlightLog(d, flagLogDB, flagMigrations)
		if err != nil {
			return err
		}
		defer closeRec()
		monitoring.Logf("[fly] recording session %s to %s", rec.Session(), flagLogDB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The start signal can arrive while we are still waiting for peers, so
	// the handler is registered before the link starts reading and the
	// channel latches one early signal.
	started := make(chan struct{}, 1)
	if m.MasterElection {
		d.OnMessage(func(text string) {
			if text == startMessage {
				select {
				case started <- struct{}{}:
				default:
				}
			}
		})
	}

	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	if err := runMission(ctx, d, m, cfg, started); err != nil {
		return err
	}

	s := d.LinkStats()
	fmt.Printf("mission %q complete: sent %s packets, received %s, %s corrupted\n",
		m.Name, humanize.Comma(s.PacketsSent), humanize.Comma(s.PacketsReceived), humanize.Comma(s.Corrupted))
	return nil
}

// dialFlightController resolves the --fc flag into a Controller and a
// cleanup func. An empty flag is an error: flying blind is never a default.
func dialFlightController(target string) (flight.Controller, func(), error) {
	switch target {
	case "":
		return nil, nil, errors.New("no flight controller: pass --fc <address> or --fc sim")
	case "sim":
		return flight.NewSim(nil), func() {}, nil
	default:
		remote, err := flight.DialRemote(target)
		if err != nil {
			return nil, nil, fmt.Errorf("dial flight controller %s: %w", target, err)
		}
		return remote, func() { remote.Close() }, nil
	}
}

// attachFlightLog opens the flight log database, refuses to record into a
// stale schema, and wires a session recorder into the drone's sample path.
func attachFlightLog(d *drone.Drone, path, migrationsDir string) (*flightlog.Recorder, func(), error) {
	db, err := flightlog.NewDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open flight log %s: %w", path, err)
	}
	if err := db.CheckSchemaCurrent(migrationsDir); err != nil {
		db.Close()
		return nil, nil, err
	}
	rec, err := flightlog.NewRecorder(db, d.ID(), flagNotes)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	d.SetSink(rec)
	cleanup := func() {
		if err := rec.Close(); err != nil {
			monitoring.Logf("[fly] closing flight log session: %v", err)
		}
		db.Close()
	}
	return rec, cleanup, nil
}

func runMission(ctx context.Context, d *drone.Drone, m *mission.Mission, cfg *config.TuningConfig, started chan struct{}) error {
	discoveryTimeout := m.DiscoveryTimeout.Std()
	if discoveryTimeout == 0 {
		discoveryTimeout = defaultDiscoveryTimeout
	}

	if m.WaitForPeers > 0 {
		monitoring.Logf("[fly] waiting for %d peers", m.WaitForPeers)
		if !d.WaitForPeers(m.WaitForPeers, discoveryTimeout) {
			return fmt.Errorf("discovered %d of %d required peers within %s",
				d.PeerCount(), m.WaitForPeers, discoveryTimeout)
		}
	}

	if m.MasterElection {
		if err := coordinateStart(ctx, d, started, discoveryTimeout); err != nil {
			return err
		}
	}

	height := m.TakeoffHeight
	if height <= 0 {
		height = cfg.GetTakeoffHeight()
	}
	if err := d.Takeoff(ctx, height); err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}

	timeout := cfg.GetNavigateTimeout()
	for i, wp := range m.WaypointsFor(d.ID()) {
		yaw := math.NaN()
		if wp.Yaw != nil {
			yaw = *wp.Yaw
		}
		arrived, err := d.NavigateWithAvoidance(ctx, drone.NavigateRequest{
			X:       wp.X,
			Y:       wp.Y,
			Z:       wp.Z,
			Yaw:     yaw,
			Frame:   m.Frame,
			Timeout: timeout,
		})
		if err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
		if !arrived {
			monitoring.Logf("[fly] waypoint %d not reached before timeout, continuing", i)
		}
		if wp.Hold > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wp.Hold.Std()):
			}
		}
	}

	if m.ShouldLand() {
		if err := d.Land(ctx); err != nil {
			return fmt.Errorf("land: %w", err)
		}
	}
	return nil
}

// coordinateStart blocks until every drone may begin the mission. The
// lowest id among self and the discovered peers is the master; it
// broadcasts the start signal, everyone else waits for it.
func coordinateStart(ctx context.Context, d *drone.Drone, started chan struct{}, timeout time.Duration) error {
	master := d.ID()
	for _, p := range d.Peers() {
		if p.ID < master {
			master = p.ID
		}
	}

	if master == d.ID() {
		monitoring.Logf("[fly] elected master, broadcasting start")
		for i := 0; i < startRepeats; i++ {
			if err := d.BroadcastMessage(startMessage); err != nil {
				return fmt.Errorf("broadcast start: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(startSpacing):
			}
		}
		return nil
	}

	monitoring.Logf("[fly] waiting for start from drone %d", master)
	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("no start signal from drone %d within %s", master, timeout)
	}
}
