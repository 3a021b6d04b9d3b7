package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

var (
	flagStressRate     float64
	flagStressDuration time.Duration
	flagStressSeed     int64
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Flood the link with generated traffic",
	Long: `stress sends randomly generated, wire-valid packets at a target rate
for a fixed duration, then reports the achieved throughput. Run it with a
second node receiving to exercise framing under load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagStressRate <= 0 {
			return errors.New("--rate must be positive")
		}
		if flagStressDuration <= 0 {
			return errors.New("--duration must be positive")
		}
		cfg, err := loadTuning()
		if err != nil {
			return err
		}
		lnk, err := openLink(cfg)
		if err != nil {
			return err
		}
		return stress(lnk, flagStressRate, flagStressDuration, flagStressSeed)
	},
}

func init() {
	stressCmd.Flags().Float64Var(&flagStressRate, "rate", 50, "target send rate in packets per second")
	stressCmd.Flags().DurationVar(&flagStressDuration, "duration", 10*time.Second, "how long to send")
	stressCmd.Flags().Int64Var(&flagStressSeed, "seed", 0, "generator seed (0 picks a time-based seed)")
	rootCmd.AddCommand(stressCmd)
}

func stress(lnk *link.Link, rate float64, duration time.Duration, seed int64) error {
	if err := lnk.Start(); err != nil {
		return err
	}
	defer lnk.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := wire.NewGenerator(seed)
	interval := time.Duration(float64(time.Second) / rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(duration)

	var sent, failed int64
	start := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			if err := lnk.Send(gen.Random()); err != nil {
				failed++
			} else {
				sent++
			}
		}
	}

	elapsed := time.Since(start)
	s := lnk.Stats()
	pps := float64(sent) / elapsed.Seconds()
	bps := float64(s.BytesSent) / elapsed.Seconds()
	fract, suffix := humanize.ComputeSI(pps)

	fmt.Printf("sent %s packets (%s) in %s\n",
		humanize.Comma(sent), humanize.Bytes(uint64(s.BytesSent)), elapsed.Truncate(time.Millisecond))
	fmt.Printf("achieved %0.2f %spps, %s/s (target %0.0f pps)\n",
		fract, suffix, humanize.Bytes(uint64(bps)), rate)
	if failed > 0 {
		fmt.Printf("%s sends failed\n", humanize.Comma(failed))
	}
	if s.PacketsReceived > 0 {
		fmt.Printf("received %s packets, %s corrupted\n",
			humanize.Comma(s.PacketsReceived), humanize.Comma(s.Corrupted))
	}
	return nil
}
