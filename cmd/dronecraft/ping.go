package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

var (
	flagPingCount    int
	flagPingInterval time.Duration
	flagPingTimeout  time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time over the radio network",
	Long: `ping broadcasts ping packets and waits for acks. Pings are not
addressed, so the first ack from any node ends a round; the round trip is
measured against the local clock because acks do not echo the timestamp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagPingCount <= 0 {
			return errors.New("--count must be positive")
		}
		cfg, err := loadTuning()
		if err != nil {
			return err
		}
		lnk, err := openLink(cfg)
		if err != nil {
			return err
		}
		return ping(lnk, flagPingCount, flagPingInterval, flagPingTimeout)
	},
}

func init() {
	pingCmd.Flags().IntVar(&flagPingCount, "count", 5, "number of pings to send")
	pingCmd.Flags().DurationVar(&flagPingInterval, "interval", time.Second, "delay between rounds")
	pingCmd.Flags().DurationVar(&flagPingTimeout, "timeout", 2*time.Second, "how long to wait for each ack")
	rootCmd.AddCommand(pingCmd)
}

func ping(lnk *link.Link, count int, interval, timeout time.Duration) error {
	acks := make(chan time.Time, 16)
	lnk.OnPacket(wire.TypeAck, func(pkt wire.Packet) {
		select {
		case acks <- time.Now():
		default:
		}
	})

	if err := lnk.Start(); err != nil {
		return err
	}
	defer lnk.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rtts []time.Duration
	for seq := 0; seq < count; seq++ {
		// Acks from an earlier round must not satisfy this one.
		for len(acks) > 0 {
			<-acks
		}

		start := time.Now()
		if err := lnk.Send(wire.Ping{Timestamp: uint32(start.UnixMilli())}); err != nil {
			return fmt.Errorf("send ping: %w", err)
		}

		select {
		case at := <-acks:
			rtt := at.Sub(start)
			rtts = append(rtts, rtt)
			fmt.Printf("ack: seq=%d time=%v\n", seq, rtt.Round(100*time.Microsecond))
		case <-time.After(timeout):
			fmt.Printf("no ack: seq=%d timeout=%v\n", seq, timeout)
		case <-ctx.Done():
			printPingSummary(seq+1, rtts)
			return nil
		}

		if seq < count-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				printPingSummary(seq+1, rtts)
				return nil
			}
		}
	}

	printPingSummary(count, rtts)
	if len(rtts) == 0 {
		return errors.New("no acks received; is another node on the network?")
	}
	return nil
}

func printPingSummary(sent int, rtts []time.Duration) {
	loss := 100 * float64(sent-len(rtts)) / float64(sent)
	fmt.Printf("\n%d pings, %d acks, %0.0f%% loss\n", sent, len(rtts), loss)
	if len(rtts) == 0 {
		return
	}

	min, max := rtts[0], rtts[0]
	var sum time.Duration
	for _, r := range rtts {
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
		sum += r
	}
	avg := sum / time.Duration(len(rtts))
	fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
		min.Round(100*time.Microsecond),
		avg.Round(100*time.Microsecond),
		max.Round(100*time.Microsecond))
}
