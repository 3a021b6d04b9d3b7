package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
)

var flagFCListen string

var fcSimCmd = &cobra.Command{
	Use:   "fc-sim",
	Short: "Serve a simulated flight controller over gRPC",
	Long: `fc-sim runs the deterministic in-process flight controller behind the
flight service gRPC contract. Point a drone at it with fly --fc to rehearse
missions without an airframe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return fcSim(flagFCListen)
	},
}

func init() {
	fcSimCmd.Flags().StringVar(&flagFCListen, "listen", "127.0.0.1:9051", "address to serve the flight service on")
	rootCmd.AddCommand(fcSimCmd)
}

func fcSim(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := grpc.NewServer()
	flight.Register(s, flight.NewSim(nil))
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	monitoring.Logf("[fc-sim] serving flight service on %s", lis.Addr())
	return s.Serve(lis)
}
