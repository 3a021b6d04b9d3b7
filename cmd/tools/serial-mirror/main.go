// The serial-mirror command copies every byte read from the radio bridge's
// serial port onto a UDP socket. Running it next to tcpdump on a bench
// produces the pcap captures that capture-analyse decodes, without
// disturbing the byte stream the way a second serial consumer would.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
)

// Config holds the mirror settings.
type Config struct {
	PortPath string
	BaudRate int
	Target   string
	Stats    time.Duration
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.PortPath, "port", "/dev/ttyAMA1", "Serial port connected to the radio bridge")
	flag.IntVar(&cfg.BaudRate, "baud", 0, "Baud rate (0 uses the bridge default)")
	flag.StringVar(&cfg.Target, "to", "127.0.0.1:5555", "UDP address to mirror bytes to")
	flag.DurationVar(&cfg.Stats, "stats", time.Second, "Interval between throughput reports (0 disables)")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mirror(ctx, cfg); err != nil {
		log.Fatalf("Mirror failed: %v", err)
	}
}

func mirror(ctx context.Context, cfg Config) error {
	port, err := link.OpenPort(cfg.PortPath, link.PortOptions{BaudRate: cfg.BaudRate})
	if err != nil {
		return err
	}
	defer port.Close()

	conn, err := net.Dial("udp", cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.Target, err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "Mirroring %s to udp://%s\n", cfg.PortPath, cfg.Target)

	var chunkCount, byteCount int64

	if cfg.Stats > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Stats)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					chunks := atomic.SwapInt64(&chunkCount, 0)
					bytes := atomic.SwapInt64(&byteCount, 0)
					if chunks > 0 {
						fmt.Fprintf(os.Stderr, "Mirrored: %d datagrams/interval, %.1f KB/interval\n",
							chunks, float64(bytes)/1024)
					}
				}
			}
		}()
	}

	err = pump(ctx, port, conn, &chunkCount, &byteCount)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pump copies reads from the serial port to the UDP connection, one datagram
// per read. Chunk boundaries land anywhere relative to packet frames; the
// capture-analyse scanner reassembles frames across datagrams, so nothing is
// lost by not framing here.
func pump(ctx context.Context, port link.Porter, conn io.Writer, chunkCount, byteCount *int64) error {
	// A read deadline keeps the loop responsive to cancellation. Without
	// it a quiet port would block the final read indefinitely.
	if tp, ok := port.(link.TimeoutPorter); ok {
		if err := tp.SetReadTimeout(100 * time.Millisecond); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("serial read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		if _, err := conn.Write(buf[:n]); err != nil {
			return fmt.Errorf("udp write failed: %w", err)
		}
		atomic.AddInt64(chunkCount, 1)
		atomic.AddInt64(byteCount, int64(n))
	}
}
