package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/swarm"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

const (
	monitorRefresh = 250 * time.Millisecond
	monitorMsgKeep = 5
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch live swarm traffic on the radio bridge",
	Long: `monitor attaches to the radio bridge in listen-only mode: it broadcasts
no telemetry of its own, it only feeds received traffic into a presence
table and renders the live swarm state until q or ctrl+c.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadTuning()
		if err != nil {
			return err
		}
		lnk, err := openLink(cfg)
		if err != nil {
			return err
		}
		return monitor(lnk, cfg.GetPeerExpiry())
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func monitor(lnk *link.Link, expiry time.Duration) error {
	// Observer id 0 never collides with a real drone, so nothing is
	// filtered out of the table.
	table := swarm.NewTable(0, expiry, nil)

	p := tea.NewProgram(newMonitorModel(lnk, table), tea.WithAltScreen())

	lnk.OnPacket(wire.TypeTelemetry, func(pkt wire.Packet) {
		if tel, ok := pkt.(wire.Telemetry); ok {
			table.ObserveTelemetry(tel)
		}
	})
	lnk.OnPacket(wire.TypeStatus, func(pkt wire.Packet) {
		if st, ok := pkt.(wire.Status); ok {
			table.ObserveStatus(st)
		}
	})
	lnk.OnCustomText(func(text string) {
		p.Send(customTextMsg{text: text, at: time.Now()})
	})

	// Log lines would tear the alternate screen apart.
	monitoring.SetLogger(nil)
	if err := lnk.Start(); err != nil {
		return err
	}
	defer lnk.Stop()

	_, err := p.Run()
	return err
}

type tickMsg time.Time

type customTextMsg struct {
	text string
	at   time.Time
}

type monitorModel struct {
	lnk   *link.Link
	table *swarm.Table

	peers    []swarm.PeerInfo
	stats    link.StatsSnapshot
	now      time.Time
	messages []string
}

func newMonitorModel(lnk *link.Link, table *swarm.Table) monitorModel {
	return monitorModel{lnk: lnk, table: table, now: time.Now()}
}

func monitorTick() tea.Cmd {
	return tea.Tick(monitorRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.table.Sweep()
		m.peers = m.table.Snapshot()
		m.stats = m.lnk.Stats()
		m.now = time.Time(msg)
		return m, monitorTick()
	case customTextMsg:
		line := fmt.Sprintf("%s  %s", msg.at.Format("15:04:05"), msg.text)
		m.messages = append(m.messages, line)
		if len(m.messages) > monitorMsgKeep {
			m.messages = m.messages[len(m.messages)-monitorMsgKeep:]
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "dronecraft monitor  network 0x%02X  up %s\n\n",
		m.lnk.NetworkID(), m.stats.Uptime.Truncate(time.Second))

	if len(m.peers) == 0 {
		b.WriteString("no drones heard yet\n")
	} else {
		fmt.Fprintf(&b, "%-4s %8s %8s %8s %7s %6s  %s\n",
			"ID", "X", "Y", "Z", "SPEED", "AGE", "VIA")
		for _, p := range m.peers {
			speed := vecNorm(p.VX, p.VY, p.VZ)
			age := m.now.Sub(p.LastSeen)
			if age < 0 {
				age = 0
			}
			fmt.Fprintf(&b, "%-4d %8.2f %8.2f %8.2f %7.2f %5.1fs  %s\n",
				p.ID, p.X, p.Y, p.Z, speed, age.Seconds(), p.Via)
		}
	}

	fmt.Fprintf(&b, "\nsent %s  received %s  corrupted %s\n",
		humanize.Comma(m.stats.PacketsSent),
		humanize.Comma(m.stats.PacketsReceived),
		humanize.Comma(m.stats.Corrupted))
	if line := formatTypeCounts(m.stats.ReceivedByType); line != "" {
		fmt.Fprintf(&b, "rx by type: %s\n", line)
	}

	if len(m.messages) > 0 {
		b.WriteString("\nmessages:\n")
		for _, line := range m.messages {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	b.WriteString("\nq to quit\n")
	return b.String()
}

func vecNorm(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

func formatTypeCounts(counts map[wire.PacketType]int64) string {
	if len(counts) == 0 {
		return ""
	}
	types := make([]wire.PacketType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s %d", t, counts[t]))
	}
	return strings.Join(parts, "  ")
}
