package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/link"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/swarm"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/wire"
)

func TestFormatTypeCounts(t *testing.T) {
	if got := formatTypeCounts(nil); got != "" {
		t.Errorf("formatTypeCounts(nil) = %q, want empty", got)
	}

	got := formatTypeCounts(map[wire.PacketType]int64{
		wire.TypeStatus:    7,
		wire.TypeTelemetry: 1203,
	})
	if got != "telemetry 1203  status 7" {
		t.Errorf("formatTypeCounts() = %q", got)
	}
}

func newTestMonitorModel(t *testing.T) monitorModel {
	t.Helper()
	lnk := link.New("testport", link.NewTestablePort(), link.Options{})
	table := swarm.NewTable(0, 0, nil)
	return newMonitorModel(lnk, table)
}

func TestMonitorViewEmpty(t *testing.T) {
	m := newTestMonitorModel(t)

	view := m.View()
	if !strings.Contains(view, "no drones heard yet") {
		t.Errorf("empty view missing placeholder:\n%s", view)
	}
	if !strings.Contains(view, "q to quit") {
		t.Errorf("view missing quit hint:\n%s", view)
	}
}

func TestMonitorViewPeers(t *testing.T) {
	m := newTestMonitorModel(t)
	m.now = testEpoch
	m.peers = []swarm.PeerInfo{
		{ID: 2, X: 1.5, Y: -0.5, Z: 1, VX: 0.3, LastSeen: testEpoch.Add(-700 * time.Millisecond), Via: swarm.ViaTelemetry},
		{ID: 7, X: 0, Y: 2, Z: 1, LastSeen: testEpoch, Via: swarm.ViaStatus},
	}
	m.stats = link.StatsSnapshot{
		PacketsSent:     12,
		PacketsReceived: 3400,
		Corrupted:       2,
		ReceivedByType:  map[wire.PacketType]int64{wire.TypeTelemetry: 3400},
	}

	view := m.View()
	for _, want := range []string{
		"ID", "SPEED", "VIA",
		"telemetry",
		"0.7s",
		"sent 12", "received 3,400", "corrupted 2",
		"rx by type: telemetry 3400",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorUpdateQuits(t *testing.T) {
	m := newTestMonitorModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q did not produce a command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("q produced %v, want quit", msg)
	}
}

func TestMonitorUpdateKeepsRecentMessages(t *testing.T) {
	m := newTestMonitorModel(t)

	for i := 0; i < monitorMsgKeep+3; i++ {
		next, _ := m.Update(customTextMsg{text: string(rune('a' + i)), at: testEpoch})
		m = next.(monitorModel)
	}
	if len(m.messages) != monitorMsgKeep {
		t.Fatalf("kept %d messages, want %d", len(m.messages), monitorMsgKeep)
	}
	if !strings.Contains(m.messages[0], "d") {
		t.Errorf("oldest kept message = %q, want the overflow trimmed from the front", m.messages[0])
	}
}
