// Package report renders post-flight analysis from a recorded session: PNG
// plots of the flight paths and swarm separation, an HTML dashboard of link
// rates and positions, and a humanized text summary.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/flightlog"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/units"
)

// Report is one session's data loaded from the flight log, plus the derived
// series the renderers draw.
type Report struct {
	Session flightlog.Session
	Samples []flightlog.Sample
	Events  []flightlog.EventRow
	Stats   []flightlog.StatsRow
}

// SeparationPoint is the smallest pairwise distance across the swarm at one
// moment, computed from the last known position of every drone.
type SeparationPoint struct {
	T    time.Time
	Dist float64
}

// RatePoint is the link throughput between two adjacent stats snapshots.
type RatePoint struct {
	T       time.Time
	SentPPS float64
	RecvPPS float64
}

// Load reads everything recorded for the session.
func Load(db *flightlog.DB, session string) (*Report, error) {
	s, err := db.GetSession(session)
	if err != nil {
		return nil, err
	}
	samples, err := db.Telemetry(session)
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry: %w", err)
	}
	events, err := db.Events(session)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	stats, err := db.LinkStats(session)
	if err != nil {
		return nil, fmt.Errorf("failed to load link stats: %w", err)
	}
	return &Report{Session: *s, Samples: samples, Events: events, Stats: stats}, nil
}

// Drones returns the ids of every drone heard in the session, sorted.
func (r *Report) Drones() []uint8 {
	seen := make(map[uint8]bool)
	for _, s := range r.Samples {
		seen[s.DroneID] = true
	}
	ids := make([]uint8, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Trajectory returns one drone's samples in time order.
func (r *Report) Trajectory(id uint8) []flightlog.Sample {
	var traj []flightlog.Sample
	for _, s := range r.Samples {
		if s.DroneID == id {
			traj = append(traj, s)
		}
	}
	return traj
}

// MinSeparation replays the telemetry and, whenever at least two drones have
// reported a position, records the smallest pairwise distance at that moment.
func (r *Report) MinSeparation() []SeparationPoint {
	type pos struct{ x, y, z float64 }
	last := make(map[uint8]pos)

	var series []SeparationPoint
	for _, s := range r.Samples {
		last[s.DroneID] = pos{s.X, s.Y, s.Z}
		if len(last) < 2 {
			continue
		}

		min := math.Inf(1)
		ids := make([]uint8, 0, len(last))
		for id := range last {
			ids = append(ids, id)
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := last[ids[i]], last[ids[j]]
				d := math.Sqrt((a.x-b.x)*(a.x-b.x) + (a.y-b.y)*(a.y-b.y) + (a.z-b.z)*(a.z-b.z))
				if d < min {
					min = d
				}
			}
		}
		series = append(series, SeparationPoint{T: s.T, Dist: min})
	}
	return series
}

// Rates derives packet throughput per interface from adjacent cumulative
// stats snapshots.
func (r *Report) Rates() map[string][]RatePoint {
	byIface := make(map[string][]flightlog.StatsRow)
	for _, row := range r.Stats {
		byIface[row.Iface] = append(byIface[row.Iface], row)
	}

	rates := make(map[string][]RatePoint)
	for iface, rows := range byIface {
		for i := 1; i < len(rows); i++ {
			dt := rows[i].T.Sub(rows[i-1].T).Seconds()
			if dt <= 0 {
				continue
			}
			rates[iface] = append(rates[iface], RatePoint{
				T:       rows[i].T,
				SentPPS: float64(rows[i].SentPackets-rows[i-1].SentPackets) / dt,
				RecvPPS: float64(rows[i].RecvPackets-rows[i-1].RecvPackets) / dt,
			})
		}
	}
	return rates
}

// Duration is the session length: ended_at minus started_at, or up to the
// last sample while the session is still open.
func (r *Report) Duration() time.Duration {
	end := r.Session.EndedAt
	if end.IsZero() {
		if len(r.Samples) == 0 {
			return 0
		}
		end = r.Samples[len(r.Samples)-1].T
	}
	d := end.Sub(r.Session.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// DistanceFlown sums the segment lengths of one drone's trajectory.
func (r *Report) DistanceFlown(id uint8) float64 {
	traj := r.Trajectory(id)
	var dist float64
	for i := 1; i < len(traj); i++ {
		dx := traj[i].X - traj[i-1].X
		dy := traj[i].Y - traj[i-1].Y
		dz := traj[i].Z - traj[i-1].Z
		dist += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return dist
}

// MaxSpeed is the largest velocity magnitude one drone reported.
func (r *Report) MaxSpeed(id uint8) float64 {
	var max float64
	for _, s := range r.Samples {
		if s.DroneID != id {
			continue
		}
		v := math.Sqrt(s.VX*s.VX + s.VY*s.VY + s.VZ*s.VZ)
		if v > max {
			max = v
		}
	}
	return max
}

// Summary renders the session as human-readable text with speeds in the
// requested unit.
func (r *Report) Summary(unit string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session %s: drone %d, started %s, duration %s\n",
		r.Session.ID, r.Session.DroneID,
		r.Session.StartedAt.Format(time.RFC3339), r.Duration().Round(time.Second))
	if r.Session.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", r.Session.Notes)
	}

	drones := r.Drones()
	names := make([]string, len(drones))
	var selfCount, peerCount int64
	for _, s := range r.Samples {
		if s.Source == flightlog.SourceSelf {
			selfCount++
		} else {
			peerCount++
		}
	}
	for i, id := range drones {
		names[i] = fmt.Sprintf("%d", id)
	}
	fmt.Fprintf(&b, "Drones heard: %d (%s)\n", len(drones), strings.Join(names, ", "))
	fmt.Fprintf(&b, "Samples: %s (self %s, peers %s), events: %s\n",
		humanize.Comma(selfCount+peerCount), humanize.Comma(selfCount),
		humanize.Comma(peerCount), humanize.Comma(int64(len(r.Events))))

	suffix := units.Label(unit)
	for _, id := range drones {
		fmt.Fprintf(&b, "Drone %d: flew %.1f m, max speed %.2f %s\n",
			id, r.DistanceFlown(id), units.ConvertSpeed(r.MaxSpeed(id), unit), suffix)
	}

	if sep := r.MinSeparation(); len(sep) > 0 {
		min := sep[0]
		for _, p := range sep {
			if p.Dist < min.Dist {
				min = p
			}
		}
		fmt.Fprintf(&b, "Closest approach: %.2f m at %s\n",
			min.Dist, min.T.Format("15:04:05"))
	}

	if len(r.Stats) > 0 {
		final := r.Stats[len(r.Stats)-1]
		fmt.Fprintf(&b, "Link %s: sent %s packets / %s, received %s packets / %s, %s corrupted\n",
			final.Iface,
			humanize.Comma(final.SentPackets), humanize.Bytes(uint64(final.SentBytes)),
			humanize.Comma(final.RecvPackets), humanize.Bytes(uint64(final.RecvBytes)),
			humanize.Comma(final.Corrupted))
		if secs := r.Duration().Seconds(); secs > 0 {
			pps, psuffix := humanize.ComputeSI(float64(final.SentPackets+final.RecvPackets) / secs)
			fmt.Fprintf(&b, "Average rate: %0.2f %spps\n", pps, psuffix)
		}
	}

	return b.String()
}
