// Package avoidance implements the force-field control law that steers a
// drone toward its target while pushing it away from peers. Each call to
// Compute produces one velocity command from the current kinematic state,
// the navigation target and a snapshot of visible peers.
//
// The law works in the horizontal plane only: all forces, the returned
// velocity and the arrival checks ignore Z, and the commanded VZ is always
// zero. Altitude is handled by the flight controller, not by avoidance.
package avoidance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/swarm"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultDT is the control period assumed when the caller passes a
// non-positive dt.
const DefaultDT = 0.1

const collisionWarnInterval = 2 * time.Second

// Config holds the control-law tunables. The defaults are the values flown
// on the reference vehicles; override individual fields via the tuning file.
type Config struct {
	CollisionRadius      float64 // drone radius in meters, repulsion peak
	ForceExponent        float64 // shape of the repulsion falloff
	MaxSpeed             float64 // commanded speed ceiling, m/s
	MaxAcceleration      float64 // commanded acceleration ceiling, m/s^2
	RepulsionStrength    float64 // repulsion force scale
	AttractionStrength   float64 // attraction to target scale
	ArrivalRadius        float64 // start slowing down within this distance
	TargetThreshold      float64 // distance at which the target counts as reached
	TargetSpeedThreshold float64 // speed below which the target counts as reached
	BaseDamping          float64 // velocity damping floor
	ForceDampingFactor   float64 // damping increase per unit of force
	MaxDamping           float64 // damping ceiling
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		CollisionRadius:      0.15,
		ForceExponent:        1.45,
		MaxSpeed:             1.5,
		MaxAcceleration:      3.0,
		RepulsionStrength:    5000.0,
		AttractionStrength:   50.0,
		ArrivalRadius:        0.75,
		TargetThreshold:      0.2,
		TargetSpeedThreshold: 0.1,
		BaseDamping:          0.1,
		ForceDampingFactor:   0.05,
		MaxDamping:           0.25,
	}
}

// State is the kinematic input to the control law: where the drone is and
// how fast it is currently moving.
type State struct {
	Pos r3.Vec
	Vel r3.Vec
}

// Controller computes avoidance velocities. It carries the previously
// commanded velocity between ticks, so one Controller serves exactly one
// navigation command at a time; call Reset between commands.
type Controller struct {
	cfg   Config
	clock timeutil.Clock

	prev             r3.Vec
	lastCollisionLog time.Time
}

// NewController creates a controller with the given tuning. A nil clock
// selects the real one.
func NewController(cfg Config, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{cfg: cfg, clock: clock}
}

// Reset clears the carried velocity. Call between navigation commands so a
// new approach does not inherit the previous one's momentum.
func (c *Controller) Reset() {
	c.prev = r3.Vec{}
}

// repulsionForce computes the scalar repulsion at a planar distance. The
// curve peaks at the collision radius and decays exponentially outward,
// cutting to exactly zero beyond ten radii. Inside the radius it is zero as
// well: only the band [radius, 10×radius) pushes.
func (c *Controller) repulsionForce(distance float64) float64 {
	if distance >= c.cfg.CollisionRadius*10 {
		return 0
	}
	if distance < c.cfg.CollisionRadius {
		return 0
	}

	d := distance / c.cfg.CollisionRadius
	return c.cfg.RepulsionStrength * math.Exp(-math.Pow(d-1, c.cfg.ForceExponent))
}

type peerDistance struct {
	id   uint8
	dist float64
}

// Compute produces the next velocity command. dt is the control period in
// seconds; non-positive values fall back to DefaultDT.
func (c *Controller) Compute(cur State, target r3.Vec, peers []swarm.PeerInfo, dt float64) r3.Vec {
	if dt <= 0 {
		dt = DefaultDT
	}

	// Attraction toward the target, clamped to the arrival radius so a far
	// target pulls no harder than a near one.
	toTarget := r3.Vec{X: target.X - cur.Pos.X, Y: target.Y - cur.Pos.Y}
	distToTarget := math.Hypot(toTarget.X, toTarget.Y)
	if distToTarget > c.cfg.ArrivalRadius {
		toTarget = r3.Scale(c.cfg.ArrivalRadius/distToTarget, toTarget)
	}

	attractionMult := c.cfg.AttractionStrength
	approachRadius := c.cfg.ArrivalRadius * 1.5
	if distToTarget < approachRadius {
		attractionMult *= math.Max(0.1, distToTarget/approachRadius)
	}
	attr := r3.Scale(attractionMult, toTarget)

	// Repulsion away from every visible peer.
	var rep r3.Vec
	dists := make([]peerDistance, 0, len(peers))
	for _, p := range peers {
		away := r3.Vec{X: cur.Pos.X - p.X, Y: cur.Pos.Y - p.Y}
		dist := math.Hypot(away.X, away.Y)
		dists = append(dists, peerDistance{p.ID, dist})

		// Project both positions one control period forward; a shrinking
		// distance means the pair is closing and the force is amplified.
		futureX := (cur.Pos.X + cur.Vel.X*dt) - (p.X + p.VX*dt)
		futureY := (cur.Pos.Y + cur.Vel.Y*dt) - (p.Y + p.VY*dt)
		future := math.Hypot(futureX, futureY)

		closing := future < dist
		factor := 1.0
		if closing {
			factor = dist / math.Max(future, c.cfg.CollisionRadius*0.1)
		}

		force := c.repulsionForce(dist) * factor
		if force == 0 {
			continue
		}

		if dist > 0 {
			away = r3.Scale(1/dist, away)
		}
		rep = r3.Add(rep, r3.Scale(force, away))

		if closing {
			relV := r3.Vec{X: cur.Vel.X - p.VX, Y: cur.Vel.Y - p.VY}
			rep = r3.Sub(rep, r3.Scale(force*0.1, relV))
		}
	}

	c.maybeWarnCollision(r3.Norm(rep), r3.Norm(attr), dists)

	force := r3.Add(rep, attr)
	totalForce := r3.Norm(force)

	// Damping grows with force magnitude so strong corrections are smoothed
	// harder; it weights the previous velocity, the force gets the rest.
	damping := math.Min(c.cfg.BaseDamping+totalForce*c.cfg.ForceDampingFactor, c.cfg.MaxDamping)
	desired := r3.Add(r3.Scale(damping, c.prev), r3.Scale(1-damping, force))

	accel := r3.Scale(1/dt, r3.Sub(desired, c.prev))
	if a := r3.Norm(accel); a > c.cfg.MaxAcceleration {
		accel = r3.Scale(c.cfg.MaxAcceleration/a, accel)
	}

	v := r3.Add(c.prev, r3.Scale(dt, accel))
	v.Z = 0

	if speed := r3.Norm(v); speed > c.cfg.MaxSpeed {
		v = r3.Scale(c.cfg.MaxSpeed/speed, v)
	} else if speed < c.cfg.TargetSpeedThreshold && distToTarget < c.cfg.TargetThreshold {
		// Arrived: command exactly zero so the caller can detect it.
		v = r3.Vec{}
	}

	c.prev = v
	return v
}

func (c *Controller) maybeWarnCollision(repulsion, attraction float64, dists []peerDistance) {
	if repulsion <= attraction {
		return
	}
	now := c.clock.Now()
	if now.Sub(c.lastCollisionLog) <= collisionWarnInterval {
		return
	}
	c.lastCollisionLog = now

	monitoring.Logf("[avoidance] preventing collision (attraction: %.2f, repulsion: %.2f)",
		attraction, repulsion)

	var b strings.Builder
	for i, d := range dists {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%d: %.2f m", d.id, d.dist)
	}
	monitoring.Logf("[avoidance] peer distances: %s", b.String())
}
