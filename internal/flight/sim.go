package flight

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Navigate commands default to the service's cruise speed when the
	// caller passes zero.
	DefaultNavigateSpeed = 0.5

	// Streamed setpoints are followed faster than one-shot navigation;
	// they arrive at loop rate in small increments.
	setpointRate = 2.0

	simModeStandby  = "STANDBY"
	simModeOffboard = "OFFBOARD"
)

// Sim is a deterministic in-process flight controller for tests and bench
// runs. It integrates motion lazily on access: each call advances the
// vehicle along a straight line toward the active setpoint at the
// commanded speed, using the injected clock. Body-frame setpoints
// translate by the current position; yaw rotation is not modelled.
type Sim struct {
	mu    sync.Mutex
	clock timeutil.Clock
	last  time.Time

	pos r3.Vec
	vel r3.Vec
	yaw float64

	armed   bool
	mode    string
	landing bool

	target    r3.Vec
	speed     float64
	hasTarget bool
}

var _ Controller = (*Sim)(nil)

// NewSim creates a simulated controller at the world origin, disarmed. A
// nil clock selects the real one.
func NewSim(clock timeutil.Clock) *Sim {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sim{
		clock: clock,
		last:  clock.Now(),
		mode:  simModeStandby,
	}
}

// advance integrates motion up to now. Callers hold s.mu.
func (s *Sim) advance(now time.Time) {
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 || !s.hasTarget {
		return
	}

	delta := r3.Sub(s.target, s.pos)
	dist := r3.Norm(delta)
	step := s.speed * dt
	if dist <= step {
		s.pos = s.target
		s.vel = r3.Vec{}
		s.hasTarget = false
		if s.landing {
			s.landing = false
			s.armed = false
			s.mode = simModeStandby
		}
		return
	}

	dir := r3.Scale(1/dist, delta)
	s.pos = r3.Add(s.pos, r3.Scale(step, dir))
	s.vel = r3.Scale(s.speed, dir)
}

// resolveTarget maps a commanded offset in the given frame to a world
// position. Callers hold s.mu.
func (s *Sim) resolveTarget(frame string, x, y, z float64) r3.Vec {
	if frame == FrameBody {
		return r3.Add(s.pos, r3.Vec{X: x, Y: y, Z: z})
	}
	return r3.Vec{X: x, Y: y, Z: z}
}

func (s *Sim) GetPose(_ context.Context, frame string) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clock.Now())

	switch frame {
	case FrameBody:
		return Pose{Yaw: s.yaw, Frame: frame}, nil
	case FrameNavigateTarget:
		off := r3.Sub(s.pos, s.target)
		if !s.hasTarget {
			off = r3.Vec{}
		}
		return Pose{
			X: off.X, Y: off.Y, Z: off.Z,
			VX: s.vel.X, VY: s.vel.Y, VZ: s.vel.Z,
			Yaw: s.yaw, Frame: frame,
		}, nil
	default:
		return Pose{
			X: s.pos.X, Y: s.pos.Y, Z: s.pos.Z,
			VX: s.vel.X, VY: s.vel.Y, VZ: s.vel.Z,
			Yaw: s.yaw, Frame: FrameWorld,
		}, nil
	}
}

// SetPosition streams a setpoint. The sim does not enforce arming here:
// setpoints arrive at loop rate and a real vehicle silently ignores them
// when disarmed.
func (s *Sim) SetPosition(_ context.Context, x, y, z, yaw float64, frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clock.Now())

	s.target = s.resolveTarget(frame, x, y, z)
	s.speed = setpointRate
	s.hasTarget = true
	s.landing = false
	if !math.IsNaN(yaw) {
		s.yaw = yaw
	}
	return nil
}

func (s *Sim) Navigate(_ context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clock.Now())

	if !s.armed {
		if !autoArm {
			return errors.New("navigate rejected: not armed")
		}
		s.armed = true
	}
	s.mode = simModeOffboard

	if speed <= 0 {
		speed = DefaultNavigateSpeed
	}
	s.target = s.resolveTarget(frame, x, y, z)
	s.speed = speed
	s.hasTarget = true
	s.landing = false
	if !math.IsNaN(yaw) {
		s.yaw = yaw
	}
	return nil
}

func (s *Sim) GetState(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clock.Now())
	return State{Armed: s.armed, Mode: s.mode}, nil
}

// Land descends straight down from the current position and disarms on
// touchdown.
func (s *Sim) Land(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clock.Now())

	if !s.armed {
		return errors.New("land rejected: not armed")
	}
	s.target = r3.Vec{X: s.pos.X, Y: s.pos.Y}
	s.speed = DefaultNavigateSpeed
	s.hasTarget = true
	s.landing = true
	s.mode = "AUTO.LAND"
	return nil
}
