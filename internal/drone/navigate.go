package drone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/avoidance"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/flight"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
)

// Flight sequencing constants, tuned on the real airframe.
const (
	DefaultTakeoffHeight   = 1.5
	DefaultNavigateTimeout = 60 * time.Second

	arrivalTolerance    = 0.2 // meters from target that counts as reached
	arrivalPollInterval = 100 * time.Millisecond
	armVerifyDelay      = 1 * time.Second
	takeoffClimbDelay   = 4 * time.Second
	preLandHeight       = 0.5 // hover height before handing off to the land service
	landCommandDelay    = 1 * time.Second
	landSettleDelay     = 4 * time.Second
)

// NavigateRequest describes one avoidance-guided flight toward a target.
type NavigateRequest struct {
	X, Y, Z float64
	Yaw     float64 // NaN holds the current yaw

	// Frame is the coordinate frame of the target; empty selects the
	// drone's default frame.
	Frame string

	// Timeout bounds the whole flight. Zero selects the default;
	// a negative value disables the deadline.
	Timeout time.Duration

	// Perpetual keeps the loop holding position after arrival instead
	// of returning. Combine with a timeout or cancellation.
	Perpetual bool
}

// NavigateWithAvoidance flies toward the target under the collision
// avoidance law, stepping position setpoints at the navigation rate. It
// blocks the calling goroutine and returns true on arrival, false when
// the timeout elapses first. The control law is planar: altitude holds
// at the current height regardless of the requested Z.
//
// Only one navigation command may run at a time; the avoidance state is
// shared across calls.
func (d *Drone) NavigateWithAvoidance(ctx context.Context, req NavigateRequest) (bool, error) {
	fc := d.flightController()
	if fc == nil {
		return false, flight.ErrNoFlightController
	}
	frame := req.Frame
	if frame == "" {
		frame = d.opts.Frame
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultNavigateTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = d.clock.Now().Add(timeout)
	}

	target := r3.Vec{X: req.X, Y: req.Y, Z: req.Z}
	dt := 1.0 / d.opts.NavigationRate
	period := time.Duration(float64(time.Second) / d.opts.NavigationRate)

	d.avoid.Reset()
	monitoring.Logf("[drone] %d navigating to (%.2f, %.2f) in %s", d.opts.ID, req.X, req.Y, frame)

	for {
		if !d.running.Load() {
			return false, errors.New("drone stopped during navigation")
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !deadline.IsZero() && d.clock.Now().After(deadline) {
			monitoring.Logf("[drone] %d navigation timed out after %s", d.opts.ID, timeout)
			return false, nil
		}

		pose, err := fc.GetPose(ctx, frame)
		if err != nil || anyNaN(pose.X, pose.Y) {
			if err != nil {
				monitoring.RateLimitedLogf("navigate-pose", poseWarnInterval,
					"[drone] %d navigation pose read failed: %v", d.opts.ID, err)
			}
			d.clock.Sleep(period)
			continue
		}

		vel := d.avoid.Compute(avoidance.State{
			Pos: r3.Vec{X: pose.X, Y: pose.Y, Z: pose.Z},
			Vel: r3.Vec{X: pose.VX, Y: pose.VY, Z: pose.VZ},
		}, target, d.peers.Snapshot(), dt)

		if vel == (r3.Vec{}) && !req.Perpetual {
			monitoring.Logf("[drone] %d arrived at (%.2f, %.2f)", d.opts.ID, req.X, req.Y)
			return true, nil
		}

		err = fc.SetPosition(ctx, pose.X+vel.X*dt, pose.Y+vel.Y*dt, pose.Z+vel.Z*dt, req.Yaw, frame)
		if err != nil {
			monitoring.RateLimitedLogf("navigate-setpoint", poseWarnInterval,
				"[drone] %d setpoint rejected: %v", d.opts.ID, err)
		}
		d.clock.Sleep(period)
	}
}

// NavigateWait issues a direct navigate command and blocks until the
// controller reports the target within tolerance. It carries no deadline
// of its own; bound it through ctx.
func (d *Drone) NavigateWait(ctx context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	fc := d.flightController()
	if fc == nil {
		return flight.ErrNoFlightController
	}
	if frame == "" {
		frame = d.opts.Frame
	}
	if err := fc.Navigate(ctx, x, y, z, yaw, speed, frame, autoArm); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pose, err := fc.GetPose(ctx, flight.FrameNavigateTarget)
		if err != nil {
			return err
		}
		if math.Sqrt(pose.X*pose.X+pose.Y*pose.Y+pose.Z*pose.Z) < arrivalTolerance {
			return nil
		}
		d.clock.Sleep(arrivalPollInterval)
	}
}

// Takeoff arms the drone and climbs straight up to the given height above
// the takeoff point. A non-positive height selects DefaultTakeoffHeight.
func (d *Drone) Takeoff(ctx context.Context, height float64) error {
	fc := d.flightController()
	if fc == nil {
		return flight.ErrNoFlightController
	}
	if height <= 0 {
		height = DefaultTakeoffHeight
	}

	monitoring.Logf("[drone] %d taking off to %.2f m", d.opts.ID, height)
	if err := fc.Navigate(ctx, 0, 0, height, math.NaN(), flight.DefaultNavigateSpeed, flight.FrameBody, true); err != nil {
		return fmt.Errorf("takeoff command failed: %w", err)
	}
	d.clock.Sleep(armVerifyDelay)

	st, err := fc.GetState(ctx)
	if err != nil {
		return fmt.Errorf("takeoff state check failed: %w", err)
	}
	if !st.Armed {
		return errors.New("arming failed")
	}
	d.clock.Sleep(takeoffClimbDelay)

	if s := d.currentSink(); s != nil {
		s.RecordEvent(Event{DroneID: d.opts.ID, Kind: EventTakeoff,
			Detail: fmt.Sprintf("to %.2f m", height)})
	}
	return nil
}

// Land descends over the current position, then hands control to the
// flight controller's landing mode and waits for touchdown.
func (d *Drone) Land(ctx context.Context) error {
	fc := d.flightController()
	if fc == nil {
		return flight.ErrNoFlightController
	}
	pose, err := fc.GetPose(ctx, flight.FrameWorld)
	if err != nil {
		return fmt.Errorf("landing position read failed: %w", err)
	}

	monitoring.Logf("[drone] %d landing at (%.2f, %.2f)", d.opts.ID, pose.X, pose.Y)
	err = d.NavigateWait(ctx, pose.X, pose.Y, preLandHeight, math.NaN(),
		flight.DefaultNavigateSpeed, flight.FrameWorld, false)
	if err != nil {
		return fmt.Errorf("landing approach failed: %w", err)
	}
	d.clock.Sleep(landCommandDelay)

	if err := fc.Land(ctx); err != nil {
		return fmt.Errorf("landing command failed: %w", err)
	}
	d.clock.Sleep(landSettleDelay)

	if s := d.currentSink(); s != nil {
		s.RecordEvent(Event{DroneID: d.opts.ID, Kind: EventLand,
			Detail: fmt.Sprintf("at (%.2f, %.2f)", pose.X, pose.Y)})
	}
	return nil
}
