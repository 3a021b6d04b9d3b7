// Package flight is the boundary to the flight controller, the service that
// actually flies the airframe. Everything above it (link, presence,
// avoidance, mission logic) treats flight control as an optional
// collaborator: bench rigs and relay nodes run without one.
package flight

import (
	"context"
	"errors"
)

// Reference frames understood by the flight service. World is the map
// frame poses default to; Body is relative to the airframe; NavigateTarget
// is centered on the active navigation setpoint, so a pose in it reads
// directly as the remaining offset.
const (
	FrameWorld          = "aruco_map"
	FrameBody           = "body"
	FrameNavigateTarget = "navigate_target"
)

// ErrNoFlightController is returned by navigation entry points when no
// flight controller is attached.
var ErrNoFlightController = errors.New("flight controller not attached")

// Pose is a position and velocity sample in a named frame. Fields the
// service cannot resolve (lost tracking, unset yaw) come back as NaN.
type Pose struct {
	X, Y, Z    float64
	VX, VY, VZ float64
	Yaw        float64
	YawRate    float64
	Frame      string
}

// State reports arming and flight mode.
type State struct {
	Armed bool
	Mode  string
}

// Controller is the flight-service contract. GetPose and SetPosition are
// streamed at loop rate; Navigate and Land are one-shot commands the
// vehicle then executes on its own. A NaN yaw means hold the current yaw.
type Controller interface {
	GetPose(ctx context.Context, frame string) (Pose, error)
	SetPosition(ctx context.Context, x, y, z, yaw float64, frame string) error
	Navigate(ctx context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error
	GetState(ctx context.Context) (State, error)
	Land(ctx context.Context) error
}
