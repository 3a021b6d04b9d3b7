package flight

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// capturingController records the arguments of every call and returns
// canned results.
type capturingController struct {
	mu sync.Mutex

	pose    Pose
	poseErr error
	state   State

	poseFrame string

	setX, setY, setZ, setYaw float64
	setFrame                 string

	navX, navY, navZ float64
	navYaw, navSpeed float64
	navFrame         string
	navAutoArm       bool

	landCalls int
}

func (c *capturingController) GetPose(_ context.Context, frame string) (Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poseFrame = frame
	return c.pose, c.poseErr
}

func (c *capturingController) SetPosition(_ context.Context, x, y, z, yaw float64, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setX, c.setY, c.setZ, c.setYaw = x, y, z, yaw
	c.setFrame = frame
	return nil
}

func (c *capturingController) Navigate(_ context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navX, c.navY, c.navZ = x, y, z
	c.navYaw, c.navSpeed = yaw, speed
	c.navFrame = frame
	c.navAutoArm = autoArm
	return nil
}

func (c *capturingController) GetState(context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

func (c *capturingController) Land(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.landCalls++
	return nil
}

// newBufconnRemote serves ctrl on an in-memory listener and returns a
// Remote dialed against it.
func newBufconnRemote(t *testing.T, ctrl Controller) *Remote {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, ctrl)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewRemote(conn)
}

// TestRemoteGetPoseRoundTrip tests that a pose survives the JSON wire
// encoding field for field.
func TestRemoteGetPoseRoundTrip(t *testing.T) {
	ctrl := &capturingController{
		pose: Pose{
			X: 1.5, Y: -2.25, Z: 1,
			VX: 0.5, VY: -0.125, VZ: 0.25,
			Yaw: 0.75, YawRate: -0.5,
			Frame: FrameWorld,
		},
	}
	remote := newBufconnRemote(t, ctrl)

	got, err := remote.GetPose(context.Background(), FrameWorld)
	if err != nil {
		t.Fatalf("get pose: %v", err)
	}
	if got != ctrl.pose {
		t.Errorf("pose = %+v, want %+v", got, ctrl.pose)
	}
	if ctrl.poseFrame != FrameWorld {
		t.Errorf("server saw frame %q, want %q", ctrl.poseFrame, FrameWorld)
	}
}

// TestRemoteNavigateCarriesNaNYaw tests that the hold-yaw NaN convention
// crosses the wire, where it travels as JSON null.
func TestRemoteNavigateCarriesNaNYaw(t *testing.T) {
	ctrl := &capturingController{}
	remote := newBufconnRemote(t, ctrl)

	err := remote.Navigate(context.Background(), 1, 2, 1.5, math.NaN(), 0.5, FrameWorld, true)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}

	if ctrl.navX != 1 || ctrl.navY != 2 || ctrl.navZ != 1.5 {
		t.Errorf("target = (%v, %v, %v), want (1, 2, 1.5)", ctrl.navX, ctrl.navY, ctrl.navZ)
	}
	if !math.IsNaN(ctrl.navYaw) {
		t.Errorf("yaw = %v, want NaN", ctrl.navYaw)
	}
	if ctrl.navSpeed != 0.5 {
		t.Errorf("speed = %v, want 0.5", ctrl.navSpeed)
	}
	if !ctrl.navAutoArm {
		t.Error("auto-arm flag lost")
	}
}

// TestRemotePoseNaNFields tests that NaN pose components (lost tracking)
// come back as NaN, not zero.
func TestRemotePoseNaNFields(t *testing.T) {
	ctrl := &capturingController{
		pose: Pose{X: math.NaN(), Y: math.NaN(), Z: 1.5, Frame: FrameWorld},
	}
	remote := newBufconnRemote(t, ctrl)

	got, err := remote.GetPose(context.Background(), FrameWorld)
	if err != nil {
		t.Fatalf("get pose: %v", err)
	}
	if !math.IsNaN(got.X) || !math.IsNaN(got.Y) {
		t.Errorf("X, Y = %v, %v, want NaN", got.X, got.Y)
	}
	if got.Z != 1.5 {
		t.Errorf("Z = %v, want 1.5", got.Z)
	}
}

// TestRemoteSetPositionDelivered tests the streamed setpoint call.
func TestRemoteSetPositionDelivered(t *testing.T) {
	ctrl := &capturingController{}
	remote := newBufconnRemote(t, ctrl)

	if err := remote.SetPosition(context.Background(), 0.5, -0.5, 1.5, 0, FrameWorld); err != nil {
		t.Fatalf("set position: %v", err)
	}
	if ctrl.setX != 0.5 || ctrl.setY != -0.5 || ctrl.setZ != 1.5 {
		t.Errorf("setpoint = (%v, %v, %v), want (0.5, -0.5, 1.5)", ctrl.setX, ctrl.setY, ctrl.setZ)
	}
	if ctrl.setFrame != FrameWorld {
		t.Errorf("frame = %q, want %q", ctrl.setFrame, FrameWorld)
	}
}

// TestRemoteStateAndLand tests the GetState and Land calls.
func TestRemoteStateAndLand(t *testing.T) {
	ctrl := &capturingController{state: State{Armed: true, Mode: "OFFBOARD"}}
	remote := newBufconnRemote(t, ctrl)

	st, err := remote.GetState(context.Background())
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if !st.Armed || st.Mode != "OFFBOARD" {
		t.Errorf("state = %+v, want armed OFFBOARD", st)
	}

	if err := remote.Land(context.Background()); err != nil {
		t.Fatalf("land: %v", err)
	}
	if ctrl.landCalls != 1 {
		t.Errorf("land calls = %d, want 1", ctrl.landCalls)
	}
}

// TestRemoteErrorPropagates tests that a service-side error reaches the
// client with its message intact.
func TestRemoteErrorPropagates(t *testing.T) {
	ctrl := &capturingController{poseErr: errors.New("gyro offline")}
	remote := newBufconnRemote(t, ctrl)

	_, err := remote.GetPose(context.Background(), FrameWorld)
	if err == nil {
		t.Fatal("service error swallowed")
	}
	if !strings.Contains(err.Error(), "gyro offline") {
		t.Errorf("err = %v, want message to mention the cause", err)
	}
}

// TestRemoteAgainstSim drives a simulated controller end to end over the
// in-memory wire.
func TestRemoteAgainstSim(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	sim := NewSim(clock)
	remote := newBufconnRemote(t, sim)
	ctx := context.Background()

	if err := remote.Navigate(ctx, 0, 0, 1.5, math.NaN(), 0.5, FrameBody, true); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	st, err := remote.GetState(ctx)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if !st.Armed {
		t.Error("not armed through the remote")
	}

	clock.Advance(4 * time.Second)
	p, err := remote.GetPose(ctx, FrameWorld)
	if err != nil {
		t.Fatalf("get pose: %v", err)
	}
	if p.Z != 1.5 {
		t.Errorf("altitude = %v, want 1.5", p.Z)
	}
}
