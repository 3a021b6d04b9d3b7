package flight

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// The flight service speaks five unary calls under a single service name,
// JSON encoded. The wire types below are the whole contract; there is no
// generated code to keep in sync.
const (
	codecName = "json"

	serviceName       = "dronecraft.FlightControl"
	methodGetPose     = "/dronecraft.FlightControl/GetPose"
	methodSetPosition = "/dronecraft.FlightControl/SetPosition"
	methodNavigate    = "/dronecraft.FlightControl/Navigate"
	methodGetState    = "/dronecraft.FlightControl/GetState"
	methodLand        = "/dronecraft.FlightControl/Land"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// nanFloat marshals NaN as JSON null. Pose fields the service cannot
// resolve and the "hold current yaw" convention are NaN, and JSON has no
// NaN literal.
type nanFloat float64

func (f nanFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *nanFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = nanFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = nanFloat(v)
	return nil
}

type poseMsg struct {
	X       nanFloat `json:"x"`
	Y       nanFloat `json:"y"`
	Z       nanFloat `json:"z"`
	VX      nanFloat `json:"vx"`
	VY      nanFloat `json:"vy"`
	VZ      nanFloat `json:"vz"`
	Yaw     nanFloat `json:"yaw"`
	YawRate nanFloat `json:"yaw_rate"`
	Frame   string   `json:"frame_id"`
}

func poseToMsg(p Pose) *poseMsg {
	return &poseMsg{
		X: nanFloat(p.X), Y: nanFloat(p.Y), Z: nanFloat(p.Z),
		VX: nanFloat(p.VX), VY: nanFloat(p.VY), VZ: nanFloat(p.VZ),
		Yaw: nanFloat(p.Yaw), YawRate: nanFloat(p.YawRate),
		Frame: p.Frame,
	}
}

func (m *poseMsg) pose() Pose {
	return Pose{
		X: float64(m.X), Y: float64(m.Y), Z: float64(m.Z),
		VX: float64(m.VX), VY: float64(m.VY), VZ: float64(m.VZ),
		Yaw: float64(m.Yaw), YawRate: float64(m.YawRate),
		Frame: m.Frame,
	}
}

type getPoseRequest struct {
	Frame string `json:"frame_id"`
}

type setPositionRequest struct {
	X     nanFloat `json:"x"`
	Y     nanFloat `json:"y"`
	Z     nanFloat `json:"z"`
	Yaw   nanFloat `json:"yaw"`
	Frame string   `json:"frame_id"`
}

type navigateRequest struct {
	X       nanFloat `json:"x"`
	Y       nanFloat `json:"y"`
	Z       nanFloat `json:"z"`
	Yaw     nanFloat `json:"yaw"`
	Speed   nanFloat `json:"speed"`
	Frame   string   `json:"frame_id"`
	AutoArm bool     `json:"auto_arm"`
}

type stateMsg struct {
	Armed bool   `json:"armed"`
	Mode  string `json:"mode"`
}

type emptyMsg struct{}

// unary builds a MethodDesc for one unary call, dispatching to invoke with
// the decoded request. The interceptor plumbing matches what generated
// code does.
func unary(method string, newIn func() interface{}, invoke func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error)) grpc.MethodDesc {
	full := "/" + serviceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newIn()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return invoke(ctx, srv.(Controller), in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return invoke(ctx, srv.(Controller), req)
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Controller)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetPose", func() interface{} { return new(getPoseRequest) },
			func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error) {
				req := in.(*getPoseRequest)
				p, err := ctrl.GetPose(ctx, req.Frame)
				if err != nil {
					return nil, err
				}
				return poseToMsg(p), nil
			}),
		unary("SetPosition", func() interface{} { return new(setPositionRequest) },
			func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error) {
				req := in.(*setPositionRequest)
				err := ctrl.SetPosition(ctx, float64(req.X), float64(req.Y), float64(req.Z), float64(req.Yaw), req.Frame)
				if err != nil {
					return nil, err
				}
				return &emptyMsg{}, nil
			}),
		unary("Navigate", func() interface{} { return new(navigateRequest) },
			func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error) {
				req := in.(*navigateRequest)
				err := ctrl.Navigate(ctx, float64(req.X), float64(req.Y), float64(req.Z), float64(req.Yaw),
					float64(req.Speed), req.Frame, req.AutoArm)
				if err != nil {
					return nil, err
				}
				return &emptyMsg{}, nil
			}),
		unary("GetState", func() interface{} { return new(emptyMsg) },
			func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error) {
				st, err := ctrl.GetState(ctx)
				if err != nil {
					return nil, err
				}
				return &stateMsg{Armed: st.Armed, Mode: st.Mode}, nil
			}),
		unary("Land", func() interface{} { return new(emptyMsg) },
			func(ctx context.Context, ctrl Controller, in interface{}) (interface{}, error) {
				if err := ctrl.Land(ctx); err != nil {
					return nil, err
				}
				return &emptyMsg{}, nil
			}),
	},
	Metadata: "internal/flight/remote.go",
}

// Register exposes ctrl on s under the flight service name.
func Register(s *grpc.Server, ctrl Controller) {
	s.RegisterService(&serviceDesc, ctrl)
}

// Serve registers ctrl on a fresh gRPC server and serves lis until the
// listener closes. Use Register directly when the caller owns the server.
func Serve(lis net.Listener, ctrl Controller) error {
	s := grpc.NewServer()
	Register(s, ctrl)
	return s.Serve(lis)
}

// Remote is a Controller backed by the flight service over gRPC.
type Remote struct {
	conn *grpc.ClientConn
	owns bool
}

var _ Controller = (*Remote)(nil)

// DialRemote connects to the flight service at target (host:port). The
// connection is lazy; failures surface on the first call.
func DialRemote(target string) (*Remote, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial flight service %s: %w", target, err)
	}
	return &Remote{conn: conn, owns: true}, nil
}

// NewRemote wraps an existing client connection. The caller keeps
// ownership of conn.
func NewRemote(conn *grpc.ClientConn) *Remote {
	return &Remote{conn: conn}
}

// Close releases the connection if this Remote dialed it.
func (r *Remote) Close() error {
	if !r.owns {
		return nil
	}
	return r.conn.Close()
}

func (r *Remote) invoke(ctx context.Context, method string, in, out interface{}) error {
	return r.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(codecName))
}

func (r *Remote) GetPose(ctx context.Context, frame string) (Pose, error) {
	var out poseMsg
	if err := r.invoke(ctx, methodGetPose, &getPoseRequest{Frame: frame}, &out); err != nil {
		return Pose{}, err
	}
	return out.pose(), nil
}

func (r *Remote) SetPosition(ctx context.Context, x, y, z, yaw float64, frame string) error {
	req := &setPositionRequest{
		X: nanFloat(x), Y: nanFloat(y), Z: nanFloat(z),
		Yaw: nanFloat(yaw), Frame: frame,
	}
	return r.invoke(ctx, methodSetPosition, req, &emptyMsg{})
}

func (r *Remote) Navigate(ctx context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	req := &navigateRequest{
		X: nanFloat(x), Y: nanFloat(y), Z: nanFloat(z),
		Yaw: nanFloat(yaw), Speed: nanFloat(speed),
		Frame: frame, AutoArm: autoArm,
	}
	return r.invoke(ctx, methodNavigate, req, &emptyMsg{})
}

func (r *Remote) GetState(ctx context.Context) (State, error) {
	var out stateMsg
	if err := r.invoke(ctx, methodGetState, &emptyMsg{}, &out); err != nil {
		return State{}, err
	}
	return State{Armed: out.Armed, Mode: out.Mode}, nil
}

func (r *Remote) Land(ctx context.Context) error {
	return r.invoke(ctx, methodLand, &emptyMsg{}, &emptyMsg{})
}
