package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// jsonCodec carries Message as JSON so the stream needs no generated code.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ControlServer is the bidirectional command/event stream, the gRPC twin of
// the WebSocket endpoint.
type ControlServer interface {
	Stream(Control_StreamServer) error
}

type UnimplementedControlServer struct{}

func (UnimplementedControlServer) Stream(Control_StreamServer) error {
	return status.Errorf(codes.Unimplemented, "method Stream not implemented")
}

type Control_StreamServer interface {
	Send(*Message) error
	Recv() (*Message, error)
	grpc.ServerStream
}

type controlStreamServer struct {
	grpc.ServerStream
}

func (x *controlStreamServer) Send(m *Message) error {
	return x.ServerStream.SendMsg(m)
}

func (x *controlStreamServer) Recv() (*Message, error) {
	m := new(Message)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Control_Stream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ControlServer).Stream(&controlStreamServer{stream})
}

const controlStreamMethod = "/interviewrec.Control/Stream"

var _Control_serviceDesc = grpc.ServiceDesc{
	ServiceName: "interviewrec.Control",
	HandlerType: (*ControlServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Control_Stream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/api/control.proto",
}

func RegisterControlServer(s *grpc.Server, srv ControlServer) {
	s.RegisterService(&_Control_serviceDesc, srv)
}

// Stream handles one control client: events are pushed by the broadcaster,
// commands are answered on the same stream. The client is dropped when its
// outbox fills up.
func (s *Server) Stream(stream Control_StreamServer) error {
	p := newClient("grpc", func(msg Message) error {
		return stream.Send(&msg)
	}, nil, s.log)
	s.addPeer(p)
	defer func() {
		s.removePeer(p)
		p.close()
	}()

	s.log.Debug("gRPC control client connected")

	cmds := make(chan *Message)
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case cmds <- msg:
			case <-p.closed():
				return
			}
		}
	}()

	for {
		select {
		case <-p.closed():
			return status.Error(codes.ResourceExhausted, "control client not reading")
		case err := <-recvErr:
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		case msg := <-cmds:
			if err := p.send(s.handleCommand(stream.Context(), *msg)); err != nil {
				return status.Error(codes.ResourceExhausted, err.Error())
			}
		}
	}
}

// ServeGRPC serves the control stream on lis until ctx is done.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	server := grpc.NewServer(
		grpc.Creds(insecure.NewCredentials()),
		grpc.ForceServerCodec(jsonCodec{}),
	)
	RegisterControlServer(server, s)

	go func() {
		<-ctx.Done()
		// Streams block in Recv, so a graceful stop would never return.
		server.Stop()
	}()

	s.log.Infof("gRPC listening on %s", lis.Addr())
	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func listenGRPC(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		socketPath := strings.TrimPrefix(strings.TrimPrefix(addr, "unix:"), "//")
		if err := removeIfExists(socketPath); err != nil {
			return nil, err
		}
		return net.Listen("unix", socketPath)
	case strings.HasPrefix(addr, "npipe:"):
		return listenPipe(pipeName(strings.TrimPrefix(addr, "npipe:")))
	default:
		return net.Listen("tcp", addr)
	}
}

var errPipeUnsupported = errors.New("named pipes need Windows")

// pipeName expands a bare name such as "interviewrec-grpc" to the full
// \\.\pipe\ path expected by the pipe API.
func pipeName(name string) string {
	const prefix = `\\.\pipe\`
	if strings.HasPrefix(strings.ToLower(name), prefix) {
		return name
	}
	return prefix + strings.TrimLeft(name, `\/`)
}

func removeIfExists(path string) error {
	if path == "" {
		return errors.New("empty socket path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
