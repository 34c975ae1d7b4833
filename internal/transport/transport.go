// Package transport carries protocol messages between workers and the
// master over a single unary gRPC method. Messages travel as
// google.protobuf.Struct envelopes, so no generated stubs are needed.
package transport

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/bench-core/internal/protocol"
	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

const (
	ServiceName    = "benchcore.v1.Coordinator"
	ExchangeMethod = "/" + ServiceName + "/Exchange"
)

// Handler answers one request message with one response message
type Handler interface {
	Handle(ctx context.Context, msg protocol.Message) (protocol.Message, error)
}

// HandlerFunc lets a plain function serve as a Handler
type HandlerFunc func(ctx context.Context, msg protocol.Message) (protocol.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	return f(ctx, msg)
}

type exchanger interface {
	exchange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*exchanger)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: exchangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "benchcore/v1/coordinator.proto",
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchanger).exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExchangeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(exchanger).exchange(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a Handler as the Coordinator gRPC service
type Server struct {
	handler Handler
	log     *slog.Logger
}

// NewServer creates a Server dispatching to h
func NewServer(h Handler) *Server {
	return &Server{handler: h, log: logger.Component("transport")}
}

// Register attaches the service to g
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

func (s *Server) exchange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := protocol.Decode(in)
	if err != nil {
		s.log.Warn("malformed request", "peer", PeerAddr(ctx), "error", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.handler.Handle(ctx, req)
	if err != nil {
		s.log.Warn("request failed", "peer", PeerAddr(ctx), "type", req.Type(), "error", err)
		return nil, toStatus(err)
	}

	out, err := protocol.Encode(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrRunCancelled):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// PeerAddr returns the remote address of the calling worker, or "" when
// ctx carries no peer
func PeerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

// DefaultMaxMessageBytes bounds one Exchange message when no limit is
// configured. A report carries one score per dataset row.
const DefaultMaxMessageBytes = 64 << 20

// ServerOptions returns the gRPC server options for a message limit of
// maxBytes. A non-positive limit uses DefaultMaxMessageBytes.
func ServerOptions(maxBytes int) []grpc.ServerOption {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return []grpc.ServerOption{grpc.MaxRecvMsgSize(maxBytes), grpc.MaxSendMsgSize(maxBytes)}
}

// WithMaxMessageBytes sets the client message limit in both directions
func WithMaxMessageBytes(maxBytes int) grpc.DialOption {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxBytes), grpc.MaxCallSendMsgSize(maxBytes))
}

// Client is the worker side of the Coordinator service
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. The connection is established lazily on
// the first Exchange. Extra options are appended after the insecure
// transport credentials and the default message limit.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		WithMaxMessageBytes(DefaultMaxMessageBytes),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Exchange sends msg and returns the master's response
func (c *Client) Exchange(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	in, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ExchangeMethod, in, out); err != nil {
		return nil, err
	}
	return protocol.Decode(out)
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Retryable reports whether a failed Exchange may succeed if repeated
func Retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	default:
		return false
	}
}
