// Package whoami provides the built-in rawr.WhoAmI RPC. It reports the actor
// and client address bound to the call and is used as an end-to-end check of
// the actor interceptors. The service is registered through a hand-written
// [grpc.ServiceDesc], so no protobuf code generation is required.
//
// The request and response are plain Go structs, so the package registers a
// codec that JSON-encodes its own types and delegates every other message to
// the standard proto codec.
package whoami

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // register the default proto codec first
	"google.golang.org/protobuf/proto"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// FullMethod is the full gRPC method name of the WhoAmI RPC.
const FullMethod = "/rawr.WhoAmI/WhoAmI"

// Request is the input for the WhoAmI method.
type Request struct{}

// Response describes the binding the server observed for the call.
type Response struct {
	Authenticated  bool            `json:"authenticated"`
	Actor          *contextx.Actor `json:"actor,omitempty"`
	RemoteAddr     string          `json:"remote_addr,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	ServerTimeUnix int64           `json:"server_time_unix"`
}

type message interface {
	isWhoAmIMsg()
}

func (*Request) isWhoAmIMsg()  {}
func (*Response) isWhoAmIMsg() {}

// Handler is the interface a WhoAmI implementation must satisfy.
type Handler interface {
	WhoAmI(ctx context.Context, req *Request) (*Response, error)
}

// DefaultHandler returns a Handler that reports the binding of ctx.
func DefaultHandler() Handler { return defaultHandler{now: time.Now} }

type defaultHandler struct {
	now func() time.Time
}

func (h defaultHandler) WhoAmI(ctx context.Context, _ *Request) (*Response, error) {
	resp := &Response{
		RequestID:      contextx.RequestIDFromContext(ctx),
		ServerTimeUnix: h.now().Unix(),
	}
	if b, ok := contextx.CurrentBinding(ctx); ok {
		resp.RemoteAddr = b.RemoteAddr
		if b.Actor != nil {
			a := *b.Actor
			resp.Actor = &a
			resp.Authenticated = true
		}
	}
	return resp, nil
}

// ServiceDesc is the grpc.ServiceDesc for the rawr.WhoAmI service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "rawr.WhoAmI",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "WhoAmI",
			Handler:    whoAmIHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rawr/whoami.proto",
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).WhoAmI(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod,
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).WhoAmI(ctx, r.(*Request))
	}
	return interceptor(ctx, req, info, handler)
}

// Register registers a WhoAmI implementation on s.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

func init() {
	grpcEncoding.RegisterCodec(codec{})
}

// codec replaces the default "proto" codec: WhoAmI types go through JSON and
// everything else through proto.Marshal/Unmarshal.
type codec struct{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(message); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("whoami codec: unsupported message type %T", v)
}

func (codec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(message); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("whoami codec: unsupported message type %T", v)
}
