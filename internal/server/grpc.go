package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/deltakey/internal/logger"
	"github.com/nainya/deltakey/internal/metrics"
)

// KeyServiceName is the fully qualified gRPC service name
const KeyServiceName = "deltakey.v1.KeyService"

// KeyServiceServer is the gRPC surface of the identification service.
// Requests and responses are generic structs; field names match the HTTP
// API's JSON.
type KeyServiceServer interface {
	Propose(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddFilter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Undo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	State(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Values(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AutoKey(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(KeyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KeyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + KeyServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(KeyServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// KeyServiceDesc describes the service for grpc.ServiceRegistrar
var KeyServiceDesc = grpc.ServiceDesc{
	ServiceName: KeyServiceName,
	HandlerType: (*KeyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Propose", KeyServiceServer.Propose),
		unaryMethod("AddFilter", KeyServiceServer.AddFilter),
		unaryMethod("Undo", KeyServiceServer.Undo),
		unaryMethod("Reset", KeyServiceServer.Reset),
		unaryMethod("State", KeyServiceServer.State),
		unaryMethod("Values", KeyServiceServer.Values),
		unaryMethod("AutoKey", KeyServiceServer.AutoKey),
		unaryMethod("Stats", KeyServiceServer.Stats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deltakey/v1/key.proto",
}

// RegisterKeyService registers srv on s
func RegisterKeyService(s grpc.ServiceRegistrar, srv KeyServiceServer) {
	s.RegisterService(&KeyServiceDesc, srv)
}

// NewGRPCServer builds a gRPC server with the metrics interceptor and the
// key service registered
func NewGRPCServer(svc *Service, log *logger.Logger, m *metrics.Metrics) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, log)),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)
	RegisterKeyService(s, &KeyServer{svc: svc})
	return s
}

// KeyServer adapts Service to KeyServiceServer
type KeyServer struct {
	svc *Service
}

// NewKeyServer wraps a service
func NewKeyServer(svc *Service) *KeyServer {
	return &KeyServer{svc: svc}
}

func (k *KeyServer) Propose(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	exclude, err := intListField(in, "exclude")
	if err != nil {
		return nil, toStatus(err)
	}
	view, err := k.svc.Propose(ctx, stringField(in, "session_id"), exclude)
	return respond(view, err)
}

func (k *KeyServer) AddFilter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	character, err := intField(in, "character")
	if err != nil {
		return nil, toStatus(err)
	}
	raw, err := rawValueField(in, "value")
	if err != nil {
		return nil, toStatus(err)
	}
	view, err := k.svc.AddFilter(ctx, stringField(in, "session_id"), character, raw)
	return respond(view, err)
}

func (k *KeyServer) Undo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	view, err := k.svc.Undo(ctx, stringField(in, "session_id"))
	return respond(view, err)
}

func (k *KeyServer) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	view, err := k.svc.Reset(ctx, stringField(in, "session_id"))
	return respond(view, err)
}

func (k *KeyServer) State(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	view, err := k.svc.State(ctx, stringField(in, "session_id"))
	return respond(view, err)
}

func (k *KeyServer) Values(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	character, err := intField(in, "character")
	if err != nil {
		return nil, toStatus(err)
	}
	id := stringField(in, "session_id")
	values, err := k.svc.Values(ctx, id, character)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]interface{}{
		"session_id": k.svc.sessionID(id),
		"character":  character,
		"values":     values,
	}, nil)
}

func (k *KeyServer) AutoKey(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	maxSteps := 0
	if _, ok := in.GetFields()["max_steps"]; ok {
		n, err := intField(in, "max_steps")
		if err != nil {
			return nil, toStatus(err)
		}
		maxSteps = n
	}
	view, err := k.svc.AutoKey(ctx, stringField(in, "session_id"), maxSteps)
	return respond(view, err)
}

func (k *KeyServer) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	view, err := k.svc.Stats(ctx)
	return respond(view, err)
}

// respond converts a view to a struct via its JSON form
func respond(view interface{}, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	data, err := json.Marshal(view)
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode response: %w", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, toStatus(fmt.Errorf("convert response: %w", err))
	}
	return out, nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", errBadRequest, name)
	}
	return wholeNumber(v, name)
}

func intListField(in *structpb.Struct, name string) ([]int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: field %q must be a list", errBadRequest, name)
	}
	out := make([]int, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		n, err := wholeNumber(item, name)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func wholeNumber(v *structpb.Value, name string) (int, error) {
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || num.NumberValue != math.Trunc(num.NumberValue) {
		return 0, fmt.Errorf("%w: field %q must be a whole number", errBadRequest, name)
	}
	return int(num.NumberValue), nil
}

// rawValueField accepts the filter value as a string or a number
func rawValueField(in *structpb.Struct, name string) (string, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", errBadRequest, name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: field %q must be a string or number", errBadRequest, name)
}

// KeyServiceClient calls the key service over a client connection
type KeyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewKeyServiceClient creates a client
func NewKeyServiceClient(cc grpc.ClientConnInterface) *KeyServiceClient {
	return &KeyServiceClient{cc: cc}
}

// Call invokes a unary method by name, e.g. "Propose"
func (c *KeyServiceClient) Call(ctx context.Context, method string, in map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+KeyServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
