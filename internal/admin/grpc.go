package admin

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// ServiceName is the fully qualified admin service name.
const ServiceName = "relay.admin.v1.Admin"

// Method names.
const (
	MethodBan                = "Ban"
	MethodUnban              = "Unban"
	MethodAddWord            = "AddWord"
	MethodRemoveWord         = "RemoveWord"
	MethodListBans           = "ListBans"
	MethodListWords          = "ListWords"
	MethodStats              = "Stats"
	MethodSetReputationCheck = "SetReputationCheck"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// AdminServer is the admin service. Messages are protobuf well-known types, so no
// generated code is needed on either side.
type AdminServer interface {
	Ban(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Unban(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	AddWord(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	RemoveWord(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	ListBans(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListWords(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetReputationCheck(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newBool() *wrapperspb.BoolValue     { return new(wrapperspb.BoolValue) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }

// ServiceDesc registers AdminServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodBan, newString, AdminServer.Ban),
		unary(MethodUnban, newString, AdminServer.Unban),
		unary(MethodAddWord, newString, AdminServer.AddWord),
		unary(MethodRemoveWord, newString, AdminServer.RemoveWord),
		unary(MethodListBans, newEmpty, AdminServer.ListBans),
		unary(MethodListWords, newEmpty, AdminServer.ListWords),
		unary(MethodStats, newEmpty, AdminServer.Stats),
		unary(MethodSetReputationCheck, newBool, AdminServer.SetReputationCheck),
	},
	Metadata: "relay/admin/v1/admin.proto",
}

func unary[Req proto.Message, Resp any](name string, newReq func() Req, call func(AdminServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Register adds the admin service backed by ctrl to s.
func Register(s grpc.ServiceRegistrar, ctrl *Controller) {
	s.RegisterService(&ServiceDesc, &service{ctrl: ctrl})
}

type service struct {
	ctrl *Controller
}

func (s *service) Ban(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return boolResult(s.ctrl.Ban(ctx, in.GetValue()))
}

func (s *service) Unban(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return boolResult(s.ctrl.Unban(ctx, in.GetValue()))
}

func (s *service) AddWord(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return boolResult(s.ctrl.AddWord(ctx, in.GetValue()))
}

func (s *service) RemoveWord(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return boolResult(s.ctrl.RemoveWord(ctx, in.GetValue()))
}

func (s *service) ListBans(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return stringList(s.ctrl.Bans())
}

func (s *service) ListWords(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return stringList(s.ctrl.Words())
}

func (s *service) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.ctrl.Stats())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode stats")
	}
	return st, nil
}

func (s *service) SetReputationCheck(ctx context.Context, in *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	if err := s.ctrl.SetReputationCheck(ctx, in.GetValue()); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func boolResult(changed bool, err error) (*wrapperspb.BoolValue, error) {
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(changed), nil
}

func stringList(items []string) (*structpb.ListValue, error) {
	vals := make([]any, len(items))
	for i, v := range items {
		vals[i] = v
	}
	l, err := structpb.NewList(vals)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode list")
	}
	return l, nil
}

// UnaryAuthInterceptor rejects calls without a valid bearer token in the
// authorization metadata and records the token subject in the context.
func UnaryAuthInterceptor(v *Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				token = BearerToken(vals[0])
			}
		}
		claims, err := v.Verify(token)
		if err != nil {
			return nil, err
		}
		return handler(WithSubject(ctx, claims.Subject), req)
	}
}
