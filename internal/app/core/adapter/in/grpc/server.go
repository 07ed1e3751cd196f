package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	// 註冊 JSON codec
	_ "github.com/JoeShih716/go-mem-bank/pkg/grpc"
)

const (
	ServiceName = "bank.v1.BankService"
	// SessionKey 攜帶 session handle 的 metadata key (gRPC metadata 一律小寫)
	SessionKey = "x-session"
)

// BankServiceServer 服務的 handler 介面，每個方法都轉成一次 Dispatch
type BankServiceServer interface {
	Dispatch(ctx context.Context, op string, req usecase.Request) usecase.Result
}

// GrpcServer 將分派表以 gRPC 對外提供
//
// 業務錯誤以 Result.Error 回傳 (Soft Failure)，gRPC status 只用於傳輸層錯誤。
type GrpcServer struct {
	facade   *usecase.AccountFacade
	identity usecase.IdentityResolver
}

func NewGrpcServer(facade *usecase.AccountFacade, identity usecase.IdentityResolver) *GrpcServer {
	return &GrpcServer{
		facade:   facade,
		identity: identity,
	}
}

// Dispatch 解析呼叫端身分後交給 AccountFacade
func (s *GrpcServer) Dispatch(ctx context.Context, op string, req usecase.Request) usecase.Result {
	actor, err := s.identity.ResolveUser(ctx, sessionFrom(ctx))
	if err != nil {
		return usecase.Failed(err)
	}
	req.Actor = actor
	return s.facade.Dispatch(ctx, op, req)
}

// Register 將服務註冊到 gRPC Server
func (s *GrpcServer) Register(gs *grpc.Server) {
	gs.RegisterService(ServiceDesc(usecase.Operations()), s)
}

// ServiceDesc 依分派表產生服務描述，每個操作對應一個 unary method
// (e.g. "get_balance" -> /bank.v1.BankService/GetBalance)
func ServiceDesc(ops []usecase.Operation) *grpc.ServiceDesc {
	methods := make([]grpc.MethodDesc, 0, len(ops))
	for _, op := range ops {
		methods = append(methods, grpc.MethodDesc{
			MethodName: MethodName(op.Name),
			Handler:    methodHandler(op.Name),
		})
	}
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*BankServiceServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
	}
}

// MethodName 操作名稱轉為 gRPC method 名稱
func MethodName(op string) string {
	var b strings.Builder
	for _, part := range strings.Split(op, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// FullMethod 回傳完整的 method 路徑
func FullMethod(op string) string {
	return "/" + ServiceName + "/" + MethodName(op)
}

func methodHandler(op string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := FullMethod(op)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(usecase.Request)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			res := srv.(BankServiceServer).Dispatch(ctx, op, *req.(*usecase.Request))
			return &res, nil
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, call)
	}
}

func sessionFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(SessionKey); len(values) > 0 {
		return values[0]
	}
	return ""
}
