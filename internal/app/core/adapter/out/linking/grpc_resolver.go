package linking

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	grpcpool "github.com/JoeShih716/go-mem-bank/pkg/grpc"
)

const (
	serviceName       = "linking.v1.LinkingService"
	resolveMethod     = "ResolveByIdentifier"
	resolveFullMethod = "/" + serviceName + "/" + resolveMethod
)

// ResolveRequest / ResolveResponse 為連結服務的訊息 (JSON codec)
type ResolveRequest struct {
	Identifier string `json:"identifier"`
}

type ResolveResponse struct {
	AccountID int64 `json:"account_id"`
}

// GrpcResolver 透過遠端連結服務解析識別碼
type GrpcResolver struct {
	pool   *grpcpool.Pool
	target string
}

// NewGrpcResolver
//
// 參數:
//
//	pool: 共用的 gRPC 連線池
//	target: 連結服務地址
func NewGrpcResolver(pool *grpcpool.Pool, target string) *GrpcResolver {
	return &GrpcResolver{pool: pool, target: target}
}

func (r *GrpcResolver) ResolveByIdentifier(ctx context.Context, identifier string) (int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, domain.ErrAccountNotFound
	}
	conn, err := r.pool.GetConnection(r.target)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	var resp ResolveResponse
	err = conn.Invoke(ctx, resolveFullMethod, &ResolveRequest{Identifier: identifier}, &resp, grpc.CallContentSubtype(grpcpool.CodecName))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, domain.ErrAccountNotFound
		}
		return 0, fmt.Errorf("%w: resolve %q: %v", domain.ErrStorageUnavailable, identifier, err)
	}
	return resp.AccountID, nil
}

var _ usecase.IdentifierResolver = (*GrpcResolver)(nil)

// LinkingServer 連結服務的伺服器端介面
type LinkingServer interface {
	ResolveByIdentifier(ctx context.Context, identifier string) (int64, error)
}

// RegisterLinkingService 將 resolver 以 linking.v1.LinkingService 對外提供
func RegisterLinkingService(s *grpc.Server, resolver usecase.IdentifierResolver) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*LinkingServer)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: resolveMethod,
			Handler:    resolveHandler,
		}},
		Streams: []grpc.StreamDesc{},
	}, resolver)
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		accountID, err := srv.(LinkingServer).ResolveByIdentifier(ctx, req.(*ResolveRequest).Identifier)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeAccountNotFound {
				return nil, status.Error(codes.NotFound, err.Error())
			}
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return &ResolveResponse{AccountID: accountID}, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveFullMethod}
	return interceptor(ctx, in, info, call)
}
