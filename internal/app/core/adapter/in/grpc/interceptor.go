package grpc

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

var grpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_grpc_requests_total",
	Help: "gRPC requests, labeled by method and gRPC status code",
}, []string{"method", "status"})

// SlowCallThreshold 超過此時間的呼叫會被記錄
var SlowCallThreshold = 500 * time.Millisecond

// UnaryLogging 記錄失敗與慢速呼叫，並計數每個 method 的 gRPC 狀態
func UnaryLogging() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		switch {
		case err != nil:
			log.Printf("[grpc] %s failed: %v", info.FullMethod, err)
		case elapsed > SlowCallThreshold:
			log.Printf("[grpc] %s slow: %v", info.FullMethod, elapsed)
		}
		if res, ok := resp.(*usecase.Result); ok && res.Error != nil && res.Error.Code == domain.CodeInternal {
			log.Printf("[grpc] %s internal error: %s", info.FullMethod, res.Error.Message)
		}
		return resp, err
	}
}
