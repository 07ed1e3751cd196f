package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/http"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/identity"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/linking"
	memory_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/sqlstore"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-bank/internal/config"
	"github.com/JoeShih716/go-mem-bank/pkg/database"
	grpcpool "github.com/JoeShih716/go-mem-bank/pkg/grpc"
	"github.com/JoeShih716/go-mem-bank/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化帳本儲存
	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to init ledger store: %v", err)
	}
	defer closeStore()

	// 3. 識別碼解析: 有設定遠端連結服務時走 gRPC，否則使用本地外部連結
	pool := grpcpool.NewPool()
	defer pool.Close()
	var resolver usecase.IdentifierResolver = linking.NewStoreResolver(store)
	if cfg.Linking.GrpcTarget != "" {
		resolver = linking.NewGrpcResolver(pool, cfg.Linking.GrpcTarget)
		log.Printf("Resolving identifiers via %s", cfg.Linking.GrpcTarget)
	}

	// 4. 初始化核心
	facade := usecase.NewCore(store, resolver, cfg.Core())
	sessions := identity.NewTrustedHeader(cfg.Sessions)

	// 5. gRPC Server (業務服務，設定開啟時附帶本地連結服務)
	lis, err := net.Listen("tcp", cfg.Server.GrpcAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	gs := newGrpcServer(cfg, facade, sessions, store)

	go func() {
		log.Printf("Starting gRPC server on %s", cfg.Server.GrpcAddr)
		if err := gs.Serve(lis); err != nil {
			log.Fatalf("failed to serve gRPC: %v", err)
		}
	}()

	// 6. HTTP Server (REST + /metrics + /health)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           http_adapter.NewHandler(facade, sessions).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to serve HTTP: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	gs.GracefulStop()
	// 等待背景建立預設帳戶的工作結束後才關閉儲存層
	facade.Wait()
	log.Println("Server exited")
}

// newGrpcServer 註冊業務服務；連結服務不檢查 session，只在設定開啟時註冊
func newGrpcServer(cfg *config.Config, facade *usecase.AccountFacade, sessions usecase.IdentityResolver, store usecase.LedgerStore) *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpc_adapter.UnaryLogging()))
	grpc_adapter.NewGrpcServer(facade, sessions).Register(gs)
	if cfg.Linking.Serve {
		linking.RegisterLinkingService(gs, linking.NewStoreResolver(store))
		log.Println("Serving linking.v1.LinkingService")
	}
	return gs
}

// openStore 依設定建立帳本儲存，回傳對應的關閉函式
func openStore(cfg *config.Config) (usecase.LedgerStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageMySQL, config.StorageSQLite:
		client, err := database.NewClient(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Connected to %s successfully", cfg.Storage.Driver)

		ledger := sqlstore.NewGormLedger(client)
		if err := ledger.Migrate(context.Background()); err != nil {
			client.Close()
			return nil, nil, err
		}
		return ledger, func() { client.Close() }, nil

	default:
		var walFile *wal.WAL
		if cfg.Storage.WALPath != "" {
			w, err := wal.Open(cfg.Storage.WALPath)
			if err != nil {
				return nil, nil, err
			}
			walFile = w
		}
		ledger, err := memory_adapter.NewMutexLedger(walFile)
		if err != nil {
			if walFile != nil {
				walFile.Close()
			}
			return nil, nil, err
		}
		log.Printf("Memory ledger ready (wal: %q)", cfg.Storage.WALPath)
		return ledger, func() {
			if walFile != nil {
				walFile.Close()
			}
		}, nil
	}
}
