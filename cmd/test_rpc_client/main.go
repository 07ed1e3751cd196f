package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	grpc_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	grpcpool "github.com/JoeShih716/go-mem-bank/pkg/grpc"
)

const (
	TotalCount     = 100000
	Concurrency    = 1000
	WithdrawAmount = 100
)

type reply struct {
	OK    bool             `json:"ok"`
	Data  json.RawMessage  `json:"data"`
	Error *usecase.Failure `json:"error"`
}

// 對單一帳戶併發提款：成功筆數必須等於 min(總筆數, 初始餘額/金額)，最終餘額不可為負
func main() {
	target := flag.String("target", "localhost:50051", "gRPC server address")
	session := flag.String("session", "loadtest", "session handle sent as x-session")
	flag.Parse()

	pool := grpcpool.NewPool()
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, grpc_adapter.SessionKey, *session)

	// 1. 建立測試帳戶並存入 TotalCount/2 筆提款所需的金額
	var account domain.Account
	mustCall(ctx, conn, usecase.OpCreateAccount, usecase.Request{Name: "loadtest " + time.Now().Format(time.RFC3339)}, &account)
	initial := int64(TotalCount/2) * WithdrawAmount
	mustCall(ctx, conn, usecase.OpDeposit, usecase.Request{AccountID: account.ID, Amount: initial, RefID: uuid.NewString()}, nil)

	// 2. 併發提款
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	wg.Add(TotalCount)
	sem := make(chan struct{}, Concurrency)
	startTime := time.Now()

	for i := 0; i < TotalCount; i++ {
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := call(ctx, conn, usecase.OpWithdraw, usecase.Request{
				AccountID: account.ID,
				Amount:    WithdrawAmount,
				RefID:     uuid.NewString(),
			})
			switch {
			case err != nil:
				if idx%10000 == 0 {
					log.Printf("Withdraw %d failed: %v", idx, err)
				}
			case res.OK:
				succeeded.Add(1)
			case res.Error.Code == domain.CodeInsufficientFunds:
				rejected.Add(1)
			default:
				log.Printf("Withdraw %d rejected: %s", idx, res.Error.Message)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	// 3. 驗證最終餘額
	var final domain.Account
	mustCall(ctx, conn, usecase.OpGetBalance, usecase.Request{AccountID: account.ID}, &final)

	fmt.Printf("Completed %d requests in %v\n", TotalCount, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(TotalCount)/elapsed.Seconds())
	fmt.Printf("Succeeded: %d, insufficient funds: %d\n", succeeded.Load(), rejected.Load())
	fmt.Printf("Final balance: %d (expected %d)\n", final.Balance, initial-succeeded.Load()*WithdrawAmount)
	if final.Balance < 0 || final.Balance != initial-succeeded.Load()*WithdrawAmount {
		log.Fatalf("balance mismatch")
	}
}

func call(ctx context.Context, conn *grpc.ClientConn, op string, req usecase.Request) (*reply, error) {
	var out reply
	if err := conn.Invoke(ctx, grpc_adapter.FullMethod(op), &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mustCall(ctx context.Context, conn *grpc.ClientConn, op string, req usecase.Request, data any) {
	res, err := call(ctx, conn, op, req)
	if err != nil {
		log.Fatalf("%s: %v", op, err)
	}
	if !res.OK {
		log.Fatalf("%s: %s (%s)", op, res.Error.Message, res.Error.Code)
	}
	if data != nil {
		if err := json.Unmarshal(res.Data, data); err != nil {
			log.Fatalf("%s: decode: %v", op, err)
		}
	}
}
