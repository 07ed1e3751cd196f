package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/linking"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

func newCore(t *testing.T) (*usecase.AccountFacade, *memory.MutexLedger) {
	t.Helper()
	store, err := memory.NewMutexLedger(nil)
	if err != nil {
		t.Fatalf("NewMutexLedger: %v", err)
	}
	return usecase.NewCore(store, linking.NewStoreResolver(store), usecase.DefaultConfig()), store
}

func personal(t *testing.T, f *usecase.AccountFacade, owner string, balance int64) *domain.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := f.CreateAccount(ctx, owner, "wallet")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if balance > 0 {
		if acc, err = f.Deposit(ctx, owner, acc.ID, balance, "seed", uuid.Nil); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	return acc
}

func sumDeltas(t *testing.T, store usecase.LedgerStore, accountID int64) int64 {
	t.Helper()
	entries, err := store.ListEntries(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	return sum
}

func TestScenarioAdminWithdraw(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc, err := f.CreateShared(ctx, "owner", "club", []domain.MemberSpec{{UserID: "admin", Role: domain.RoleAdmin}})
	if err != nil {
		t.Fatalf("CreateShared: %v", err)
	}
	if _, err := f.Deposit(ctx, "owner", acc.ID, 100, "", uuid.Nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	updated, err := f.Withdraw(ctx, "admin", acc.ID, 30, "snacks", uuid.Nil)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if updated.Balance != 70 {
		t.Fatalf("balance = %d, want 70", updated.Balance)
	}
	entries, _ := store.ListEntries(ctx, acc.ID)
	last := entries[len(entries)-1]
	if len(entries) != 2 || last.Delta != -30 || last.ActorID != "admin" || last.Type != domain.TransactionTypeWithdraw || last.ResultingBalance != 70 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestScenarioInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", 20)

	if _, err := f.Withdraw(ctx, "u1", acc.ID, 30, "", uuid.Nil); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	got, _ := store.GetAccount(ctx, acc.ID)
	entries, _ := store.ListEntries(ctx, acc.ID)
	if got.Balance != 20 || len(entries) != 1 {
		t.Fatalf("balance = %d, entries = %d", got.Balance, len(entries))
	}
}

func TestConcurrentWithdrawals(t *testing.T) {
	const (
		initial = 1000
		amount  = 30
		workers = 100
	)
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", initial)

	var (
		wg           sync.WaitGroup
		ok, rejected atomic.Int64
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.Withdraw(ctx, "u1", acc.ID, amount, "", uuid.New())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != initial/amount || rejected.Load() != workers-initial/amount {
		t.Fatalf("succeeded = %d, rejected = %d", ok.Load(), rejected.Load())
	}
	got, _ := store.GetAccount(ctx, acc.ID)
	if got.Balance != initial-amount*(initial/amount) {
		t.Fatalf("final balance = %d", got.Balance)
	}
	if sum := sumDeltas(t, store, acc.ID); sum != got.Balance {
		t.Fatalf("sum of deltas = %d, balance = %d", sum, got.Balance)
	}
}

func TestInvalidAmount(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", 10)

	for _, amount := range []int64{0, -5, usecase.DefaultConfig().MaxAmount + 1} {
		if _, err := f.Deposit(ctx, "u1", acc.ID, amount, "", uuid.Nil); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Deposit(%d) err = %v", amount, err)
		}
		if _, err := f.Withdraw(ctx, "u1", acc.ID, amount, "", uuid.Nil); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Withdraw(%d) err = %v", amount, err)
		}
	}
	if entries, _ := store.ListEntries(ctx, acc.ID); len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if _, err := f.Deposit(ctx, "u1", 999, 10, "", uuid.Nil); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("missing account err = %v", err)
	}
}

func TestReplayedRefAppliesOnce(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", 0)
	ref := uuid.New()

	for i := 0; i < 3; i++ {
		got, err := f.Deposit(ctx, "u1", acc.ID, 40, "retry", ref)
		if err != nil {
			t.Fatalf("Deposit #%d: %v", i, err)
		}
		if got.Balance != 40 {
			t.Fatalf("Deposit #%d balance = %d", i, got.Balance)
		}
	}
	if entries, _ := store.ListEntries(ctx, acc.ID); len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestRefReusedForDifferentMutation(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	alice := personal(t, f, "alice", 0)
	bob := personal(t, f, "bob", 100)
	ref := uuid.New()

	if _, err := f.Deposit(ctx, "alice", alice.ID, 10, "", ref); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	t.Run("other account", func(t *testing.T) {
		_, err := f.Withdraw(ctx, "bob", bob.ID, 40, "", ref)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
		got, _ := store.GetAccount(ctx, bob.ID)
		if got.Balance != 100 || len(mustEntries(t, store, bob.ID)) != 1 {
			t.Fatalf("bob changed: %+v", got)
		}
	})
	t.Run("other amount", func(t *testing.T) {
		if _, err := f.Deposit(ctx, "alice", alice.ID, 999, "", ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
	t.Run("other type", func(t *testing.T) {
		if _, err := f.Withdraw(ctx, "alice", alice.ID, 10, "", ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	got, _ := store.GetAccount(ctx, alice.ID)
	if got.Balance != 10 || len(mustEntries(t, store, alice.ID)) != 1 {
		t.Fatalf("alice = %+v", got)
	}
}

func TestReplayedWithdrawBeforeFundsCheck(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", 50)
	ref := uuid.New()

	if _, err := f.Withdraw(ctx, "u1", acc.ID, 50, "", ref); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	// 餘額已為 0，重送仍應回傳成功而非餘額不足
	got, err := f.Withdraw(ctx, "u1", acc.ID, 50, "", ref)
	if err != nil || got.Balance != 0 {
		t.Fatalf("replay = %+v, %v", got, err)
	}
	if n := len(mustEntries(t, store, acc.ID)); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
}

func mustEntries(t *testing.T, store usecase.LedgerStore, accountID int64) []domain.LogEntry {
	t.Helper()
	entries, err := store.ListEntries(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	return entries
}

func TestAdjustByIdentifier(t *testing.T) {
	ctx := context.Background()
	f, store := newCore(t)
	acc := personal(t, f, "u1", 0)
	if _, err := store.LinkExternal(ctx, &domain.ExternalAccount{OwnerID: "u1", AccountID: acc.ID, ExternalRef: "guild-1"}); err != nil {
		t.Fatalf("LinkExternal: %v", err)
	}

	got, err := f.AddMoney(ctx, "ops", usecase.Target{Identifier: "guild-1"}, 50, "bonus", uuid.Nil)
	if err != nil || got.Balance != 50 {
		t.Fatalf("AddMoney = %+v, %v", got, err)
	}
	if _, err := f.RemoveMoney(ctx, "ops", usecase.Target{Identifier: "guild-1"}, 80, "", uuid.Nil); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("RemoveMoney overdraw err = %v", err)
	}
	got, err = f.RemoveMoney(ctx, "ops", usecase.Target{AccountID: acc.ID}, 20, "", uuid.Nil)
	if err != nil || got.Balance != 30 {
		t.Fatalf("RemoveMoney = %+v, %v", got, err)
	}
	if _, err := f.AddMoney(ctx, "ops", usecase.Target{Identifier: "nobody"}, 1, "", uuid.Nil); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("unknown identifier err = %v", err)
	}
	if _, err := f.AddMoney(ctx, "ops", usecase.Target{}, 1, "", uuid.Nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty target err = %v", err)
	}

	entries, _ := store.ListEntries(ctx, acc.ID)
	if len(entries) != 2 || entries[0].Type != domain.TransactionTypeAddMoney || entries[1].Type != domain.TransactionTypeRemoveMoney {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f, _ := newCore(t)
	acc := personal(t, f, "u1", 5)

	got, err := f.RenameAccount(ctx, "u1", acc.ID, "  savings ")
	if err != nil || got.Name != "savings" || got.Balance != 5 || got.Version != acc.Version+1 {
		t.Fatalf("RenameAccount = %+v, %v", got, err)
	}
	if _, err := f.RenameAccount(ctx, "u1", acc.ID, " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank name err = %v", err)
	}
	if _, err := f.RenameAccount(ctx, "u2", acc.ID, "mine"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign rename err = %v", err)
	}
}

// conflictStore 每次 CAS 都回報版本衝突
type conflictStore struct {
	usecase.LedgerStore
	attempts atomic.Int64
}

func (s *conflictStore) CompareAndSet(ctx context.Context, next *domain.Account, expectedVersion int64, entry *domain.LogEntry) (*domain.Account, error) {
	s.attempts.Add(1)
	return nil, domain.ErrConflict
}

// brokenStore 模擬儲存層連線失敗
type brokenStore struct {
	usecase.LedgerStore
}

func (brokenStore) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return nil, errors.New("connection refused")
}

func TestConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	mem, _ := memory.NewMutexLedger(nil)
	acc, _ := mem.CreateAccount(ctx, &domain.Account{OwnerID: "u1", Kind: domain.AccountKindPersonal}, nil)

	store := &conflictStore{LedgerStore: mem}
	engine := usecase.NewTransactionEngine(store, nil, usecase.EngineConfig{RetryLimit: 4})
	if _, err := engine.Deposit(ctx, acc.ID, 10, "u1", "", uuid.Nil); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	if store.attempts.Load() != 4 {
		t.Fatalf("attempts = %d, want 4", store.attempts.Load())
	}
}

func TestStorageFailureSurfaces(t *testing.T) {
	mem, _ := memory.NewMutexLedger(nil)
	f := usecase.NewCore(brokenStore{LedgerStore: mem}, nil, usecase.DefaultConfig())

	res := f.Dispatch(context.Background(), usecase.OpDeposit, usecase.Request{Actor: "u1", AccountID: 1, Amount: 10})
	if res.OK || res.Error.Code != domain.CodeStorageUnavailable {
		t.Fatalf("result = %+v", res)
	}
}

// flakyReadStore 查到重送的交易紀錄後，讀取帳戶失敗
type flakyReadStore struct {
	usecase.LedgerStore
}

func (flakyReadStore) FindEntryByRef(ctx context.Context, refID uuid.UUID) (*domain.LogEntry, error) {
	return &domain.LogEntry{RefID: refID, AccountID: 1, Type: domain.TransactionTypeDeposit, Delta: 10}, nil
}

func (flakyReadStore) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return nil, errors.New("connection reset")
}

func TestReplayReadFailureIsStorageError(t *testing.T) {
	mem, _ := memory.NewMutexLedger(nil)
	engine := usecase.NewTransactionEngine(flakyReadStore{LedgerStore: mem}, nil, usecase.EngineConfig{})
	_, err := engine.Deposit(context.Background(), 1, 10, "u1", "", uuid.New())
	if !errors.Is(err, domain.ErrStorageUnavailable) || domain.CodeOf(err) != domain.CodeStorageUnavailable {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
