package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/pkg/keylock"
)

const (
	// DefaultRetryLimit CAS 衝突時的最大重試次數
	DefaultRetryLimit = 3
	// DefaultStorageTimeout 單次儲存操作的逾時
	DefaultStorageTimeout = 5 * time.Second
)

// EngineConfig 交易引擎設定
type EngineConfig struct {
	// MaxAmount 單筆金額上限 (最小貨幣單位)，0 表示不設上限
	MaxAmount      int64
	RetryLimit     int
	StorageTimeout time.Duration
}

// Target 管理端加扣款的目標：帳戶 ID 或外部識別碼擇一
type Target struct {
	AccountID  int64  `json:"account_id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// Mutation 一筆帳戶異動請求
type Mutation struct {
	AccountID int64
	Type      domain.TransactionType
	Amount    int64
	ActorID   string
	Message   string
	RefID     uuid.UUID
}

// TransactionEngine 負責所有餘額異動
//
// 同一帳戶的寫入在程序內以 keylock 序列化，跨程序則依靠儲存層的 CAS。
type TransactionEngine struct {
	store    LedgerStore
	resolver IdentifierResolver
	locks    *keylock.KeyLock[int64]
	cfg      EngineConfig
}

func NewTransactionEngine(store LedgerStore, resolver IdentifierResolver, cfg EngineConfig) *TransactionEngine {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultStorageTimeout
	}
	return &TransactionEngine{
		store:    store,
		resolver: resolver,
		locks:    keylock.New[int64](),
		cfg:      cfg,
	}
}

// Deposit 存款
func (e *TransactionEngine) Deposit(ctx context.Context, accountID, amount int64, actorID, message string, refID uuid.UUID) (*domain.Account, error) {
	return e.Apply(ctx, Mutation{AccountID: accountID, Type: domain.TransactionTypeDeposit, Amount: amount, ActorID: actorID, Message: message, RefID: refID})
}

// Withdraw 提款，餘額不足時回傳 domain.ErrInsufficientFunds
func (e *TransactionEngine) Withdraw(ctx context.Context, accountID, amount int64, actorID, message string, refID uuid.UUID) (*domain.Account, error) {
	return e.Apply(ctx, Mutation{AccountID: accountID, Type: domain.TransactionTypeWithdraw, Amount: amount, ActorID: actorID, Message: message, RefID: refID})
}

// AddMoney 管理端加款
func (e *TransactionEngine) AddMoney(ctx context.Context, target Target, amount int64, actorID, message string, refID uuid.UUID) (*domain.Account, error) {
	accountID, err := e.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, Mutation{AccountID: accountID, Type: domain.TransactionTypeAddMoney, Amount: amount, ActorID: actorID, Message: message, RefID: refID})
}

// RemoveMoney 管理端扣款，與提款相同不允許透支
func (e *TransactionEngine) RemoveMoney(ctx context.Context, target Target, amount int64, actorID, message string, refID uuid.UUID) (*domain.Account, error) {
	accountID, err := e.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, Mutation{AccountID: accountID, Type: domain.TransactionTypeRemoveMoney, Amount: amount, ActorID: actorID, Message: message, RefID: refID})
}

// Resolve 將 Target 解析為帳戶 ID
func (e *TransactionEngine) Resolve(ctx context.Context, target Target) (int64, error) {
	if target.AccountID != 0 {
		return target.AccountID, nil
	}
	identifier := strings.TrimSpace(target.Identifier)
	if identifier == "" {
		return 0, fmt.Errorf("%w: account id or identifier required", domain.ErrInvalidInput)
	}
	if e.resolver == nil {
		return 0, domain.ErrAccountNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()
	accountID, err := e.resolver.ResolveByIdentifier(ctx, identifier)
	if err != nil {
		return 0, storageErr(err)
	}
	return accountID, nil
}

// Apply 執行一筆帳戶異動
//
// 流程: 取得帳戶鎖 -> 檢查 RefID 是否已處理 -> 讀取 -> 驗證 -> 計算新餘額 -> CAS 寫入帳戶與交易紀錄 -> 釋放鎖
// CAS 衝突時從頭重新讀取，超過重試次數回傳 domain.ErrStorageUnavailable。
func (e *TransactionEngine) Apply(ctx context.Context, m Mutation) (*domain.Account, error) {
	if err := domain.ValidateAmount(m.Amount, e.cfg.MaxAmount); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(m.AccountID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()

	// 重送的請求在餘額檢查之前處理，回傳與第一次相同的結果
	if account, replayed, err := e.replay(ctx, m); replayed || err != nil {
		return account, err
	}

	for attempt := 0; attempt < e.cfg.RetryLimit; attempt++ {
		current, err := e.store.GetAccount(ctx, m.AccountID)
		if err != nil {
			return nil, storageErr(err)
		}

		delta := m.Type.Sign() * m.Amount
		balance := current.Balance + delta
		if balance < 0 {
			return nil, domain.ErrInsufficientFunds
		}

		next := current.Clone()
		next.Balance = balance
		entry := &domain.LogEntry{
			RefID:            m.RefID,
			AccountID:        m.AccountID,
			ActorID:          m.ActorID,
			Type:             m.Type,
			Delta:            delta,
			Message:          m.Message,
			ResultingBalance: balance,
			CreatedAt:        time.Now(),
		}

		updated, err := e.store.CompareAndSet(ctx, next, current.Version, entry)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, domain.ErrConflict):
			continue
		case errors.Is(err, domain.ErrDuplicateRef):
			// 其他程序搶先寫入相同 RefID
			if account, replayed, err := e.replay(ctx, m); replayed || err != nil {
				return account, err
			}
			return nil, fmt.Errorf("%w: ref_id %s reported as duplicate but not found", domain.ErrStorageUnavailable, m.RefID)
		default:
			return nil, storageErr(err)
		}
	}
	return nil, fmt.Errorf("%w: account %d still conflicting after %d attempts", domain.ErrStorageUnavailable, m.AccountID, e.cfg.RetryLimit)
}

// replay 檢查 RefID 是否已處理過
//
// 回傳:
//
//	*domain.Account: 已處理過時為帳戶目前狀態
//	bool: RefID 是否已存在
//	error: RefID 已用於不同的異動時回傳 domain.ErrInvalidInput
func (e *TransactionEngine) replay(ctx context.Context, m Mutation) (*domain.Account, bool, error) {
	if m.RefID == uuid.Nil {
		return nil, false, nil
	}
	entry, err := e.store.FindEntryByRef(ctx, m.RefID)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr(err)
	}
	if entry.AccountID != m.AccountID || entry.Type != m.Type || entry.Delta != m.Type.Sign()*m.Amount {
		return nil, true, fmt.Errorf("%w: ref_id %s already used by a different transaction", domain.ErrInvalidInput, m.RefID)
	}
	account, err := e.store.GetAccount(ctx, m.AccountID)
	if err != nil {
		return nil, true, storageErr(err)
	}
	return account, true, nil
}

// Rename 修改帳戶名稱 (不產生交易紀錄)
func (e *TransactionEngine) Rename(ctx context.Context, accountID int64, name string) (*domain.Account, error) {
	unlock := e.locks.Lock(accountID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()

	for attempt := 0; attempt < e.cfg.RetryLimit; attempt++ {
		current, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, storageErr(err)
		}
		next := current.Clone()
		next.Name = name
		updated, err := e.store.CompareAndSet(ctx, next, current.Version, nil)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, storageErr(err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("%w: account %d still conflicting after %d attempts", domain.ErrStorageUnavailable, accountID, e.cfg.RetryLimit)
}
