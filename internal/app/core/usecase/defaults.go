package usecase

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// DefaultAccountName 預設帳戶名稱
const DefaultAccountName = "Personal"

// DefaultAccountManager 確保每位使用者恰好有一個預設個人帳戶
type DefaultAccountManager struct {
	store   LedgerStore
	name    string
	timeout time.Duration
	// 同一程序內相同使用者的並行請求合併為一次
	group singleflight.Group
}

func NewDefaultAccountManager(store LedgerStore, name string) *DefaultAccountManager {
	if name == "" {
		name = DefaultAccountName
	}
	return &DefaultAccountManager{store: store, name: name, timeout: DefaultStorageTimeout}
}

// EnsureDefaultAccount 取得使用者的預設帳戶，不存在時以餘額 0 建立
//
// 冪等：重複或並行呼叫只會產生一個預設帳戶；
// 跨程序的競爭由儲存層唯一鍵保證，輸家回傳贏家建立的帳戶。
func (m *DefaultAccountManager) EnsureDefaultAccount(ctx context.Context, userID string) (*domain.Account, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	ch := m.group.DoChan(userID, func() (interface{}, error) {
		// 合併後的工作不跟隨任何單一呼叫者取消
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.ensure(runCtx, userID)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	v := res.Val
	// singleflight 共用同一個結果，回傳複本給各呼叫者
	return v.(*domain.Account).Clone(), nil
}

func (m *DefaultAccountManager) ensure(ctx context.Context, userID string) (*domain.Account, error) {
	existing, err := m.store.FindDefaultAccount(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, storageErr(err)
	}

	created, err := m.store.CreateAccount(ctx, &domain.Account{
		OwnerID:   userID,
		Kind:      domain.AccountKindPersonal,
		Name:      m.name,
		IsDefault: true,
		CreatedAt: time.Now(),
	}, nil)
	if errors.Is(err, domain.ErrDefaultAccountExists) {
		// 輸掉競爭：讀回贏家的帳戶
		winner, err := m.store.FindDefaultAccount(ctx, userID)
		if err != nil {
			return nil, storageErr(err)
		}
		return winner, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return created, nil
}
