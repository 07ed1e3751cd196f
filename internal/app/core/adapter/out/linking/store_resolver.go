package linking

import (
	"context"
	"errors"
	"strings"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
)

// StoreResolver 以帳本中的外部連結解析識別碼
//
// 解析順序: 外部連結 (external_ref) -> 以識別碼作為使用者 ID 取其預設帳戶
type StoreResolver struct {
	store usecase.LedgerStore
}

func NewStoreResolver(store usecase.LedgerStore) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) ResolveByIdentifier(ctx context.Context, identifier string) (int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, domain.ErrAccountNotFound
	}

	link, err := r.store.FindExternal(ctx, identifier)
	if err == nil {
		return link.AccountID, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return 0, err
	}

	account, err := r.store.FindDefaultAccount(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

var _ usecase.IdentifierResolver = (*StoreResolver)(nil)
