package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// PersonalRule 個人帳戶的授權規則 (個人帳戶不走角色檢查)
type PersonalRule uint8

const (
	// PersonalOpen 不檢查身分
	PersonalOpen PersonalRule = iota
	// PersonalOwnerOnly 必須是帳戶擁有者本人
	PersonalOwnerOnly
	// PersonalNotApplicable 此操作不適用於個人帳戶
	PersonalNotApplicable
)

// AccessPolicy 一個操作在共用帳戶與個人帳戶上的授權需求
type AccessPolicy struct {
	// Roles: 共用帳戶所需角色，依角色階層展開；空集合表示不檢查
	Roles    []domain.Role
	Personal PersonalRule
}

// RoleRegistry 負責授權判斷，不持有任何帳戶或成員資料的副本
type RoleRegistry struct {
	store LedgerStore
}

func NewRoleRegistry(store LedgerStore) *RoleRegistry {
	return &RoleRegistry{store: store}
}

// Authorize 判斷 actor 是否可對帳戶執行符合 policy 的操作
//
// 參數:
//
//	accountID: 帳戶 ID
//	actorID: 呼叫者的使用者 ID
//	policy: 操作的授權需求
//
// 回傳:
//
//	*domain.Account: 授權時讀到的帳戶
//	error: domain.ErrAccountNotFound / domain.ErrUnauthorized / domain.ErrNotSharedAccount
func (r *RoleRegistry) Authorize(ctx context.Context, accountID int64, actorID string, policy AccessPolicy) (*domain.Account, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storageErr(err)
	}

	if !account.IsShared() {
		switch policy.Personal {
		case PersonalOpen:
			return account, nil
		case PersonalNotApplicable:
			return nil, domain.ErrNotSharedAccount
		default:
			if actorID == "" || account.OwnerID != actorID {
				return nil, domain.ErrUnauthorized
			}
			return account, nil
		}
	}

	if len(policy.Roles) == 0 {
		return account, nil
	}
	role, err := r.RoleOf(ctx, accountID, actorID)
	if err != nil {
		return nil, err
	}
	if !role.Satisfies(policy.Roles) {
		return nil, fmt.Errorf("%w: role %s cannot perform this operation", domain.ErrUnauthorized, role)
	}
	return account, nil
}

// RoleOf 讀取 actor 在共用帳戶中的角色，非成員時回傳 domain.ErrUnauthorized
func (r *RoleRegistry) RoleOf(ctx context.Context, accountID int64, actorID string) (domain.Role, error) {
	if actorID == "" {
		return "", domain.ErrUnauthorized
	}
	// 單次讀取成員紀錄，與並行的成員變更只會看到變更前或變更後
	member, err := r.store.GetMembership(ctx, accountID, actorID)
	if errors.Is(err, domain.ErrNotMember) {
		return "", domain.ErrUnauthorized
	}
	if err != nil {
		return "", storageErr(err)
	}
	return member.Role, nil
}

// storageErr 將非業務錯誤包裝為 domain.ErrStorageUnavailable
func storageErr(err error) error {
	if err == nil || domain.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
