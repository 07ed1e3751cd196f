package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

var (
	policyMemberAdmin  = AccessPolicy{Roles: []domain.Role{domain.RoleAdmin}, Personal: PersonalNotApplicable}
	policyMemberReader = AccessPolicy{Roles: []domain.Role{domain.RoleContributor}, Personal: PersonalNotApplicable}
	policyOwner        = AccessPolicy{Roles: []domain.Role{domain.RoleOwner}, Personal: PersonalOwnerOnly}
)

// SharedAccountManager 管理共用帳戶的建立、成員與刪除
type SharedAccountManager struct {
	store LedgerStore
	roles *RoleRegistry
}

func NewSharedAccountManager(store LedgerStore, roles *RoleRegistry) *SharedAccountManager {
	return &SharedAccountManager{store: store, roles: roles}
}

// CreateShared 建立共用帳戶，建立者自動成為擁有者
func (m *SharedAccountManager) CreateShared(ctx context.Context, ownerID, name string, initialMembers []domain.MemberSpec) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if ownerID == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and name are required", domain.ErrInvalidInput)
	}

	now := time.Now()
	members := []domain.SharedAccountUser{{UserID: ownerID, Role: domain.RoleOwner, AddedAt: now}}
	seen := map[string]bool{ownerID: true}
	for _, spec := range initialMembers {
		if spec.UserID == "" {
			return nil, fmt.Errorf("%w: member user id is required", domain.ErrInvalidInput)
		}
		if !spec.Role.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, spec.Role)
		}
		if seen[spec.UserID] {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyMember, spec.UserID)
		}
		seen[spec.UserID] = true
		members = append(members, domain.SharedAccountUser{UserID: spec.UserID, Role: spec.Role, AddedAt: now})
	}

	account, err := m.store.CreateAccount(ctx, &domain.Account{
		OwnerID:   ownerID,
		Kind:      domain.AccountKindShared,
		Name:      name,
		CreatedAt: now,
	}, members)
	if err != nil {
		return nil, storageErr(err)
	}
	return account, nil
}

// AddMember 新增成員，呼叫者需為 Admin 以上；授予 Owner 角色需呼叫者本身為 Owner
func (m *SharedAccountManager) AddMember(ctx context.Context, accountID int64, actorID, targetUserID string, role domain.Role) (*domain.SharedAccountUser, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if targetUserID == "" {
		return nil, fmt.Errorf("%w: target user id is required", domain.ErrInvalidInput)
	}
	if _, err := m.roles.Authorize(ctx, accountID, actorID, policyMemberAdmin); err != nil {
		return nil, err
	}
	if role == domain.RoleOwner {
		if err := m.requireOwner(ctx, accountID, actorID); err != nil {
			return nil, err
		}
	}

	member := domain.SharedAccountUser{AccountID: accountID, UserID: targetUserID, Role: role, AddedAt: time.Now()}
	if err := m.store.AddMember(ctx, member); err != nil {
		return nil, storageErr(err)
	}
	return &member, nil
}

// RemoveMember 移除成員，呼叫者需為 Admin 以上；移除 Owner 需呼叫者本身為 Owner
// 最後一位擁有者的檢查在儲存層以原子方式完成。
func (m *SharedAccountManager) RemoveMember(ctx context.Context, accountID int64, actorID, targetUserID string) error {
	if _, err := m.roles.Authorize(ctx, accountID, actorID, policyMemberAdmin); err != nil {
		return err
	}
	target, err := m.store.GetMembership(ctx, accountID, targetUserID)
	if err != nil {
		return storageErr(err)
	}
	if target.Role == domain.RoleOwner && actorID != targetUserID {
		if err := m.requireOwner(ctx, accountID, actorID); err != nil {
			return err
		}
	}
	return storageErr(m.store.RemoveMember(ctx, accountID, targetUserID))
}

// ListMembers 依加入順序列出成員，呼叫者需為 Contributor 以上
func (m *SharedAccountManager) ListMembers(ctx context.Context, accountID int64, actorID string) ([]domain.SharedAccountUser, error) {
	if _, err := m.roles.Authorize(ctx, accountID, actorID, policyMemberReader); err != nil {
		return nil, err
	}
	members, err := m.store.ListMembers(ctx, accountID)
	if err != nil {
		return nil, storageErr(err)
	}
	return members, nil
}

// DeleteAccount 刪除帳戶，共用帳戶需為 Owner，個人帳戶需為本人
// 成員、外部連結與帳戶在同一個儲存交易中刪除；交易紀錄保留。
func (m *SharedAccountManager) DeleteAccount(ctx context.Context, accountID int64, actorID string) error {
	account, err := m.roles.Authorize(ctx, accountID, actorID, policyOwner)
	if err != nil {
		return err
	}
	if account.IsDefault {
		return domain.ErrDefaultAccountLocked
	}
	return storageErr(m.store.DeleteAccount(ctx, accountID))
}

func (m *SharedAccountManager) requireOwner(ctx context.Context, accountID int64, actorID string) error {
	role, err := m.roles.RoleOf(ctx, accountID, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleOwner {
		return fmt.Errorf("%w: only an owner can grant or revoke the owner role", domain.ErrUnauthorized)
	}
	return nil
}
