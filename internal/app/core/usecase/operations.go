package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// 操作名稱，對外 (HTTP / gRPC) 皆以此名稱分派
const (
	OpUserLoaded       = "user_loaded"
	OpGetAccounts      = "get_accounts"
	OpGetBalance       = "get_balance"
	OpCreateAccount    = "create_account"
	OpCreateShared     = "create_shared"
	OpDeposit          = "deposit"
	OpWithdraw         = "withdraw"
	OpRenameAccount    = "rename_account"
	OpSetDefault       = "set_default"
	OpDeleteAccount    = "delete_account"
	OpAddMember        = "add_member"
	OpRemoveMember     = "remove_member"
	OpListMembers      = "list_members"
	OpListTransactions = "list_transactions"
	OpAddMoney         = "add_money"
	OpRemoveMoney      = "remove_money"
)

var (
	policyOpen     = AccessPolicy{Personal: PersonalOpen}
	policyAdmin    = AccessPolicy{Roles: []domain.Role{domain.RoleAdmin}, Personal: PersonalOwnerOnly}
	policyReadLogs = AccessPolicy{Roles: []domain.Role{domain.RoleContributor}, Personal: PersonalOwnerOnly}
)

// Request 傳輸層組好的通用請求，Actor 由身分解析填入，不接受客戶端指定
type Request struct {
	Actor        string              `json:"-"`
	AccountID    int64               `json:"account_id,omitempty"`
	Identifier   string              `json:"identifier,omitempty"`
	Amount       int64               `json:"amount,omitempty"`
	Message      string              `json:"message,omitempty"`
	Name         string              `json:"name,omitempty"`
	TargetUserID string              `json:"user_id,omitempty"`
	Role         domain.Role         `json:"role,omitempty"`
	Members      []domain.MemberSpec `json:"members,omitempty"`
	RefID        string              `json:"ref_id,omitempty"`
}

func (r Request) refID() (uuid.UUID, error) {
	if strings.TrimSpace(r.RefID) == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(r.RefID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: ref_id: %v", domain.ErrInvalidInput, err)
	}
	return id, nil
}

// Handler 操作的執行函式
type Handler func(ctx context.Context, f *AccountFacade, req Request) (any, error)

// Operation 分派表的一列：操作名稱、授權需求與執行函式
type Operation struct {
	Name string
	// Access 為 nil 表示此操作不作用於單一既有帳戶 (例如建立帳戶、管理端加扣款)
	Access *AccessPolicy
	// Administrative 管理端操作：只有設定中的管理者可經由分派呼叫
	Administrative bool
	Handle         Handler
}

// Operations 於啟動時建立分派表
func Operations() []Operation {
	return []Operation{
		{Name: OpUserLoaded, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			if r.Actor == "" {
				return nil, domain.ErrUnauthorized
			}
			f.OnUserLoaded(r.Actor)
			return map[string]bool{"accepted": true}, nil
		}},
		{Name: OpGetAccounts, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			accounts, err := f.GetAccounts(ctx, r.Actor)
			if err != nil {
				return nil, err
			}
			return f.views(accounts), nil
		}},
		{Name: OpGetBalance, Access: &policyOpen, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.viewOf(f.GetBalance(ctx, r.Actor, r.AccountID))
		}},
		{Name: OpCreateAccount, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.viewOf(f.CreateAccount(ctx, r.Actor, r.Name))
		}},
		{Name: OpCreateShared, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.viewOf(f.CreateShared(ctx, r.Actor, r.Name, r.Members))
		}},
		{Name: OpDeposit, Access: &policyOpen, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			ref, err := r.refID()
			if err != nil {
				return nil, err
			}
			return f.viewOf(f.Deposit(ctx, r.Actor, r.AccountID, r.Amount, r.Message, ref))
		}},
		{Name: OpWithdraw, Access: &policyAdmin, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			ref, err := r.refID()
			if err != nil {
				return nil, err
			}
			return f.viewOf(f.Withdraw(ctx, r.Actor, r.AccountID, r.Amount, r.Message, ref))
		}},
		{Name: OpRenameAccount, Access: &policyAdmin, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.viewOf(f.RenameAccount(ctx, r.Actor, r.AccountID, r.Name))
		}},
		{Name: OpSetDefault, Access: &policyAdmin, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.viewOf(f.SetDefault(ctx, r.Actor, r.AccountID))
		}},
		{Name: OpDeleteAccount, Access: &policyOwner, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			if err := f.DeleteAccount(ctx, r.Actor, r.AccountID); err != nil {
				return nil, err
			}
			return map[string]int64{"deleted": r.AccountID}, nil
		}},
		{Name: OpAddMember, Access: &policyMemberAdmin, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.AddMember(ctx, r.Actor, r.AccountID, r.TargetUserID, r.Role)
		}},
		{Name: OpRemoveMember, Access: &policyMemberAdmin, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			if err := f.RemoveMember(ctx, r.Actor, r.AccountID, r.TargetUserID); err != nil {
				return nil, err
			}
			return map[string]string{"removed": r.TargetUserID}, nil
		}},
		{Name: OpListMembers, Access: &policyMemberReader, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.ListMembers(ctx, r.Actor, r.AccountID)
		}},
		{Name: OpListTransactions, Access: &policyReadLogs, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			return f.ListTransactions(ctx, r.Actor, r.AccountID)
		}},
		{Name: OpAddMoney, Administrative: true, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			ref, err := r.refID()
			if err != nil {
				return nil, err
			}
			return f.viewOf(f.AddMoney(ctx, r.Actor, Target{AccountID: r.AccountID, Identifier: r.Identifier}, r.Amount, r.Message, ref))
		}},
		{Name: OpRemoveMoney, Administrative: true, Handle: func(ctx context.Context, f *AccountFacade, r Request) (any, error) {
			ref, err := r.refID()
			if err != nil {
				return nil, err
			}
			return f.viewOf(f.RemoveMoney(ctx, r.Actor, Target{AccountID: r.AccountID, Identifier: r.Identifier}, r.Amount, r.Message, ref))
		}},
	}
}
