package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// Failure 對外的錯誤結果：穩定的錯誤代碼與可讀訊息
type Failure struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Result 分派結果：成功時帶 Data，失敗時帶 Error
type Result struct {
	OK    bool     `json:"ok"`
	Data  any      `json:"data,omitempty"`
	Error *Failure `json:"error,omitempty"`
}

// Code 成功為 "ok"，失敗為錯誤代碼
func (r Result) Code() string {
	if r.Error != nil {
		return string(r.Error.Code)
	}
	return "ok"
}

// Failed 將錯誤轉為失敗的 Result
func Failed(err error) Result {
	return Result{Error: &Failure{Code: domain.CodeOf(err), Message: err.Error()}}
}

// AccountView 帳戶加上顯示用金額
type AccountView struct {
	*domain.Account
	BalanceDisplay string `json:"balance_display"`
}

// FacadeConfig 對外入口設定
type FacadeConfig struct {
	CurrencyScale  int32
	StorageTimeout time.Duration
	// Administrators 可經由分派執行管理端加扣款的使用者 ID
	Administrators []string
}

// Services 對外入口需要的所有元件，由呼叫端明確注入
type Services struct {
	Store    LedgerStore
	Roles    *RoleRegistry
	Engine   *TransactionEngine
	Shared   *SharedAccountManager
	Defaults *DefaultAccountManager
}

// AccountFacade 是請求層唯一的入口
//
// 每個操作先依分派表取得授權需求、交給 RoleRegistry 判斷，
// 再委派給 TransactionEngine / SharedAccountManager / DefaultAccountManager。
type AccountFacade struct {
	Services
	cfg    FacadeConfig
	ops    map[string]Operation
	admins map[string]struct{}
	// 背景工作 (OnUserLoaded)
	wg sync.WaitGroup
}

func NewAccountFacade(s Services, cfg FacadeConfig) *AccountFacade {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultStorageTimeout
	}
	f := &AccountFacade{
		Services: s,
		cfg:      cfg,
		ops:      make(map[string]Operation),
		admins:   make(map[string]struct{}, len(cfg.Administrators)),
	}
	for _, op := range Operations() {
		f.ops[op.Name] = op
	}
	for _, id := range cfg.Administrators {
		if id = strings.TrimSpace(id); id != "" {
			f.admins[id] = struct{}{}
		}
	}
	return f
}

// Operation 依名稱取得分派表中的操作
func (f *AccountFacade) Operation(name string) (Operation, bool) {
	op, ok := f.ops[name]
	return op, ok
}

// Dispatch 依名稱執行操作，任何錯誤 (包含 panic) 都轉為 Result 回傳
func (f *AccountFacade) Dispatch(ctx context.Context, name string, req Request) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[facade] panic in %s: %v", name, p)
			res = Result{Error: &Failure{Code: domain.CodeInternal, Message: "internal error"}}
		}
		operationsTotal.WithLabelValues(name, res.Code()).Inc()
		operationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	op, ok := f.ops[name]
	if !ok {
		return Failed(fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, name))
	}
	if op.Administrative && !f.IsAdministrator(req.Actor) {
		return Failed(fmt.Errorf("%w: %s requires an administrator", domain.ErrUnauthorized, name))
	}
	data, err := op.Handle(ctx, f, req)
	if err != nil {
		return Failed(err)
	}
	return Result{OK: true, Data: data}
}

// IsAdministrator 判斷使用者是否為設定中的管理者
func (f *AccountFacade) IsAdministrator(userID string) bool {
	if userID == "" {
		return false
	}
	_, ok := f.admins[userID]
	return ok
}

// authorize 依分派表中的授權需求檢查 actor
func (f *AccountFacade) authorize(ctx context.Context, opName string, accountID int64, actorID string) (*domain.Account, error) {
	op, ok := f.ops[opName]
	if !ok || op.Access == nil {
		return nil, fmt.Errorf("operation %q has no access policy", opName)
	}
	return f.Roles.Authorize(ctx, accountID, actorID, *op.Access)
}

// OnUserLoaded 使用者載入時觸發 (fire-and-forget)：確保預設帳戶存在，失敗只記錄不回報
func (f *AccountFacade) OnUserLoaded(userID string) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.StorageTimeout)
		defer cancel()
		if _, err := f.Defaults.EnsureDefaultAccount(ctx, userID); err != nil {
			log.Printf("[facade] ensure default account for user %s failed: %v", userID, err)
		}
	}()
}

// Wait 等待背景工作結束 (關機時呼叫)
func (f *AccountFacade) Wait() {
	f.wg.Wait()
}

// GetAccounts 列出 actor 可見的所有帳戶
func (f *AccountFacade) GetAccounts(ctx context.Context, actorID string) ([]*domain.Account, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	accounts, err := f.Store.ListAccountsForUser(ctx, actorID)
	if err != nil {
		return nil, storageErr(err)
	}
	return accounts, nil
}

// GetBalance 取得帳戶 (含餘額)
func (f *AccountFacade) GetBalance(ctx context.Context, actorID string, accountID int64) (*domain.Account, error) {
	return f.authorize(ctx, OpGetBalance, accountID, actorID)
}

// CreateAccount 建立額外的個人帳戶 (非預設)
func (f *AccountFacade) CreateAccount(ctx context.Context, actorID, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	account, err := f.Store.CreateAccount(ctx, &domain.Account{
		OwnerID:   actorID,
		Kind:      domain.AccountKindPersonal,
		Name:      name,
		CreatedAt: time.Now(),
	}, nil)
	if err != nil {
		return nil, storageErr(err)
	}
	return account, nil
}

// CreateShared 建立共用帳戶，actor 成為擁有者
func (f *AccountFacade) CreateShared(ctx context.Context, actorID, name string, members []domain.MemberSpec) (*domain.Account, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	return f.Shared.CreateShared(ctx, actorID, name, members)
}

// Deposit 存款
func (f *AccountFacade) Deposit(ctx context.Context, actorID string, accountID, amount int64, message string, refID uuid.UUID) (*domain.Account, error) {
	if _, err := f.authorize(ctx, OpDeposit, accountID, actorID); err != nil {
		return nil, err
	}
	return f.Engine.Deposit(ctx, accountID, amount, actorID, message, refID)
}

// Withdraw 提款，共用帳戶需 Admin 以上
func (f *AccountFacade) Withdraw(ctx context.Context, actorID string, accountID, amount int64, message string, refID uuid.UUID) (*domain.Account, error) {
	if _, err := f.authorize(ctx, OpWithdraw, accountID, actorID); err != nil {
		return nil, err
	}
	return f.Engine.Withdraw(ctx, accountID, amount, actorID, message, refID)
}

// RenameAccount 修改帳戶名稱
func (f *AccountFacade) RenameAccount(ctx context.Context, actorID string, accountID int64, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if _, err := f.authorize(ctx, OpRenameAccount, accountID, actorID); err != nil {
		return nil, err
	}
	return f.Engine.Rename(ctx, accountID, name)
}

// SetDefault 將個人帳戶設為預設帳戶
func (f *AccountFacade) SetDefault(ctx context.Context, actorID string, accountID int64) (*domain.Account, error) {
	account, err := f.authorize(ctx, OpSetDefault, accountID, actorID)
	if err != nil {
		return nil, err
	}
	if account.IsShared() {
		return nil, domain.ErrNotPersonalAccount
	}
	updated, err := f.Store.SetDefaultAccount(ctx, account.OwnerID, accountID)
	if err != nil {
		return nil, storageErr(err)
	}
	return updated, nil
}

// DeleteAccount 刪除帳戶
func (f *AccountFacade) DeleteAccount(ctx context.Context, actorID string, accountID int64) error {
	return f.Shared.DeleteAccount(ctx, accountID, actorID)
}

// AddMember 新增共用帳戶成員
func (f *AccountFacade) AddMember(ctx context.Context, actorID string, accountID int64, targetUserID string, role domain.Role) (*domain.SharedAccountUser, error) {
	return f.Shared.AddMember(ctx, accountID, actorID, targetUserID, role)
}

// RemoveMember 移除共用帳戶成員
func (f *AccountFacade) RemoveMember(ctx context.Context, actorID string, accountID int64, targetUserID string) error {
	return f.Shared.RemoveMember(ctx, accountID, actorID, targetUserID)
}

// ListMembers 列出共用帳戶成員
func (f *AccountFacade) ListMembers(ctx context.Context, actorID string, accountID int64) ([]domain.SharedAccountUser, error) {
	return f.Shared.ListMembers(ctx, accountID, actorID)
}

// ListTransactions 列出帳戶交易紀錄
func (f *AccountFacade) ListTransactions(ctx context.Context, actorID string, accountID int64) ([]domain.LogEntry, error) {
	if _, err := f.authorize(ctx, OpListTransactions, accountID, actorID); err != nil {
		return nil, err
	}
	entries, err := f.Store.ListEntries(ctx, accountID)
	if err != nil {
		return nil, storageErr(err)
	}
	return entries, nil
}

// AddMoney 管理端加款 (以帳戶 ID 或識別碼)
// 程序內呼叫不做授權檢查，經由 Dispatch 呼叫時僅限管理者。
func (f *AccountFacade) AddMoney(ctx context.Context, actorID string, target Target, amount int64, message string, refID uuid.UUID) (*domain.Account, error) {
	return f.Engine.AddMoney(ctx, target, amount, actorID, message, refID)
}

// RemoveMoney 管理端扣款 (以帳戶 ID 或識別碼)
func (f *AccountFacade) RemoveMoney(ctx context.Context, actorID string, target Target, amount int64, message string, refID uuid.UUID) (*domain.Account, error) {
	return f.Engine.RemoveMoney(ctx, target, amount, actorID, message, refID)
}

func (f *AccountFacade) view(a *domain.Account) AccountView {
	return AccountView{Account: a, BalanceDisplay: domain.FormatAmount(a.Balance, f.cfg.CurrencyScale)}
}

func (f *AccountFacade) views(accounts []*domain.Account) []AccountView {
	out := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, f.view(a))
	}
	return out
}

func (f *AccountFacade) viewOf(a *domain.Account, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return f.view(a), nil
}
