package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// LedgerStore 是帳戶與交易紀錄的儲存介面
//
// 所有回傳的 *domain.Account 都是複本，修改不會影響儲存層。
type LedgerStore interface {
	// GetAccount 取得帳戶，不存在時回傳 domain.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// ListAccountsForUser 列出使用者擁有的個人帳戶與其所屬的共用帳戶 (依 ID 排序)
	ListAccountsForUser(ctx context.Context, userID string) ([]*domain.Account, error)
	// FindDefaultAccount 取得使用者的預設帳戶，不存在時回傳 domain.ErrAccountNotFound
	FindDefaultAccount(ctx context.Context, userID string) (*domain.Account, error)

	// CreateAccount 建立帳戶並一併寫入初始成員，回傳分配 ID 後的帳戶
	// 若為預設帳戶且使用者已有預設帳戶，回傳 domain.ErrDefaultAccountExists
	CreateAccount(ctx context.Context, account *domain.Account, members []domain.SharedAccountUser) (*domain.Account, error)
	// CompareAndSet 當目前版本等於 expectedVersion 時寫入 next (版本加一)，
	// entry 非 nil 時與帳戶在同一個持久化單位寫入。
	// 版本不符回傳 domain.ErrConflict；entry.RefID 已存在回傳 domain.ErrDuplicateRef
	CompareAndSet(ctx context.Context, next *domain.Account, expectedVersion int64, entry *domain.LogEntry) (*domain.Account, error)
	// SetDefaultAccount 將使用者的預設帳戶切換為 accountID (必須為該使用者的個人帳戶)
	SetDefaultAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error)
	// DeleteAccount 依序刪除成員、外部連結與帳戶本身；任何一步失敗皆不留下部分刪除
	DeleteAccount(ctx context.Context, accountID int64) error

	// GetMembership 單次讀取成員關係，不存在時回傳 domain.ErrNotMember
	GetMembership(ctx context.Context, accountID int64, userID string) (*domain.SharedAccountUser, error)
	// ListMembers 依加入順序列出成員
	ListMembers(ctx context.Context, accountID int64) ([]domain.SharedAccountUser, error)
	// AddMember 新增成員，已存在時回傳 domain.ErrAlreadyMember
	AddMember(ctx context.Context, member domain.SharedAccountUser) error
	// RemoveMember 移除成員；若為最後一位擁有者回傳 domain.ErrLastOwner
	RemoveMember(ctx context.Context, accountID int64, userID string) error

	// ListEntries 依寫入順序列出帳戶的交易紀錄
	ListEntries(ctx context.Context, accountID int64) ([]domain.LogEntry, error)
	// FindEntryByRef 以參考號查詢交易紀錄，不存在時回傳 domain.ErrEntryNotFound
	FindEntryByRef(ctx context.Context, refID uuid.UUID) (*domain.LogEntry, error)

	// LinkExternal 建立外部帳戶連結
	LinkExternal(ctx context.Context, link *domain.ExternalAccount) (*domain.ExternalAccount, error)
	// FindExternal 以外部識別碼查詢連結，不存在時回傳 domain.ErrAccountNotFound
	FindExternal(ctx context.Context, externalRef string) (*domain.ExternalAccount, error)
}

// IdentifierResolver 由外部連結服務提供：將識別碼解析為帳戶 ID
type IdentifierResolver interface {
	ResolveByIdentifier(ctx context.Context, identifier string) (int64, error)
}

// IdentityResolver 將呼叫端的 session handle 解析為穩定的使用者 ID
// 核心本身不做身分驗證。
type IdentityResolver interface {
	ResolveUser(ctx context.Context, handle string) (string, error)
}
