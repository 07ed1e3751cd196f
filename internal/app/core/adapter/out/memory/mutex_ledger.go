package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-bank/pkg/wal"
)

// WAL 紀錄的操作類型
const (
	opCreate       = "create"
	opCAS          = "cas"
	opSetDefault   = "set_default"
	opDelete       = "delete"
	opMemberAdd    = "member_add"
	opMemberRemove = "member_remove"
	opLink         = "link"
)

// walRecord 一筆已驗證、可直接套用的狀態變更
// 寫入 WAL 後才套用到記憶體，重放時走同一個 apply 路徑。
type walRecord struct {
	Op        string                     `json:"op"`
	Account   *domain.Account            `json:"account,omitempty"`
	Members   []domain.SharedAccountUser `json:"members,omitempty"`
	Member    *domain.SharedAccountUser  `json:"member,omitempty"`
	Entry     *domain.LogEntry           `json:"entry,omitempty"`
	Link      *domain.ExternalAccount    `json:"link,omitempty"`
	AccountID int64                      `json:"account_id,omitempty"`
	UserID    string                     `json:"user_id,omitempty"`
}

// MutexLedger 是一個使用 Mutex 實現的帳本儲存
//
// 結構:
//
//	accounts: 帳戶資料 Map
//	members: 共用帳戶成員 (依加入順序)
//	entries: 交易紀錄 (append-only)
//	refs: 交易參考號 -> 交易紀錄
//	wal: Write-Ahead Log 實例，nil 表示純記憶體
type MutexLedger struct {
	mu       sync.RWMutex
	accounts map[int64]*domain.Account
	members  map[int64][]domain.SharedAccountUser
	entries  map[int64][]domain.LogEntry
	refs     map[uuid.UUID]domain.LogEntry
	defaults map[string]int64
	links    map[string]*domain.ExternalAccount

	nextAccountID int64
	nextEntryID   int64
	nextLinkID    int64

	wal *wal.WAL
}

// NewMutexLedger 建立一個新的 MutexLedger 實例，並從 WAL 恢復狀態
//
// 參數:
//
//	w: Write-Ahead Log 實例 (可為 nil)
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(w *wal.WAL) (*MutexLedger, error) {
	ledger := &MutexLedger{
		accounts: make(map[int64]*domain.Account),
		members:  make(map[int64][]domain.SharedAccountUser),
		entries:  make(map[int64][]domain.LogEntry),
		refs:     make(map[uuid.UUID]domain.LogEntry),
		defaults: make(map[string]int64),
		links:    make(map[string]*domain.ExternalAccount),
		wal:      w,
	}
	if w == nil {
		return ledger, nil
	}
	if err := ledger.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexLedger 呼叫，無需 Lock (單執行緒)
func (m *MutexLedger) recoverFromWAL() error {
	count := 0
	err := m.wal.Replay(func(raw json.RawMessage) error {
		var rec walRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		m.apply(&rec)
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("recover from wal after %d records: %w", count, err)
	}
	return nil
}

// commit 先寫 WAL 再套用到記憶體；呼叫端必須持有寫鎖
func (m *MutexLedger) commit(rec *walRecord) error {
	if m.wal != nil {
		if err := m.wal.Append(rec); err != nil {
			return fmt.Errorf("%w: wal write failed: %v", domain.ErrStorageUnavailable, err)
		}
	}
	m.apply(rec)
	return nil
}

// apply 套用一筆已驗證的紀錄
func (m *MutexLedger) apply(rec *walRecord) {
	switch rec.Op {
	case opCreate:
		account := rec.Account.Clone()
		m.accounts[account.ID] = account
		if account.IsDefault {
			m.defaults[account.OwnerID] = account.ID
		}
		if len(rec.Members) > 0 {
			m.members[account.ID] = append([]domain.SharedAccountUser(nil), rec.Members...)
		}
		m.nextAccountID = max(m.nextAccountID, account.ID)
	case opCAS:
		m.accounts[rec.Account.ID] = rec.Account.Clone()
		if rec.Entry != nil {
			entry := *rec.Entry
			m.entries[entry.AccountID] = append(m.entries[entry.AccountID], entry)
			if entry.RefID != uuid.Nil {
				m.refs[entry.RefID] = entry
			}
			m.nextEntryID = max(m.nextEntryID, entry.ID)
		}
	case opSetDefault:
		if oldID, ok := m.defaults[rec.UserID]; ok && oldID != rec.AccountID {
			if old, ok := m.accounts[oldID]; ok {
				old.IsDefault = false
				old.Version++
			}
		}
		if account, ok := m.accounts[rec.AccountID]; ok && !account.IsDefault {
			account.IsDefault = true
			account.Version++
		}
		m.defaults[rec.UserID] = rec.AccountID
	case opDelete:
		account, ok := m.accounts[rec.AccountID]
		if !ok {
			return
		}
		delete(m.members, rec.AccountID)
		for ref, link := range m.links {
			if link.AccountID == rec.AccountID {
				delete(m.links, ref)
			}
		}
		if m.defaults[account.OwnerID] == rec.AccountID {
			delete(m.defaults, account.OwnerID)
		}
		delete(m.accounts, rec.AccountID)
	case opMemberAdd:
		member := *rec.Member
		m.members[member.AccountID] = append(m.members[member.AccountID], member)
	case opMemberRemove:
		current := m.members[rec.AccountID]
		kept := make([]domain.SharedAccountUser, 0, len(current))
		for _, member := range current {
			if member.UserID != rec.UserID {
				kept = append(kept, member)
			}
		}
		m.members[rec.AccountID] = kept
	case opLink:
		link := *rec.Link
		m.links[link.ExternalRef] = &link
		m.nextLinkID = max(m.nextLinkID, link.ID)
	}
}

// GetAccount 取得帳戶複本
func (m *MutexLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// ListAccountsForUser 列出使用者的個人帳戶與所屬共用帳戶
func (m *MutexLedger) ListAccountsForUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Account, 0)
	for id, account := range m.accounts {
		if account.IsShared() {
			if m.memberIndex(id, userID) >= 0 {
				out = append(out, account.Clone())
			}
			continue
		}
		if account.OwnerID == userID {
			out = append(out, account.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindDefaultAccount 取得使用者的預設帳戶
func (m *MutexLedger) FindDefaultAccount(ctx context.Context, userID string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.defaults[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return m.accounts[id].Clone(), nil
}

// CreateAccount 建立帳戶與初始成員
func (m *MutexLedger) CreateAccount(ctx context.Context, account *domain.Account, members []domain.SharedAccountUser) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.IsDefault {
		if _, exists := m.defaults[account.OwnerID]; exists {
			return nil, domain.ErrDefaultAccountExists
		}
	}
	created := account.Clone()
	created.ID = m.nextAccountID + 1
	created.Version = 1
	rec := &walRecord{Op: opCreate, Account: created}
	for _, member := range members {
		member.AccountID = created.ID
		rec.Members = append(rec.Members, member)
	}
	if err := m.commit(rec); err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// CompareAndSet 版本相符時寫入帳戶與交易紀錄
//
// 只有 Name 與 Balance 可透過 CAS 變更，其餘欄位沿用目前的值。
func (m *MutexLedger) CompareAndSet(ctx context.Context, next *domain.Account, expectedVersion int64, entry *domain.LogEntry) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.accounts[next.ID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.ErrConflict
	}
	if next.Balance < 0 {
		return nil, domain.ErrInsufficientFunds
	}

	updated := current.Clone()
	updated.Name = next.Name
	updated.Balance = next.Balance
	updated.Version = expectedVersion + 1
	rec := &walRecord{Op: opCAS, Account: updated}

	if entry != nil {
		if entry.RefID != uuid.Nil {
			if _, seen := m.refs[entry.RefID]; seen {
				return nil, domain.ErrDuplicateRef
			}
		}
		e := *entry
		e.ID = m.nextEntryID + 1
		e.AccountID = updated.ID
		e.ResultingBalance = updated.Balance
		rec.Entry = &e
	}
	if err := m.commit(rec); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// SetDefaultAccount 切換使用者的預設帳戶
func (m *MutexLedger) SetDefaultAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if account.IsShared() {
		return nil, domain.ErrNotPersonalAccount
	}
	if account.OwnerID != userID {
		return nil, domain.ErrUnauthorized
	}
	if !account.IsDefault {
		if err := m.commit(&walRecord{Op: opSetDefault, UserID: userID, AccountID: accountID}); err != nil {
			return nil, err
		}
	}
	return m.accounts[accountID].Clone(), nil
}

// DeleteAccount 刪除帳戶 (連同成員與外部連結)，交易紀錄保留
func (m *MutexLedger) DeleteAccount(ctx context.Context, accountID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return domain.ErrAccountNotFound
	}
	return m.commit(&walRecord{Op: opDelete, AccountID: accountID})
}

// GetMembership 讀取單一成員關係
func (m *MutexLedger) GetMembership(ctx context.Context, accountID int64, userID string) (*domain.SharedAccountUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.memberIndex(accountID, userID)
	if idx < 0 {
		return nil, domain.ErrNotMember
	}
	member := m.members[accountID][idx]
	return &member, nil
}

// ListMembers 依加入順序列出成員
func (m *MutexLedger) ListMembers(ctx context.Context, accountID int64) ([]domain.SharedAccountUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	return append([]domain.SharedAccountUser{}, m.members[accountID]...), nil
}

// AddMember 新增成員
func (m *MutexLedger) AddMember(ctx context.Context, member domain.SharedAccountUser) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[member.AccountID]; !ok {
		return domain.ErrAccountNotFound
	}
	if m.memberIndex(member.AccountID, member.UserID) >= 0 {
		return domain.ErrAlreadyMember
	}
	return m.commit(&walRecord{Op: opMemberAdd, Member: &member})
}

// RemoveMember 移除成員，不允許移除最後一位擁有者
func (m *MutexLedger) RemoveMember(ctx context.Context, accountID int64, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.memberIndex(accountID, userID)
	if idx < 0 {
		return domain.ErrNotMember
	}
	if m.members[accountID][idx].Role == domain.RoleOwner {
		owners := 0
		for _, member := range m.members[accountID] {
			if member.Role == domain.RoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			return domain.ErrLastOwner
		}
	}
	return m.commit(&walRecord{Op: opMemberRemove, AccountID: accountID, UserID: userID})
}

// ListEntries 依寫入順序列出交易紀錄
func (m *MutexLedger) ListEntries(ctx context.Context, accountID int64) ([]domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.LogEntry{}, m.entries[accountID]...), nil
}

// FindEntryByRef 以參考號查詢交易紀錄
func (m *MutexLedger) FindEntryByRef(ctx context.Context, refID uuid.UUID) (*domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.refs[refID]
	if !ok || refID == uuid.Nil {
		return nil, domain.ErrEntryNotFound
	}
	return &entry, nil
}

// LinkExternal 建立外部帳戶連結
func (m *MutexLedger) LinkExternal(ctx context.Context, link *domain.ExternalAccount) (*domain.ExternalAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[link.AccountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	if _, exists := m.links[link.ExternalRef]; exists {
		return nil, fmt.Errorf("%w: external ref %q already linked", domain.ErrInvalidInput, link.ExternalRef)
	}
	created := *link
	created.ID = m.nextLinkID + 1
	if err := m.commit(&walRecord{Op: opLink, Link: &created}); err != nil {
		return nil, err
	}
	return &created, nil
}

// FindExternal 以外部識別碼查詢連結
func (m *MutexLedger) FindExternal(ctx context.Context, externalRef string) (*domain.ExternalAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[externalRef]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	found := *link
	return &found, nil
}

// memberIndex 回傳成員在切片中的位置，不存在回傳 -1；呼叫端必須持有鎖
func (m *MutexLedger) memberIndex(accountID int64, userID string) int {
	for i, member := range m.members[accountID] {
		if member.UserID == userID {
			return i
		}
	}
	return -1
}

var _ usecase.LedgerStore = (*MutexLedger)(nil)
