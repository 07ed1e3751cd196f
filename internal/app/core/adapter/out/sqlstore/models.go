package sqlstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// sqlAccount 對應資料庫的 accounts 表
// DefaultOwner 只有預設帳戶才有值，唯一索引保證每位使用者最多一個預設帳戶 (NULL 不參與唯一性)
type sqlAccount struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	OwnerID      string  `gorm:"size:64;index"`
	Kind         string  `gorm:"size:16"`
	Name         string  `gorm:"size:128"`
	Balance      int64   `gorm:"not null;default:0"`
	IsDefault    bool    `gorm:"not null;default:false"`
	DefaultOwner *string `gorm:"size:64;uniqueIndex"`
	Version      int64   `gorm:"not null;default:1"`
	CreatedAt    time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (r *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Kind:      domain.AccountKind(r.Kind),
		Name:      r.Name,
		Balance:   r.Balance,
		IsDefault: r.IsDefault,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
	}
}

func accountRow(a *domain.Account) *sqlAccount {
	row := &sqlAccount{
		OwnerID:   a.OwnerID,
		Kind:      string(a.Kind),
		Name:      a.Name,
		Balance:   a.Balance,
		IsDefault: a.IsDefault,
		Version:   1,
		CreatedAt: a.CreatedAt,
	}
	if a.IsDefault {
		owner := a.OwnerID
		row.DefaultOwner = &owner
	}
	return row
}

// sqlMember 對應資料庫的 shared_account_users 表，自增 ID 即加入順序
type sqlMember struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	AccountID int64  `gorm:"uniqueIndex:idx_member_account_user"`
	UserID    string `gorm:"size:64;uniqueIndex:idx_member_account_user;index"`
	Role      string `gorm:"size:16"`
	AddedAt   time.Time
}

func (*sqlMember) TableName() string {
	return "shared_account_users"
}

func (r *sqlMember) toDomain() domain.SharedAccountUser {
	return domain.SharedAccountUser{
		AccountID: r.AccountID,
		UserID:    r.UserID,
		Role:      domain.Role(r.Role),
		AddedAt:   r.AddedAt,
	}
}

// sqlEntry 對應資料庫的 ledger_entries 表 (只新增不修改)
type sqlEntry struct {
	ID               int64   `gorm:"primaryKey;autoIncrement"`
	RefID            *string `gorm:"column:ref_id;size:36;uniqueIndex"`
	AccountID        int64   `gorm:"index"`
	ActorID          string  `gorm:"size:64"`
	Type             uint8
	Delta            int64
	Message          string `gorm:"size:255"`
	ResultingBalance int64
	CreatedAt        time.Time
}

func (*sqlEntry) TableName() string {
	return "ledger_entries"
}

func entryRow(e *domain.LogEntry) *sqlEntry {
	row := &sqlEntry{
		AccountID:        e.AccountID,
		ActorID:          e.ActorID,
		Type:             uint8(e.Type),
		Delta:            e.Delta,
		Message:          e.Message,
		ResultingBalance: e.ResultingBalance,
		CreatedAt:        e.CreatedAt,
	}
	if e.RefID != uuid.Nil {
		ref := e.RefID.String()
		row.RefID = &ref
	}
	return row
}

func (r *sqlEntry) toDomain() domain.LogEntry {
	e := domain.LogEntry{
		ID:               r.ID,
		AccountID:        r.AccountID,
		ActorID:          r.ActorID,
		Type:             domain.TransactionType(r.Type),
		Delta:            r.Delta,
		Message:          r.Message,
		ResultingBalance: r.ResultingBalance,
		CreatedAt:        r.CreatedAt,
	}
	if r.RefID != nil {
		e.RefID, _ = uuid.Parse(*r.RefID)
	}
	return e
}

// sqlExternal 對應資料庫的 external_accounts 表
type sqlExternal struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID     string `gorm:"size:64"`
	AccountID   int64  `gorm:"index"`
	ExternalRef string `gorm:"size:128;uniqueIndex"`
	Balance     int64
	CreatedAt   time.Time
}

func (*sqlExternal) TableName() string {
	return "external_accounts"
}

func (r *sqlExternal) toDomain() *domain.ExternalAccount {
	return &domain.ExternalAccount{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		AccountID:   r.AccountID,
		ExternalRef: r.ExternalRef,
		Balance:     r.Balance,
		CreatedAt:   r.CreatedAt,
	}
}
