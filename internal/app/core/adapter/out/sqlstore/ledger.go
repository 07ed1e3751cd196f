package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-bank/pkg/database"
)

// GormLedger 以 GORM 實作的帳本儲存 (MySQL / SQLite)
//
// 帳戶寫入以 version 欄位做 CAS；成員異動在交易中以 SELECT ... FOR UPDATE 鎖住帳戶列，
// 同一帳戶的成員變更因此序列化 (SQLite 不支援列鎖，由單一寫入連線序列化)。
type GormLedger struct {
	client *database.Client
}

func NewGormLedger(client *database.Client) *GormLedger {
	return &GormLedger{client: client}
}

// Migrate 建立或更新資料表
func (l *GormLedger) Migrate(ctx context.Context) error {
	return l.db(ctx).AutoMigrate(&sqlAccount{}, &sqlMember{}, &sqlEntry{}, &sqlExternal{})
}

func (l *GormLedger) db(ctx context.Context) *gorm.DB {
	return l.client.DB().WithContext(ctx)
}

// GetAccount 取得帳戶
func (l *GormLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return getAccount(l.db(ctx), accountID)
}

func getAccount(tx *gorm.DB, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	if err := tx.Where("id = ?", accountID).First(&row).Error; err != nil {
		return nil, translate(err, domain.ErrAccountNotFound)
	}
	return row.toDomain(), nil
}

// lockAccount 在交易中鎖住帳戶列
func lockAccount(tx *gorm.DB, accountID int64) (*sqlAccount, error) {
	var row sqlAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).
		First(&row).Error
	if err != nil {
		return nil, translate(err, domain.ErrAccountNotFound)
	}
	return &row, nil
}

// ListAccountsForUser 列出使用者的個人帳戶與所屬共用帳戶
func (l *GormLedger) ListAccountsForUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	db := l.db(ctx)
	memberOf := db.Model(&sqlMember{}).Select("account_id").Where("user_id = ?", userID)

	var rows []sqlAccount
	err := db.
		Where("(kind = ? AND owner_id = ?) OR (kind = ? AND id IN (?))",
			string(domain.AccountKindPersonal), userID, string(domain.AccountKindShared), memberOf).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// FindDefaultAccount 取得使用者的預設帳戶
func (l *GormLedger) FindDefaultAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var row sqlAccount
	if err := l.db(ctx).Where("default_owner = ?", userID).First(&row).Error; err != nil {
		return nil, translate(err, domain.ErrAccountNotFound)
	}
	return row.toDomain(), nil
}

// CreateAccount 建立帳戶與初始成員 (同一交易)
func (l *GormLedger) CreateAccount(ctx context.Context, account *domain.Account, members []domain.SharedAccountUser) (*domain.Account, error) {
	row := accountRow(account)
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) && account.IsDefault {
				return domain.ErrDefaultAccountExists
			}
			return err
		}
		if len(members) == 0 {
			return nil
		}
		memberRows := make([]sqlMember, 0, len(members))
		for _, m := range members {
			memberRows = append(memberRows, sqlMember{AccountID: row.ID, UserID: m.UserID, Role: string(m.Role), AddedAt: m.AddedAt})
		}
		if err := tx.Create(&memberRows).Error; err != nil {
			return translate(err, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// CompareAndSet 版本相符時寫入帳戶名稱、餘額與交易紀錄 (同一交易)
func (l *GormLedger) CompareAndSet(ctx context.Context, next *domain.Account, expectedVersion int64, entry *domain.LogEntry) (*domain.Account, error) {
	if next.Balance < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	var updated *domain.Account
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if entry != nil && entry.RefID != uuid.Nil {
			var seen int64
			if err := tx.Model(&sqlEntry{}).Where("ref_id = ?", entry.RefID.String()).Count(&seen).Error; err != nil {
				return err
			}
			if seen > 0 {
				return domain.ErrDuplicateRef
			}
		}

		res := tx.Model(&sqlAccount{}).
			Where("id = ? AND version = ?", next.ID, expectedVersion).
			Updates(map[string]interface{}{
				"name":    next.Name,
				"balance": next.Balance,
				"version": expectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 區分帳戶不存在與版本衝突
			if _, err := getAccount(tx, next.ID); err != nil {
				return err
			}
			return domain.ErrConflict
		}

		if entry != nil {
			e := *entry
			e.AccountID = next.ID
			e.ResultingBalance = next.Balance
			if err := tx.Create(entryRow(&e)).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return domain.ErrDuplicateRef
				}
				return err
			}
		}

		var err error
		updated, err = getAccount(tx, next.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetDefaultAccount 切換使用者的預設帳戶：先清除舊的再設定新的，避免唯一索引衝突
func (l *GormLedger) SetDefaultAccount(ctx context.Context, userID string, accountID int64) (*domain.Account, error) {
	var updated *domain.Account
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if row.Kind != string(domain.AccountKindPersonal) {
			return domain.ErrNotPersonalAccount
		}
		if row.OwnerID != userID {
			return domain.ErrUnauthorized
		}
		if !row.IsDefault {
			err = tx.Model(&sqlAccount{}).
				Where("default_owner = ?", userID).
				Updates(map[string]interface{}{
					"is_default":    false,
					"default_owner": nil,
					"version":       gorm.Expr("version + 1"),
				}).Error
			if err != nil {
				return err
			}
			err = tx.Model(&sqlAccount{}).
				Where("id = ?", accountID).
				Updates(map[string]interface{}{
					"is_default":    true,
					"default_owner": userID,
					"version":       gorm.Expr("version + 1"),
				}).Error
			if err != nil {
				return err
			}
		}
		updated, err = getAccount(tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAccount 依序刪除成員、外部連結與帳戶；交易紀錄保留
func (l *GormLedger) DeleteAccount(ctx context.Context, accountID int64) error {
	return l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockAccount(tx, accountID); err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&sqlMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&sqlExternal{}).Error; err != nil {
			return fmt.Errorf("delete external links: %w", err)
		}
		if err := tx.Where("id = ?", accountID).Delete(&sqlAccount{}).Error; err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

// GetMembership 單次讀取成員關係
func (l *GormLedger) GetMembership(ctx context.Context, accountID int64, userID string) (*domain.SharedAccountUser, error) {
	var row sqlMember
	err := l.db(ctx).Where("account_id = ? AND user_id = ?", accountID, userID).First(&row).Error
	if err != nil {
		return nil, translate(err, domain.ErrNotMember)
	}
	member := row.toDomain()
	return &member, nil
}

// ListMembers 依加入順序列出成員
func (l *GormLedger) ListMembers(ctx context.Context, accountID int64) ([]domain.SharedAccountUser, error) {
	db := l.db(ctx)
	if _, err := getAccount(db, accountID); err != nil {
		return nil, err
	}
	var rows []sqlMember
	if err := db.Where("account_id = ?", accountID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SharedAccountUser, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// AddMember 新增成員
func (l *GormLedger) AddMember(ctx context.Context, member domain.SharedAccountUser) error {
	return l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockAccount(tx, member.AccountID); err != nil {
			return err
		}
		row := sqlMember{AccountID: member.AccountID, UserID: member.UserID, Role: string(member.Role), AddedAt: member.AddedAt}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyMember
			}
			return err
		}
		return nil
	})
}

// RemoveMember 移除成員，不允許移除最後一位擁有者
func (l *GormLedger) RemoveMember(ctx context.Context, accountID int64, userID string) error {
	return l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockAccount(tx, accountID); err != nil {
			return err
		}
		var target sqlMember
		if err := tx.Where("account_id = ? AND user_id = ?", accountID, userID).First(&target).Error; err != nil {
			return translate(err, domain.ErrNotMember)
		}
		if target.Role == string(domain.RoleOwner) {
			var owners int64
			err := tx.Model(&sqlMember{}).
				Where("account_id = ? AND role = ?", accountID, string(domain.RoleOwner)).
				Count(&owners).Error
			if err != nil {
				return err
			}
			if owners <= 1 {
				return domain.ErrLastOwner
			}
		}
		return tx.Where("id = ?", target.ID).Delete(&sqlMember{}).Error
	})
}

// ListEntries 依寫入順序列出交易紀錄
func (l *GormLedger) ListEntries(ctx context.Context, accountID int64) ([]domain.LogEntry, error) {
	var rows []sqlEntry
	if err := l.db(ctx).Where("account_id = ?", accountID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LogEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// FindEntryByRef 以參考號查詢交易紀錄
func (l *GormLedger) FindEntryByRef(ctx context.Context, refID uuid.UUID) (*domain.LogEntry, error) {
	if refID == uuid.Nil {
		return nil, domain.ErrEntryNotFound
	}
	var row sqlEntry
	if err := l.db(ctx).Where("ref_id = ?", refID.String()).First(&row).Error; err != nil {
		return nil, translate(err, domain.ErrEntryNotFound)
	}
	entry := row.toDomain()
	return &entry, nil
}

// LinkExternal 建立外部帳戶連結
func (l *GormLedger) LinkExternal(ctx context.Context, link *domain.ExternalAccount) (*domain.ExternalAccount, error) {
	db := l.db(ctx)
	if _, err := getAccount(db, link.AccountID); err != nil {
		return nil, err
	}
	row := sqlExternal{
		OwnerID:     link.OwnerID,
		AccountID:   link.AccountID,
		ExternalRef: link.ExternalRef,
		Balance:     link.Balance,
		CreatedAt:   link.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: external ref %q already linked", domain.ErrInvalidInput, link.ExternalRef)
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// FindExternal 以外部識別碼查詢連結
func (l *GormLedger) FindExternal(ctx context.Context, externalRef string) (*domain.ExternalAccount, error) {
	var row sqlExternal
	if err := l.db(ctx).Where("external_ref = ?", externalRef).First(&row).Error; err != nil {
		return nil, translate(err, domain.ErrAccountNotFound)
	}
	return row.toDomain(), nil
}

// translate 將 gorm.ErrRecordNotFound 轉為指定的業務錯誤
func translate(err error, notFound error) error {
	if notFound != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

var _ usecase.LedgerStore = (*GormLedger)(nil)
