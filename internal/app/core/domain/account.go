package domain

import (
	"fmt"
	"strings"
	"time"
)

// AccountKind 帳戶類型
type AccountKind string

const (
	// 個人帳戶，只有擁有者本人可操作
	AccountKindPersonal AccountKind = "personal"
	// 共用帳戶，依成員角色授權
	AccountKindShared AccountKind = "shared"
)

// Account 帳戶
//
// Balance 以最小貨幣單位儲存，任何時刻皆不得小於 0。
// Version 為 CAS 版本號，每次成功寫入加一。
type Account struct {
	ID        int64       `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Kind      AccountKind `json:"kind"`
	Name      string      `json:"name"`
	Balance   int64       `json:"balance"`
	IsDefault bool        `json:"is_default"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
}

// Clone 回傳帳戶的複本，避免呼叫端修改到儲存層持有的資料
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// IsShared 是否為共用帳戶
func (a *Account) IsShared() bool {
	return a.Kind == AccountKindShared
}

// Role 共用帳戶成員角色
type Role string

const (
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
	RoleContributor Role = "contributor"
)

// Rank 角色的權限寬度，數字越大權限越廣；未知角色為 0
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleContributor:
		return 1
	}
	return 0
}

// Valid 是否為已知角色
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole 解析角色字串 (不分大小寫)
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Satisfies 判斷此角色是否滿足任一所需角色 (依角色階層展開)
// 空的需求集合視為不需檢查。
func (r Role) Satisfies(required []Role) bool {
	if len(required) == 0 {
		return true
	}
	if !r.Valid() {
		return false
	}
	minRank := 0
	for _, req := range required {
		if rank := req.Rank(); rank > 0 && (minRank == 0 || rank < minRank) {
			minRank = rank
		}
	}
	return minRank > 0 && r.Rank() >= minRank
}

// SharedAccountUser 共用帳戶成員關係
type SharedAccountUser struct {
	AccountID int64     `json:"account_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	AddedAt   time.Time `json:"added_at"`
}

// MemberSpec 建立共用帳戶時附帶的初始成員
type MemberSpec struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// ExternalAccount 外部系統鏡像帳戶，生命週期由外部連結服務管理
type ExternalAccount struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	AccountID   int64     `json:"account_id"`
	ExternalRef string    `json:"external_ref"`
	Balance     int64     `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}
