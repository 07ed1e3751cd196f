package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType 交易類型
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
	// 管理端加款 (以帳號或識別碼)
	TransactionTypeAddMoney TransactionType = 3
	// 管理端扣款 (以帳號或識別碼)
	TransactionTypeRemoveMoney TransactionType = 4
)

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "deposit"
	case TransactionTypeWithdraw:
		return "withdraw"
	case TransactionTypeAddMoney:
		return "add_money"
	case TransactionTypeRemoveMoney:
		return "remove_money"
	}
	return "unknown"
}

// Sign 交易方向：入帳為 +1，出帳為 -1
func (t TransactionType) Sign() int64 {
	switch t {
	case TransactionTypeWithdraw, TransactionTypeRemoveMoney:
		return -1
	}
	return 1
}

// LogEntry 交易紀錄 (append-only，寫入後不可修改或刪除)
type LogEntry struct {
	ID int64 `json:"id"`
	// RefID: 外部追蹤號，用於請求冪等；uuid.Nil 表示不檢查
	RefID            uuid.UUID       `json:"ref_id"`
	AccountID        int64           `json:"account_id"`
	ActorID          string          `json:"actor_id"`
	Type             TransactionType `json:"type"`
	Delta            int64           `json:"delta"`
	Message          string          `json:"message"`
	ResultingBalance int64           `json:"resulting_balance"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ValidateAmount 檢查金額是否為正數且不超過單筆上限 (maxAmount <= 0 表示不設上限)
func ValidateAmount(amount, maxAmount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if maxAmount > 0 && amount > maxAmount {
		return ErrInvalidAmount
	}
	return nil
}
