package domain

import "errors"

var (
	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnauthorized 呼叫者沒有足夠的權限
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidAmount 金額必須為正整數且不可超過單筆上限
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyMember 使用者已是共用帳戶成員
	ErrAlreadyMember = errors.New("user is already a member")

	// ErrNotMember 使用者不是共用帳戶成員
	ErrNotMember = errors.New("user is not a member")

	// ErrLastOwner 不可移除最後一位擁有者
	ErrLastOwner = errors.New("cannot remove the last owner")

	// ErrInvalidRole 未知的角色
	ErrInvalidRole = errors.New("invalid role")

	// ErrStorageUnavailable 儲存層無法使用或逾時
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConflict CAS 版本衝突 (樂觀鎖重試訊號)
	ErrConflict = errors.New("version conflict")

	// ErrDefaultAccountExists 該使用者已有預設帳戶 (唯一鍵衝突)
	ErrDefaultAccountExists = errors.New("default account already exists")

	// ErrDuplicateRef 交易參考號已處理過
	ErrDuplicateRef = errors.New("transaction already processed")

	// ErrEntryNotFound 找不到對應參考號的交易紀錄
	ErrEntryNotFound = errors.New("transaction entry not found")

	// ErrNotSharedAccount 操作僅適用於共用帳戶
	ErrNotSharedAccount = errors.New("operation requires a shared account")

	// ErrNotPersonalAccount 操作僅適用於個人帳戶
	ErrNotPersonalAccount = errors.New("operation requires a personal account")

	// ErrDefaultAccountLocked 預設帳戶不可刪除
	ErrDefaultAccountLocked = errors.New("default account cannot be deleted")

	// ErrInvalidInput 請求格式或欄位錯誤
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorCode 對外穩定的錯誤代碼
type ErrorCode string

const (
	CodeAccountNotFound    ErrorCode = "account_not_found"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeInvalidAmount      ErrorCode = "invalid_amount"
	CodeInsufficientFunds  ErrorCode = "insufficient_funds"
	CodeAlreadyMember      ErrorCode = "already_member"
	CodeNotMember          ErrorCode = "not_member"
	CodeLastOwner          ErrorCode = "last_owner"
	CodeInvalidRole        ErrorCode = "invalid_role"
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeConflict           ErrorCode = "conflict"
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeInternal           ErrorCode = "internal"
)

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrAlreadyMember, CodeAlreadyMember},
	{ErrNotMember, CodeNotMember},
	{ErrLastOwner, CodeLastOwner},
	{ErrInvalidRole, CodeInvalidRole},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrConflict, CodeConflict},
	{ErrNotSharedAccount, CodeInvalidInput},
	{ErrNotPersonalAccount, CodeInvalidInput},
	{ErrDefaultAccountLocked, CodeInvalidInput},
	{ErrInvalidInput, CodeInvalidInput},
}

// CodeOf 將錯誤對應到穩定的錯誤代碼，無法辨識的錯誤一律視為 internal
func CodeOf(err error) ErrorCode {
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsDomainError 判斷錯誤是否為已知的業務錯誤 (不需包裝成 storage_unavailable)
func IsDomainError(err error) bool {
	return CodeOf(err) != CodeInternal ||
		errors.Is(err, ErrDefaultAccountExists) ||
		errors.Is(err, ErrDuplicateRef) ||
		errors.Is(err, ErrEntryNotFound)
}
