package usecase

import (
	"time"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

// Config 核心業務設定
type Config struct {
	MaxAmount          int64
	RetryLimit         int
	StorageTimeout     time.Duration
	DefaultAccountName string
	CurrencyScale      int32
	Administrators     []string
}

// DefaultConfig 回傳預設設定
func DefaultConfig() Config {
	return Config{
		MaxAmount:          1_000_000_000,
		RetryLimit:         DefaultRetryLimit,
		StorageTimeout:     DefaultStorageTimeout,
		DefaultAccountName: DefaultAccountName,
		CurrencyScale:      domain.DefaultCurrencyScale,
	}
}

// NewCore 組裝核心元件並回傳對外入口
//
// 參數:
//
//	store: 帳本儲存
//	resolver: 識別碼解析 (可為 nil，此時只能以帳戶 ID 加扣款)
//	cfg: 核心設定
func NewCore(store LedgerStore, resolver IdentifierResolver, cfg Config) *AccountFacade {
	roles := NewRoleRegistry(store)
	engine := NewTransactionEngine(store, resolver, EngineConfig{
		MaxAmount:      cfg.MaxAmount,
		RetryLimit:     cfg.RetryLimit,
		StorageTimeout: cfg.StorageTimeout,
	})
	defaults := NewDefaultAccountManager(store, cfg.DefaultAccountName)
	if cfg.StorageTimeout > 0 {
		defaults.timeout = cfg.StorageTimeout
	}
	return NewAccountFacade(Services{
		Store:    store,
		Roles:    roles,
		Engine:   engine,
		Shared:   NewSharedAccountManager(store, roles),
		Defaults: defaults,
	}, FacadeConfig{
		CurrencyScale:  cfg.CurrencyScale,
		StorageTimeout: cfg.StorageTimeout,
		Administrators: cfg.Administrators,
	})
}
