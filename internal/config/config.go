package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-bank/pkg/database"
)

// 儲存層種類
const (
	StorageMemory = "memory"
	StorageMySQL  = database.DriverMySQL
	StorageSQLite = database.DriverSQLite
)

type Config struct {
	Storage  StorageConfig   `yaml:"storage"`
	Database database.Config `yaml:"database"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	Server   ServerConfig    `yaml:"server"`
	Linking  LinkingConfig   `yaml:"linking"`
	// Sessions session handle -> 使用者 ID，留空則 handle 直接視為使用者 ID
	Sessions map[string]string `yaml:"sessions"`
}

type StorageConfig struct {
	Driver  string `yaml:"driver"`   // memory | mysql | sqlite
	WALPath string `yaml:"wal_path"` // memory 模式的 WAL 檔案，留空則不落地
}

type LedgerConfig struct {
	MaxAmount          int64         `yaml:"max_amount"`
	RetryLimit         int           `yaml:"retry_limit"`
	StorageTimeout     time.Duration `yaml:"storage_timeout"`
	DefaultAccountName string        `yaml:"default_account_name"`
	CurrencyScale      int32         `yaml:"currency_scale"`
	// Administrators 可呼叫管理端加扣款的使用者 ID，留空則對外關閉
	Administrators []string `yaml:"administrators"`
}

type ServerConfig struct {
	GrpcAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

type LinkingConfig struct {
	// GrpcTarget 遠端連結服務地址，留空則使用本地帳本的外部連結
	GrpcTarget string `yaml:"grpc_target"`
	// Serve 是否在本程序的 gRPC 埠提供連結服務給其他節點 (不檢查 session)
	Serve bool `yaml:"serve"`
}

// Load 讀取 YAML 設定檔並補齊預設值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 內容並補齊預設值
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	// 資料庫驅動跟隨儲存層設定
	if c.Storage.Driver != StorageMemory {
		c.Database.Driver = c.Storage.Driver
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	def := usecase.DefaultConfig()
	if c.Ledger.MaxAmount == 0 {
		c.Ledger.MaxAmount = def.MaxAmount
	}
	if c.Ledger.RetryLimit == 0 {
		c.Ledger.RetryLimit = def.RetryLimit
	}
	if c.Ledger.StorageTimeout == 0 {
		c.Ledger.StorageTimeout = def.StorageTimeout
	}
	if c.Ledger.DefaultAccountName == "" {
		c.Ledger.DefaultAccountName = def.DefaultAccountName
	}
	if c.Ledger.CurrencyScale == 0 {
		c.Ledger.CurrencyScale = domain.DefaultCurrencyScale
	}

	if c.Server.GrpcAddr == "" {
		c.Server.GrpcAddr = ":50051"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageMySQL:
	case StorageSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("config: database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Ledger.MaxAmount < 0 || c.Ledger.RetryLimit < 0 || c.Ledger.CurrencyScale < 0 {
		return fmt.Errorf("config: ledger limits must not be negative")
	}
	return nil
}

// Core 轉為核心業務設定
func (c *Config) Core() usecase.Config {
	return usecase.Config{
		MaxAmount:          c.Ledger.MaxAmount,
		RetryLimit:         c.Ledger.RetryLimit,
		StorageTimeout:     c.Ledger.StorageTimeout,
		DefaultAccountName: c.Ledger.DefaultAccountName,
		CurrencyScale:      c.Ledger.CurrencyScale,
		Administrators:     c.Ledger.Administrators,
	}
}
