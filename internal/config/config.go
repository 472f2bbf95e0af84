// Package config provides configuration management for the ledger application.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/ledger"
	"tradeledger/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Ledger      LedgerConfig  `mapstructure:"ledger"`
	Storage     StorageConfig `mapstructure:"storage"`
	Prices      PricesConfig  `mapstructure:"prices"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Ingest      IngestConfig  `mapstructure:"ingest"`
	Reports     ReportsConfig `mapstructure:"reports"`
	Notify      NotifyConfig  `mapstructure:"notify"`
	Server      ServerConfig  `mapstructure:"server"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// LedgerConfig holds replay parameters.
type LedgerConfig struct {
	InitialCash        float64 `mapstructure:"initial_cash"`
	CommissionRate     float64 `mapstructure:"commission_rate"`
	CostBasisPolicy    string  `mapstructure:"cost_basis_policy"`    // fifo, average
	MissingPricePolicy string  `mapstructure:"missing_price_policy"` // carry_forward, exclude
	StrictFills        bool    `mapstructure:"strict_fills"`
	Currency           string  `mapstructure:"currency"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// PricesConfig holds price provider configuration.
type PricesConfig struct {
	Provider          string        `mapstructure:"provider"` // eodhd, kite, csv
	BaseURL           string        `mapstructure:"base_url"`
	CSVDir            string        `mapstructure:"csv_dir"`
	LookbackDays      int           `mapstructure:"lookback_days"`
	Parallelism       int           `mapstructure:"parallelism"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	// BreakerThreshold consecutive failures open the circuit; 0 disables it.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// CacheConfig holds price cache configuration.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // sqlite, redis, none
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// IngestConfig holds order file parsing configuration.
type IngestConfig struct {
	TradeDatePolicy string            `mapstructure:"trade_date_policy"` // next_trading_day, same_day
	DefaultSuffix   string            `mapstructure:"default_suffix"`
	Symbols         map[string]string `mapstructure:"symbols"`
}

// ReportsConfig holds the report files written after every run.
type ReportsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"` // text, json, yaml, csv
}

// NotifyConfig holds the webhook posted after every run.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	RefreshCron string `mapstructure:"refresh_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Credentials holds API credentials.
type Credentials struct {
	EODHD EODHDCredentials `mapstructure:"eodhd"`
	Kite  KiteCredentials  `mapstructure:"kite"`
}

// EODHDCredentials holds the EOD Historical Data API token.
type EODHDCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// KiteCredentials holds Zerodha Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradeledger"
	}
	return filepath.Join(home, ".config", "tradeledger")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// fall back to defaults; use WriteTemplates to create them.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("ledger.initial_cash", 100000.0)
	v.SetDefault("ledger.commission_rate", 0.001)
	v.SetDefault("ledger.cost_basis_policy", string(ledger.FIFO))
	v.SetDefault("ledger.missing_price_policy", string(ledger.CarryForward))
	v.SetDefault("ledger.strict_fills", false)
	v.SetDefault("ledger.currency", "HKD")

	v.SetDefault("storage.db_path", filepath.Join(configDir, "ledger.db"))

	v.SetDefault("prices.provider", "eodhd")
	v.SetDefault("prices.base_url", "https://eodhd.com/api")
	v.SetDefault("prices.csv_dir", filepath.Join(configDir, "prices"))
	v.SetDefault("prices.lookback_days", 5)
	v.SetDefault("prices.parallelism", 4)
	v.SetDefault("prices.rate_per_second", 5.0)
	v.SetDefault("prices.retry_attempts", 3)
	v.SetDefault("prices.retry_initial_delay", "500ms")
	v.SetDefault("prices.retry_max_delay", "10s")
	v.SetDefault("prices.timeout", "30s")
	v.SetDefault("prices.breaker_threshold", 5)
	v.SetDefault("prices.breaker_cooldown", "1m")

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("ingest.trade_date_policy", "next_trading_day")
	v.SetDefault("ingest.default_suffix", ".HK")

	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.dir", filepath.Join(configDir, "reports"))
	v.SetDefault("reports.formats", []string{"text", "json", "csv"})

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.refresh_cron", "0 30 18 * * 1-5")

	def := logging.DefaultLogConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.console", def.Console)
	v.SetDefault("logging.file", def.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "ledger.log"))
	v.SetDefault("logging.max_size_mb", def.MaxSize)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age_days", def.MaxAge)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		cfg.Credentials.EODHD.APIKey = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("LEDGER_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.LedgerConfig(); err != nil {
		return fmt.Errorf("%w: ledger: %v", apperrors.ErrConfigInvalid, err)
	}

	switch c.Prices.Provider {
	case "eodhd", "kite", "csv", "static":
	default:
		return fmt.Errorf("%w: invalid price provider: %s (must be 'eodhd', 'kite' or 'csv')", apperrors.ErrConfigInvalid, c.Prices.Provider)
	}
	if c.Prices.Parallelism < 1 {
		return fmt.Errorf("%w: prices.parallelism must be at least 1", apperrors.ErrConfigInvalid)
	}
	if c.Prices.LookbackDays < 0 {
		return fmt.Errorf("%w: prices.lookback_days must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Prices.BreakerThreshold < 0 {
		return fmt.Errorf("%w: prices.breaker_threshold must be non-negative", apperrors.ErrConfigInvalid)
	}
	if c.Prices.RatePerSecond < 0 {
		return fmt.Errorf("%w: prices.rate_per_second must be non-negative", apperrors.ErrConfigInvalid)
	}

	switch c.Cache.Backend {
	case "sqlite", "redis", "none", "":
	default:
		return fmt.Errorf("%w: invalid cache backend: %s (must be 'sqlite', 'redis' or 'none')", apperrors.ErrConfigInvalid, c.Cache.Backend)
	}

	switch c.Ingest.TradeDatePolicy {
	case "next_trading_day", "same_day":
	default:
		return fmt.Errorf("%w: invalid trade_date_policy: %s", apperrors.ErrConfigInvalid, c.Ingest.TradeDatePolicy)
	}

	for _, f := range c.Reports.Formats {
		switch f {
		case "text", "json", "yaml", "csv":
		default:
			return fmt.Errorf("%w: invalid report format: %s", apperrors.ErrConfigInvalid, f)
		}
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: notify.webhook_url must be an http(s) URL", apperrors.ErrConfigInvalid)
		}
	}

	if c.Server.RefreshCron != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Server.RefreshCron); err != nil {
			return fmt.Errorf("%w: server.refresh_cron: %v", apperrors.ErrConfigInvalid, err)
		}
	}

	return nil
}

// LedgerConfig converts the [ledger] section into replay parameters.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	costBasis, err := ledger.ParseCostBasisMethod(c.Ledger.CostBasisPolicy)
	if err != nil {
		return ledger.Config{}, err
	}
	missing, err := ledger.ParseMissingPricePolicy(c.Ledger.MissingPricePolicy)
	if err != nil {
		return ledger.Config{}, err
	}
	lc := ledger.Config{
		InitialCash:    decimal.NewFromFloat(c.Ledger.InitialCash),
		CommissionRate: decimal.NewFromFloat(c.Ledger.CommissionRate),
		CostBasis:      costBasis,
		MissingPrice:   missing,
		Strict:         c.Ledger.StrictFills,
		Currency:       strings.ToUpper(c.Ledger.Currency),
	}
	return lc, lc.Validate()
}

// LogConfig converts the [logging] section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
	}
}
