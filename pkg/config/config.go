package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the TradeGuard core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Risk engine
	LockCooldownHours int
	DefaultLimits     DefaultLimits

	// Optional YAML file overriding the built-in default limits.
	RiskLimitsFile string
}

// DefaultLimits are the limits applied to auto-provisioned risk profiles.
type DefaultLimits struct {
	MaxDailyLoss     decimal.Decimal `yaml:"-"`
	MaxTradesPerDay  int             `yaml:"max_trades_per_day"`
	MaxTradesMonthly int             `yaml:"max_trades_monthly"`
	MaxTradesYearly  int             `yaml:"max_trades_yearly"`

	// Parsed separately so the YAML value round-trips through decimal.
	MaxDailyLossRaw string `yaml:"max_daily_loss"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/tradeguard.db")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            dbPath,
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		LockCooldownHours: getEnvInt("LOCK_COOLDOWN_HOURS", 12),
		RiskLimitsFile:    getEnv("RISK_LIMITS_FILE", ""),
		DefaultLimits:     builtinDefaultLimits(),
	}

	if cfg.RiskLimitsFile != "" {
		if err := cfg.loadLimitsFile(); err != nil {
			return nil, fmt.Errorf("load risk limits file: %w", err)
		}
	}

	return cfg, nil
}

// builtinDefaultLimits mirrors the conservative defaults applied when a
// profile is first provisioned: $200 daily loss, 5/100/1000 trade caps.
func builtinDefaultLimits() DefaultLimits {
	return DefaultLimits{
		MaxDailyLoss:     decimal.NewFromInt(200),
		MaxTradesPerDay:  5,
		MaxTradesMonthly: 100,
		MaxTradesYearly:  1000,
	}
}

func (c *Config) loadLimitsFile() error {
	data, err := os.ReadFile(c.RiskLimitsFile)
	if err != nil {
		return err
	}

	parsed := c.DefaultLimits
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if parsed.MaxDailyLossRaw != "" {
		loss, err := decimal.NewFromString(parsed.MaxDailyLossRaw)
		if err != nil {
			return fmt.Errorf("max_daily_loss: %w", err)
		}
		if loss.Sign() <= 0 {
			return fmt.Errorf("max_daily_loss must be positive, got %s", loss)
		}
		parsed.MaxDailyLoss = loss
	}
	if parsed.MaxTradesPerDay <= 0 || parsed.MaxTradesMonthly <= 0 || parsed.MaxTradesYearly <= 0 {
		return fmt.Errorf("trade caps must be positive")
	}

	c.DefaultLimits = parsed
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
