package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	SessionSecret   string        `yaml:"session_secret"` // HS256 key for the session cookie
	SessionCookie   string        `yaml:"session_cookie"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type CryptomusConfig struct {
	MerchantID string `yaml:"merchant_id"`
	APIKey     string `yaml:"api_key"`
	// SettlementCurrency is forced on every payment regardless of the
	// product currency; the provider does not accept all fiat codes.
	SettlementCurrency string `yaml:"settlement_currency"`
}

type BillingConfig struct {
	// PublicDomain is the externally reachable base URL used to build
	// default success/cancel/callback URLs, e.g. https://example.com
	PublicDomain string `yaml:"public_domain"`
}

type SweeperConfig struct {
	ExpiryInterval   time.Duration `yaml:"expiry_interval"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Cryptomus CryptomusConfig `yaml:"cryptomus"`
	Billing   BillingConfig   `yaml:"billing"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.SessionCookie == "" {
		cfg.HTTP.SessionCookie = "session"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Cryptomus.SettlementCurrency == "" {
		cfg.Cryptomus.SettlementCurrency = "USD"
	}
	if cfg.Sweeper.ExpiryInterval <= 0 {
		cfg.Sweeper.ExpiryInterval = time.Hour
	}
	if cfg.Sweeper.ReminderInterval <= 0 {
		cfg.Sweeper.ReminderInterval = 15 * time.Minute
	}
	if cfg.Sweeper.LockTTL <= 0 {
		cfg.Sweeper.LockTTL = 5 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("stripe.secret_key is required")
	}
	if cfg.Cryptomus.MerchantID == "" || cfg.Cryptomus.APIKey == "" {
		return nil, errors.New("cryptomus.merchant_id and cryptomus.api_key are required")
	}
	if cfg.Billing.PublicDomain == "" {
		return nil, errors.New("billing.public_domain is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
