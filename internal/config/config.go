package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                  int      `env:"PORT" envDefault:"8080"`
	DatabaseURL           string   `env:"DATABASE_URL,required"`
	RedisURL              string   `env:"REDIS_URL,required"`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	AdminAPIKeyHash       string   `env:"ADMIN_API_KEY_HASH"`
	EncryptionKey         string   `env:"ENCRYPTION_KEY"`
	SessionTimeoutSeconds int      `env:"SESSION_TIMEOUT_SECONDS" envDefault:"300"`
	RequestDeadlineSecs   int      `env:"REQUEST_DEADLINE_SECONDS" envDefault:"25"`
	APIDefaultTimeoutMs   int      `env:"API_DEFAULT_TIMEOUT_MS" envDefault:"5000"`
	APIDefaultRetryCount  int      `env:"API_DEFAULT_RETRY_COUNT" envDefault:"2"`
	APIRetryBaseDelayMs   int      `env:"API_RETRY_BASE_DELAY_MS" envDefault:"1000"`
	APIRetryMaxDelayMs    int      `env:"API_RETRY_MAX_DELAY_MS" envDefault:"5000"`
	PinMenus              []string `env:"PIN_MENUS" envSeparator:"," envDefault:"contribution_pin,enter_pin,verify_pin,pin_input,confirm_pin"`
	MaskPosition          int      `env:"MASK_POSITION" envDefault:"5"`
	PhoneRateLimitPerMin  int      `env:"PHONE_RATE_LIMIT_PER_MIN" envDefault:"30"`
	DefinitionsFile       string   `env:"DEFINITIONS_FILE"`
	AutoMigrate           bool     `env:"AUTO_MIGRATE" envDefault:"true"`
	CurrencySymbol        string   `env:"CURRENCY_SYMBOL" envDefault:"$"`
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineSecs) * time.Second
}

func (c *Config) APIDefaultTimeout() time.Duration {
	return time.Duration(c.APIDefaultTimeoutMs) * time.Millisecond
}

func (c *Config) APIRetryBaseDelay() time.Duration {
	return time.Duration(c.APIRetryBaseDelayMs) * time.Millisecond
}

func (c *Config) APIRetryMaxDelay() time.Duration {
	return time.Duration(c.APIRetryMaxDelayMs) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminAPIKeyHash != "" {
		if !strings.HasPrefix(c.AdminAPIKeyHash, "$2a$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2b$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2y$") {
			return fmt.Errorf("ADMIN_API_KEY_HASH must be a bcrypt hash (generate with: ussdctl hash-key <key>)")
		}
	}

	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters")
		}
	}

	if c.RequestDeadlineSecs <= 0 {
		return fmt.Errorf("REQUEST_DEADLINE_SECONDS must be positive")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: PIN inputs will be stored in plain text")
		}
		if c.AdminAPIKeyHash == "" {
			log.Warn().Msg("ADMIN_API_KEY_HASH is empty: admin endpoints disabled")
		}
	}

	return nil
}

// PinMenuCodes returns the trimmed, non-empty PIN-class menu codes.
func (c *Config) PinMenuCodes() []string {
	codes := make([]string, 0, len(c.PinMenus))
	for _, code := range c.PinMenus {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
