package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("SessionTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{SessionTimeoutSeconds: 300}
		assert.Equal(t, 5*time.Minute, cfg.SessionTimeout())
	})

	t.Run("API durations convert milliseconds", func(t *testing.T) {
		cfg := &Config{APIDefaultTimeoutMs: 5000, APIRetryBaseDelayMs: 1000, APIRetryMaxDelayMs: 5000}
		assert.Equal(t, 5*time.Second, cfg.APIDefaultTimeout())
		assert.Equal(t, time.Second, cfg.APIRetryBaseDelay())
		assert.Equal(t, 5*time.Second, cfg.APIRetryMaxDelay())
	})

	t.Run("PinMenuCodes trims configured codes", func(t *testing.T) {
		cfg := &Config{PinMenus: []string{"enter_pin", " verify_pin", " "}}
		assert.Equal(t, []string{"enter_pin", "verify_pin"}, cfg.PinMenuCodes())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty optional settings", Config{RequestDeadlineSecs: 25}, false},
		{"bcrypt hash accepted", Config{RequestDeadlineSecs: 25, AdminAPIKeyHash: "$2a$10$abcdefghijklmnopqrstuv"}, false},
		{"plain admin key rejected", Config{RequestDeadlineSecs: 25, AdminAPIKeyHash: "secret"}, true},
		{"short encryption key rejected", Config{RequestDeadlineSecs: 25, EncryptionKey: "abcd"}, true},
		{"valid encryption key", Config{RequestDeadlineSecs: 25, EncryptionKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"}, false},
		{"zero deadline rejected", Config{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(false)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL",
		"SESSION_TIMEOUT_SECONDS", "PIN_MENUS", "MASK_POSITION", "AUTO_MIGRATE",
	}
	originalEnv := map[string]string{}
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("SESSION_TIMEOUT_SECONDS")
		os.Unsetenv("PIN_MENUS")
		os.Unsetenv("MASK_POSITION")
		os.Unsetenv("AUTO_MIGRATE")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 300, cfg.SessionTimeoutSeconds)
		assert.Equal(t, 5, cfg.MaskPosition)
		assert.True(t, cfg.AutoMigrate)
		assert.Equal(t, []string{"contribution_pin", "enter_pin", "verify_pin", "pin_input", "confirm_pin"}, cfg.PinMenus)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("PIN_MENUS", "pin,otp")
		os.Setenv("AUTO_MIGRATE", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, []string{"pin", "otp"}, cfg.PinMenus)
		assert.False(t, cfg.AutoMigrate)
	})

	t.Run("fails without required values", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})
}
