package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "ESCROW_TIMEOUT", "PRIVATE_KEY", "DATABASE_URL"} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultEscrowTimeout, cfg.EscrowTimeout)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultUSDCContract, cfg.USDCContract)
	assert.False(t, cfg.WalletEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ESCROW_TIMEOUT", "48h")
	setEnv(t, "PRIVATE_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 48*time.Hour, cfg.EscrowTimeout)
	assert.True(t, cfg.WalletEnabled())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "no wallet is valid",
			config: Config{EscrowTimeout: time.Hour},
		},
		{
			name: "valid wallet config",
			config: Config{
				EscrowTimeout: time.Hour,
				PrivateKey:    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
				RPCURL:        "https://sepolia.base.org",
			},
		},
		{
			name: "0x prefixed key is valid",
			config: Config{
				EscrowTimeout: time.Hour,
				PrivateKey:    "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
				RPCURL:        "https://sepolia.base.org",
			},
		},
		{
			name:    "zero timeout",
			config:  Config{EscrowTimeout: 0},
			wantErr: "ESCROW_TIMEOUT",
		},
		{
			name: "invalid private key length",
			config: Config{
				EscrowTimeout: time.Hour,
				PrivateKey:    "abc123",
				RPCURL:        "https://sepolia.base.org",
			},
			wantErr: "64 hex characters",
		},
		{
			name: "wallet without RPC URL",
			config: Config{
				EscrowTimeout: time.Hour,
				PrivateKey:    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			},
			wantErr: "RPC_URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvModes(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DURATION", "90m")
	setEnv(t, "TEST_BAD_DURATION", "soon")

	assert.Equal(t, 90*time.Minute, getEnvDuration("TEST_DURATION", time.Hour))
	assert.Equal(t, time.Hour, getEnvDuration("NONEXISTENT_VAR", time.Hour))
	assert.Equal(t, time.Hour, getEnvDuration("TEST_BAD_DURATION", time.Hour))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99))
}
