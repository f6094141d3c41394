package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", envMap(map[string]string{
		"TOKENAUTH_SIGNING_KEY": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)

	assert.Equal(t, storeMemory, cfg.Store)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, sweep.DefaultSchedule, cfg.SweepSchedule)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 5, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Auth.LockoutDuration)

	engineCfg := cfg.engineConfig()
	require.NoError(t, engineCfg.Validate())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenauthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
store: redis
redis_addr: "cache:6379"
auth:
  signing_key: "file-key-file-key-file-key-file-key"
  access_ttl: 5m
  lockout_threshold: 3
`), 0o600))

	cfg, err := loadConfig(path, envMap(map[string]string{
		"TOKENAUTH_LOCKOUT_THRESHOLD": "7",
		"TOKENAUTH_REFRESH_TTL":       "48h",
		"HTTP_ADDR":                   ":9100",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, storeRedis, cfg.Store)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 48*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 7, cfg.Auth.LockoutThreshold)
	assert.Equal(t, "file-key-file-key-file-key-file-key", cfg.Auth.SigningKey)
}

func TestLoadConfigErrors(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing key", env: map[string]string{}},
		{name: "unknown store", env: map[string]string{"TOKENAUTH_SIGNING_KEY": key, "TOKENAUTH_STORE": "etcd"}},
		{name: "postgres without dsn", env: map[string]string{"TOKENAUTH_SIGNING_KEY": key, "TOKENAUTH_STORE": "postgres"}},
		{name: "bad duration", env: map[string]string{"TOKENAUTH_SIGNING_KEY": key, "TOKENAUTH_ACCESS_TTL": "soon"}},
		{name: "bad threshold", env: map[string]string{"TOKENAUTH_SIGNING_KEY": key, "TOKENAUTH_LOCKOUT_THRESHOLD": "many"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig("", envMap(tc.env))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	assert.Error(t, err)
}
