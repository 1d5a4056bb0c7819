package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STEPCOACH_ADDRESS", "STEPCOACH_ALLOWED_ORIGINS", "STEPCOACH_DB", "STEPCOACH_DATA_DIR",
		"STEPCOACH_TOKEN_SECRET", "STEPCOACH_JWT_SECRET", "STEPCOACH_LOG_LEVEL",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "STEPCOACH_LLM_MODEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8123", cfg.Server.Address)
	assert.Equal(t, 4, cfg.Processor.Concurrency)
	assert.Equal(t, 30*24*time.Hour, cfg.ExtensionTokenTTL())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "stepcoach.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: 0.0.0.0:9000
  allowed_origins: ["chrome-extension://abc"]
llm:
  provider: static
processor:
  concurrency: 2
  stuck_after: 30m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, []string{"chrome-extension://abc"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "static", cfg.LLM.Provider)
	assert.Equal(t, 2, cfg.Processor.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.StuckAfter())
	// Untouched sections keep defaults.
	assert.Equal(t, "@every 5m", cfg.Processor.SweepSchedule)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("OPENAI overrides ANTHROPIC", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("server settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STEPCOACH_ADDRESS", "127.0.0.1:0")
		t.Setenv("STEPCOACH_ALLOWED_ORIGINS", "https://a.example,https://b.example")
		t.Setenv("STEPCOACH_DATA_DIR", "/tmp/stepcoach")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "127.0.0.1:0", cfg.Server.Address)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, filepath.Join("/tmp/stepcoach", "screenshots"), cfg.ScreenshotDir())
	})
}

func TestValidate(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Auth.TokenSecret = secret
		cfg.Auth.JWTSecret = secret
		cfg.LLM.Provider = "static"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"short token secret", func(c *Config) { c.Auth.TokenSecret = "x" }, true},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"anthropic without key", func(c *Config) { c.LLM.Provider = "anthropic" }, true},
		{"openai with key", func(c *Config) { c.LLM.Provider = "openai"; c.LLM.APIKey = "k" }, false},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, true},
		{"zero concurrency", func(c *Config) { c.Processor.Concurrency = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDurationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "soon"
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
}
