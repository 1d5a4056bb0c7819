package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Processor ProcessorConfig `yaml:"processor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"` // chrome-extension://<id>, dashboard origin
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"` // screenshots live under <data_dir>/screenshots
}

type AuthConfig struct {
	TokenSecret       string `yaml:"token_secret"` // extension + share tokens
	JWTSecret         string `yaml:"jwt_secret"`   // dashboard sessions from the auth provider
	ExtensionTokenTTL string `yaml:"extension_token_ttl"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, openai, static
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

type ProcessorConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	QueueSize     int    `yaml:"queue_size"`
	SweepSchedule string `yaml:"sweep_schedule"` // cron spec
	StuckAfter    string `yaml:"stuck_after"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// DataDirectory is the platform-specific application directory.
func DataDirectory() (string, error) {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDirectory, "Library", "Application Support", "StepCoach"), nil
	case "windows":
		return filepath.Join(homeDirectory, "AppData", "Roaming", "StepCoach"), nil
	default: // linux and others
		return filepath.Join(homeDirectory, ".local", "share", "StepCoach"), nil
	}
}

func DefaultConfig() *Config {
	dataDirectory, err := DataDirectory()
	if err != nil {
		dataDirectory = "data"
	}
	return &Config{
		Server: ServerConfig{
			Address:      "127.0.0.1:8123",
			MaxBodyBytes: 16 << 20,
			ReadTimeout:  "15s",
			WriteTimeout: "90s",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDirectory, "stepcoach.db"),
		},
		Storage: StorageConfig{
			DataDir: dataDirectory,
		},
		Auth: AuthConfig{
			ExtensionTokenTTL: "720h",
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 512,
			Timeout:   "60s",
		},
		Processor: ProcessorConfig{
			Concurrency:   4,
			QueueSize:     64,
			SweepSchedule: "@every 5m",
			StuckAfter:    "10m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads .env (if present), the YAML file at path over defaults, then
// environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if address := os.Getenv("STEPCOACH_ADDRESS"); address != "" {
		c.Server.Address = address
	}
	if origins := os.Getenv("STEPCOACH_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if path := os.Getenv("STEPCOACH_DB"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("STEPCOACH_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if secret := os.Getenv("STEPCOACH_TOKEN_SECRET"); secret != "" {
		c.Auth.TokenSecret = secret
	}
	if secret := os.Getenv("STEPCOACH_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if level := os.Getenv("STEPCOACH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	// OPENAI wins when both keys are set.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if model := os.Getenv("STEPCOACH_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("auth.token_secret must be at least 32 bytes")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
		}
	case "static":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Processor.Concurrency < 1 {
		return fmt.Errorf("processor.concurrency must be positive")
	}
	return nil
}

func (c *Config) ExtensionTokenTTL() time.Duration {
	return parseDuration(c.Auth.ExtensionTokenTTL, 30*24*time.Hour)
}

func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

func (c *Config) StuckAfter() time.Duration {
	return parseDuration(c.Processor.StuckAfter, 10*time.Minute)
}

func (c *Config) ReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 90*time.Second)
}

func (c *Config) ScreenshotDir() string {
	return filepath.Join(c.Storage.DataDir, "screenshots")
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
