package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gm-agent-org/mcp-guard/pkg/api"
	"github.com/gm-agent-org/mcp-guard/pkg/approval"
	"github.com/gm-agent-org/mcp-guard/pkg/audit"
	"github.com/gm-agent-org/mcp-guard/pkg/codec"
	"github.com/gm-agent-org/mcp-guard/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. GUARD_PROTOCOL.
const EnvPrefix = "GUARD"

const dirName = ".mcp-guard"

type Config struct {
	Protocol     string         `yaml:"protocol" envconfig:"PROTOCOL"` // "ndjson", "content-length" or "auto"
	Policy       string         `yaml:"policy" envconfig:"POLICY"`
	LogLevel     string         `yaml:"log_level" envconfig:"LOG_LEVEL"`
	CacheTTL     time.Duration  `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	AuditLog     string         `yaml:"audit_log" envconfig:"AUDIT_LOG"`
	MaxFrameSize int            `yaml:"max_frame_size" envconfig:"MAX_FRAME_SIZE"`
	HTTP         api.HTTPConfig `yaml:"http" envconfig:"HTTP"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Protocol:     string(codec.ProtocolAuto),
		Policy:       defaultPolicyPath(),
		LogLevel:     "info",
		CacheTTL:     approval.DefaultTTL,
		AuditLog:     audit.DefaultPath,
		MaxFrameSize: codec.DefaultMaxFrameSize,
		HTTP: api.HTTPConfig{
			Enable: true,
			Addr:   api.DefaultAddr,
		},
	}
}

// Load reads configuration from path, or from the default locations when path
// is empty. Values are layered: defaults, then the YAML file, then GUARD_*
// environment variables (including those from .env.local and .env).
func Load(path string) (*Config, error) {
	// Try loading .env files (ignore error if not present)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	path = ResolvePath(path)
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Env overrides values from the config file
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := codec.ParseProtocol(c.Protocol); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.CacheTTL < 0 {
		return errors.New("config: cache_ttl must not be negative")
	}
	if c.MaxFrameSize <= 0 {
		return errors.New("config: max_frame_size must be positive")
	}
	if c.HTTP.Enable && c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required when the API is enabled")
	}
	return nil
}

// ResolvePath returns path when set. Otherwise it returns ./mcp-guard.yaml or
// ~/.mcp-guard/config.yaml, whichever exists first, or "" when neither does.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	localPath := "mcp-guard.yaml"
	if _, err := os.Stat(localPath); err == nil {
		return localPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homePath := filepath.Join(home, dirName, "config.yaml")
	if _, err := os.Stat(homePath); err == nil {
		return homePath
	}
	return ""
}

// defaultPolicyPath returns ~/.mcp-guard/policy.yaml when it exists. An empty
// policy path means the built-in defaults with no rules.
func defaultPolicyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, dirName, "policy.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
