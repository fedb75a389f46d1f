package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the stakingd runtime configuration.
type Config struct {
	ListenAddress string          `toml:"ListenAddress" yaml:"listen"`
	DataDir       string          `toml:"DataDir" yaml:"data_dir"`
	Ledger        LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Auth          AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit     RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Storage       StorageConfig   `toml:"storage" yaml:"storage"`
	Logging       LoggingConfig   `toml:"logging" yaml:"logging"`
	Telemetry     TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Devnet        DevnetConfig    `toml:"devnet" yaml:"devnet"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. Defaults are applied before
// validation.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration carrying every default value. Ledger
// addresses and the auth secret are left for the operator.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stakingd-data"
	}
	if cfg.Storage.LedgerDir == "" {
		cfg.Storage.LedgerDir = filepath.Join(cfg.DataDir, "ledger")
	}
	if cfg.Storage.IdempotencyPath == "" {
		cfg.Storage.IdempotencyPath = filepath.Join(cfg.DataDir, "idempotency.db")
	}
	if cfg.Storage.HistoryDSN == "" {
		cfg.Storage.HistoryDSN = "file:" + filepath.Join(cfg.DataDir, "history.db")
	}
	if cfg.RateLimit.RatePerSecond <= 0 {
		cfg.RateLimit.RatePerSecond = 10
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 30 * time.Second
	}
	if cfg.Logging.Env == "" {
		cfg.Logging.Env = "dev"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 14
	}
	if cfg.Telemetry.Headers == nil {
		cfg.Telemetry.Headers = map[string]string{}
	}
}

func (a *AuthConfig) normalise() error {
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.HMACSecretEnv = strings.TrimSpace(a.HMACSecretEnv)
	a.HMACSecretFile = strings.TrimSpace(a.HMACSecretFile)
	if a.HMACSecret != "" {
		return nil
	}
	switch {
	case a.HMACSecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
		if value == "" {
			return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
		}
		a.HMACSecret = value
	case a.HMACSecretFile != "":
		contents, err := os.ReadFile(a.HMACSecretFile)
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		a.HMACSecret = strings.TrimSpace(string(contents))
	}
	return nil
}

// Write encodes cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
