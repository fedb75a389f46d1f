package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "30s" in either
// TOML or YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// LedgerConfig holds the deployment parameters of the staking ledger.
type LedgerConfig struct {
	StakingToken string `toml:"StakingToken" yaml:"staking_token"`
	RewardToken  string `toml:"RewardToken" yaml:"reward_token"`
	Custodian    string `toml:"Custodian" yaml:"custodian"`
	Admin        string `toml:"Admin" yaml:"admin"`
	RewardRate   uint64 `toml:"RewardRate" yaml:"reward_rate"`
}

// AuthConfig controls bearer JWT verification for callers.
type AuthConfig struct {
	HMACSecret     string   `toml:"HMACSecret" yaml:"hmac_secret"`
	HMACSecretFile string   `toml:"HMACSecretFile" yaml:"hmac_secret_file"`
	HMACSecretEnv  string   `toml:"HMACSecretEnv" yaml:"hmac_secret_env"`
	Issuer         string   `toml:"Issuer" yaml:"issuer"`
	Audience       string   `toml:"Audience" yaml:"audience"`
	ClockSkew      Duration `toml:"ClockSkew" yaml:"clock_skew"`
}

// RateLimitConfig bounds request rates per caller.
type RateLimitConfig struct {
	RatePerSecond float64 `toml:"RatePerSecond" yaml:"rate_per_second"`
	Burst         int     `toml:"Burst" yaml:"burst"`
}

// StorageConfig locates the on-disk stores.
type StorageConfig struct {
	LedgerDir       string `toml:"LedgerDir" yaml:"ledger_dir"`
	IdempotencyPath string `toml:"IdempotencyPath" yaml:"idempotency_path"`
	HistoryDSN      string `toml:"HistoryDSN" yaml:"history_dsn"`
	InMemory        bool   `toml:"InMemory" yaml:"in_memory"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Env        string `toml:"Env" yaml:"env"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool              `toml:"Insecure" yaml:"insecure"`
	Headers  map[string]string `toml:"Headers" yaml:"headers"`
	Metrics  bool              `toml:"Metrics" yaml:"metrics"`
	Traces   bool              `toml:"Traces" yaml:"traces"`
	// SampleRatio keeps this fraction of ledger traces. Zero keeps all.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// DevnetMint mints Count fresh units to Owner at start-up.
type DevnetMint struct {
	Owner string `toml:"Owner" yaml:"owner"`
	Count int    `toml:"Count" yaml:"count"`
}

// DevnetConfig seeds the in-process collection and reward vault so a
// single binary can serve a working ledger.
type DevnetConfig struct {
	Enabled     bool         `toml:"Enabled" yaml:"enabled"`
	RewardFloat string       `toml:"RewardFloat" yaml:"reward_float"`
	Mints       []DevnetMint `toml:"Mints" yaml:"mints"`
}
