package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tuturu-tech/nft-staking/native/nftstake"
)

// MinSecretBytes is the shortest accepted JWT HMAC secret.
const MinSecretBytes = 32

// Validate reports the first problem with cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if _, err := cfg.Ledger.EngineConfig(); err != nil {
		return err
	}
	if len(cfg.Auth.HMACSecret) < MinSecretBytes {
		return fmt.Errorf("auth: hmac secret must be at least %d bytes", MinSecretBytes)
	}
	if cfg.RateLimit.RatePerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: rate and burst must be positive")
	}
	if cfg.Devnet.Enabled {
		if _, err := cfg.Devnet.Float(); err != nil {
			return err
		}
		for i, mint := range cfg.Devnet.Mints {
			if !common.IsHexAddress(mint.Owner) {
				return fmt.Errorf("devnet: mints[%d].owner %q is not a hex address", i, mint.Owner)
			}
			if mint.Count <= 0 {
				return fmt.Errorf("devnet: mints[%d].count must be positive", i)
			}
		}
	}
	return nil
}

// EngineConfig parses the ledger section into engine parameters.
func (l LedgerConfig) EngineConfig() (nftstake.Config, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"staking_token", l.StakingToken},
		{"reward_token", l.RewardToken},
		{"custodian", l.Custodian},
		{"admin", l.Admin},
	}
	for _, f := range fields {
		if !common.IsHexAddress(strings.TrimSpace(f.value)) {
			return nftstake.Config{}, fmt.Errorf("ledger: %s %q is not a hex address", f.name, f.value)
		}
	}
	cfg := nftstake.Config{
		StakingToken: common.HexToAddress(strings.TrimSpace(l.StakingToken)),
		RewardToken:  common.HexToAddress(strings.TrimSpace(l.RewardToken)),
		Custodian:    common.HexToAddress(strings.TrimSpace(l.Custodian)),
		Owner:        common.HexToAddress(strings.TrimSpace(l.Admin)),
		RewardRate:   l.RewardRate,
	}
	if err := cfg.Validate(); err != nil {
		return nftstake.Config{}, err
	}
	return cfg, nil
}

// Float parses the devnet reward float as a base-10 integer.
func (d DevnetConfig) Float() (*big.Int, error) {
	raw := strings.TrimSpace(d.RewardFloat)
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("devnet: reward_float %q is not a non-negative integer", d.RewardFloat)
	}
	return amount, nil
}
