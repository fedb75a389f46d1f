package nftstake

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tuturu-tech/nft-staking/core/rewards"
)

// TotalSupply returns the number of units currently staked.
func (e *Engine) TotalSupply() uint64 { return e.totalStaked }

// BalanceOf returns the number of units addr has staked.
func (e *Engine) BalanceOf(addr common.Address) uint64 {
	return e.accounts[addr].balance()
}

// GetStakedUnits returns addr's staked unit IDs in ascending order. Reward
// totals are not refreshed.
func (e *Engine) GetStakedUnits(addr common.Address) []uint64 {
	units := e.unitsOf(addr)
	if units == nil {
		return []uint64{}
	}
	return units
}

// StakerOf reports which account deposited unitID.
func (e *Engine) StakerOf(unitID uint64) (common.Address, bool) {
	owner, ok := e.units[unitID]
	return owner, ok
}

// Earned returns the whole reward-token units addr could claim right now.
// It matches what a claim at the same instant would pay.
func (e *Engine) Earned(addr common.Address) (*big.Int, error) {
	scaled, err := e.pending(addr)
	if err != nil {
		return nil, err
	}
	return rewards.ToTokens(scaled).ToBig(), nil
}

func (e *Engine) pending(addr common.Address) (*uint256.Int, error) {
	index, err := e.acc.Preview(e.now(), e.totalStaked)
	if err != nil {
		return nil, err
	}
	acct := e.accounts[addr]
	if acct == nil {
		return new(uint256.Int), nil
	}
	return acct.checkpoint.Pending(acct.balance(), index)
}

// RewardsToken returns the address of the token paid to stakers.
func (e *Engine) RewardsToken() common.Address { return e.cfg.RewardToken }

// StakingToken returns the address of the accepted collection.
func (e *Engine) StakingToken() common.Address { return e.cfg.StakingToken }

// Owner returns the configured admin account.
func (e *Engine) Owner() common.Address { return e.cfg.Owner }

// Paused reports whether new stakes are rejected.
func (e *Engine) Paused() bool { return e.paused }

// RewardRate returns the reward-token units distributed per second.
func (e *Engine) RewardRate() uint64 { return e.acc.Rate() }

// LastUpdateTime returns the timestamp of the last accumulator sync.
func (e *Engine) LastUpdateTime() uint64 { return e.acc.LastUpdate() }

// RewardPerToken returns the scaled index as of now without syncing.
func (e *Engine) RewardPerToken() (*big.Int, error) {
	index, err := e.acc.Preview(e.now(), e.totalStaked)
	if err != nil {
		return nil, err
	}
	return index.ToBig(), nil
}

// OutstandingRewards returns the reward-token units allocated to stakers but
// not yet paid. The custodian's reward balance should never fall below it.
func (e *Engine) OutstandingRewards() (*big.Int, error) {
	emitted, err := e.acc.PreviewEmitted(e.now(), e.totalStaked)
	if err != nil {
		return nil, err
	}
	return e.outstanding(emitted).ToBig(), nil
}

// Summary collects the ledger-wide views.
func (e *Engine) Summary() (Summary, error) {
	index, err := e.RewardPerToken()
	if err != nil {
		return Summary{}, err
	}
	outstanding, err := e.OutstandingRewards()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		StakingToken:   e.cfg.StakingToken,
		RewardToken:    e.cfg.RewardToken,
		Owner:          e.cfg.Owner,
		Custodian:      e.cfg.Custodian,
		TotalSupply:    e.totalStaked,
		RewardRate:     e.acc.Rate(),
		Paused:         e.paused,
		LastUpdateTime: e.acc.LastUpdate(),
		RewardPerToken: index,
		Outstanding:    outstanding,
		Paid:           e.paid.ToBig(),
	}, nil
}

// Position collects the per-account views for addr.
func (e *Engine) Position(addr common.Address) (Position, error) {
	earned, err := e.Earned(addr)
	if err != nil {
		return Position{}, err
	}
	return Position{
		Account: addr,
		Balance: e.BalanceOf(addr),
		Units:   e.GetStakedUnits(addr),
		Earned:  earned,
	}, nil
}
