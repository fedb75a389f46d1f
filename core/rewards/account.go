package rewards

import (
	"github.com/holiman/uint256"
)

// Checkpoint is the per-account reward snapshot: the index value observed at
// the last reconciliation and the scaled reward earned but not yet paid.
//
// Rewards are held at index scale; only whole token units leave on payout and
// the sub-unit remainder stays with the account for the next claim.
type Checkpoint struct {
	Paid    *uint256.Int
	Rewards *uint256.Int
}

// NewCheckpoint returns a zeroed checkpoint.
func NewCheckpoint() Checkpoint {
	return Checkpoint{Paid: new(uint256.Int), Rewards: new(uint256.Int)}
}

// Clone returns a deep copy of the checkpoint.
func (c Checkpoint) Clone() Checkpoint {
	return Checkpoint{Paid: cloneOrZero(c.Paid), Rewards: cloneOrZero(c.Rewards)}
}

// Pending returns the scaled rewards the account would hold after
// reconciling balance units against index. It does not mutate c.
func (c Checkpoint) Pending(balance uint64, index *uint256.Int) (*uint256.Int, error) {
	delta, err := c.delta(balance, index)
	if err != nil {
		return nil, err
	}
	return addChecked(cloneOrZero(c.Rewards), delta)
}

// Reconcile credits the reward accrued by balance units since the last
// checkpoint and moves the checkpoint to index. balance must be the unit count
// held before the current operation moves any collateral. It returns the
// scaled amount credited.
func (c *Checkpoint) Reconcile(balance uint64, index *uint256.Int) (*uint256.Int, error) {
	delta, err := c.delta(balance, index)
	if err != nil {
		return nil, err
	}
	total, err := addChecked(cloneOrZero(c.Rewards), delta)
	if err != nil {
		return nil, err
	}
	c.Rewards = total
	if index != nil && (c.Paid == nil || index.Gt(c.Paid)) {
		c.Paid = new(uint256.Int).Set(index)
	} else if c.Paid == nil {
		c.Paid = new(uint256.Int)
	}
	return delta, nil
}

// TakePayout removes the whole-token portion of the rewards and returns it.
// The sub-token remainder stays in the checkpoint.
func (c *Checkpoint) TakePayout() *uint256.Int {
	rewards := cloneOrZero(c.Rewards)
	payout, dust := new(uint256.Int).DivMod(rewards, scale, new(uint256.Int))
	c.Rewards = dust
	return payout
}

// Tokens returns the whole-token portion of the stored rewards.
func (c Checkpoint) Tokens() *uint256.Int {
	return ToTokens(c.Rewards)
}

func (c Checkpoint) delta(balance uint64, index *uint256.Int) (*uint256.Int, error) {
	if balance == 0 || index == nil {
		return new(uint256.Int), nil
	}
	paid := cloneOrZero(c.Paid)
	if !index.Gt(paid) {
		return new(uint256.Int), nil
	}
	diff := new(uint256.Int).Sub(index, paid)
	return mulChecked(diff, uint256.NewInt(balance))
}
