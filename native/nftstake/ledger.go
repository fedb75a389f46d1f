package nftstake

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tuturu-tech/nft-staking/core/rewards"
)

// account is the per-depositor record: the ordered set of staked units and
// the reward checkpoint reconciled on every interaction.
type account struct {
	units      []uint64
	checkpoint rewards.Checkpoint
}

func newAccount() *account {
	return &account{checkpoint: rewards.NewCheckpoint()}
}

func (a *account) clone() *account {
	if a == nil {
		return newAccount()
	}
	return &account{
		units:      append([]uint64(nil), a.units...),
		checkpoint: a.checkpoint.Clone(),
	}
}

func (a *account) balance() uint64 {
	if a == nil {
		return 0
	}
	return uint64(len(a.units))
}

func (a *account) add(ids ...uint64) {
	for _, id := range ids {
		pos := sort.Search(len(a.units), func(i int) bool { return a.units[i] >= id })
		if pos < len(a.units) && a.units[pos] == id {
			continue
		}
		a.units = append(a.units, 0)
		copy(a.units[pos+1:], a.units[pos:])
		a.units[pos] = id
	}
}

func (a *account) remove(ids ...uint64) {
	for _, id := range ids {
		pos := sort.Search(len(a.units), func(i int) bool { return a.units[i] >= id })
		if pos < len(a.units) && a.units[pos] == id {
			a.units = append(a.units[:pos], a.units[pos+1:]...)
		}
	}
}

// empty reports whether the record carries no information worth keeping.
func (a *account) empty() bool {
	if a == nil {
		return true
	}
	return len(a.units) == 0 && a.checkpoint.Rewards.IsZero()
}

// unitSet mirrors UnitOwnership: which account deposited each staked unit.
type unitSet map[uint64]common.Address

func (s unitSet) ownedBy(id uint64, owner common.Address) bool {
	holder, ok := s[id]
	return ok && holder == owner
}
