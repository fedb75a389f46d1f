package tokens

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Holding records one token and the account it belongs to.
type Holding struct {
	ID      uint64
	Account common.Address
}

// OperatorGrant records an approval-for-all.
type OperatorGrant struct {
	Owner    common.Address
	Operator common.Address
}

// CollectionState is a serialisable copy of a Collection.
type CollectionState struct {
	NextID    uint64
	Owners    []Holding
	Approvals []Holding
	Operators []OperatorGrant
}

// Balance is one non-zero fungible balance.
type Balance struct {
	Token  common.Address
	Holder common.Address
	Amount []byte
}

// LedgerState is a serialisable copy of a Ledger.
type LedgerState struct {
	Balances []Balance
}

// State returns a deterministic copy of the collection.
func (c *Collection) State() CollectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state := CollectionState{NextID: c.nextID}
	for id, owner := range c.owners {
		state.Owners = append(state.Owners, Holding{ID: id, Account: owner})
	}
	for id, spender := range c.approvals {
		state.Approvals = append(state.Approvals, Holding{ID: id, Account: spender})
	}
	for owner, ops := range c.operators {
		for operator, ok := range ops {
			if ok {
				state.Operators = append(state.Operators, OperatorGrant{Owner: owner, Operator: operator})
			}
		}
	}
	sortHoldings(state.Owners)
	sortHoldings(state.Approvals)
	sort.Slice(state.Operators, func(i, j int) bool {
		if cmp := bytes.Compare(state.Operators[i].Owner[:], state.Operators[j].Owner[:]); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(state.Operators[i].Operator[:], state.Operators[j].Operator[:]) < 0
	})
	return state
}

// LoadState replaces the collection contents with state.
func (c *Collection) LoadState(state CollectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID = state.NextID
	if c.nextID == 0 {
		c.nextID = 1
	}
	c.owners = make(map[uint64]common.Address, len(state.Owners))
	for _, h := range state.Owners {
		c.owners[h.ID] = h.Account
		if h.ID >= c.nextID {
			c.nextID = h.ID + 1
		}
	}
	c.approvals = make(map[uint64]common.Address, len(state.Approvals))
	for _, h := range state.Approvals {
		c.approvals[h.ID] = h.Account
	}
	c.operators = make(map[common.Address]map[common.Address]bool)
	for _, g := range state.Operators {
		ops, ok := c.operators[g.Owner]
		if !ok {
			ops = make(map[common.Address]bool)
			c.operators[g.Owner] = ops
		}
		ops[g.Operator] = true
	}
}

// State returns a deterministic copy of every non-zero balance.
func (l *Ledger) State() LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var state LedgerState
	for token, holders := range l.balances {
		for holder, bal := range holders {
			if bal.Sign() == 0 {
				continue
			}
			state.Balances = append(state.Balances, Balance{Token: token, Holder: holder, Amount: bal.Bytes()})
		}
	}
	sort.Slice(state.Balances, func(i, j int) bool {
		a, b := state.Balances[i], state.Balances[j]
		if cmp := bytes.Compare(a.Token[:], b.Token[:]); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(a.Holder[:], b.Holder[:]) < 0
	})
	return state
}

// LoadState replaces every balance with those in state.
func (l *Ledger) LoadState(state LedgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[common.Address]map[common.Address]*big.Int)
	for _, b := range state.Balances {
		bal := l.balance(b.Token, b.Holder)
		bal.SetBytes(b.Amount)
	}
}

func sortHoldings(h []Holding) {
	sort.Slice(h, func(i, j int) bool { return h[i].ID < h[j].ID })
}
