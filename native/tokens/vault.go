package tokens

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("tokens: transfer amount exceeds balance")
	ErrNegativeAmount      = errors.New("tokens: negative amount")
)

// Ledger is an in-memory multi-token fungible balance sheet.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

// NewLedger returns an empty balance sheet.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(token, holder)
	bal.Add(bal, amount)
	return nil
}

// BalanceOf returns a copy of holder's token balance.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[token][holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Transfer moves amount of token between holders.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.balance(token, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, src, amount)
	}
	dst := l.balance(token, to)
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

func (l *Ledger) balance(token, holder common.Address) *big.Int {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = big.NewInt(0)
		holders[holder] = bal
	}
	return bal
}

// Vault adapts a Ledger to the ledger's fungible capability, spending the
// balances held by Holder.
type Vault struct {
	Ledger *Ledger
	Holder common.Address
}

// BalanceOf implements the fungible capability.
func (v Vault) BalanceOf(token, holder common.Address) (*big.Int, error) {
	return v.Ledger.BalanceOf(token, holder), nil
}

// Transfer sends amount of token from the holder to to.
func (v Vault) Transfer(token, to common.Address, amount *big.Int) error {
	return v.Ledger.Transfer(token, v.Holder, to, amount)
}
