package nftstake

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
)

var errInvalidAmount = errors.New("nftstake: recovery amount must not be negative")

// RecoverToken sweeps amount of token from the custodian to the admin. The
// reward token can only be swept down to the rewards still owed to stakers.
func (e *Engine) RecoverToken(caller, token common.Address, amount *big.Int) error {
	if amount == nil {
		return errInvalidAmount
	}
	_, err := e.recoverToken(caller, token, amount)
	return err
}

// RecoverTokenAll sweeps every sweepable unit of token to the admin and
// returns the amount moved.
func (e *Engine) RecoverTokenAll(caller, token common.Address) (*big.Int, error) {
	return e.recoverToken(caller, token, nil)
}

func (e *Engine) recoverToken(caller, token common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if !e.isAdmin(caller) {
		return nil, stakeerrors.ErrNotOwner
	}
	if amount != nil && amount.Sign() < 0 {
		return nil, errInvalidAmount
	}

	sweepable, err := e.vault.BalanceOf(token, e.cfg.Custodian)
	if err != nil {
		return nil, transferFailed(err)
	}
	guarded := token == e.cfg.RewardToken
	if guarded {
		if _, err := e.sync(); err != nil {
			return nil, err
		}
		sweepable = surplus(sweepable, e.outstanding(e.acc.Emitted()))
	}

	if amount == nil {
		amount = sweepable
	} else if guarded && amount.Cmp(sweepable) > 0 {
		return nil, fmt.Errorf("%w: requested %s, surplus %s", stakeerrors.ErrRecoveryExceedsSurplus, amount, sweepable)
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	moved := new(big.Int).Set(amount)
	if err := e.vault.Transfer(token, caller, moved); err != nil {
		return nil, transferFailed(err)
	}
	if err := e.persist(); err != nil {
		return nil, err
	}
	e.emit(events.TokenRecovered{Token: token, To: caller, Amount: new(big.Int).Set(moved)})
	e.logger.Info("nftstake: token recovered", "token", token.Hex(), "to", caller.Hex(), "amount", moved.String())
	return moved, nil
}

// outstanding is the reward liability: everything allocated to the index
// minus what has already been paid out.
func (e *Engine) outstanding(emitted *uint256.Int) *uint256.Int {
	if emitted.Lt(e.paid) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(emitted, e.paid)
}

func surplus(balance *big.Int, liability *uint256.Int) *big.Int {
	if balance == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Sub(balance, liability.ToBig())
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
