package nftstake

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
)

// ClaimRewards reconciles caller and pays out every whole reward-token unit
// owed. Sub-unit dust stays with the account. Claiming with nothing owed
// succeeds without a transfer or event. The returned amount is what was paid.
func (e *Engine) ClaimRewards(caller common.Address) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	index, err := e.sync()
	if err != nil {
		return nil, err
	}
	acct, err := e.reconciled(caller, index)
	if err != nil {
		return nil, err
	}

	payout := acct.checkpoint.TakePayout()
	if payout.IsZero() {
		if err := e.commit(caller, acct, nil, nil); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}

	amount := payout.ToBig()
	if err := e.vault.Transfer(e.cfg.RewardToken, caller, amount); err != nil {
		return nil, transferFailed(err)
	}

	paid, overflow := new(uint256.Int).AddOverflow(e.paid, payout)
	if overflow {
		return nil, fmt.Errorf("%w: paid total", stakeerrors.ErrAccumulatorOverflow)
	}
	e.paid = paid
	if err := e.commit(caller, acct, nil, nil); err != nil {
		return nil, err
	}
	e.emit(events.RewardPaid{Account: caller, Amount: new(big.Int).Set(amount)})
	e.logger.Debug("nftstake: reward paid", "account", caller.Hex(), "amount", amount.String())
	return amount, nil
}
