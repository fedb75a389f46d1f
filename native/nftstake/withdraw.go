package nftstake

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
)

// Withdraw returns a single unit to the account that deposited it. It works
// regardless of the admission gate.
func (e *Engine) Withdraw(caller common.Address, unitID uint64) error {
	return e.WithdrawBatch(caller, []uint64{unitID})
}

// WithdrawBatch returns every unit in unitIDs to caller. Each unit must have
// been deposited by caller.
func (e *Engine) WithdrawBatch(caller common.Address, unitIDs []uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := checkBatch(unitIDs); err != nil {
		return err
	}
	for _, id := range unitIDs {
		if !e.units.ownedBy(id, caller) {
			return fmt.Errorf("%w: unit %d", stakeerrors.ErrNotCallersToken, id)
		}
	}
	return e.withdraw(caller, unitIDs)
}

// WithdrawAll returns every unit caller has staked in one reconciliation
// pass. Calling it with nothing staked only reconciles rewards.
func (e *Engine) WithdrawAll(caller common.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	return e.withdraw(caller, e.unitsOf(caller))
}

func (e *Engine) withdraw(caller common.Address, unitIDs []uint64) error {
	index, err := e.sync()
	if err != nil {
		return err
	}
	acct, err := e.reconciled(caller, index)
	if err != nil {
		return err
	}

	returned := make([]uint64, 0, len(unitIDs))
	for _, id := range unitIDs {
		if err := e.custody.TransferOut(caller, id); err != nil {
			if gone, rerr := e.pullBack(caller, returned); rerr != nil {
				// Units that already left custody can no longer be counted
				// as staked.
				acct.remove(gone...)
				if cerr := e.commit(caller, acct, nil, gone); cerr != nil {
					rerr = errors.Join(rerr, cerr)
				}
				e.emitWithdrawn(caller, gone)
				return errors.Join(transferFailed(err), rerr)
			}
			return transferFailed(err)
		}
		returned = append(returned, id)
	}

	acct.remove(unitIDs...)
	if err := e.commit(caller, acct, nil, unitIDs); err != nil {
		return err
	}
	e.emitWithdrawn(caller, unitIDs)
	e.logger.Debug("nftstake: withdrawn", "account", caller.Hex(), "units", len(unitIDs), "totalStaked", e.totalStaked)
	return nil
}

// pullBack re-custodies units returned earlier in a failed batch and reports
// the ones it could not recover.
func (e *Engine) pullBack(owner common.Address, ids []uint64) ([]uint64, error) {
	var errs []error
	var gone []uint64
	for _, id := range ids {
		if err := e.custody.TransferIn(owner, id); err != nil {
			errs = append(errs, fmt.Errorf("recover unit %d: %w", id, err))
			gone = append(gone, id)
		}
	}
	if len(errs) == 0 {
		return nil, nil
	}
	e.logger.Error("nftstake: compensation failed", "account", owner.Hex(), "units", gone)
	return gone, errors.Join(errs...)
}

func (e *Engine) unitsOf(addr common.Address) []uint64 {
	acct, ok := e.accounts[addr]
	if !ok {
		return nil
	}
	return append([]uint64(nil), acct.units...)
}

func (e *Engine) emitWithdrawn(caller common.Address, ids []uint64) {
	for _, id := range ids {
		e.emit(events.Withdrawn{Account: caller, UnitID: id})
	}
}
