package nftstake

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
)

// Stake deposits a single unit owned by caller.
func (e *Engine) Stake(caller common.Address, unitID uint64) error {
	return e.StakeBatch(caller, []uint64{unitID})
}

// StakeBatch deposits every unit in unitIDs. All units share one accumulator
// checkpoint and the batch either lands completely or not at all.
func (e *Engine) StakeBatch(caller common.Address, unitIDs []uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if e.paused {
		return stakeerrors.ErrStakingPaused
	}
	if err := checkBatch(unitIDs); err != nil {
		return err
	}
	for _, id := range unitIDs {
		if err := e.checkDepositable(caller, id); err != nil {
			return err
		}
	}

	index, err := e.sync()
	if err != nil {
		return err
	}
	acct, err := e.reconciled(caller, index)
	if err != nil {
		return err
	}

	pulled := make([]uint64, 0, len(unitIDs))
	for _, id := range unitIDs {
		if err := e.custody.TransferIn(caller, id); err != nil {
			if stuck, rerr := e.pushBack(caller, pulled); rerr != nil {
				// Units we could not hand back stay staked so custody and
				// bookkeeping agree.
				acct.add(stuck...)
				if cerr := e.commit(caller, acct, stuck, nil); cerr != nil {
					rerr = errors.Join(rerr, cerr)
				}
				e.emitStaked(caller, stuck)
				return errors.Join(transferFailed(err), rerr)
			}
			return transferFailed(err)
		}
		pulled = append(pulled, id)
	}

	acct.add(unitIDs...)
	if err := e.commit(caller, acct, unitIDs, nil); err != nil {
		return err
	}
	e.emitStaked(caller, unitIDs)
	e.logger.Debug("nftstake: staked", "account", caller.Hex(), "units", len(unitIDs), "totalStaked", e.totalStaked)
	return nil
}

func (e *Engine) checkDepositable(caller common.Address, id uint64) error {
	if _, staked := e.units[id]; staked {
		return fmt.Errorf("%w: unit %d already staked", stakeerrors.ErrNotOwnerOrNotApproved, id)
	}
	owner, err := e.custody.OwnerOf(id)
	if err != nil {
		return fmt.Errorf("%w: unit %d: %w", stakeerrors.ErrNotOwnerOrNotApproved, id, err)
	}
	if owner != caller {
		return fmt.Errorf("%w: unit %d", stakeerrors.ErrNotOwnerOrNotApproved, id)
	}
	approved, err := e.custody.IsApproved(caller, e.cfg.Custodian, id)
	if err != nil {
		return fmt.Errorf("%w: unit %d: %w", stakeerrors.ErrNotOwnerOrNotApproved, id, err)
	}
	if !approved {
		return fmt.Errorf("%w: unit %d", stakeerrors.ErrNotOwnerOrNotApproved, id)
	}
	return nil
}

// pushBack returns units pulled earlier in a failed batch and reports the
// ones still held by the custodian.
func (e *Engine) pushBack(owner common.Address, ids []uint64) ([]uint64, error) {
	var errs []error
	var stuck []uint64
	for _, id := range ids {
		if err := e.custody.TransferOut(owner, id); err != nil {
			errs = append(errs, fmt.Errorf("return unit %d: %w", id, err))
			stuck = append(stuck, id)
		}
	}
	if len(errs) == 0 {
		return nil, nil
	}
	e.logger.Error("nftstake: compensation failed", "account", owner.Hex(), "units", stuck)
	return stuck, errors.Join(errs...)
}

func (e *Engine) emitStaked(caller common.Address, ids []uint64) {
	for _, id := range ids {
		e.emit(events.Staked{Account: caller, UnitID: id})
	}
}
