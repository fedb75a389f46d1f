package errors

import stderrors "errors"

var (
	ErrNotOwnerOrNotApproved = stderrors.New("stake: caller is not owner nor approved")
	ErrNotCallersToken       = stderrors.New("stake: token was not staked by caller")
	ErrStakingPaused         = stderrors.New("stake: this action cannot be performed while the contract is paused")
	ErrNotOwner              = stderrors.New("stake: caller is not the owner")
	ErrTransferFailed        = stderrors.New("stake: transfer failed")

	ErrReentrantCall          = stderrors.New("stake: reentrant call")
	ErrEmptyBatch             = stderrors.New("stake: no units supplied")
	ErrDuplicateUnit          = stderrors.New("stake: duplicate unit in batch")
	ErrRecoveryExceedsSurplus = stderrors.New("stake: recovery exceeds reward surplus")
	ErrAccumulatorOverflow    = stderrors.New("stake: reward accumulator overflow")
)
