package nftstake

import (
	"github.com/ethereum/go-ethereum/common"

	stakeerrors "github.com/tuturu-tech/nft-staking/core/errors"
	"github.com/tuturu-tech/nft-staking/core/events"
)

// SetPaused opens or closes the admission gate. Only new stakes are affected.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !e.isAdmin(caller) {
		return stakeerrors.ErrNotOwner
	}
	prev := e.paused
	e.paused = paused
	if err := e.persist(); err != nil {
		e.paused = prev
		return err
	}
	e.emit(events.Paused{Paused: paused, Admin: caller})
	e.logger.Info("nftstake: admission gate updated", "paused", paused, "admin", caller.Hex())
	return nil
}

// Pause closes the admission gate.
func (e *Engine) Pause(caller common.Address) error { return e.SetPaused(caller, true) }

// Unpause reopens the admission gate.
func (e *Engine) Unpause(caller common.Address) error { return e.SetPaused(caller, false) }
