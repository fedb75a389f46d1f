package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tuturu-tech/nft-staking/core/types"
)

const (
	// TypeStaked is emitted once per unit taken into custody.
	TypeStaked = "stake.staked"
	// TypeWithdrawn is emitted once per unit returned to its depositor.
	TypeWithdrawn = "stake.withdrawn"
	// TypeRewardPaid is emitted when a non-zero reward claim is transferred.
	TypeRewardPaid = "stake.rewardPaid"
	// TypePaused is emitted whenever the admin sets the admission gate.
	TypePaused = "stake.paused"
	// TypeTokenRecovered is emitted when the admin sweeps a fungible balance.
	TypeTokenRecovered = "stake.tokenRecovered"
)

// Staked records a unit deposited by an account.
type Staked struct {
	Account common.Address
	UnitID  uint64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{Type: TypeStaked, Attributes: map[string]string{
		"account": e.Account.Hex(),
		"unitId":  strconv.FormatUint(e.UnitID, 10),
	}}
}

// Withdrawn records a unit returned to its depositor.
type Withdrawn struct {
	Account common.Address
	UnitID  uint64
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e Withdrawn) Event() *types.Event {
	return &types.Event{Type: TypeWithdrawn, Attributes: map[string]string{
		"account": e.Account.Hex(),
		"unitId":  strconv.FormatUint(e.UnitID, 10),
	}}
}

// RewardPaid captures a reward payout to an account.
type RewardPaid struct {
	Account common.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeRewardPaid, Attributes: map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
	}}
}

// Paused captures an admission gate change.
type Paused struct {
	Paused bool
	Admin  common.Address
}

// EventType satisfies the Event interface.
func (Paused) EventType() string { return TypePaused }

// Event converts the structured payload into a broadcastable event.
func (e Paused) Event() *types.Event {
	attrs := map[string]string{
		"paused": strconv.FormatBool(e.Paused),
	}
	if !zeroAddress(e.Admin) {
		attrs["admin"] = e.Admin.Hex()
	}
	return &types.Event{Type: TypePaused, Attributes: attrs}
}

// TokenRecovered captures an admin sweep of a fungible balance.
type TokenRecovered struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (TokenRecovered) EventType() string { return TypeTokenRecovered }

// Event converts the structured payload into a broadcastable event.
func (e TokenRecovered) Event() *types.Event {
	return &types.Event{Type: TypeTokenRecovered, Attributes: map[string]string{
		"token":  e.Token.Hex(),
		"to":     e.To.Hex(),
		"amount": formatAmount(e.Amount),
	}}
}
