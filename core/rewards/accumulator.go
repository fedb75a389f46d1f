package rewards

import (
	"github.com/holiman/uint256"
)

// AccumulatorState is the persisted form of an Accumulator.
type AccumulatorState struct {
	Rate       uint64
	Index      *uint256.Int
	Remainder  *uint256.Int
	LastUpdate uint64
	Emitted    *uint256.Int
}

// Accumulator tracks the global reward-per-staked-unit index and the unix
// timestamp it was last synchronised at. It performs no I/O.
//
// Every sync distributes elapsed*rate reward tokens across the units staked
// during the elapsed interval. The numerator left over by the floored
// division is carried into the next sync so the index never over-promises
// and no dust is silently discarded.
type Accumulator struct {
	rate       uint64
	index      *uint256.Int
	remainder  *uint256.Int
	lastUpdate uint64
	emitted    *uint256.Int
}

// NewAccumulator constructs an accumulator paying rate reward-token units per
// second, starting the accrual clock at start.
func NewAccumulator(rate, start uint64) *Accumulator {
	return &Accumulator{
		rate:       rate,
		index:      new(uint256.Int),
		remainder:  new(uint256.Int),
		lastUpdate: start,
		emitted:    new(uint256.Int),
	}
}

// RestoreAccumulator rebuilds an accumulator from its persisted state.
func RestoreAccumulator(state AccumulatorState) *Accumulator {
	return &Accumulator{
		rate:       state.Rate,
		index:      cloneOrZero(state.Index),
		remainder:  cloneOrZero(state.Remainder),
		lastUpdate: state.LastUpdate,
		emitted:    cloneOrZero(state.Emitted),
	}
}

// State returns a deep copy of the accumulator for persistence.
func (a *Accumulator) State() AccumulatorState {
	return AccumulatorState{
		Rate:       a.rate,
		Index:      cloneOrZero(a.index),
		Remainder:  cloneOrZero(a.remainder),
		LastUpdate: a.lastUpdate,
		Emitted:    cloneOrZero(a.emitted),
	}
}

// Rate returns the reward-token units distributed per second.
func (a *Accumulator) Rate() uint64 { return a.rate }

// LastUpdate returns the timestamp of the most recent sync.
func (a *Accumulator) LastUpdate() uint64 { return a.lastUpdate }

// Index returns a copy of the stored reward-per-unit index.
func (a *Accumulator) Index() *uint256.Int { return cloneOrZero(a.index) }

// Emitted returns the total reward-token units allocated to stakers so far.
func (a *Accumulator) Emitted() *uint256.Int { return cloneOrZero(a.emitted) }

// Sync advances the index to now given the number of units staked throughout
// the elapsed interval. It must run before totalStaked changes. When nothing
// is staked the index holds still while the timestamp moves forward, so no
// back-dated reward reaches the next staker. Timestamps earlier than the
// last sync are ignored.
func (a *Accumulator) Sync(now, totalStaked uint64) (*uint256.Int, error) {
	next, err := a.advance(now, totalStaked)
	if err != nil {
		return nil, err
	}
	if now > a.lastUpdate {
		a.index = next.index
		a.remainder = next.remainder
		a.emitted = next.emitted
		a.lastUpdate = now
	}
	return cloneOrZero(a.index), nil
}

// Preview returns the index a Sync at now would produce without mutating
// the accumulator.
func (a *Accumulator) Preview(now, totalStaked uint64) (*uint256.Int, error) {
	next, err := a.advance(now, totalStaked)
	if err != nil {
		return nil, err
	}
	return next.index, nil
}

// PreviewEmitted returns the emitted total a Sync at now would produce.
func (a *Accumulator) PreviewEmitted(now, totalStaked uint64) (*uint256.Int, error) {
	next, err := a.advance(now, totalStaked)
	if err != nil {
		return nil, err
	}
	return next.emitted, nil
}

type advanced struct {
	index     *uint256.Int
	remainder *uint256.Int
	emitted   *uint256.Int
}

func (a *Accumulator) advance(now, totalStaked uint64) (advanced, error) {
	out := advanced{
		index:     cloneOrZero(a.index),
		remainder: cloneOrZero(a.remainder),
		emitted:   cloneOrZero(a.emitted),
	}
	if now <= a.lastUpdate || totalStaked == 0 || a.rate == 0 {
		return out, nil
	}

	reward := mulUint64(now-a.lastUpdate, a.rate)
	numerator, err := mulChecked(reward, scale)
	if err != nil {
		return out, err
	}
	if numerator, err = addChecked(numerator, out.remainder); err != nil {
		return out, err
	}
	quotient, remainder := new(uint256.Int).DivMod(numerator, uint256.NewInt(totalStaked), new(uint256.Int))

	index, err := addChecked(out.index, quotient)
	if err != nil {
		return out, err
	}
	emitted, err := addChecked(out.emitted, reward)
	if err != nil {
		return out, err
	}
	out.index = index
	out.remainder = remainder
	out.emitted = emitted
	return out, nil
}
