package rewards

import (
	"errors"

	"github.com/holiman/uint256"
)

// scaleUnit is the fixed-point factor (1e18) applied to the reward-per-unit
// index so that dividing by the staked unit count keeps sub-token precision.
const scaleUnit = uint64(1_000_000_000_000_000_000)

var scale = uint256.NewInt(scaleUnit)

// ErrOverflow is returned when an accumulator or account value would exceed
// 256 bits.
var ErrOverflow = errors.New("rewards: u256 overflow")

// Scale returns a copy of the fixed-point factor applied to the index.
func Scale() *uint256.Int {
	return new(uint256.Int).Set(scale)
}

// ToTokens converts a scaled amount to whole reward-token units. The result is
// always floored.
func ToTokens(scaled *uint256.Int) *uint256.Int {
	if scaled == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(scaled, scale)
}

func mulUint64(a, b uint64) *uint256.Int {
	// Two u64 factors always fit in 128 bits.
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}

func mulChecked(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func addChecked(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
