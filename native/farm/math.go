package farm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Scale is the fixed-point factor applied to reward-per-token values.
var Scale = mustBigInt("1000000000000000000") // 1e18

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func normalizeBig(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}

// mulDiv returns a*b/c truncated toward zero. A zero divisor yields zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, c)
}

// accrued returns balance*(current-paid)/Scale, the reward a position earned
// between two accumulator readings. A non-positive delta earns nothing.
func accrued(balance, current, paid *big.Int) *big.Int {
	if balance == nil || balance.Sign() == 0 || current == nil {
		return big.NewInt(0)
	}
	delta := new(big.Int).Sub(current, normalizeBig(paid))
	if delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	return mulDiv(balance, delta, Scale)
}

// validAmount reports whether value is a positive amount that fits the
// unsigned 256-bit domain of the asset ledgers.
func validAmount(value *big.Int) bool {
	if value == nil || value.Sign() <= 0 {
		return false
	}
	_, overflow := uint256.FromBig(value)
	return !overflow
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
