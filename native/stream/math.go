package stream

import (
	"math"
	"math/big"
)

var oneHundred = big.NewInt(100)

// checkedAddWatchTime sums watch-time units without wrapping.
func checkedAddWatchTime(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

// checkedDeadline computes start + delta for non-negative deltas without
// wrapping past the int64 range.
func checkedDeadline(start, delta int64) (int64, error) {
	if delta < 0 {
		return 0, ErrMathOverflow
	}
	if start > math.MaxInt64-delta {
		return 0, ErrMathOverflow
	}
	return start + delta, nil
}

// splitPot divides the donation pot into the creator cut and the viewer pool.
// The creator cut is floor(total * share / 100); the viewer pool is the exact
// remainder, so the two always sum to the pot.
func splitPot(total *big.Int, creatorShare uint8) (creatorAmount, viewersAmount *big.Int) {
	pot := cloneBigInt(total)
	creatorAmount = new(big.Int).Mul(pot, big.NewInt(int64(creatorShare)))
	creatorAmount.Div(creatorAmount, oneHundred)
	viewersAmount = new(big.Int).Sub(pot, creatorAmount)
	return creatorAmount, viewersAmount
}

// proportionalShare computes floor(pool * units / totalUnits). The floor
// truncation means per-viewer shares can sum to slightly less than the pool;
// the difference stays in escrow permanently.
func proportionalShare(pool *big.Int, units, totalUnits uint64) *big.Int {
	if totalUnits == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(cloneBigInt(pool), new(big.Int).SetUint64(units))
	return share.Div(share, new(big.Int).SetUint64(totalUnits))
}
