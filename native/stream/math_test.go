package stream

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestCheckedAddWatchTime(t *testing.T) {
	sum, err := checkedAddWatchTime(40, 2)
	if err != nil || sum != 42 {
		t.Fatalf("expected 42, got %d (%v)", sum, err)
	}
	if _, err := checkedAddWatchTime(math.MaxUint64, 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if sum, err := checkedAddWatchTime(math.MaxUint64, 0); err != nil || sum != math.MaxUint64 {
		t.Fatalf("expected max to survive, got %d (%v)", sum, err)
	}
}

func TestCheckedDeadline(t *testing.T) {
	if _, err := checkedDeadline(10, -1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected rejection of negative delta, got %v", err)
	}
	if _, err := checkedDeadline(math.MaxInt64, 1); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	deadline, err := checkedDeadline(100, 50)
	if err != nil || deadline != 150 {
		t.Fatalf("expected 150, got %d (%v)", deadline, err)
	}
}

func TestSplitPot(t *testing.T) {
	cases := []struct {
		total   int64
		share   uint8
		creator int64
		viewers int64
	}{
		{1_000, 20, 200, 800},
		{1_001, 33, 330, 671},
		{100, 0, 0, 100},
		{100, 100, 100, 0},
		{0, 50, 0, 0},
		{1, 99, 0, 1},
	}
	for _, tc := range cases {
		creator, viewers := splitPot(big.NewInt(tc.total), tc.share)
		if creator.Cmp(big.NewInt(tc.creator)) != 0 {
			t.Fatalf("splitPot(%d, %d): creator %s, want %d", tc.total, tc.share, creator, tc.creator)
		}
		if viewers.Cmp(big.NewInt(tc.viewers)) != 0 {
			t.Fatalf("splitPot(%d, %d): viewers %s, want %d", tc.total, tc.share, viewers, tc.viewers)
		}
		if sum := new(big.Int).Add(creator, viewers); sum.Cmp(big.NewInt(tc.total)) != 0 {
			t.Fatalf("splitPot(%d, %d): parts sum to %s", tc.total, tc.share, sum)
		}
	}
}

func TestProportionalShare(t *testing.T) {
	if got := proportionalShare(big.NewInt(800), 30, 100); got.Cmp(big.NewInt(240)) != 0 {
		t.Fatalf("expected 240, got %s", got)
	}
	if got := proportionalShare(big.NewInt(100), 1, 3); got.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("expected floor 33, got %s", got)
	}
	if got := proportionalShare(big.NewInt(100), 0, 3); got.Sign() != 0 {
		t.Fatalf("expected zero for zero units, got %s", got)
	}
	if got := proportionalShare(big.NewInt(100), 5, 0); got.Sign() != 0 {
		t.Fatalf("expected zero for empty pool division, got %s", got)
	}
	// Large units must not overflow: the math runs on big integers.
	huge := proportionalShare(big.NewInt(1_000_000), math.MaxUint64, math.MaxUint64)
	if huge.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected full pool, got %s", huge)
	}
}
