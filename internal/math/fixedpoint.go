package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// PriceConfig scales oracle prices (0.00000001 of the quote unit).
	PriceConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000}
	// AmountConfig scales settlement-asset amounts (micro-units).
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
)

// PerfScale is the integer scale for relative performance. High enough that
// two assets landing on the exact same scaled performance is a statistical
// non-event rather than a realistic tie.
const PerfScale int64 = 1_000_000_000_000

// BpsDenom is the basis-point denominator used by every split ratio.
const BpsDenom int64 = 10_000

// int128Pool holds big.Ints for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.QuoRem(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		remainder.Abs(remainder)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncate toward zero (default for payouts)
	RoundHalfEven                 // Banker's rounding
)

// RelativePerformance computes (end - start) * PerfScale / start.
// Both prices are in PriceConfig scale and must be positive; the caller is
// responsible for disqualifying sentinel or non-positive prices first.
func RelativePerformance(start, end int64) int64 {
	diff := end - start
	num := MultiplyInt128(diff, PerfScale)
	result := DivideInt128(num, start, RoundDown)
	putInt128(num)
	return result
}

// ApplyBps returns amount * bps / 10_000, rounded down. Payout splits always
// round in favour of the reserve so the remainder can be swept explicitly.
func ApplyBps(amount, bps int64) int64 {
	num := MultiplyInt128(amount, bps)
	result := DivideInt128(num, BpsDenom, RoundDown)
	putInt128(num)
	return result
}

// SplitEven divides total across n recipients: each gets share, and rem is
// the integer-division leftover the caller must account for.
func SplitEven(total int64, n int) (share, rem int64) {
	if n <= 0 {
		return 0, total
	}
	share = total / int64(n)
	rem = total - share*int64(n)
	return share, rem
}

// SplitByWeights divides total proportionally to weights, rounding each part
// down and returning the leftover separately. Every unit of total ends up in
// exactly one part or in the leftover.
func SplitByWeights(total int64, weights []int64) (parts []int64, rem int64) {
	var weightSum int64
	for _, w := range weights {
		weightSum += w
	}

	parts = make([]int64, len(weights))
	if weightSum <= 0 || total <= 0 {
		return parts, total
	}

	var allocated int64
	for i, w := range weights {
		num := MultiplyInt128(total, w)
		parts[i] = DivideInt128(num, weightSum, RoundDown)
		putInt128(num)
		allocated += parts[i]
	}
	return parts, total - allocated
}
