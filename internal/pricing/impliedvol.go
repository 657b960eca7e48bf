package pricing

import "math"

const (
	// IVLowerBound and IVUpperBound bracket the bisection search.
	IVLowerBound = 1e-4
	IVUpperBound = 4.0

	ivTolerance = 1e-6
	ivMaxIter   = 120
)

// ImpliedVol inverts a European option price to a flat volatility by
// bisection on [IVLowerBound, IVUpperBound].
//
// It returns 0 for a non-positive price or time to expiry, and 0 when the
// bracket does not contain a root (the price is outside the arbitrage
// envelope the bracket can reach). It never returns an error.
func ImpliedVol(price, spot, strike, rate, div, t float64, right Right) float64 {
	if !(price > 0) || t <= 0 || math.IsInf(price, 0) {
		return 0
	}

	diff := func(vol float64) float64 {
		return Price(right, spot, strike, rate, div, vol, t) - price
	}

	low, high := IVLowerBound, IVUpperBound
	fLow := diff(low)
	fHigh := diff(high)
	if math.IsNaN(fLow) || math.IsNaN(fHigh) || fLow*fHigh > 0 {
		return 0
	}

	mid := 0.5 * (low + high)
	for i := 0; i < ivMaxIter; i++ {
		mid = 0.5 * (low + high)
		fMid := diff(mid)
		if math.Abs(fMid) < ivTolerance {
			return mid
		}
		if fLow*fMid < 0 {
			high = mid
		} else {
			low = mid
			fLow = fMid
		}
	}
	return mid
}
