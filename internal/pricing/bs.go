package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Right identifies a call or a put.
type Right string

const (
	RightCall Right = "C"
	RightPut  Right = "P"
)

// ParseRight maps common spellings ("C", "call", "P", "put") onto a Right.
// Unknown values default to a call, matching the SPX call-only feed.
func ParseRight(s string) Right {
	switch s {
	case "P", "p", "put", "PUT", "Put":
		return RightPut
	default:
		return RightCall
	}
}

func d1(spot, strike, rate, div, vol, t float64) float64 {
	return (math.Log(spot/strike) + (rate-div+0.5*vol*vol)*t) / (vol * math.Sqrt(t))
}

// Call returns the Black-Scholes-Merton price of a European call.
// At or past expiry it returns max(S-K, 0); with zero volatility it returns
// the discounted forward intrinsic value.
func Call(spot, strike, rate, div, vol, t float64) float64 {
	if t <= 0 {
		return math.Max(spot-strike, 0)
	}
	if vol <= 0 {
		forward := spot * math.Exp((rate-div)*t)
		return math.Exp(-rate*t) * math.Max(forward-strike, 0)
	}
	d1 := d1(spot, strike, rate, div, vol, t)
	d2 := d1 - vol*math.Sqrt(t)
	return spot*math.Exp(-div*t)*distuv.UnitNormal.CDF(d1) -
		strike*math.Exp(-rate*t)*distuv.UnitNormal.CDF(d2)
}

// Put returns the European put price via put-call parity.
func Put(spot, strike, rate, div, vol, t float64) float64 {
	call := Call(spot, strike, rate, div, vol, t)
	return call - spot*math.Exp(-div*t) + strike*math.Exp(-rate*t)
}

// Price dispatches on the option right.
func Price(right Right, spot, strike, rate, div, vol, t float64) float64 {
	if right == RightPut {
		return Put(spot, strike, rate, div, vol, t)
	}
	return Call(spot, strike, rate, div, vol, t)
}

// DeltaCall returns the spot delta of a European call.
func DeltaCall(spot, strike, rate, div, vol, t float64) float64 {
	if t <= 0 || spot <= 0 || strike <= 0 {
		return 0
	}
	if vol <= 0 {
		if spot > strike {
			return 1
		}
		return 0
	}
	return math.Exp(-div*t) * distuv.UnitNormal.CDF(d1(spot, strike, rate, div, vol, t))
}

// Vega returns dPrice/dVol, identical for calls and puts.
func Vega(spot, strike, rate, div, vol, t float64) float64 {
	if t <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		return 0
	}
	d := d1(spot, strike, rate, div, vol, t)
	return spot * math.Exp(-div*t) * math.Sqrt(t) * distuv.UnitNormal.Prob(d)
}
