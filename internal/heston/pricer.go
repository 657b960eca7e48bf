package heston

import (
	"math"
	"math/cmplx"
)

const (
	// stabilityEps nudges vanishing denominators away from zero.
	stabilityEps = 1e-14
	// clampEps keeps the clamped price strictly above intrinsic value.
	clampEps = 1e-10
	// normEps guards the φ(-i) normalisation of the first probability.
	normEps = 1e-16
)

func nudge(z complex128) complex128 {
	if cmplx.Abs(z) < stabilityEps {
		return z + complex(stabilityEps, 0)
	}
	return z
}

// CharacteristicFunction evaluates the risk-neutral characteristic function
// φ(u) of ln S_T.
func CharacteristicFunction(u complex128, t float64, p Params, rate, div, logSpot float64) complex128 {
	iu := complex(0, 1) * u
	sigma2 := p.Sigma * p.Sigma
	kappa := complex(p.Kappa, 0)
	rhoSigmaIU := complex(p.Rho*p.Sigma, 0) * iu

	b := rhoSigmaIU - kappa
	d := cmplx.Sqrt(b*b + complex(sigma2, 0)*(iu+u*u))
	km := kappa - rhoSigmaIU - d

	g := km / nudge(kappa-rhoSigmaIU+d)
	expDT := cmplx.Exp(-d * complex(t, 0))
	oneMinusG := 1 - g
	oneMinusGExp := 1 - g*expDT

	logTerm := cmplx.Log(oneMinusGExp / nudge(oneMinusG))
	c := iu*complex(logSpot+(rate-div)*t, 0) +
		complex(p.Kappa*p.Theta/sigma2, 0)*(km*complex(t, 0)-2*logTerm)
	dd := (km / complex(sigma2, 0)) * ((1 - expDT) / oneMinusGExp)
	return cmplx.Exp(c + dd*complex(p.V0, 0))
}

// probability returns P_j for j = 1 (share measure) or j = 2 (risk-neutral).
func probability(j int, logStrike, t float64, p Params, rate, div, logSpot float64) float64 {
	phiMinusI := CharacteristicFunction(complex(0, -1), t, p, rate, div, logSpot)
	sum := 0.0
	for k, x := range glNodes {
		w := glWeights[k]
		if w == 0 {
			continue
		}
		u := complex(x, 0)
		var phi complex128
		if j == 1 {
			phi = CharacteristicFunction(u-complex(0, 1), t, p, rate, div, logSpot) / (phiMinusI + complex(normEps, 0))
		} else {
			phi = CharacteristicFunction(u, t, p, rate, div, logSpot)
		}
		integrand := cmplx.Exp(complex(0, -x*logStrike)) * phi / complex(0, x)
		sum += w * math.Exp(x) * real(integrand)
	}
	return 0.5 + sum/math.Pi
}

// Bounds returns the no-arbitrage envelope [intrinsic, upper] of a European
// call: intrinsic = max(0, S e^{-qT} - K e^{-rT}), upper = S e^{-qT}.
func Bounds(spot, strike, rate, div, t float64) (intrinsic, upper float64) {
	upper = spot * math.Exp(-div*t)
	intrinsic = math.Max(0, upper-strike*math.Exp(-rate*t))
	return intrinsic, upper
}

// Clamp forces a call price into [intrinsic + ε, S e^{-qT}]. Non-finite
// prices collapse to the lower edge.
func Clamp(price, spot, strike, rate, div, t float64) float64 {
	intrinsic, upper := Bounds(spot, strike, rate, div, t)
	if math.IsNaN(price) {
		price = intrinsic
	}
	return math.Min(math.Max(price, intrinsic+clampEps), upper)
}

// CallPrice returns the semi-analytic Heston price of a European call.
// The result always lies inside the no-arbitrage envelope, so downstream
// implied-volatility inversion stays well posed.
func CallPrice(p Params, spot, strike, rate, div, t float64) float64 {
	if t <= 0 {
		return math.Max(spot-strike, 0)
	}
	logSpot := math.Log(spot)
	logStrike := math.Log(strike)

	p1 := probability(1, logStrike, t, p, rate, div, logSpot)
	p2 := probability(2, logStrike, t, p, rate, div, logSpot)

	price := spot*math.Exp(-div*t)*p1 - strike*math.Exp(-rate*t)*p2
	return Clamp(price, spot, strike, rate, div, t)
}
