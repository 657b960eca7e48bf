package heston

import "fmt"

// Params is the five-parameter Heston model.
type Params struct {
	Kappa float64 `json:"kappa"` // mean-reversion speed
	Theta float64 `json:"theta"` // long-run variance
	Sigma float64 `json:"sigma"` // volatility of variance
	Rho   float64 `json:"rho"`   // spot/variance correlation
	V0    float64 `json:"v0"`    // initial variance
}

// NumParams is the length of Params.Vector.
const NumParams = 5

// Names lists parameter names in vector order.
var Names = [NumParams]string{"kappa", "theta", "sigma", "rho", "v0"}

// Vector returns the parameters as (kappa, theta, sigma, rho, v0).
func (p Params) Vector() []float64 {
	return []float64{p.Kappa, p.Theta, p.Sigma, p.Rho, p.V0}
}

// Get returns a parameter by name.
func (p Params) Get(name string) (float64, error) {
	switch name {
	case "kappa":
		return p.Kappa, nil
	case "theta":
		return p.Theta, nil
	case "sigma":
		return p.Sigma, nil
	case "rho":
		return p.Rho, nil
	case "v0":
		return p.V0, nil
	}
	return 0, fmt.Errorf("unknown heston parameter %q", name)
}

// FromVector builds Params from a (kappa, theta, sigma, rho, v0) slice.
func FromVector(v []float64) Params {
	return Params{Kappa: v[0], Theta: v[1], Sigma: v[2], Rho: v[3], V0: v[4]}
}

// FellerGap returns σ² - 2κθ. A positive gap means the Feller condition is violated.
func (p Params) FellerGap() float64 {
	return p.Sigma*p.Sigma - 2*p.Kappa*p.Theta
}

// SatisfiesFeller reports whether 2κθ >= σ².
func (p Params) SatisfiesFeller() bool {
	return p.FellerGap() <= 0
}
