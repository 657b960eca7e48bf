package calibration

import (
	"fmt"
	"math"

	"hestonlab/internal/heston"
)

// Transform names.
const (
	TransformNone    = "none"
	TransformExp     = "exp"
	TransformSigmoid = "sigmoid"
)

// Transform maps model parameters to the unconstrained space the solver
// works in and back.
type Transform interface {
	Name() string
	ToInternal(p Params) []float64
	// FromInternal returns the model parameters for z and whether they lie
	// inside the bounds box.
	FromInternal(z []float64) (Params, bool)
}

// NewTransform returns the named strategy.
func NewTransform(name string) (Transform, error) {
	switch name {
	case TransformNone:
		return identityTransform{}, nil
	case TransformExp, "":
		return expTransform{}, nil
	case TransformSigmoid:
		return sigmoidTransform{}, nil
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

const rhoIndex = 3

// Bounds of a parameter vector, checked element-wise.
func withinBounds(v []float64) bool {
	for i, x := range v {
		if math.IsNaN(x) || x < LowerBounds[i] || x > UpperBounds[i] {
			return false
		}
	}
	return true
}

type identityTransform struct{}

func (identityTransform) Name() string { return TransformNone }

func (identityTransform) ToInternal(p Params) []float64 { return p.Vector() }

func (identityTransform) FromInternal(z []float64) (Params, bool) {
	return heston.FromVector(z), withinBounds(z)
}

// expTransform works on log scale for the positive parameters: log v moves
// through a logistic between log lower and log upper. Rho goes through tanh
// rescaled onto its bounds. Both maps are smooth and stay inside the box.
type expTransform struct{}

func (expTransform) Name() string { return TransformExp }

func logit(frac float64) float64 {
	frac = clip(frac, 1e-9, 1-1e-9)
	return math.Log(frac / (1 - frac))
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (expTransform) ToInternal(p Params) []float64 {
	v := p.Vector()
	z := make([]float64, len(v))
	for i, x := range v {
		lo, hi := LowerBounds[i], UpperBounds[i]
		if i == rhoIndex {
			mid, half := 0.5*(lo+hi), 0.5*(hi-lo)
			z[i] = math.Atanh(clip((x-mid)/half, -1+1e-9, 1-1e-9))
			continue
		}
		x = clip(x, lo, hi)
		z[i] = logit(math.Log(x/lo) / math.Log(hi/lo))
	}
	return z
}

func (expTransform) FromInternal(z []float64) (Params, bool) {
	v := make([]float64, len(z))
	for i, x := range z {
		lo, hi := LowerBounds[i], UpperBounds[i]
		if i == rhoIndex {
			mid, half := 0.5*(lo+hi), 0.5*(hi-lo)
			v[i] = clip(mid+half*math.Tanh(x), lo, hi)
			continue
		}
		v[i] = clip(lo*math.Exp(logistic(x)*math.Log(hi/lo)), lo, hi)
	}
	return heston.FromVector(v), true
}

// sigmoidTransform maps every coordinate through a logistic onto [lower, upper].
type sigmoidTransform struct{}

func (sigmoidTransform) Name() string { return TransformSigmoid }

func (sigmoidTransform) ToInternal(p Params) []float64 {
	v := p.Vector()
	z := make([]float64, len(v))
	for i, x := range v {
		z[i] = logit((x - LowerBounds[i]) / (UpperBounds[i] - LowerBounds[i]))
	}
	return z
}

func (sigmoidTransform) FromInternal(z []float64) (Params, bool) {
	v := make([]float64, len(z))
	for i, x := range z {
		v[i] = clip(LowerBounds[i]+(UpperBounds[i]-LowerBounds[i])*logistic(x), LowerBounds[i], UpperBounds[i])
	}
	return heston.FromVector(v), true
}
