package calibration

import (
	"math"

	"hestonlab/internal/surface"
)

const (
	// ivSentinel is charged, in vol points, for nodes the model cannot price.
	ivSentinel = 10.0
	// priceSentinelTicks is the price-objective equivalent (10 index points).
	priceSentinelTicks = 10.0 / surface.TickSize
	// maxModelIV rejects implied vols that indicate a degenerate parameter set.
	maxModelIV = 5.0
	// penaltyScale lifts the constraint residuals above typical fit errors.
	penaltyScale = 10.0
)

// objective evaluates weighted residuals in the solver's internal space.
type objective struct {
	rows      []surface.Row
	targets   []float64
	sqrtW     []float64
	scale     float64
	cfg       Config
	transform Transform
}

func newObjective(rows []surface.Row, cfg Config, tr Transform) *objective {
	o := &objective{
		rows:      rows,
		targets:   make([]float64, len(rows)),
		sqrtW:     make([]float64, len(rows)),
		cfg:       cfg,
		transform: tr,
	}

	var raw []float64
	for i, r := range rows {
		raw = append(raw, rowWeight(r))
		if cfg.Objective == ObjectivePrice {
			o.targets[i] = r.MidPrice
		} else {
			o.targets[i] = r.MidIV
		}
	}
	weights := PositiveWeights(raw, 1)
	sum := 0.0
	for i := range rows {
		o.sqrtW[i] = math.Sqrt(weights[i])
		sum += weights[i]
	}
	o.scale = 1
	if len(rows) > 0 {
		o.scale = math.Sqrt(sum / float64(len(rows)))
	}
	return o
}

// size is the residual vector length: one per row plus two constraint terms.
func (o *objective) size() int { return len(o.rows) + 2 }

func (o *objective) sentinel() float64 {
	if o.cfg.Objective == ObjectivePrice {
		return priceSentinelTicks
	}
	return ivSentinel
}

// residuals writes the residual vector for internal coordinates z into dst.
func (o *objective) residuals(dst, z []float64) {
	p, ok := o.transform.FromInternal(z)
	n := len(o.rows)
	if !ok {
		for i := 0; i < n; i++ {
			dst[i] = o.sqrtW[i] * o.sentinel()
		}
	} else {
		for i, r := range o.rows {
			dst[i] = o.sqrtW[i] * o.rowResidual(r, o.targets[i], p)
		}
	}

	feller := 0.0
	if p.Kappa > 0 && p.Theta > 0 {
		feller = math.Max(0, p.Sigma*p.Sigma/(2*p.Kappa*p.Theta)-o.cfg.FellerRatioCap)
	}
	dst[n] = o.scale * penaltyScale * o.cfg.FellerPenalty * feller
	dst[n+1] = o.scale * penaltyScale * o.cfg.RhoPenalty * math.Max(0, math.Abs(p.Rho)-o.cfg.RhoLimit)
}

func (o *objective) rowResidual(r surface.Row, target float64, p Params) float64 {
	price, iv := ModelIV(r, p)
	if !finite(iv) || iv <= 0 || iv > maxModelIV {
		return o.sentinel()
	}
	if o.cfg.Objective == ObjectivePrice {
		return (price - target) / surface.TickSize
	}
	return iv - target
}
