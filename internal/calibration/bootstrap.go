package calibration

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"hestonlab/internal/heston"
	"hestonlab/internal/surface"
)

const (
	bootstrapMaxEvals = 80
	seedRange         = 999_999
)

// Interval is a two-sided confidence band.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ConfidenceIntervals maps a parameter name to its band.
type ConfidenceIntervals map[string]Interval

// BootstrapResult carries the bands and how many resamples succeeded.
type BootstrapResult struct {
	Intervals  ConfidenceIntervals `json:"intervals"`
	Iterations int                 `json:"iterations"`
	Succeeded  int                 `json:"succeeded"`
}

// Iterations returns the number of resamples a config asks for.
func (c Config) Iterations() int {
	if c.Fast {
		return min(12, max(4, c.BootstrapSamples/4))
	}
	return c.BootstrapSamples
}

type bootstrapDraw struct {
	indices []int
	seed    int64
}

// Bootstrap resamples the surface rows with replacement, recalibrates each
// resample and reports the 5th and 95th percentile of every parameter.
//
// All random draws happen up front from rng (seeded from cfg.Seed when nil),
// so the result is identical for any worker count. Failed resamples are
// skipped; with no successes every band collapses to the point estimate.
func Bootstrap(ctx context.Context, rows []surface.Row, point Params, cfg Config, rng *rand.Rand) (*BootstrapResult, error) {
	logger := slog.Default()
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	iters := cfg.Iterations()
	n := len(rows)
	draws := make([]bootstrapDraw, 0, iters)
	if n > 0 {
		for i := 0; i < iters; i++ {
			idx := make([]int, n)
			for j := range idx {
				idx[j] = rng.Intn(n)
			}
			draws = append(draws, bootstrapDraw{indices: idx, seed: rng.Int63n(seedRange) + 1})
		}
	}

	sampleCfg := cfg
	sampleCfg.Fast = true
	sampleCfg.MaxEvals = bootstrapMaxEvals
	sampleCfg.BootstrapSamples = 0

	fits := make([]*Params, len(draws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, d := range draws {
		g.Go(func() error {
			boot := make([]surface.Row, n)
			for j, k := range d.indices {
				boot[j] = rows[k]
			}
			c := sampleCfg
			c.Seed = d.seed
			res, err := Calibrate(gctx, boot, c)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.DebugContext(gctx, "bootstrap sample failed",
					slog.Int("sample", i), slog.String("error", err.Error()))
				return nil
			}
			p := res.Params
			fits[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	samples := make([][]float64, heston.NumParams)
	succeeded := 0
	for _, p := range fits {
		if p == nil {
			continue
		}
		succeeded++
		for k, v := range p.Vector() {
			samples[k] = append(samples[k], v)
		}
	}

	pointVec := point.Vector()
	intervals := make(ConfidenceIntervals, heston.NumParams)
	for k, name := range heston.Names {
		if len(samples[k]) == 0 {
			intervals[name] = Interval{Low: pointVec[k], High: pointVec[k]}
			continue
		}
		intervals[name] = Interval{
			Low:  Percentile(samples[k], 5),
			High: Percentile(samples[k], 95),
		}
	}

	logger.InfoContext(ctx, "bootstrap completed",
		slog.Int("iterations", len(draws)),
		slog.Int("succeeded", succeeded))
	return &BootstrapResult{Intervals: intervals, Iterations: len(draws), Succeeded: succeeded}, nil
}

// Percentile returns the q-th percentile (0-100) by linear interpolation
// between closest ranks. The input is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	h := (float64(len(sorted)) - 1) * q / 100
	lo := math.Floor(h)
	hi := math.Ceil(h)
	if lo == hi {
		return sorted[int(lo)]
	}
	return sorted[int(lo)] + (h-lo)*(sorted[int(hi)]-sorted[int(lo)])
}
