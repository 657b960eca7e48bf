package calibration

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// solverSettings tune the Levenberg-Marquardt iteration.
type solverSettings struct {
	MaxEvals int
	// Step is the absolute forward-difference step in internal coordinates.
	Step float64
	GTol float64
	FTol float64
	XTol float64
}

func defaultSolverSettings(maxEvals int) solverSettings {
	return solverSettings{MaxEvals: maxEvals, Step: 1e-2, GTol: 1e-8, FTol: 1e-8, XTol: 1e-8}
}

type solverResult struct {
	X           []float64
	Cost        float64
	Converged   bool
	Evaluations int
	Iterations  int
}

const (
	lambdaInit = 1e-3
	lambdaMin  = 1e-12
	lambdaMax  = 1e12
)

func halfSumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return 0.5 * s
}

// solveFinite solves the factorised system into dst. An ill-conditioned
// system still yields a usable step; any other failure or a non-finite step
// is reported as false.
func solveFinite(chol *mat.Cholesky, dst *mat.VecDense, b mat.Vector) bool {
	if err := chol.SolveVecTo(dst, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return false
		}
	}
	for i := 0; i < dst.Len(); i++ {
		if !finite(dst.AtVec(i)) {
			return false
		}
	}
	return true
}

func norm(v []float64) float64 {
	return math.Sqrt(2 * halfSumSquares(v))
}

// levenbergMarquardt minimises ½‖f(x)‖² starting from x0. f writes m
// residuals into its first argument. Evaluations counts the initial point and
// every trial step; Jacobian evaluations are not counted against MaxEvals.
func levenbergMarquardt(ctx context.Context, f func(dst, x []float64), m int, x0 []float64, s solverSettings) (solverResult, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	f(r, x)
	res := solverResult{Evaluations: 1}
	cost := halfSumSquares(r)
	lambda := lambdaInit

	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	trialR := make([]float64, m)

	for res.Evaluations < s.MaxEvals {
		if err := ctx.Err(); err != nil {
			res.X, res.Cost = x, cost
			return res, err
		}
		res.Iterations++

		fd.Jacobian(jac, f, x, &fd.JacobianSettings{
			Formula:     fd.Forward,
			Step:        s.Step,
			OriginValue: r,
		})

		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&grad, math.Inf(1)) < s.GTol {
			res.Converged = true
			break
		}

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())

		negGrad := mat.NewVecDense(n, nil)
		negGrad.ScaleVec(-1, &grad)

		accepted := false
		for res.Evaluations < s.MaxEvals {
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				damped.SetSym(i, i, jtj.At(i, i)+lambda*math.Max(jtj.At(i, i), 1e-12))
			}

			var chol mat.Cholesky
			var step mat.VecDense
			if !chol.Factorize(damped) || !solveFinite(&chol, &step, negGrad) {
				lambda *= 10
				if lambda > lambdaMax {
					res.Converged = true
					break
				}
				continue
			}

			for i := 0; i < n; i++ {
				trial[i] = x[i] + step.AtVec(i)
			}
			f(trialR, trial)
			res.Evaluations++
			trialCost := halfSumSquares(trialR)

			if trialCost < cost {
				decrease := cost - trialCost
				stepNorm := mat.Norm(&step, 2)
				prevCost := cost
				copy(x, trial)
				copy(r, trialR)
				cost = trialCost
				lambda = math.Max(lambda/10, lambdaMin)
				accepted = true
				if decrease <= s.FTol*prevCost || stepNorm <= s.XTol*(s.XTol+norm(x)) {
					res.Converged = true
				}
				break
			}

			lambda *= 10
			if lambda > lambdaMax {
				res.Converged = true
				break
			}
		}
		if res.Converged || !accepted {
			break
		}
	}

	res.X, res.Cost = x, cost
	return res, nil
}
