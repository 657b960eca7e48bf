package calibration

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "hestonlab/internal/errors"
	"hestonlab/internal/heston"
)

// Params is re-exported so callers need not import heston for the common case.
type Params = heston.Params

// Objective selects the residual units.
type Objective string

const (
	// ObjectiveIV fits implied volatilities (vol points).
	ObjectiveIV Objective = "iv"
	// ObjectivePrice fits prices in ticks.
	ObjectivePrice Objective = "price"
)

// Parameter box for SPX-like surfaces, in (kappa, theta, sigma, rho, v0) order.
var (
	LowerBounds = [heston.NumParams]float64{0.15, 0.0005, 0.05, -0.999, 0.0005}
	UpperBounds = [heston.NumParams]float64{6.0, 0.20, 1.50, 0.10, 0.20}
)

// InitialGuess is the solver starting point.
var InitialGuess = Params{Kappa: 1.0, Theta: 0.05, Sigma: 0.5, Rho: -0.5, V0: 0.04}

// Config controls a calibration run and its bootstrap.
type Config struct {
	Fast             bool      `json:"fast" yaml:"fast"`
	MaxEvals         int       `json:"max_evals" yaml:"max_evals" validate:"min=1"`
	BootstrapSamples int       `json:"bootstrap_samples" yaml:"bootstrap_samples" validate:"min=0"`
	Seed             int64     `json:"seed" yaml:"seed"`
	Objective        Objective `json:"objective" yaml:"objective" validate:"oneof=iv price"`
	Transform        string    `json:"transform" yaml:"transform" validate:"oneof=none exp sigmoid"`

	// FellerPenalty scales the residual charged when σ²/(2κθ) exceeds
	// FellerRatioCap. Zero disables it.
	FellerPenalty  float64 `json:"feller_penalty" yaml:"feller_penalty" validate:"gte=0"`
	FellerRatioCap float64 `json:"feller_ratio_cap" yaml:"feller_ratio_cap" validate:"gt=0"`
	// RhoPenalty scales the residual charged when |ρ| exceeds RhoLimit.
	RhoPenalty float64 `json:"rho_penalty" yaml:"rho_penalty" validate:"gte=0"`
	RhoLimit   float64 `json:"rho_limit" yaml:"rho_limit" validate:"gt=0,lte=1"`

	Workers int `json:"workers" yaml:"workers" validate:"min=1"`
}

// DefaultConfig returns the production calibration settings.
func DefaultConfig() Config {
	return Config{
		Fast:             false,
		MaxEvals:         200,
		BootstrapSamples: 120,
		Seed:             7,
		Objective:        ObjectiveIV,
		Transform:        TransformExp,
		FellerPenalty:    1.0,
		FellerRatioCap:   6.0,
		RhoPenalty:       1.0,
		RhoLimit:         0.95,
		Workers:          4,
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("invalid calibration config: %v", err), err)
	}
	return nil
}
