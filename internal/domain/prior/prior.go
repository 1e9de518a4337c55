// Package prior derives the global Beta prior shared by every area in a run.
package prior

import (
	"fmt"
	"math"

	"github.com/okian/arearisk/internal/domain/model"
)

// Aggregate holds the aggregate-level reference values for the prior.
type Aggregate struct {
	// GlobalIncidenceRate is events per unit exposure, e.g. from historical
	// county-level data.
	GlobalIncidenceRate float64
	// GlobalExposureTotal is the exposure observed at the aggregate level.
	GlobalExposureTotal int64
	// ReferenceExposureScale is a representative area exposure, such as the
	// median area exposure. It sets the prior's equivalent sample size.
	ReferenceExposureScale int64
}

// Derivation records the intermediate values of FromAggregate.
type Derivation struct {
	ExtrapolatedEvents    float64                    `json:"extrapolated_events"`
	ExtrapolatedNonEvents float64                    `json:"extrapolated_non_events"`
	ScalingFactor         float64                    `json:"scaling_factor"`
	Prior                 model.PriorHyperparameters `json:"prior"`
}

// FromAggregate scales the aggregate evidence down to one typical area's
// worth of pseudo-observations. The prior mean always equals the incidence
// rate; only the effective sample size changes with ReferenceExposureScale.
func FromAggregate(a Aggregate) (Derivation, error) {
	if a.GlobalExposureTotal <= 0 {
		return Derivation{}, configErr("global_exposure_total", "must be positive, got %d", a.GlobalExposureTotal)
	}
	if a.ReferenceExposureScale <= 0 {
		return Derivation{}, configErr("reference_exposure_scale", "must be positive, got %d", a.ReferenceExposureScale)
	}
	r := a.GlobalIncidenceRate
	if math.IsNaN(r) || r < 0 || r > 1 {
		return Derivation{}, configErr("global_incidence_rate", "must be within [0,1], got %g", r)
	}
	// alpha0 and beta0 must both be positive for a proper Beta prior.
	if r == 0 || r == 1 {
		return Derivation{}, configErr("global_incidence_rate", "rate %g gives a degenerate prior", r)
	}

	total := float64(a.GlobalExposureTotal)
	events := r * total
	nonEvents := total - events
	scaling := float64(a.ReferenceExposureScale) / total

	return Derivation{
		ExtrapolatedEvents:    events,
		ExtrapolatedNonEvents: nonEvents,
		ScalingFactor:         scaling,
		Prior: model.PriorHyperparameters{
			Alpha0: events * scaling,
			Beta0:  nonEvents * scaling,
			Method: model.PriorAggregate,
		},
	}, nil
}

// FromMeanStdDev reproduces the earlier hyperparameterization
// alpha0 = mean/stddev, beta0 = (1-mean)/stddev. It is kept literally.
// Note alpha0 collapses to 1 whenever mean == stddev.
func FromMeanStdDev(mean, stddev float64) (model.PriorHyperparameters, error) {
	if math.IsNaN(mean) || mean <= 0 || mean >= 1 {
		return model.PriorHyperparameters{}, configErr("prior_mean", "must be within (0,1), got %g", mean)
	}
	if math.IsNaN(stddev) || stddev <= 0 {
		return model.PriorHyperparameters{}, configErr("prior_stddev", "must be positive, got %g", stddev)
	}
	return model.PriorHyperparameters{
		Alpha0: mean / stddev,
		Beta0:  (1 - mean) / stddev,
		Method: model.PriorMeanStdDev,
	}, nil
}

// Explicit validates caller-supplied shape parameters.
func Explicit(alpha0, beta0 float64) (model.PriorHyperparameters, error) {
	if !(alpha0 > 0) || math.IsInf(alpha0, 0) {
		return model.PriorHyperparameters{}, configErr("alpha0", "must be positive and finite, got %g", alpha0)
	}
	if !(beta0 > 0) || math.IsInf(beta0, 0) {
		return model.PriorHyperparameters{}, configErr("beta0", "must be positive and finite, got %g", beta0)
	}
	return model.PriorHyperparameters{Alpha0: alpha0, Beta0: beta0, Method: model.PriorExplicit}, nil
}

func configErr(field, format string, args ...any) error {
	return &model.ConfigError{
		Field: field,
		Err:   fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidAggregate}, args...)...),
	}
}
