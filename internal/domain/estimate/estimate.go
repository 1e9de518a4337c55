// Package estimate applies the conjugate Beta-Binomial update per area.
package estimate

import (
	"context"
	"fmt"

	"github.com/okian/arearisk/internal/domain/model"
)

// Posterior combines the shared prior with one area's evidence. It has no
// side effects and is safe to call concurrently with the same prior.
//
// A zero-exposure observation returns the prior itself, so its mean is the
// prior mean exactly.
func Posterior(prior model.PriorHyperparameters, obs model.SanitizedObservation) model.PosteriorEstimate {
	est := model.PosteriorEstimate{
		AreaID:        obs.AreaID,
		EventCount:    obs.EventCount,
		ExposureCount: obs.ExposureCount,
		ZeroExposure:  obs.ZeroExposure,
	}
	if obs.ZeroExposure {
		est.Alpha = prior.Alpha0
		est.Beta = prior.Beta0
		est.Mean = prior.Mean()
		return est
	}

	est.Alpha = prior.Alpha0 + float64(obs.EventCount)
	est.Beta = prior.Beta0 + float64(obs.ExposureCount-obs.EventCount)
	est.Mean = est.Alpha / (est.Alpha + est.Beta)
	return est
}

// Estimator computes a posterior for one area, honoring ctx for cancellation.
type Estimator interface {
	Estimate(ctx context.Context, obs model.SanitizedObservation) (model.PosteriorEstimate, error)
}

// BetaBinomial implements Estimator over a fixed prior.
type BetaBinomial struct {
	prior model.PriorHyperparameters
}

// NewBetaBinomial binds an estimator to the run's prior.
func NewBetaBinomial(prior model.PriorHyperparameters) *BetaBinomial {
	return &BetaBinomial{prior: prior}
}

// Prior returns a copy of the bound prior.
func (b *BetaBinomial) Prior() model.PriorHyperparameters {
	return b.prior
}

// Estimate returns the posterior for obs.
func (b *BetaBinomial) Estimate(ctx context.Context, obs model.SanitizedObservation) (model.PosteriorEstimate, error) {
	if err := ctx.Err(); err != nil {
		return model.PosteriorEstimate{}, fmt.Errorf("context cancelled: %w", err)
	}
	return Posterior(b.prior, obs), nil
}
