package service

import (
	"fmt"

	"github.com/okian/arearisk/internal/config"
	"github.com/okian/arearisk/internal/domain/interval"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/internal/domain/prior"
)

// ResolvePrior derives the run's prior from configuration. The derivation
// trace is returned for the aggregate method only.
func ResolvePrior(cfg *config.Config) (model.PriorHyperparameters, *prior.Derivation, error) {
	switch cfg.PriorMethod {
	case config.PriorMethodAggregate:
		d, err := prior.FromAggregate(prior.Aggregate{
			GlobalIncidenceRate:    cfg.GlobalIncidenceRate,
			GlobalExposureTotal:    cfg.GlobalExposureTotal,
			ReferenceExposureScale: cfg.ReferenceExposureScale,
		})
		if err != nil {
			return model.PriorHyperparameters{}, nil, err
		}
		return d.Prior, &d, nil
	case config.PriorMethodMeanStdDev:
		p, err := prior.FromMeanStdDev(cfg.PriorMean, cfg.PriorStdDev)
		return p, nil, err
	case config.PriorMethodExplicit:
		p, err := prior.Explicit(cfg.Alpha0, cfg.Beta0)
		return p, nil, err
	default:
		return model.PriorHyperparameters{}, nil, &model.ConfigError{
			Field: "prior_method",
			Err:   fmt.Errorf("%w: %q", config.ErrInvalidConfig, cfg.PriorMethod),
		}
	}
}

// OptionsFromConfig maps configuration onto service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithIntervalOptions(
			interval.WithTails(cfg.LowerTail, cfg.UpperTail),
			interval.WithMaxIterations(cfg.MaxIterations),
			interval.WithTolerance(cfg.Tolerance),
		),
	}
}
