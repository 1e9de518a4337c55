// Package synth generates synthetic area tables with a known true rate per
// area, for exercising the estimator end to end.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/pkg/logger"
)

// Default generator constants.
const (
	defaultAreas         = 3000
	defaultAlpha         = 2.0
	defaultBeta          = 4000.0
	defaultMedianExposed = 5000.0
	defaultSigma         = 1.5
)

// Config controls a generated table.
type Config struct {
	Areas         int     // number of areas
	Seed          uint64  // fixed seed gives a reproducible table
	Alpha         float64 // true rates are drawn from Beta(Alpha, Beta)
	Beta          float64
	MedianExposed float64 // exposure is log-normal around this median
	Sigma         float64 // log-scale spread of exposure
	ZeroFraction  float64 // share of areas with no exposure at all
}

// DefaultConfig returns a config with a rare event and heavily skewed exposure.
func DefaultConfig() Config {
	return Config{
		Areas:         defaultAreas,
		Seed:          1,
		Alpha:         defaultAlpha,
		Beta:          defaultBeta,
		MedianExposed: defaultMedianExposed,
		Sigma:         defaultSigma,
	}
}

func (c Config) validate() error {
	switch {
	case c.Areas < 1:
		return fmt.Errorf("synth: areas must be positive, got %d", c.Areas)
	case !(c.Alpha > 0) || !(c.Beta > 0):
		return fmt.Errorf("synth: invalid true-rate shape Beta(%g, %g)", c.Alpha, c.Beta)
	case !(c.MedianExposed >= 1) || c.Sigma < 0:
		return fmt.Errorf("synth: invalid exposure median %g or sigma %g", c.MedianExposed, c.Sigma)
	case c.ZeroFraction < 0 || c.ZeroFraction >= 1:
		return fmt.Errorf("synth: zero fraction must be in [0, 1), got %g", c.ZeroFraction)
	}
	return nil
}

// Area is a generated observation with the rate it was drawn from.
type Area struct {
	model.AreaObservation
	TrueRate float64
}

// Generate draws cfg.Areas areas. Area ids are name-based UUIDs derived
// from the seed and position, so the same config yields the same table.
func Generate(ctx context.Context, cfg Config) ([]Area, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	rates := distuv.Beta{Alpha: cfg.Alpha, Beta: cfg.Beta, Src: src}
	exposure := distuv.LogNormal{Mu: math.Log(cfg.MedianExposed), Sigma: cfg.Sigma, Src: src}
	namespace := uuid.NewSHA1(uuid.NameSpaceOID, []byte("arearisk/synth/"+strconv.FormatUint(cfg.Seed, 10)))

	areas := make([]Area, cfg.Areas)
	for i := range areas {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("synth: %w", err)
			}
		}

		p := rates.Rand()
		var n, k int64
		if rng.Float64() >= cfg.ZeroFraction {
			n = int64(math.Ceil(exposure.Rand()))
			k = int64(distuv.Binomial{N: float64(n), P: p, Src: src}.Rand())
		}
		areas[i] = Area{
			AreaObservation: model.AreaObservation{
				AreaID:        uuid.NewSHA1(namespace, []byte(strconv.Itoa(i))).String(),
				EventCount:    k,
				ExposureCount: n,
			},
			TrueRate: p,
		}
	}

	logger.Get().Debug(ctx, "generated synthetic areas",
		logger.Int("areas", len(areas)),
		logger.Any("seed", cfg.Seed),
	)
	return areas, nil
}

// Observations strips the true rates.
func Observations(areas []Area) []model.AreaObservation {
	out := make([]model.AreaObservation, len(areas))
	for i := range areas {
		out[i] = areas[i].AreaObservation
	}
	return out
}
