package estimate_test

import (
	"context"
	"testing"

	"github.com/okian/arearisk/internal/domain/estimate"
	"github.com/okian/arearisk/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func obs(id string, events, exposure int64) model.SanitizedObservation {
	return model.SanitizedObservation{
		AreaObservation: model.AreaObservation{AreaID: id, EventCount: events, ExposureCount: exposure},
		ZeroExposure:    exposure == 0,
	}
}

func TestPosterior(t *testing.T) {
	Convey("Given a prior Beta(1, 1132)", t, func() {
		p := model.PriorHyperparameters{Alpha0: 1, Beta0: 1132}

		Convey("When an area has 0 events in 1011 births", func() {
			est := estimate.Posterior(p, obs("A", 0, 1011))

			Convey("Then the mean is 1/2144, about 46.6 per 100,000", func() {
				So(est.Alpha, ShouldEqual, 1.0)
				So(est.Beta, ShouldEqual, 2143.0)
				So(est.Mean, ShouldAlmostEqual, 1.0/2144.0, 1e-15)
				So(est.Mean*100_000, ShouldAlmostEqual, 46.64, 0.01)
			})
		})
	})

	Convey("Given a prior Beta(0.189, 213)", t, func() {
		p := model.PriorHyperparameters{Alpha0: 0.189, Beta0: 213}

		Convey("When an area has 5 events in 1000", func() {
			est := estimate.Posterior(p, obs("B", 5, 1000))

			Convey("Then the posterior shapes and mean follow the conjugate update", func() {
				So(est.Alpha, ShouldAlmostEqual, 5.189, 1e-12)
				So(est.Beta, ShouldAlmostEqual, 1208, 1e-12)
				So(est.Mean, ShouldAlmostEqual, 5.189/1213.189, 1e-15)
				So(est.Mean*100_000, ShouldAlmostEqual, 427.7, 0.1)
			})
		})

		Convey("When an area has 0 events in 10", func() {
			est := estimate.Posterior(p, obs("C", 0, 10))

			Convey("Then the estimate stays close to the prior mean", func() {
				So(est.Mean, ShouldBeLessThan, p.Mean())
				So(est.Mean/p.Mean(), ShouldBeGreaterThan, 0.95)
			})
		})

		Convey("When an area has zero exposure", func() {
			est := estimate.Posterior(p, obs("Z", 0, 0))

			Convey("Then the mean is exactly the prior mean", func() {
				So(est.ZeroExposure, ShouldBeTrue)
				So(est.Mean, ShouldEqual, p.Mean())
				So(est.Alpha, ShouldEqual, p.Alpha0)
				So(est.Beta, ShouldEqual, p.Beta0)
			})
		})

		Convey("When events increase for fixed exposure", func() {
			prev := -1.0
			for k := int64(0); k <= 50; k++ {
				m := estimate.Posterior(p, obs("m", k, 50)).Mean
				So(m, ShouldBeGreaterThanOrEqualTo, prev)
				prev = m
			}
		})

		Convey("When exposure increases for fixed events below the prior rate", func() {
			prev := 1.0
			for n := int64(2000); n <= 20000; n += 1000 {
				m := estimate.Posterior(p, obs("n", 1, n)).Mean
				So(m, ShouldBeLessThanOrEqualTo, prev)
				prev = m
			}
		})

		Convey("When exposure grows with a fixed observed ratio", func() {
			const r = 0.003
			var last float64
			for _, n := range []int64{1_000, 100_000, 10_000_000} {
				last = estimate.Posterior(p, obs("r", int64(r*float64(n)), n)).Mean
			}

			Convey("Then the data dominates the prior", func() {
				So(last, ShouldAlmostEqual, r, 1e-4)
			})
		})

		Convey("When events are positive", func() {
			est := estimate.Posterior(p, obs("pos", 2, 30))

			Convey("Then alpha grows past alpha0 and beta does not shrink", func() {
				So(est.Alpha, ShouldBeGreaterThan, p.Alpha0)
				So(est.Beta, ShouldBeGreaterThanOrEqualTo, p.Beta0)
			})
		})
	})
}

func TestBetaBinomial(t *testing.T) {
	Convey("Given a bound estimator", t, func() {
		p := model.PriorHyperparameters{Alpha0: 2, Beta0: 98}
		e := estimate.NewBetaBinomial(p)

		Convey("When estimating with a live context", func() {
			est, err := e.Estimate(context.Background(), obs("x", 1, 100))

			Convey("Then it matches the pure posterior", func() {
				So(err, ShouldBeNil)
				So(est, ShouldResemble, estimate.Posterior(p, obs("x", 1, 100)))
				So(e.Prior(), ShouldResemble, p)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := e.Estimate(ctx, obs("x", 1, 100))

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
