package interval_test

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/arearisk/internal/domain/interval"
	"github.com/okian/arearisk/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given calculator options", t, func() {
		Convey("When defaults are used", func() {
			c, err := interval.New()

			Convey("Then the tails are 0.025 and 0.975", func() {
				So(err, ShouldBeNil)
				lo, hi := c.Tails()
				So(lo, ShouldEqual, 0.025)
				So(hi, ShouldEqual, 0.975)
			})
		})

		Convey("When tails are invalid", func() {
			for _, tails := range [][2]float64{{0.9, 0.1}, {0, 0.5}, {0.5, 1}, {0.3, 0.3}, {-0.1, 0.5}} {
				_, err := interval.New(interval.WithTails(tails[0], tails[1]))

				var ce *model.ConfigError
				So(errors.As(err, &ce), ShouldBeTrue)
				So(errors.Is(err, model.ErrInvalidTails), ShouldBeTrue)
			}
		})
	})
}

func TestQuantile(t *testing.T) {
	Convey("Given a default calculator", t, func() {
		c, err := interval.New()
		So(err, ShouldBeNil)

		shapes := []struct {
			name        string
			alpha, beta float64
		}{
			{"symmetric", 2, 2},
			{"scenario A posterior", 1, 2143},
			{"scenario B posterior", 5.189, 1208},
			{"prior-only with small alpha", 0.189, 213},
			{"large exposure", 3000, 997_000},
			{"uniform", 1, 1},
			{"rare-event prior alpha 0.02", 0.02, 1000},
			{"rare-event prior alpha 0.01", 0.01, 1000},
		}

		for _, s := range shapes {
			Convey("When inverting the CDF of the "+s.name+" case", func() {
				dist := distuv.Beta{Alpha: s.alpha, Beta: s.beta}

				for _, p := range []float64{0.005, 0.025, 0.5, 0.975, 0.995} {
					x, iters, err := c.Quantile(s.alpha, s.beta, p)
					So(err, ShouldBeNil)
					So(iters, ShouldBeGreaterThan, 0)
					So(x, ShouldBeBetween, 0, 1)
					So(dist.CDF(x), ShouldAlmostEqual, p, 1e-9)
				}
			})
		}

		Convey("When the lower quantile lies hundreds of decades below 1", func() {
			x, iters, err := c.Quantile(0.02, 1000, 0.025)

			Convey("Then it converges well inside the default budget", func() {
				So(err, ShouldBeNil)
				So(x, ShouldBeGreaterThan, 0)
				So(x, ShouldBeLessThan, 1e-70)
				So(iters, ShouldBeLessThan, 100)
				So(distuv.Beta{Alpha: 0.02, Beta: 1000}.CDF(x), ShouldAlmostEqual, 0.025, 1e-9)
			})
		})

		Convey("When the distribution is uniform", func() {
			x, _, err := c.Quantile(1, 1, 0.3)

			Convey("Then the quantile is p itself", func() {
				So(err, ShouldBeNil)
				So(x, ShouldAlmostEqual, 0.3, 1e-10)
			})
		})

		Convey("When shapes are invalid", func() {
			_, _, err := c.Quantile(0, 1, 0.5)

			Convey("Then a NumericalError is returned", func() {
				var ne *model.NumericalError
				So(errors.As(err, &ne), ShouldBeTrue)
			})
		})
	})
}

func TestInterval(t *testing.T) {
	Convey("Given a default calculator", t, func() {
		c, _ := interval.New()

		Convey("When computing the scenario B interval", func() {
			alpha, beta := 5.189, 1208.0
			b, err := c.Interval(alpha, beta)
			mean := alpha / (alpha + beta)

			Convey("Then the bounds bracket the mean", func() {
				So(err, ShouldBeNil)
				So(b.Lower, ShouldBeGreaterThanOrEqualTo, 0)
				So(b.Lower, ShouldBeLessThanOrEqualTo, mean)
				So(mean, ShouldBeLessThanOrEqualTo, b.Upper)
				So(b.Upper, ShouldBeLessThanOrEqualTo, 1)
			})

			Convey("Then they agree with gonum's quantile", func() {
				dist := distuv.Beta{Alpha: alpha, Beta: beta}
				So(b.Lower, ShouldAlmostEqual, dist.Quantile(0.025), 1e-7)
				So(b.Upper, ShouldAlmostEqual, dist.Quantile(0.975), 1e-7)
			})
		})

		Convey("When narrower tails are configured", func() {
			wide, _ := c.Interval(3, 400)
			narrowCalc, err := interval.New(interval.WithTails(0.1, 0.9))
			So(err, ShouldBeNil)
			narrow, _ := narrowCalc.Interval(3, 400)

			Convey("Then the interval shrinks", func() {
				So(narrow.Lower, ShouldBeGreaterThan, wide.Lower)
				So(narrow.Upper, ShouldBeLessThan, wide.Upper)
			})
		})

		Convey("When a zero-event area sits under a rare-event prior", func() {
			alpha, beta := 0.02, 1500.0
			b, err := c.Interval(alpha, beta)
			mean := alpha / (alpha + beta)

			Convey("Then the interval is available and brackets the mean", func() {
				So(err, ShouldBeNil)
				So(b.Lower, ShouldBeLessThanOrEqualTo, mean)
				So(mean, ShouldBeLessThanOrEqualTo, b.Upper)
			})
		})

		Convey("When alpha is so small that the upper quantile falls below the mean", func() {
			for _, alpha := range []float64{0.005, 0.001} {
				_, err := c.Interval(alpha, 1000)

				var ne *model.NumericalError
				So(errors.As(err, &ne), ShouldBeTrue)
				So(errors.Is(err, model.ErrIntervalExcludesMean), ShouldBeTrue)
				So(ne.Alpha, ShouldEqual, alpha)
			}
		})

		Convey("When the root finder is starved of iterations", func() {
			starved, err := interval.New(interval.WithMaxIterations(1))
			So(err, ShouldBeNil)
			_, err = starved.Interval(5.189, 1208)

			Convey("Then a NumericalError reports non-convergence", func() {
				var ne *model.NumericalError
				So(errors.As(err, &ne), ShouldBeTrue)
				So(errors.Is(err, model.ErrNoConvergence), ShouldBeTrue)
				So(ne.Alpha, ShouldEqual, 5.189)
			})
		})
	})
}
