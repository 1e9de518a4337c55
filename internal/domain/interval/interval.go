// Package interval computes equal-tailed credible intervals of a Beta
// posterior by inverting its cumulative distribution function.
package interval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/arearisk/internal/domain/model"
)

// Default interval configuration constants.
const (
	defaultLowerTail     = 0.025
	defaultUpperTail     = 0.975
	defaultMaxIterations = 200
	defaultTolerance     = 1e-12
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithTails sets the lower and upper tail probabilities.
func WithTails(lower, upper float64) Option {
	return func(c *Calculator) {
		c.lower = lower
		c.upper = upper
	}
}

// WithMaxIterations bounds the root finder per quantile.
func WithMaxIterations(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithTolerance sets the relative step size at which the root finder stops.
func WithTolerance(tol float64) Option {
	return func(c *Calculator) {
		if tol > 0 {
			c.tolerance = tol
		}
	}
}

// Calculator computes the quantiles at two fixed tail probabilities.
// It holds no mutable state and may be shared by workers.
type Calculator struct {
	lower         float64
	upper         float64
	maxIterations int
	tolerance     float64
}

// New creates a Calculator. Tails must satisfy 0 < lower < upper < 1.
func New(opts ...Option) (*Calculator, error) {
	c := &Calculator{
		lower:         defaultLowerTail,
		upper:         defaultUpperTail,
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !(c.lower > 0 && c.lower < c.upper && c.upper < 1) {
		return nil, &model.ConfigError{
			Field: "lower_tail/upper_tail",
			Err:   fmt.Errorf("%w: need 0 < %g < %g < 1", model.ErrInvalidTails, c.lower, c.upper),
		}
	}
	return c, nil
}

// Tails returns the configured tail probabilities.
func (c *Calculator) Tails() (lower, upper float64) {
	return c.lower, c.upper
}

// Bounds is the result of Interval.
type Bounds struct {
	Lower      float64
	Upper      float64
	Iterations int // root-finder iterations across both quantiles
}

// Interval returns the lower and upper quantiles of Beta(alpha, beta).
// A failure on either side returns a *model.NumericalError without AreaID;
// callers attach the area. Bounds that do not contain the mean
// alpha/(alpha+beta) are reported as ErrIntervalExcludesMean, which happens
// when alpha is so small that the upper tail quantile falls below the mean.
func (c *Calculator) Interval(alpha, beta float64) (Bounds, error) {
	lo, nLo, err := c.Quantile(alpha, beta, c.lower)
	if err != nil {
		return Bounds{Iterations: nLo}, err
	}
	hi, nHi, err := c.Quantile(alpha, beta, c.upper)
	if err != nil {
		return Bounds{Iterations: nLo + nHi}, err
	}
	b := Bounds{Lower: lo, Upper: hi, Iterations: nLo + nHi}

	mean := alpha / (alpha + beta)
	if lo > mean || hi < mean {
		return Bounds{Iterations: b.Iterations}, &model.NumericalError{
			Alpha: alpha,
			Beta:  beta,
			P:     c.upper,
			Err:   fmt.Errorf("%w: [%g, %g] vs %g", model.ErrIntervalExcludesMean, lo, hi, mean),
		}
	}
	return b, nil
}

// Quantile returns x with P(X <= x) = p for X ~ Beta(alpha, beta), and the
// number of iterations spent.
//
// Newton steps on the regularized incomplete beta function are kept inside
// a bracket that shrinks every iteration; a step that would leave the
// bracket is replaced by bisection. While the bracket spans more than a
// factor of two the bisection is geometric, so quantiles near 1e-200 are
// reached in a few dozen steps instead of hundreds of halvings.
func (c *Calculator) Quantile(alpha, beta, p float64) (float64, int, error) {
	fail := func(iter int, cause error) (float64, int, error) {
		return 0, iter, &model.NumericalError{Alpha: alpha, Beta: beta, P: p, Err: cause}
	}
	if !(alpha > 0) || !(beta > 0) || math.IsInf(alpha, 0) || math.IsInf(beta, 0) {
		return fail(0, fmt.Errorf("invalid shape parameters"))
	}

	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	lo, hi := 0.0, 1.0
	x := initialGuess(alpha, beta, p)

	for iter := 1; iter <= c.maxIterations; iter++ {
		f := dist.CDF(x) - p
		if math.IsNaN(f) {
			return fail(iter, fmt.Errorf("%w: CDF not finite at x=%g", model.ErrNoConvergence, x))
		}
		if f == 0 {
			return x, iter, nil
		}
		if f < 0 {
			lo = x
		} else {
			hi = x
		}

		next := math.NaN()
		if d := dist.Prob(x); d > 0 && !math.IsInf(d, 0) {
			next = x - f/d
		}
		if math.IsNaN(next) || next <= lo || next >= hi {
			next = bisect(lo, hi)
		}
		if math.Abs(next-x) <= c.tolerance*next || next == lo || next == hi {
			return next, iter, nil
		}
		x = next
	}
	return fail(c.maxIterations, fmt.Errorf("%w after %d iterations", model.ErrNoConvergence, c.maxIterations))
}

// bisect splits [lo, hi] arithmetically once hi <= 2*lo and geometrically
// before that, treating lo == 0 as the smallest positive float64.
func bisect(lo, hi float64) float64 {
	if lo > 0 && hi <= 2*lo {
		return lo + (hi-lo)/2
	}
	floor := math.Max(lo, math.SmallestNonzeroFloat64)
	mid := math.Exp((math.Log(floor) + math.Log(hi)) / 2)
	if !(mid > lo && mid < hi) {
		return lo + (hi-lo)/2
	}
	return mid
}

// initialGuess starts small shapes from the small-x expansion of the CDF,
// I_x(a, b) ~ x^a / (a B(a, b)), and everything else from the normal
// approximation. Either falls back to the mean outside (0, 1).
func initialGuess(alpha, beta, p float64) float64 {
	n := alpha + beta
	mean := alpha / n
	if alpha < 1 {
		x := math.Exp((math.Log(p) + math.Log(alpha) + logBeta(alpha, beta)) / alpha)
		if x > 0 && x < 1 {
			return x
		}
	}
	sd := math.Sqrt(alpha * beta / (n * n * (n + 1)))
	x := mean + distuv.UnitNormal.Quantile(p)*sd
	if !(x > 0 && x < 1) {
		return mean
	}
	return x
}

func logBeta(a, b float64) float64 {
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	return la + lb - lab
}
