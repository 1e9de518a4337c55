package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Typed errors below wrap one of these so callers can
// use errors.Is for the cause and errors.As for the context.
var (
	ErrNegativeCount         = errors.New("negative count")
	ErrEventsExceedExposure  = errors.New("event count exceeds exposure count")
	ErrEventsWithoutExposure = errors.New("events reported with zero exposure")
	ErrDuplicateArea         = errors.New("duplicate area id")
	ErrMalformedRow          = errors.New("malformed row")
	ErrInvalidAggregate      = errors.New("invalid aggregate reference value")
	ErrInvalidTails          = errors.New("invalid tail probabilities")
	ErrNoConvergence         = errors.New("quantile did not converge")
	ErrIntervalExcludesMean  = errors.New("equal-tailed interval does not contain the mean")
)

// DataError reports an invalid input row. The batch continues without it.
type DataError struct {
	AreaID string
	Row    int
	Err    error
}

func (e *DataError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("area %q (row %d): %v", e.AreaID, e.Row, e.Err)
	}
	return fmt.Sprintf("area %q: %v", e.AreaID, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// ConfigError reports an invalid run-wide setting. It is fatal to the run.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NumericalError reports a quantile failure for a single area.
type NumericalError struct {
	AreaID string
	Alpha  float64
	Beta   float64
	P      float64
	Err    error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("area %q: quantile p=%g of Beta(%g, %g): %v", e.AreaID, e.P, e.Alpha, e.Beta, e.Err)
}

func (e *NumericalError) Unwrap() error { return e.Err }

// Reject converts a per-area error into a manifest entry.
func Reject(areaID string, row int, err error) Rejection {
	r := Rejection{AreaID: areaID, Row: row, Kind: KindData, Reason: err.Error()}

	var de *DataError
	if errors.As(err, &de) {
		r.Reason = de.Err.Error()
		if r.Row == 0 {
			r.Row = de.Row
		}
	}
	var ne *NumericalError
	if errors.As(err, &ne) {
		r.Kind = KindNumerical
		r.Reason = fmt.Sprintf("p=%g: %v", ne.P, ne.Err)
	}
	return r
}
