// Package model contains domain models passed between layers.
package model

// AreaObservation is one input row: a geographic unit with an observed event
// count and an exposure denominator. ExposureCount may be a proxy estimate and
// may legitimately be zero.
type AreaObservation struct {
	AreaID        string // opaque, unique per run
	EventCount    int64  // observed events
	ExposureCount int64  // population or time at risk
}

// SanitizedObservation is an observation that passed validation. ZeroExposure
// marks rows whose estimate must come from the prior alone.
type SanitizedObservation struct {
	AreaObservation
	ZeroExposure bool
}

// AreaJob is the unit of work handed to estimation workers. Index is the
// position of the result slot the worker owns.
type AreaJob struct {
	Index       int
	Observation SanitizedObservation
}

// PriorMethod names the derivation used for the global prior.
type PriorMethod string

// Supported prior derivations.
const (
	PriorAggregate  PriorMethod = "aggregate"
	PriorMeanStdDev PriorMethod = "mean_stddev"
	PriorExplicit   PriorMethod = "explicit"
)

// PriorHyperparameters are the Beta(alpha0, beta0) shape parameters shared by
// every area in a run. Values are passed by copy and never mutated.
type PriorHyperparameters struct {
	Alpha0 float64     `json:"alpha0"`
	Beta0  float64     `json:"beta0"`
	Method PriorMethod `json:"method"`
}

// Mean returns the prior mean alpha0/(alpha0+beta0).
func (p PriorHyperparameters) Mean() float64 {
	return p.Alpha0 / (p.Alpha0 + p.Beta0)
}

// EffectiveSampleSize is the number of pseudo-observations the prior carries.
func (p PriorHyperparameters) EffectiveSampleSize() float64 {
	return p.Alpha0 + p.Beta0
}

// PosteriorEstimate is the per-area Beta(alpha, beta) posterior summary.
// LowerBound and UpperBound are meaningful only when IntervalAvailable is true.
type PosteriorEstimate struct {
	AreaID            string
	EventCount        int64
	ExposureCount     int64
	Alpha             float64
	Beta              float64
	Mean              float64
	LowerBound        float64
	UpperBound        float64
	IntervalAvailable bool
	ZeroExposure      bool
}

// OutputRecord is a reporting row with rates multiplied by the configured
// scale factor. Nil bounds mean the interval could not be computed.
type OutputRecord struct {
	AreaID            string   `json:"area_id" csv:"area_id"`
	Mean              float64  `json:"mean" csv:"mean"`
	LowerBound        *float64 `json:"lower_bound" csv:"lower_bound,omitempty"`
	UpperBound        *float64 `json:"upper_bound" csv:"upper_bound,omitempty"`
	EventCount        int64    `json:"event_count" csv:"event_count"`
	ExposureCount     int64    `json:"exposure_count" csv:"exposure_count"`
	ZeroExposure      bool     `json:"zero_exposure" csv:"zero_exposure"`
	IntervalAvailable bool     `json:"interval_available" csv:"interval_available"`
}

// Record scales an estimate for reporting.
func (e PosteriorEstimate) Record(scaleFactor float64) OutputRecord {
	rec := OutputRecord{
		AreaID:            e.AreaID,
		Mean:              e.Mean * scaleFactor,
		EventCount:        e.EventCount,
		ExposureCount:     e.ExposureCount,
		ZeroExposure:      e.ZeroExposure,
		IntervalAvailable: e.IntervalAvailable,
	}
	if e.IntervalAvailable {
		lo := e.LowerBound * scaleFactor
		hi := e.UpperBound * scaleFactor
		rec.LowerBound = &lo
		rec.UpperBound = &hi
	}
	return rec
}

// Rejection kinds reported in the run manifest.
const (
	KindData      = "data"
	KindNumerical = "numerical"
)

// Rejection is a manifest entry for a row that was rejected or degraded.
// Row is the 1-based data row in the input table, 0 when unknown.
type Rejection struct {
	AreaID string `json:"area_id"`
	Row    int    `json:"row,omitempty"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
