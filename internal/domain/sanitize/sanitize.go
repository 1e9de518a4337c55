// Package sanitize normalizes exposure denominators before estimation.
//
// A zero denominator is never turned into a rate. The observation is passed
// through and tagged so the estimator falls back to the prior.
package sanitize

import "github.com/okian/arearisk/internal/domain/model"

// Observation validates a single row. row is the 1-based position in the
// input table and is only used for error reporting.
func Observation(obs model.AreaObservation, row int) (model.SanitizedObservation, error) {
	switch {
	case obs.EventCount < 0 || obs.ExposureCount < 0:
		return model.SanitizedObservation{}, &model.DataError{AreaID: obs.AreaID, Row: row, Err: model.ErrNegativeCount}
	case obs.ExposureCount == 0 && obs.EventCount > 0:
		return model.SanitizedObservation{}, &model.DataError{AreaID: obs.AreaID, Row: row, Err: model.ErrEventsWithoutExposure}
	case obs.EventCount > obs.ExposureCount:
		return model.SanitizedObservation{}, &model.DataError{AreaID: obs.AreaID, Row: row, Err: model.ErrEventsExceedExposure}
	}

	return model.SanitizedObservation{
		AreaObservation: obs,
		ZeroExposure:    obs.ExposureCount == 0,
	}, nil
}
