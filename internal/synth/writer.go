package synth

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/jszwec/csvutil"

	"github.com/okian/arearisk/internal/domain/model"
)

// csvArea is the on-disk row. The extra true_rate column is ignored by the
// estimator's reader.
type csvArea struct {
	AreaID        string  `csv:"area_id"`
	EventCount    int64   `csv:"event_count"`
	ExposureCount int64   `csv:"exposure_count"`
	TrueRate      float64 `csv:"true_rate"`
}

// WriteCSV writes areas in the estimator's input layout plus true_rate.
func WriteCSV(w io.Writer, areas []Area) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(csvArea{}); err != nil {
		return fmt.Errorf("synth: encode header: %w", err)
	}
	for i := range areas {
		row := csvArea{
			AreaID:        areas[i].AreaID,
			EventCount:    areas[i].EventCount,
			ExposureCount: areas[i].ExposureCount,
			TrueRate:      areas[i].TrueRate,
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("synth: encode row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Accuracy compares raw rates and shrunk estimates to the true rates.
type Accuracy struct {
	Areas      int     // areas with both an estimate and exposure
	RawRMSE    float64 // events/exposure against the true rate
	ShrunkRMSE float64 // posterior mean against the true rate
}

// Score matches estimates to areas by id. Zero-exposure areas have no raw
// rate and are skipped.
func Score(areas []Area, estimates []model.PosteriorEstimate) Accuracy {
	truth := make(map[string]float64, len(areas))
	for i := range areas {
		truth[areas[i].AreaID] = areas[i].TrueRate
	}

	var acc Accuracy
	var rawSq, shrunkSq float64
	for _, e := range estimates {
		p, ok := truth[e.AreaID]
		if !ok || e.ZeroExposure {
			continue
		}
		raw := float64(e.EventCount) / float64(e.ExposureCount)
		rawSq += (raw - p) * (raw - p)
		shrunkSq += (e.Mean - p) * (e.Mean - p)
		acc.Areas++
	}
	if acc.Areas > 0 {
		acc.RawRMSE = math.Sqrt(rawSq / float64(acc.Areas))
		acc.ShrunkRMSE = math.Sqrt(shrunkSq / float64(acc.Areas))
	}
	return acc
}
