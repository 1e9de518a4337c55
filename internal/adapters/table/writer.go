package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/tealeg/xlsx/v2"

	"github.com/okian/arearisk/internal/domain/model"
)

// Output columns in order.
var outputHeader = []string{
	"area_id", "mean", "lower_bound", "upper_bound",
	"event_count", "exposure_count", "zero_exposure", "interval_available",
}

// Write encodes records in the given format.
func Write(w io.Writer, format Format, records []model.OutputRecord) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatJSON:
		return WriteJSON(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	default:
		return fmt.Errorf("%w for output: %q", ErrUnknownFormat, format)
	}
}

// WriteCSV writes records with a header row. Unavailable bounds are empty.
func WriteCSV(w io.Writer, records []model.OutputRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(model.OutputRecord{}); err != nil {
		return fmt.Errorf("encode csv header: %w", err)
	}
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encode csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes records as an indented JSON array. Unavailable bounds are null.
func WriteJSON(w io.Writer, records []model.OutputRecord) error {
	if records == nil {
		records = []model.OutputRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteXLSX writes records to a single "estimates" sheet.
func WriteXLSX(w io.Writer, records []model.OutputRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("estimates")
	if err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, name := range outputHeader {
		header.AddCell().SetString(name)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.AreaID)
		row.AddCell().SetFloat(rec.Mean)
		setOptionalFloat(row.AddCell(), rec.LowerBound)
		setOptionalFloat(row.AddCell(), rec.UpperBound)
		row.AddCell().SetInt64(rec.EventCount)
		row.AddCell().SetInt64(rec.ExposureCount)
		row.AddCell().SetBool(rec.ZeroExposure)
		row.AddCell().SetBool(rec.IntervalAvailable)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}

func setOptionalFloat(cell *xlsx.Cell, v *float64) {
	if v != nil {
		cell.SetFloat(*v)
	}
}

// ManifestCounts summarizes a run.
type ManifestCounts struct {
	Received     int `json:"received"`
	Estimated    int `json:"estimated"`
	Rejected     int `json:"rejected"`
	Degraded     int `json:"degraded"`
	ZeroExposure int `json:"zero_exposure"`
}

// Manifest lists the prior and every rejected or degraded area of a run.
type Manifest struct {
	RunID       string                     `json:"run_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Prior       model.PriorHyperparameters `json:"prior"`
	PriorMean   float64                    `json:"prior_mean"`
	LowerTail   float64                    `json:"lower_tail"`
	UpperTail   float64                    `json:"upper_tail"`
	ScaleFactor float64                    `json:"scale_factor"`
	Counts      ManifestCounts             `json:"counts"`
	Rejected    []model.Rejection          `json:"rejected"`
	Degraded    []model.Rejection          `json:"degraded"`
}

// WriteManifest writes m as indented JSON. Empty lists encode as [].
func WriteManifest(w io.Writer, m Manifest) error {
	if m.Rejected == nil {
		m.Rejected = []model.Rejection{}
	}
	if m.Degraded == nil {
		m.Degraded = []model.Rejection{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// FormatFloat renders a scaled rate for terminal tables.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
