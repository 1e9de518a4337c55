package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/tealeg/xlsx/v2"

	"github.com/okian/arearisk/internal/domain/model"
)

// Required input columns. Column order is free and extra columns are ignored.
const (
	ColumnAreaID        = "area_id"
	ColumnEventCount    = "event_count"
	ColumnExposureCount = "exposure_count"
)

// Row is a parsed observation with its 1-based data row number.
type Row struct {
	Number int
	model.AreaObservation
}

// Table is the result of reading an input file. Rows that could not be
// parsed are reported in Rejected and do not stop the read.
type Table struct {
	Rows     []Row
	Rejected []model.Rejection
}

// Received is the number of data rows read, parsed or not.
func (t *Table) Received() int {
	return len(t.Rows) + len(t.Rejected)
}

// rawRow keeps counts as text so a bad cell rejects one row instead of
// aborting the decoder.
type rawRow struct {
	AreaID        string `csv:"area_id"`
	EventCount    string `csv:"event_count"`
	ExposureCount string `csv:"exposure_count"`
}

// ReadFile reads an input table from path.
func ReadFile(path string, format Format) (*Table, error) {
	switch format {
	case FormatXLSX:
		return ReadXLSX(path)
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("%w for input: %q", ErrUnknownFormat, format)
	}
}

// ReadCSV reads a CSV table with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return decode(cr)
}

// ReadXLSX reads the first sheet of a workbook. The first row is the header.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open file: %w", err)
	}
	if len(f.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	records := make([][]string, 0, len(f.Sheets[0].Rows))
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return decode(&sliceReader{records: records})
}

// sliceReader adapts in-memory records to csvutil.Reader.
type sliceReader struct {
	records [][]string
	next    int
}

func (s *sliceReader) Read() ([]string, error) {
	if s.next >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

func decode(r csvutil.Reader) (*Table, error) {
	dec, err := csvutil.NewDecoder(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(dec.Header()); err != nil {
		return nil, err
	}

	t := &Table{}
	for n := 1; ; n++ {
		var raw rawRow
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			t.Rejected = append(t.Rejected, model.Reject(raw.AreaID, n, &model.DataError{
				AreaID: raw.AreaID, Row: n, Err: fmt.Errorf("%w: %v", model.ErrMalformedRow, err),
			}))
			continue
		}

		obs, err := parseRow(raw)
		if err != nil {
			t.Rejected = append(t.Rejected, model.Reject(obs.AreaID, n, &model.DataError{
				AreaID: obs.AreaID, Row: n, Err: err,
			}))
			continue
		}
		t.Rows = append(t.Rows, Row{Number: n, AreaObservation: obs})
	}
}

func checkHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, col := range []string{ColumnAreaID, ColumnEventCount, ColumnExposureCount} {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

func parseRow(raw rawRow) (model.AreaObservation, error) {
	obs := model.AreaObservation{AreaID: strings.TrimSpace(raw.AreaID)}
	if obs.AreaID == "" {
		return obs, fmt.Errorf("%w: empty %s", model.ErrMalformedRow, ColumnAreaID)
	}

	var err error
	if obs.EventCount, err = parseCount(raw.EventCount); err != nil {
		return obs, fmt.Errorf("%w: %s %v", model.ErrMalformedRow, ColumnEventCount, err)
	}
	if obs.ExposureCount, err = parseCount(raw.ExposureCount); err != nil {
		return obs, fmt.Errorf("%w: %s %v", model.ErrMalformedRow, ColumnExposureCount, err)
	}
	return obs, nil
}

// parseCount accepts integers, and integral floats as spreadsheets store them.
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}
