package table

import "errors"

// Sentinel kinds for table errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrUnknownFormat = errors.New("unknown table format")
	ErrEmptyWorkbook = errors.New("workbook has no sheets")
)
