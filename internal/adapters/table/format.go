// Package table reads area observations from CSV or XLSX and writes
// estimates as CSV, JSON or XLSX.
package table

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format names a table encoding.
type Format string

// Supported formats. XLSX is accepted for input and output, JSON for output only.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a format name. An empty name is inferred from the
// extension of path, defaulting to CSV.
func ParseFormat(name, path string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		if f := Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")); f.valid() {
			return f, nil
		}
		return FormatCSV, nil
	}
	if f := Format(name); f.valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

func (f Format) valid() bool {
	switch f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return true
	}
	return false
}
