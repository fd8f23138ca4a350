// Package sheet turns uploaded spreadsheets into ordered rows keyed by
// normalized header name.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/prince-dkc/universal-qr-print/internal/label"
)

// MaxUploadSize limits the size of an uploaded sheet
const MaxUploadSize = 10 * 1024 * 1024

// ErrUnsupportedFormat is returned for file types no reader handles
var ErrUnsupportedFormat = errors.New("unsupported sheet format")

// ErrTooLarge is returned for uploads over MaxUploadSize
var ErrTooLarge = errors.New("sheet too large")

// Row is one data row. Blank cells are omitted, so a missing key means
// the cell was empty.
type Row map[string]string

// Has reports whether the row carries a non-blank value for column
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Sheet is the first worksheet of an upload
type Sheet struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// HasColumn reports whether the header row contains column
func (s Sheet) HasColumn(column string) bool {
	for _, h := range s.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// ExtraColumns returns the non-reserved headers in sheet order
func (s Sheet) ExtraColumns() []string {
	var extra []string
	for _, h := range s.Headers {
		if !label.IsReserved(h) {
			extra = append(extra, h)
		}
	}
	return extra
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeHeader lower-cases a header and replaces whitespace runs with
// underscores, so "QR Code" and "qr_code" are the same column.
func NormalizeHeader(h string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_")
}

// Read parses an upload, picking the reader from the file extension
func Read(filename string, r io.Reader) (Sheet, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return Sheet{}, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, MaxUploadSize)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm", ".xltx":
		return ReadXLSX(bytes.NewReader(data))
	case ".csv", ".txt":
		return ReadCSV(bytes.NewReader(data))
	case ".parquet":
		return ReadParquet(bytes.NewReader(data), int64(len(data)))
	default:
		return Sheet{}, fmt.Errorf("%w: %s (supported: .xlsx, .csv, .parquet)", ErrUnsupportedFormat, ext)
	}
}

// build assembles a Sheet from a raw header row and raw data rows
func build(name string, header []string, records [][]string) Sheet {
	s := Sheet{Name: name, Headers: make([]string, 0, len(header))}

	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = NormalizeHeader(h)
		if keys[i] != "" {
			s.Headers = append(s.Headers, keys[i])
		}
	}

	for _, rec := range records {
		row := Row{}
		for i, cell := range rec {
			if i >= len(keys) || keys[i] == "" {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			row[keys[i]] = strings.TrimSpace(cell)
		}
		if len(row) == 0 {
			continue
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}
