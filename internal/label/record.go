package label

import (
	"strconv"
	"strings"
)

// Reserved sheet columns. Every other column of an uploaded sheet is an
// "extra" column that can be projected into the detail table.
const (
	ColumnCode     = "qr_code"
	ColumnQuantity = "quantity"
	ColumnCaption  = "custom_text"
)

// ImageRef is an opaque handle to a generated label image
type ImageRef string

// Record represents one logical label entry before it is expanded into tiles
type Record struct {
	Code       string            `json:"qr_code"`
	Quantity   int               `json:"quantity"`
	Caption    string            `json:"custom_text"`
	HasCaption bool              `json:"has_custom_text"`
	Image      ImageRef          `json:"image_ref"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// NewRecord builds a record for a freshly generated image. HasCaption is
// fixed here and never recomputed.
func NewRecord(code string, quantity int, caption string, image ImageRef) Record {
	return Record{
		Code:       code,
		Quantity:   NormalizeQuantity(quantity),
		Caption:    caption,
		HasCaption: strings.TrimSpace(caption) != "",
		Image:      image,
	}
}

// WithImage returns a copy of the record pointing at a different image
func (r Record) WithImage(ref ImageRef) Record {
	r.Image = ref
	return r
}

// Value returns the display value of a column for this record
func (r Record) Value(column string) string {
	switch column {
	case ColumnCode:
		return r.Code
	case ColumnQuantity:
		return strconv.Itoa(NormalizeQuantity(r.Quantity))
	case ColumnCaption:
		return r.Caption
	}
	return r.Fields[column]
}

// Lookup is like Value but reports whether the column is present at all
func (r Record) Lookup(column string) (string, bool) {
	switch column {
	case ColumnCode, ColumnQuantity, ColumnCaption:
		return r.Value(column), true
	}
	v, ok := r.Fields[column]
	return v, ok
}

// IsReserved reports whether column is one of the fixed record columns
func IsReserved(column string) bool {
	return column == ColumnCode || column == ColumnQuantity || column == ColumnCaption
}

// DefaultMaxQuantity is the largest tile count accepted for one record
const DefaultMaxQuantity = 1000

// NormalizeQuantity maps non-positive quantities to 1
func NormalizeQuantity(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}

// ParseQuantity parses a sheet cell into a quantity. Blank or invalid
// input falls back to 1.
func ParseQuantity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return NormalizeQuantity(n)
	}
	// spreadsheets often store integers as "2.0"
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NormalizeQuantity(int(f))
	}
	return 1
}
