package label

import (
	"fmt"
	"strings"
)

// PageSize is one of the fixed label stock sizes
type PageSize string

const (
	PageSmall  PageSize = "SMALL"
	PageMedium PageSize = "MEDIUM"
	PageLarge  PageSize = "LARGE"
)

// Dimensions is a width/height pair in millimeters
type Dimensions struct {
	WidthMM  float64 `json:"width_mm" yaml:"width_mm"`
	HeightMM float64 `json:"height_mm" yaml:"height_mm"`
}

var pageDimensions = map[PageSize]Dimensions{
	PageLarge:  {WidthMM: 100, HeightMM: 50},
	PageMedium: {WidthMM: 100, HeightMM: 25},
	PageSmall:  {WidthMM: 25, HeightMM: 25},
}

// PageSizes returns the supported sizes, largest first
func PageSizes() []PageSize {
	return []PageSize{PageLarge, PageMedium, PageSmall}
}

// Dimensions returns the physical page size. Unknown values resolve to LARGE.
func (p PageSize) Dimensions() Dimensions {
	if d, ok := pageDimensions[p]; ok {
		return d
	}
	return pageDimensions[PageLarge]
}

// Valid reports whether p is a known page size
func (p PageSize) Valid() bool {
	_, ok := pageDimensions[p]
	return ok
}

// ParsePageSize parses a page size name case-insensitively
func ParsePageSize(s string) (PageSize, error) {
	p := PageSize(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown page size %q", s)
	}
	return p, nil
}
