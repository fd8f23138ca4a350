package label

import "fmt"

// Cell describes the default tile geometry for one class of labels
type Cell struct {
	WidthMM  float64 `json:"width_mm" yaml:"width_mm"`
	HeightMM float64 `json:"height_mm" yaml:"height_mm"`
	PerRow   int     `json:"per_row" yaml:"per_row"`
}

// Sizing holds the defaults used when no explicit layout override is set
type Sizing struct {
	Captioned   Cell `json:"captioned" yaml:"captioned"`
	Uncaptioned Cell `json:"uncaptioned" yaml:"uncaptioned"`
}

// Uncaptioned labels have shipped with two different default heights.
// Both are kept as named presets.
var (
	// CompactSizing uses 50x25mm for uncaptioned labels
	CompactSizing = Sizing{
		Captioned:   Cell{WidthMM: 100, HeightMM: 50, PerRow: 1},
		Uncaptioned: Cell{WidthMM: 50, HeightMM: 25, PerRow: 2},
	}
	// SquareSizing uses 50x50mm for uncaptioned labels
	SquareSizing = Sizing{
		Captioned:   Cell{WidthMM: 100, HeightMM: 50, PerRow: 1},
		Uncaptioned: Cell{WidthMM: 50, HeightMM: 50, PerRow: 2},
	}
)

// SizingPreset resolves a preset name from configuration
func SizingPreset(name string) (Sizing, error) {
	switch name {
	case "", "compact":
		return CompactSizing, nil
	case "square":
		return SquareSizing, nil
	}
	return Sizing{}, fmt.Errorf("unknown sizing preset %q", name)
}

// For returns the default cell for a record
func (s Sizing) For(hasCaption bool) Cell {
	if hasCaption {
		return s.Captioned
	}
	return s.Uncaptioned
}

// Layout holds the user-controlled layout parameters. Zero width, height or
// per-row means the value was never set explicitly.
type Layout struct {
	CellWidthMM  float64  `json:"width_mm"`
	CellHeightMM float64  `json:"height_mm"`
	PerRow       int      `json:"per_row"`
	PageSize     PageSize `json:"page_size"`
}

// Resolve returns the effective cell for a record under this layout
func (l Layout) Resolve(s Sizing, hasCaption bool) Cell {
	c := s.For(hasCaption)
	if l.CellWidthMM > 0 {
		c.WidthMM = l.CellWidthMM
	}
	if l.CellHeightMM > 0 {
		c.HeightMM = l.CellHeightMM
	}
	if l.PerRow > 0 {
		c.PerRow = l.PerRow
	}
	if c.PerRow <= 0 {
		c.PerRow = 1
	}
	return c
}

// TileCell is one physical label instance
type TileCell struct {
	Image    ImageRef `json:"image_ref"`
	Code     string   `json:"qr_code"`
	WidthMM  float64  `json:"width_mm"`
	HeightMM float64  `json:"height_mm"`
}

// Row is a left-to-right run of tiles
type Row []TileCell

// Tiler expands records into rows of tiles using a default sizing
type Tiler struct {
	Sizing Sizing
}

// Tile lays records out with the compact default sizing
func Tile(records []Record, params Layout) []Row {
	return Tiler{Sizing: CompactSizing}.Tile(records, params)
}

// Tile expands each record into Quantity tiles and packs them into rows.
// A row is closed once it holds the per-row count resolved for the record
// being placed; the trailing partial row is kept as is.
func (t Tiler) Tile(records []Record, params Layout) []Row {
	var rows []Row
	var current Row

	for _, rec := range records {
		cell := params.Resolve(t.Sizing, rec.HasCaption)
		for i := 0; i < NormalizeQuantity(rec.Quantity); i++ {
			if len(current) >= cell.PerRow {
				rows = append(rows, current)
				current = nil
			}
			current = append(current, TileCell{
				Image:    rec.Image,
				Code:     rec.Code,
				WidthMM:  cell.WidthMM,
				HeightMM: cell.HeightMM,
			})
		}
	}

	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows
}

// Count returns the number of tiles across rows
func Count(rows []Row) int {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	return n
}
