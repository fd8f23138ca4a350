// Package table projects a bulk session into the detail table: a fixed
// column prefix plus operator-chosen sheet columns, with per-column sort,
// row selection, selective print and CSV export.
package table

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/prince-dkc/universal-qr-print/internal/label"
)

// ColumnSelect is the row checkbox column. It is never printed or exported.
const ColumnSelect = "select"

// CSVFilename is the suggested download name for exports
const CSVFilename = "qr_details.csv"

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrNothingSelected = errors.New("please select at least one row to print")
	ErrRowOutOfRange   = errors.New("row index out of range")
)

// ReservedColumns are always shown, in this order, after the select column
var ReservedColumns = []string{label.ColumnCode, label.ColumnQuantity, label.ColumnCaption}

// RowView is one table row in display order
type RowView struct {
	Index    int          `json:"index"`
	Selected bool         `json:"selected"`
	Record   label.Record `json:"record"`
	Cells    []string     `json:"cells"`
	// ClipCaption is set for captioned labels: only the left (QR) half of
	// the bitmap is shown.
	ClipCaption bool `json:"clip_caption"`
}

// Table is the projection of a bulk session. Row indexes always refer to
// the session order, independent of the current sort.
type Table struct {
	records    []label.Record
	discovered []string
	extra      []string
	order      []int
	ascending  map[string]bool
	sortedBy   string
	selected   map[int]bool
}

// New builds an unsorted table with no extra columns
func New(records []label.Record, discovered []string) *Table {
	t := &Table{
		records:    records,
		discovered: nonReserved(discovered),
		order:      make([]int, len(records)),
		ascending:  make(map[string]bool),
		selected:   make(map[int]bool),
	}
	for i := range t.order {
		t.order[i] = i
	}
	return t
}

// Project builds a table showing the given extra columns
func Project(records []label.Record, discovered, extra []string) (*Table, error) {
	t := New(records, discovered)
	if err := t.SetExtraColumns(extra); err != nil {
		return nil, err
	}
	return t, nil
}

// SetExtraColumns replaces the projected extra columns. Each must be a
// discovered sheet column; duplicates are dropped.
func (t *Table) SetExtraColumns(extra []string) error {
	cols := make([]string, 0, len(extra))
	for _, c := range extra {
		if !slices.Contains(t.discovered, c) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	t.extra = cols
	return nil
}

// Discovered returns every non-reserved sheet column
func (t *Table) Discovered() []string {
	return slices.Clone(t.discovered)
}

// ExtraColumns returns the projected extra columns
func (t *Table) ExtraColumns() []string {
	return slices.Clone(t.extra)
}

// Columns returns the full header including the select column
func (t *Table) Columns() []string {
	return append([]string{ColumnSelect}, t.DataColumns()...)
}

// DataColumns returns the printable/exportable columns
func (t *Table) DataColumns() []string {
	cols := slices.Clone(ReservedColumns)
	return append(cols, t.extra...)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.records)
}

// SortBy makes column the primary sort key and toggles its direction,
// starting ascending. Remaining sheet columns break ties, always ascending.
func (t *Table) SortBy(column string) error {
	if !label.IsReserved(column) && !slices.Contains(t.discovered, column) {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	t.ascending[column] = !t.ascending[column]
	t.sortedBy = column

	keys := []string{column}
	for _, c := range t.discovered {
		if c != column {
			keys = append(keys, c)
		}
	}

	cmp := newComparer()
	asc := t.ascending[column]
	slices.SortStableFunc(t.order, func(a, b int) int {
		ra, rb := t.records[a], t.records[b]
		for _, key := range keys {
			c := cmp.compare(ra.Value(key), rb.Value(key))
			if c == 0 {
				continue
			}
			if key == column && !asc {
				return -c
			}
			return c
		}
		return 0
	})
	return nil
}

// SortState reports the primary sort column and its direction
func (t *Table) SortState() (string, bool) {
	return t.sortedBy, t.ascending[t.sortedBy]
}

// SetSelected toggles one row by session index
func (t *Table) SetSelected(index int, selected bool) error {
	if index < 0 || index >= len(t.records) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	if selected {
		t.selected[index] = true
	} else {
		delete(t.selected, index)
	}
	return nil
}

// SelectAll sets or clears every row
func (t *Table) SelectAll(selected bool) {
	clear(t.selected)
	if !selected {
		return
	}
	for i := range t.records {
		t.selected[i] = true
	}
}

// CanPrintSelected reports whether at least one row is selected
func (t *Table) CanPrintSelected() bool {
	return len(t.selected) > 0
}

// AllSelected reports whether every row is selected
func (t *Table) AllSelected() bool {
	return len(t.records) > 0 && len(t.selected) == len(t.records)
}

// Selected returns the selected session indexes in display order
func (t *Table) Selected() []int {
	var out []int
	for _, i := range t.order {
		if t.selected[i] {
			out = append(out, i)
		}
	}
	return out
}

// Rows returns every row in display order
func (t *Table) Rows() []RowView {
	rows := make([]RowView, 0, len(t.order))
	for _, i := range t.order {
		rows = append(rows, t.row(i))
	}
	return rows
}

// PrintRows returns only the selected rows, in display order
func (t *Table) PrintRows() ([]RowView, error) {
	sel := t.Selected()
	if len(sel) == 0 {
		return nil, ErrNothingSelected
	}
	rows := make([]RowView, 0, len(sel))
	for _, i := range sel {
		rows = append(rows, t.row(i))
	}
	return rows, nil
}

func (t *Table) row(i int) RowView {
	rec := t.records[i]
	cols := t.DataColumns()
	cells := make([]string, len(cols))
	for j, c := range cols {
		cells[j], _ = rec.Lookup(c)
	}
	return RowView{
		Index:       i,
		Selected:    t.selected[i],
		Record:      rec,
		Cells:       cells,
		ClipCaption: rec.HasCaption,
	}
}

// WriteCSV exports every row in display order. All fields are quoted and
// missing values are written as empty strings.
func (t *Table) WriteCSV(w io.Writer) error {
	cols := t.DataColumns()
	lines := make([]string, 0, len(t.order)+1)
	lines = append(lines, strings.Join(cols, ","))

	for _, i := range t.order {
		fields := make([]string, len(cols))
		for j, c := range cols {
			v, _ := t.records[i].Lookup(c)
			fields[j] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		lines = append(lines, strings.Join(fields, ","))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func nonReserved(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "" || label.IsReserved(c) || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
