package workspace

import (
	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/table"
)

// Controls says which UI controls are enabled
type Controls struct {
	QuantityInput bool `json:"quantity_input"`
	PrintSingle   bool `json:"print_single"`
	PrintBulk     bool `json:"print_bulk"`
	PrintSelected bool `json:"print_selected"`
	Generate      bool `json:"generate"`
	BulkGenerate  bool `json:"bulk_generate"`
	FileInput     bool `json:"file_input"`
}

// ControlsFor derives the enabled controls for a state
func ControlsFor(mode Mode, busy, anySelected bool) Controls {
	return Controls{
		QuantityInput: mode == SingleGenerated,
		PrintSingle:   mode == SingleGenerated,
		PrintBulk:     mode == BulkGenerated,
		PrintSelected: mode == BulkGenerated && anySelected,
		Generate:      !busy,
		BulkGenerate:  !busy,
		FileInput:     !busy,
	}
}

// TableView is the detail table as the UI paints it
type TableView struct {
	Columns          []string        `json:"columns"`
	Discovered       []string        `json:"discovered"`
	Extra            []string        `json:"extra"`
	SortColumn       string          `json:"sort_column,omitempty"`
	Ascending        bool            `json:"ascending"`
	Rows             []table.RowView `json:"rows"`
	AllSelected      bool            `json:"all_selected"`
	CanPrintSelected bool            `json:"can_print_selected"`
}

// View is a complete render description of the workspace
type View struct {
	// Version increases with every published change
	Version   uint64        `json:"version"`
	Mode      Mode          `json:"mode"`
	Busy      bool          `json:"busy"`
	Controls  Controls      `json:"controls"`
	Layout    label.Layout  `json:"layout"`
	Quantity  int           `json:"quantity"`
	Single    *label.Record `json:"single,omitempty"`
	Rows      []label.Row   `json:"rows"`
	TileCount int           `json:"tile_count"`
	Table     *TableView    `json:"table,omitempty"`
}

func (w *Workspace) viewLocked() View {
	rows := w.rowsLocked()
	v := View{
		Version:   w.version,
		Mode:      w.mode,
		Busy:      w.busy,
		Layout:    w.layout,
		Quantity:  w.quantity,
		Rows:      rows,
		TileCount: label.Count(rows),
	}
	if w.single != nil {
		rec := *w.single
		v.Single = &rec
	}

	anySelected := false
	if w.table != nil {
		col, asc := w.table.SortState()
		anySelected = w.table.CanPrintSelected()
		v.Table = &TableView{
			Columns:          w.table.Columns(),
			Discovered:       w.table.Discovered(),
			Extra:            w.table.ExtraColumns(),
			SortColumn:       col,
			Ascending:        asc,
			Rows:             w.table.Rows(),
			AllSelected:      w.table.AllSelected(),
			CanPrintSelected: anySelected,
		}
	}
	v.Controls = ControlsFor(w.mode, w.busy, anySelected)
	return v
}
