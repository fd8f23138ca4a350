// Package workspace holds the operator's current labels: the mode state
// machine between single and bulk generation, the layout, and the bulk
// detail table. All mutation is serialized; the lock is never held while
// waiting on the image service.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prince-dkc/universal-qr-print/internal/generate"
	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/render"
	"github.com/prince-dkc/universal-qr-print/internal/sheet"
	"github.com/prince-dkc/universal-qr-print/internal/snapshot"
	"github.com/prince-dkc/universal-qr-print/internal/table"
)

// Mode is the workspace state
type Mode string

const (
	Empty           Mode = "empty"
	SingleGenerated Mode = "single"
	BulkGenerated   Mode = "bulk"
)

var (
	ErrBusy       = errors.New("a generation is already running")
	ErrSuperseded = errors.New("labels were reset while generating")
	ErrNoSession  = errors.New("no bulk labels generated")
	ErrNoLabels   = errors.New("no labels generated")
	ErrDisabled   = errors.New("control is disabled")
)

// Generator produces label records
type Generator interface {
	Single(ctx context.Context, code, caption string) (label.Record, error)
	Bulk(ctx context.Context, s sheet.Sheet) ([]label.Record, error)
}

// Options configures a Workspace
type Options struct {
	Sizing label.Sizing
	// GuardDuplicateBulk rejects a second bulk run while a session exists.
	// When false the existing session is returned instead.
	GuardDuplicateBulk bool
	PageSize           label.PageSize
	// MaxQuantity caps the single-label tile count
	MaxQuantity int
	Snapshots          *snapshot.Snapshotter
	// OnChange receives the new view after every state change
	OnChange func(View)
}

// Workspace is the single source of truth for what is previewed and printed
type Workspace struct {
	gen    Generator
	images *images.Store
	opts   Options

	mu       sync.Mutex
	notifyMu sync.Mutex
	version  uint64
	mode     Mode
	busy     bool
	epoch    uint64
	layout   label.Layout
	quantity int
	single   *label.Record
	bulk     []label.Record
	table    *table.Table
}

// New creates an empty workspace
func New(gen Generator, store *images.Store, opts Options) *Workspace {
	if opts.Sizing == (label.Sizing{}) {
		opts.Sizing = label.CompactSizing
	}
	if !opts.PageSize.Valid() {
		opts.PageSize = label.PageLarge
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = label.DefaultMaxQuantity
	}
	return &Workspace{
		gen:      gen,
		images:   store,
		opts:     opts,
		mode:     Empty,
		layout:   label.Layout{PageSize: opts.PageSize},
		quantity: 1,
	}
}

// GenerateSingle replaces the workspace contents with one label
func (w *Workspace) GenerateSingle(ctx context.Context, code, caption string) (View, error) {
	epoch, err := w.begin()
	if err != nil {
		return View{}, err
	}
	defer w.end()

	rec, err := w.gen.Single(ctx, code, caption)
	if err != nil {
		return View{}, err
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.images.Release(rec.Image)
		return View{}, ErrSuperseded
	}
	w.clearLocked()
	w.mode = SingleGenerated
	w.single = &rec
	w.persistLocked(ctx)
	return w.publishLocked(), nil
}

// GenerateBulk builds a bulk session from an uploaded sheet
func (w *Workspace) GenerateBulk(ctx context.Context, s sheet.Sheet) (View, error) {
	w.mu.Lock()
	if w.mode == BulkGenerated {
		if w.opts.GuardDuplicateBulk {
			w.mu.Unlock()
			return View{}, fmt.Errorf("%w: reset or choose a new file first", generate.ErrAlreadyGenerated)
		}
		view := w.viewLocked()
		w.mu.Unlock()
		return view, nil
	}
	w.mu.Unlock()

	epoch, err := w.begin()
	if errors.Is(err, ErrBusy) {
		return View{}, fmt.Errorf("%w: %v", generate.ErrAlreadyGenerated, err)
	}
	if err != nil {
		return View{}, err
	}
	defer w.end()

	records, err := w.gen.Bulk(ctx, s)
	if err != nil {
		return View{}, err
	}

	w.mu.Lock()
	if w.epoch != epoch {
		w.mu.Unlock()
		w.images.ReleaseAll(records)
		return View{}, ErrSuperseded
	}
	w.clearLocked()
	w.mode = BulkGenerated
	w.bulk = records
	w.table = table.New(records, s.ExtraColumns())
	w.persistLocked(ctx)
	return w.publishLocked(), nil
}

// Reset releases every label and clears the persisted snapshot. Layout
// values are kept.
func (w *Workspace) Reset(ctx context.Context) View {
	w.mu.Lock()
	w.clearLocked()
	w.mode = Empty
	w.quantity = 1
	if w.opts.Snapshots != nil {
		if err := w.opts.Snapshots.Clear(ctx); err != nil {
			slog.Warn("Failed to clear snapshot", "err", err)
		}
	}
	slog.Info("Workspace reset")
	return w.publishLocked()
}

// SelectFile drops the current labels because a new upload is pending
func (w *Workspace) SelectFile(ctx context.Context) View {
	w.mu.Lock()
	w.clearLocked()
	w.mode = Empty
	w.persistLocked(ctx)
	return w.publishLocked()
}

// SetLayout replaces the explicit layout overrides
func (w *Workspace) SetLayout(ctx context.Context, l label.Layout) (View, error) {
	if l.CellWidthMM < 0 || l.CellHeightMM < 0 || l.PerRow < 0 {
		return View{}, fmt.Errorf("%w: layout values must not be negative", generate.ErrInvalidInput)
	}
	if l.PageSize == "" {
		l.PageSize = w.opts.PageSize
	}
	if !l.PageSize.Valid() {
		return View{}, fmt.Errorf("%w: unknown page size %q", generate.ErrInvalidInput, l.PageSize)
	}
	return w.update(ctx, func() error {
		w.layout = l
		return nil
	})
}

// SetPageSize selects the label stock. Cell dimensions follow the page.
func (w *Workspace) SetPageSize(ctx context.Context, p label.PageSize) (View, error) {
	if !p.Valid() {
		return View{}, fmt.Errorf("%w: unknown page size %q", generate.ErrInvalidInput, p)
	}
	return w.update(ctx, func() error {
		d := p.Dimensions()
		w.layout.PageSize = p
		w.layout.CellWidthMM = d.WidthMM
		w.layout.CellHeightMM = d.HeightMM
		return nil
	})
}

// SetQuantity sets how many copies of the single label are tiled
func (w *Workspace) SetQuantity(ctx context.Context, q int) (View, error) {
	if q > w.opts.MaxQuantity {
		return View{}, fmt.Errorf("%w: quantity %d exceeds %d", generate.ErrInvalidInput, q, w.opts.MaxQuantity)
	}
	return w.update(ctx, func() error {
		if w.mode != SingleGenerated {
			return fmt.Errorf("%w: quantity applies to single labels only", ErrDisabled)
		}
		w.quantity = label.NormalizeQuantity(q)
		return nil
	})
}

// SelectColumns chooses the extra sheet columns shown in the table
func (w *Workspace) SelectColumns(ctx context.Context, columns []string) (View, error) {
	return w.withTable(ctx, true, func(t *table.Table) error {
		return t.SetExtraColumns(columns)
	})
}

// SortBy sorts the table by column, toggling direction on repeat
func (w *Workspace) SortBy(ctx context.Context, column string) (View, error) {
	return w.withTable(ctx, false, func(t *table.Table) error {
		return t.SortBy(column)
	})
}

// SetSelected toggles one table row by session index
func (w *Workspace) SetSelected(ctx context.Context, index int, selected bool) (View, error) {
	return w.withTable(ctx, false, func(t *table.Table) error {
		return t.SetSelected(index, selected)
	})
}

// SelectAll sets or clears every table row
func (w *Workspace) SelectAll(ctx context.Context, selected bool) (View, error) {
	return w.withTable(ctx, false, func(t *table.Table) error {
		t.SelectAll(selected)
		return nil
	})
}

// View returns the current render description
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// LabelDocument writes the printable label sheet for the current mode
func (w *Workspace) LabelDocument(out io.Writer, src render.ImageSource, autoPrint bool) error {
	w.mu.Lock()
	if w.mode == Empty {
		w.mu.Unlock()
		return ErrNoLabels
	}
	rows := w.rowsLocked()
	page := w.layout.PageSize
	w.mu.Unlock()

	return render.Labels(out, rows, src, render.LabelOptions{PageSize: page, AutoPrint: autoPrint})
}

// Rows returns the current tiled layout
func (w *Workspace) Rows() ([]label.Row, label.PageSize, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode == Empty {
		return nil, "", ErrNoLabels
	}
	return w.rowsLocked(), w.layout.PageSize, nil
}

// TableDocument writes the selected table rows
func (w *Workspace) TableDocument(out io.Writer, src render.ImageSource, autoPrint bool) error {
	w.mu.Lock()
	if w.table == nil {
		w.mu.Unlock()
		return ErrNoSession
	}
	rows, err := w.table.PrintRows()
	cols := w.table.DataColumns()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	return render.Table(out, cols, rows, src, autoPrint)
}

// TestDocument writes the printer alignment page
func (w *Workspace) TestDocument(out io.Writer, imageURL string) error {
	return render.TestPage(out, imageURL)
}

// ExportCSV writes the table in display order
func (w *Workspace) ExportCSV(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.table == nil {
		return ErrNoSession
	}
	return w.table.WriteCSV(out)
}

// Restore loads the persisted snapshot, if any
func (w *Workspace) Restore(ctx context.Context) error {
	if w.opts.Snapshots == nil {
		return nil
	}
	st, err := w.opts.Snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if st.Layout.PageSize.Valid() {
		w.layout = st.Layout
	}

	switch {
	case len(st.Bulk) > 0:
		w.mode = BulkGenerated
		w.bulk = st.Bulk
		discovered := st.Projection.Columns
		if len(discovered) == 0 {
			discovered = fieldColumns(st.Bulk)
		}
		t, err := table.Project(st.Bulk, discovered, st.Projection.Extra)
		if err != nil {
			slog.Warn("Dropping restored column selection", "err", err)
			t = table.New(st.Bulk, discovered)
		}
		w.table = t
		slog.Info("Restored bulk labels", "rows", len(st.Bulk))
	case st.Single != nil:
		rec := label.Record{
			Code:       st.Single.Code,
			Quantity:   1,
			Caption:    st.Single.Caption,
			HasCaption: st.Single.HasCaption,
			Image:      st.Single.Image,
		}
		w.mode = SingleGenerated
		w.single = &rec
		w.quantity = min(label.NormalizeQuantity(st.Single.Quantity), w.opts.MaxQuantity)
		slog.Info("Restored single label", "code", rec.Code)
	}
	return nil
}

func (w *Workspace) begin() (uint64, error) {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return 0, ErrBusy
	}
	w.busy = true
	epoch := w.epoch
	w.publishLocked()
	return epoch, nil
}

func (w *Workspace) end() {
	w.mu.Lock()
	w.busy = false
	w.publishLocked()
}

func (w *Workspace) update(ctx context.Context, fn func() error) (View, error) {
	w.mu.Lock()
	if err := fn(); err != nil {
		w.mu.Unlock()
		return View{}, err
	}
	w.persistLocked(ctx)
	return w.publishLocked(), nil
}

func (w *Workspace) withTable(ctx context.Context, persist bool, fn func(*table.Table) error) (View, error) {
	w.mu.Lock()
	if w.table == nil {
		w.mu.Unlock()
		return View{}, ErrNoSession
	}
	if err := fn(w.table); err != nil {
		w.mu.Unlock()
		return View{}, err
	}
	if persist {
		w.persistLocked(ctx)
	}
	return w.publishLocked(), nil
}

// clearLocked releases every owned image and bumps the epoch so in-flight
// generations are discarded.
func (w *Workspace) clearLocked() {
	if w.single != nil {
		w.images.Release(w.single.Image)
		w.single = nil
	}
	if w.bulk != nil {
		w.images.ReleaseAll(w.bulk)
		w.bulk = nil
	}
	w.table = nil
	w.epoch++
}

func (w *Workspace) rowsLocked() []label.Row {
	tiler := label.Tiler{Sizing: w.opts.Sizing}
	switch w.mode {
	case SingleGenerated:
		rec := *w.single
		rec.Quantity = w.quantity
		return tiler.Tile([]label.Record{rec}, w.layout)
	case BulkGenerated:
		return tiler.Tile(w.bulk, w.layout)
	}
	return nil
}

func (w *Workspace) persistLocked(ctx context.Context) {
	if w.opts.Snapshots == nil {
		return
	}
	st := snapshot.State{
		Bulk:   w.bulk,
		Layout: w.layout,
	}
	if w.table != nil {
		st.Projection = snapshot.Projection{
			Columns: w.table.Discovered(),
			Extra:   w.table.ExtraColumns(),
		}
	}
	if w.single != nil {
		st.Single = &snapshot.SingleState{
			Code:       w.single.Code,
			Caption:    w.single.Caption,
			HasCaption: w.single.HasCaption,
			WidthMM:    w.layout.CellWidthMM,
			HeightMM:   w.layout.CellHeightMM,
			PerRow:     w.layout.PerRow,
			Quantity:   w.quantity,
			Image:      w.single.Image,
		}
	}
	if err := w.opts.Snapshots.Save(ctx, st); err != nil {
		slog.Warn("Failed to save snapshot", "err", err)
	}
}

// publishLocked stamps a new version, releases mu and hands the view to
// OnChange. notifyMu is taken before mu is released so observers see views
// in mutation order.
func (w *Workspace) publishLocked() View {
	w.version++
	view := w.viewLocked()
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	if w.opts.OnChange != nil {
		w.opts.OnChange(view)
	}
	return view
}

func fieldColumns(records []label.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for k := range r.Fields {
			if !seen[k] && !label.IsReserved(k) && strings.TrimSpace(k) != "" {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
