package workspace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prince-dkc/universal-qr-print/internal/generate"
	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/sheet"
	"github.com/prince-dkc/universal-qr-print/internal/snapshot"
)

type fakeGen struct {
	store   *images.Store
	calls   atomic.Int32
	fail    error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeGen) wait() {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeGen) Single(_ context.Context, code, caption string) (label.Record, error) {
	f.calls.Add(1)
	f.wait()
	if f.fail != nil {
		return label.Record{}, f.fail
	}
	return label.NewRecord(code, 1, caption, f.store.Put([]byte(code), "image/png")), nil
}

func (f *fakeGen) Bulk(_ context.Context, s sheet.Sheet) ([]label.Record, error) {
	f.calls.Add(1)
	f.wait()
	if f.fail != nil {
		return nil, f.fail
	}
	records := make([]label.Record, 0, len(s.Rows))
	for _, row := range s.Rows {
		rec := label.NewRecord(row[label.ColumnCode], label.ParseQuantity(row[label.ColumnQuantity]),
			row[label.ColumnCaption], f.store.Put([]byte(row[label.ColumnCode]), "image/png"))
		rec.Fields = map[string]string(row)
		records = append(records, rec)
	}
	return records, nil
}

func testSheet() sheet.Sheet {
	return sheet.Sheet{
		Headers: []string{"qr_code", "quantity", "custom_text", "batch"},
		Rows: []sheet.Row{
			{"qr_code": "A", "quantity": "2", "batch": "b2"},
			{"qr_code": "B", "quantity": "1", "custom_text": "Dock", "batch": "b1"},
		},
	}
}

func newWorkspace(t *testing.T, opts Options) (*Workspace, *fakeGen, *images.Store) {
	t.Helper()
	store := images.NewStore()
	gen := &fakeGen{store: store}
	return New(gen, store, opts), gen, store
}

func TestControlsPerMode(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		busy bool
		sel  bool
		want Controls
	}{
		{"empty", Empty, false, false, Controls{Generate: true, BulkGenerate: true, FileInput: true}},
		{"single", SingleGenerated, false, false, Controls{QuantityInput: true, PrintSingle: true, Generate: true, BulkGenerate: true, FileInput: true}},
		{"bulk", BulkGenerated, false, false, Controls{PrintBulk: true, Generate: true, BulkGenerate: true, FileInput: true}},
		{"bulk selected", BulkGenerated, false, true, Controls{PrintBulk: true, PrintSelected: true, Generate: true, BulkGenerate: true, FileInput: true}},
		{"busy", Empty, true, false, Controls{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ControlsFor(tt.mode, tt.busy, tt.sel); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestModeTransitions(t *testing.T) {
	ctx := context.Background()
	ws, _, store := newWorkspace(t, Options{GuardDuplicateBulk: true})

	if ws.View().Mode != Empty {
		t.Fatal("Expected empty workspace")
	}

	v, err := ws.GenerateSingle(ctx, "S1", "")
	if err != nil {
		t.Fatalf("GenerateSingle failed: %v", err)
	}
	if v.Mode != SingleGenerated || v.TileCount != 1 || !v.Controls.PrintSingle {
		t.Fatalf("Unexpected single view %+v", v)
	}
	singleRef := v.Single.Image

	v, err = ws.GenerateBulk(ctx, testSheet())
	if err != nil {
		t.Fatalf("GenerateBulk failed: %v", err)
	}
	if v.Mode != BulkGenerated || v.Single != nil {
		t.Fatalf("Unexpected bulk view %+v", v)
	}
	if _, ok := store.Get(singleRef); ok {
		t.Error("Single image must be released when bulk labels replace it")
	}
	if v.TileCount != 3 {
		t.Errorf("Expected 3 tiles, got %d", v.TileCount)
	}
	if v.Controls.QuantityInput || v.Controls.PrintSingle || !v.Controls.PrintBulk {
		t.Errorf("Unexpected bulk controls %+v", v.Controls)
	}
	if v.Table == nil || len(v.Table.Discovered) != 1 || v.Table.Discovered[0] != "batch" {
		t.Fatalf("Unexpected table %+v", v.Table)
	}

	v, err = ws.GenerateSingle(ctx, "S2", "Shelf")
	if err != nil {
		t.Fatalf("GenerateSingle failed: %v", err)
	}
	if v.Table != nil || store.Len() != 1 {
		t.Errorf("Expected bulk session discarded, images left %d", store.Len())
	}
}

func TestDuplicateBulkGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("guarded", func(t *testing.T) {
		ws, gen, _ := newWorkspace(t, Options{GuardDuplicateBulk: true})
		first, err := ws.GenerateBulk(ctx, testSheet())
		if err != nil {
			t.Fatalf("GenerateBulk failed: %v", err)
		}
		_, err = ws.GenerateBulk(ctx, testSheet())
		if !errors.Is(err, generate.ErrAlreadyGenerated) {
			t.Fatalf("Expected ErrAlreadyGenerated, got %v", err)
		}
		if gen.calls.Load() != 1 {
			t.Errorf("Expected one generator call, got %d", gen.calls.Load())
		}
		if got := ws.View(); got.TileCount != first.TileCount || got.Mode != BulkGenerated {
			t.Error("Session must be unchanged")
		}
	})

	t.Run("reopen", func(t *testing.T) {
		ws, gen, _ := newWorkspace(t, Options{GuardDuplicateBulk: false})
		if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
			t.Fatalf("GenerateBulk failed: %v", err)
		}
		v, err := ws.GenerateBulk(ctx, testSheet())
		if err != nil {
			t.Fatalf("Expected existing session, got %v", err)
		}
		if v.Mode != BulkGenerated || gen.calls.Load() != 1 {
			t.Errorf("Expected no new generation, calls %d", gen.calls.Load())
		}
	})
}

func TestFailureReenablesControls(t *testing.T) {
	ctx := context.Background()
	ws, gen, _ := newWorkspace(t, Options{GuardDuplicateBulk: true})
	gen.fail = generate.ErrGenerationFailed

	if _, err := ws.GenerateBulk(ctx, testSheet()); !errors.Is(err, generate.ErrGenerationFailed) {
		t.Fatalf("Expected ErrGenerationFailed, got %v", err)
	}
	v := ws.View()
	if v.Mode != Empty || v.Busy {
		t.Errorf("Unexpected state after failure %+v", v)
	}
	if !v.Controls.Generate || !v.Controls.BulkGenerate || !v.Controls.FileInput {
		t.Errorf("Controls must be re-enabled after failure: %+v", v.Controls)
	}
}

func TestBusyRejectsSecondGeneration(t *testing.T) {
	ctx := context.Background()
	ws, gen, store := newWorkspace(t, Options{GuardDuplicateBulk: true})
	gen.started = make(chan struct{})
	gen.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := ws.GenerateSingle(ctx, "S1", "")
		errc <- err
	}()
	<-gen.started

	v := ws.View()
	if !v.Busy || v.Controls.Generate || v.Controls.FileInput {
		t.Errorf("Expected busy controls, got %+v", v.Controls)
	}
	if _, err := ws.GenerateSingle(ctx, "S2", ""); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if _, err := ws.GenerateBulk(ctx, testSheet()); !errors.Is(err, generate.ErrAlreadyGenerated) {
		t.Errorf("Expected ErrAlreadyGenerated while in flight, got %v", err)
	}

	// a file change while in flight supersedes the pending result
	ws.SelectFile(ctx)
	close(gen.gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected ErrSuperseded, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Superseded image must be released, %d left", store.Len())
	}
	if ws.View().Busy {
		t.Error("Busy flag must be cleared")
	}
}

func TestSelectFileClearsSession(t *testing.T) {
	ctx := context.Background()
	ws, _, store := newWorkspace(t, Options{GuardDuplicateBulk: true})
	if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
		t.Fatalf("GenerateBulk failed: %v", err)
	}

	v := ws.SelectFile(ctx)
	if v.Mode != Empty || v.Table != nil || v.Controls.PrintBulk {
		t.Errorf("Unexpected view %+v", v)
	}
	if store.Len() != 0 {
		t.Errorf("Expected images released, %d left", store.Len())
	}
	if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
		t.Errorf("Bulk generation must be allowed after a file change: %v", err)
	}
}

func TestQuantityAndLayout(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := newWorkspace(t, Options{})

	if _, err := ws.SetQuantity(ctx, 3); !errors.Is(err, ErrDisabled) {
		t.Errorf("Expected ErrDisabled in empty mode, got %v", err)
	}
	if _, err := ws.GenerateSingle(ctx, "S1", ""); err != nil {
		t.Fatalf("GenerateSingle failed: %v", err)
	}
	v, err := ws.SetQuantity(ctx, 5)
	if err != nil {
		t.Fatalf("SetQuantity failed: %v", err)
	}
	if v.TileCount != 5 || len(v.Rows) != 3 {
		t.Errorf("Expected 5 tiles in 3 rows, got %d in %d", v.TileCount, len(v.Rows))
	}

	v, err = ws.SetPageSize(ctx, label.PageMedium)
	if err != nil {
		t.Fatalf("SetPageSize failed: %v", err)
	}
	if v.Layout.CellWidthMM != 100 || v.Layout.CellHeightMM != 25 {
		t.Errorf("Expected cell to follow page, got %+v", v.Layout)
	}

	v, err = ws.SetLayout(ctx, label.Layout{PerRow: 5})
	if err != nil {
		t.Fatalf("SetLayout failed: %v", err)
	}
	if len(v.Rows) != 1 {
		t.Errorf("Expected one row of 5, got %d rows", len(v.Rows))
	}
	if _, err := ws.SetLayout(ctx, label.Layout{PerRow: -1}); !errors.Is(err, generate.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTableOperations(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := newWorkspace(t, Options{})

	if _, err := ws.SortBy(ctx, "batch"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
		t.Fatalf("GenerateBulk failed: %v", err)
	}

	v, err := ws.SelectColumns(ctx, []string{"batch"})
	if err != nil {
		t.Fatalf("SelectColumns failed: %v", err)
	}
	if len(v.Table.Columns) != 5 {
		t.Errorf("Unexpected columns %v", v.Table.Columns)
	}

	v, err = ws.SortBy(ctx, "batch")
	if err != nil {
		t.Fatalf("SortBy failed: %v", err)
	}
	if v.Table.Rows[0].Record.Code != "B" {
		t.Errorf("Expected B first after sorting by batch, got %s", v.Table.Rows[0].Record.Code)
	}

	var doc bytes.Buffer
	if err := ws.TableDocument(&doc, func(ref label.ImageRef) string { return string(ref) }, false); err == nil {
		t.Error("Expected error with nothing selected")
	}
	v, err = ws.SetSelected(ctx, 0, true)
	if err != nil {
		t.Fatalf("SetSelected failed: %v", err)
	}
	if !v.Controls.PrintSelected {
		t.Error("Print selected must be enabled")
	}
	if err := ws.TableDocument(&doc, func(ref label.ImageRef) string { return string(ref) }, false); err != nil {
		t.Fatalf("TableDocument failed: %v", err)
	}

	var csv bytes.Buffer
	if err := ws.ExportCSV(&csv); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	lines := strings.Split(csv.String(), "\n")
	if lines[0] != "qr_code,quantity,custom_text,batch" || !strings.HasPrefix(lines[1], `"B"`) {
		t.Errorf("Unexpected export %q", csv.String())
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	kv := snapshot.NewMemoryStore()

	store := images.NewStore()
	gen := &fakeGen{store: store}
	ws := New(gen, store, Options{Snapshots: snapshot.NewSnapshotter(kv, store)})

	if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
		t.Fatalf("GenerateBulk failed: %v", err)
	}
	if _, err := ws.SelectColumns(ctx, []string{"batch"}); err != nil {
		t.Fatalf("SelectColumns failed: %v", err)
	}
	if _, err := ws.SetLayout(ctx, label.Layout{PerRow: 4, PageSize: label.PageMedium}); err != nil {
		t.Fatalf("SetLayout failed: %v", err)
	}

	restoredImages := images.NewStore()
	restored := New(gen, restoredImages, Options{Snapshots: snapshot.NewSnapshotter(kv, restoredImages)})
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	v := restored.View()
	if v.Mode != BulkGenerated || v.Layout.PerRow != 4 {
		t.Fatalf("Unexpected restored view %+v", v)
	}
	if len(v.Table.Extra) != 1 || v.Table.Extra[0] != "batch" {
		t.Errorf("Expected restored column selection, got %v", v.Table.Extra)
	}
	if restoredImages.Len() != 2 {
		t.Errorf("Expected 2 restored images, got %d", restoredImages.Len())
	}

	restored.Reset(ctx)
	if keys := kv.Keys(); len(keys) != 0 {
		t.Errorf("Reset must clear the snapshot, left %v", keys)
	}
}

func TestQuantityLimit(t *testing.T) {
	ctx := context.Background()
	ws, _, _ := newWorkspace(t, Options{MaxQuantity: 10})

	if _, err := ws.GenerateSingle(ctx, "S1", ""); err != nil {
		t.Fatalf("GenerateSingle failed: %v", err)
	}
	if _, err := ws.SetQuantity(ctx, 10); err != nil {
		t.Fatalf("SetQuantity at limit failed: %v", err)
	}
	for _, q := range []int{11, 50000000} {
		if _, err := ws.SetQuantity(ctx, q); !errors.Is(err, generate.ErrInvalidInput) {
			t.Errorf("SetQuantity(%d): expected ErrInvalidInput, got %v", q, err)
		}
	}
	if v := ws.View(); v.Quantity != 10 || v.TileCount != 10 {
		t.Errorf("Rejected quantity must leave 10 tiles, got quantity %d tiles %d", v.Quantity, v.TileCount)
	}

	dflt, _, _ := newWorkspace(t, Options{})
	if _, err := dflt.GenerateSingle(ctx, "S1", ""); err != nil {
		t.Fatalf("GenerateSingle failed: %v", err)
	}
	if _, err := dflt.SetQuantity(ctx, label.DefaultMaxQuantity+1); !errors.Is(err, generate.ErrInvalidInput) {
		t.Errorf("Expected default limit %d, got %v", label.DefaultMaxQuantity, err)
	}
}

func TestRestoreKeepsPersistedCaptionFlag(t *testing.T) {
	ctx := context.Background()
	kv := snapshot.NewMemoryStore()
	store := images.NewStore()
	ref := store.Put([]byte("S1"), "image/png")

	// caption text saved without a caption flag keeps the uncaptioned cell
	err := snapshot.NewSnapshotter(kv, store).Save(ctx, snapshot.State{
		Single: &snapshot.SingleState{Code: "S1", Caption: "Dock", HasCaption: false, Quantity: 2, Image: ref},
		Layout: label.Layout{PageSize: label.PageLarge},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restoredImages := images.NewStore()
	ws := New(&fakeGen{store: restoredImages}, restoredImages, Options{Snapshots: snapshot.NewSnapshotter(kv, restoredImages)})
	if err := ws.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	v := ws.View()
	if v.Single == nil || v.Single.HasCaption || v.Single.Caption != "Dock" {
		t.Fatalf("Unexpected restored single %+v", v.Single)
	}
	want := label.CompactSizing.Uncaptioned
	if len(v.Rows) != 1 || v.Rows[0][0].WidthMM != want.WidthMM || v.Rows[0][0].HeightMM != want.HeightMM {
		t.Errorf("Expected uncaptioned cells %+v, got %+v", want, v.Rows)
	}
}

func TestChangesPublishedInOrder(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var versions []uint64
	ws, _, _ := newWorkspace(t, Options{OnChange: func(v View) {
		mu.Lock()
		versions = append(versions, v.Version)
		mu.Unlock()
	}})
	if _, err := ws.GenerateBulk(ctx, testSheet()); err != nil {
		t.Fatalf("GenerateBulk failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ws.SelectAll(ctx, i%2 == 0); err != nil {
				t.Errorf("SelectAll failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("Version %d published after %d", versions[i], versions[i-1])
		}
	}
	if last := ws.View().Version; len(versions) == 0 || versions[len(versions)-1] != last {
		t.Errorf("Last published version must match current view %d, got %v", last, versions)
	}
}
