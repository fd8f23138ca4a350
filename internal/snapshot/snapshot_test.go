package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	bg, err := OpenBadger("")
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
		"badger": bg,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreBackends(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}
			if err := store.Put(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put(ctx, "k", []byte("v2")); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}
			got, err := store.Get(ctx, "k")
			if err != nil || string(got) != "v2" {
				t.Fatalf("Expected v2, got %q (%v)", got, err)
			}

			for _, k := range []string{"image/a", "image/b", "image_x"} {
				if err := store.Put(ctx, k, []byte(k)); err != nil {
					t.Fatalf("Put %s failed: %v", k, err)
				}
			}
			if err := store.DeletePrefix(ctx, "image/"); err != nil {
				t.Fatalf("DeletePrefix failed: %v", err)
			}
			if _, err := store.Get(ctx, "image/a"); !errors.Is(err, ErrNotFound) {
				t.Error("Expected image/a to be removed")
			}
			if _, err := store.Get(ctx, "image_x"); err != nil {
				t.Errorf("image_x must survive the prefix delete: %v", err)
			}

			if err := store.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete(ctx, "k"); err != nil {
				t.Errorf("Deleting a missing key should not fail: %v", err)
			}
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	imgs := images.NewStore()

	refA := imgs.Put([]byte("png-a"), "image/png")
	refB := imgs.Put([]byte("png-b"), "image/png")
	refS := imgs.Put([]byte("png-s"), "image/png")

	state := State{
		Bulk: []label.Record{
			label.NewRecord("A", 2, "", refA),
			label.NewRecord("B", 1, "Dock 4", refB),
		},
		Projection: Projection{Columns: []string{"batch"}, Extra: []string{"batch"}},
		Single:     &SingleState{Code: "S1", WidthMM: 50, HeightMM: 25, PerRow: 2, Quantity: 3, Image: refS},
		Layout:     label.Layout{PerRow: 3, PageSize: label.PageMedium},
	}

	snap := NewSnapshotter(store, imgs)
	if err := snap.Save(ctx, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := images.NewStore()
	got, err := NewSnapshotter(store, restored).Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(got.Bulk) != 2 || got.Bulk[1].Caption != "Dock 4" || !got.Bulk[1].HasCaption {
		t.Errorf("Unexpected bulk session %+v", got.Bulk)
	}
	if got.Single == nil || got.Single.Code != "S1" || got.Single.Quantity != 3 {
		t.Errorf("Unexpected single state %+v", got.Single)
	}
	if got.Layout.PerRow != 3 || got.Layout.PageSize != label.PageMedium {
		t.Errorf("Unexpected layout %+v", got.Layout)
	}
	if len(got.Projection.Extra) != 1 {
		t.Errorf("Unexpected projection %+v", got.Projection)
	}
	if restored.Len() != 3 {
		t.Fatalf("Expected 3 restored images, got %d", restored.Len())
	}
	img, ok := restored.Get(refB)
	if !ok || string(img.Data) != "png-b" {
		t.Error("Image B was not restored")
	}
}

func TestSnapshotDropsSupersededImages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	imgs := images.NewStore()
	snap := NewSnapshotter(store, imgs)

	old := imgs.Put([]byte("old"), "image/png")
	if err := snap.Save(ctx, State{Bulk: []label.Record{label.NewRecord("A", 1, "", old)}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fresh := imgs.Put([]byte("new"), "image/png")
	if err := snap.Save(ctx, State{Single: &SingleState{Code: "S", Image: fresh}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := []string{"image/" + string(fresh), KeyLayout, KeySingle}
	got := store.Keys()
	if len(got) != len(want) {
		t.Fatalf("Expected keys %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected keys %v, got %v", want, got)
		}
	}
}

func TestSnapshotClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	imgs := images.NewStore()
	snap := NewSnapshotter(store, imgs)

	ref := imgs.Put([]byte("x"), "image/png")
	if err := snap.Save(ctx, State{Single: &SingleState{Code: "S", Image: ref}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := snap.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("Expected empty store, got %v", keys)
	}

	got, err := snap.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Single != nil || len(got.Bulk) != 0 {
		t.Errorf("Expected empty state, got %+v", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", ""); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
