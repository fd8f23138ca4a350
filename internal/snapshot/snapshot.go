package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
)

const (
	KeyBulk       = "bulk_session"
	KeySingle     = "single_state"
	KeyProjection = "table_projection"
	KeyLayout     = "layout"

	imagePrefix = "image/"
)

// SingleState is the last single-mode form and its image
type SingleState struct {
	Code       string         `json:"qr_code"`
	Caption    string         `json:"custom_text"`
	HasCaption bool           `json:"has_custom_text"`
	WidthMM    float64        `json:"width_mm"`
	HeightMM   float64        `json:"height_mm"`
	PerRow     int            `json:"per_row"`
	Quantity   int            `json:"quantity"`
	Image      label.ImageRef `json:"image_ref"`
}

// Projection is the detail table column state
type Projection struct {
	Columns []string `json:"columns"`
	Extra   []string `json:"extra"`
}

// State is everything restored at startup
type State struct {
	Bulk       []label.Record
	Projection Projection
	Single     *SingleState
	Layout     label.Layout
}

type imageMeta struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Snapshotter writes State to a Store along with the images it references
type Snapshotter struct {
	store  Store
	images *images.Store

	mu    sync.Mutex
	saved map[label.ImageRef]bool
}

// NewSnapshotter creates a Snapshotter backed by store
func NewSnapshotter(store Store, imgs *images.Store) *Snapshotter {
	return &Snapshotter{
		store:  store,
		images: imgs,
		saved:  make(map[label.ImageRef]bool),
	}
}

// Save persists st. Images no longer referenced are removed.
func (s *Snapshotter) Save(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putJSONOrDelete(ctx, KeyBulk, st.Bulk, len(st.Bulk) > 0); err != nil {
		return err
	}
	if err := s.putJSONOrDelete(ctx, KeyProjection, st.Projection, len(st.Bulk) > 0); err != nil {
		return err
	}
	if err := s.putJSONOrDelete(ctx, KeySingle, st.Single, st.Single != nil); err != nil {
		return err
	}
	if err := s.putJSONOrDelete(ctx, KeyLayout, st.Layout, true); err != nil {
		return err
	}

	live := make(map[label.ImageRef]bool)
	for _, r := range st.Bulk {
		live[r.Image] = true
	}
	if st.Single != nil {
		live[st.Single.Image] = true
	}
	delete(live, "")

	for ref := range live {
		if s.saved[ref] {
			continue
		}
		img, ok := s.images.Get(ref)
		if !ok {
			continue
		}
		data, err := json.Marshal(imageMeta{ContentType: img.ContentType, Data: img.Data})
		if err != nil {
			return err
		}
		if err := s.store.Put(ctx, imagePrefix+string(ref), data); err != nil {
			return fmt.Errorf("save image %s: %w", ref, err)
		}
		s.saved[ref] = true
	}
	for ref := range s.saved {
		if live[ref] {
			continue
		}
		if err := s.store.Delete(ctx, imagePrefix+string(ref)); err != nil {
			return fmt.Errorf("delete image %s: %w", ref, err)
		}
		delete(s.saved, ref)
	}
	return nil
}

// Load reads the persisted state and re-registers its images. Records
// whose image is missing are still returned; their handle just won't
// resolve.
func (s *Snapshotter) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	if _, err := s.getJSON(ctx, KeyBulk, &st.Bulk); err != nil {
		return State{}, err
	}
	if _, err := s.getJSON(ctx, KeyProjection, &st.Projection); err != nil {
		return State{}, err
	}
	var single SingleState
	found, err := s.getJSON(ctx, KeySingle, &single)
	if err != nil {
		return State{}, err
	}
	if found {
		st.Single = &single
	}
	if _, err := s.getJSON(ctx, KeyLayout, &st.Layout); err != nil {
		return State{}, err
	}

	refs := make([]label.ImageRef, 0, len(st.Bulk)+1)
	for _, r := range st.Bulk {
		refs = append(refs, r.Image)
	}
	if st.Single != nil {
		refs = append(refs, st.Single.Image)
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		raw, err := s.store.Get(ctx, imagePrefix+string(ref))
		if errors.Is(err, ErrNotFound) {
			slog.Warn("Snapshot image missing", "ref", ref)
			continue
		}
		if err != nil {
			return State{}, fmt.Errorf("load image %s: %w", ref, err)
		}
		var meta imageMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return State{}, fmt.Errorf("decode image %s: %w", ref, err)
		}
		s.images.Restore(ref, meta.Data, meta.ContentType)
		s.saved[ref] = true
	}

	return st, nil
}

// Clear removes every persisted key
func (s *Snapshotter) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeyBulk, KeyProjection, KeySingle, KeyLayout} {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	if err := s.store.DeletePrefix(ctx, imagePrefix); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	clear(s.saved)
	return nil
}

func (s *Snapshotter) putJSONOrDelete(ctx context.Context, key string, v any, keep bool) error {
	if !keep {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Snapshotter) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
