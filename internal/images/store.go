package images

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prince-dkc/universal-qr-print/internal/label"
)

// Image is a generated label bitmap owned by the store
type Image struct {
	Ref         label.ImageRef `json:"ref"`
	ContentType string         `json:"content_type"`
	Data        []byte         `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is a thread-safe registry of generated images. Each handle is
// released at most once; after release it no longer resolves.
type Store struct {
	mu     sync.RWMutex
	images map[label.ImageRef]Image
}

// NewStore creates an empty image store
func NewStore() *Store {
	return &Store{
		images: make(map[label.ImageRef]Image),
	}
}

// Put stores an image and returns its new handle
func (s *Store) Put(data []byte, contentType string) label.ImageRef {
	ref := label.ImageRef(uuid.NewString())
	s.Restore(ref, data, contentType)
	return ref
}

// Restore stores an image under a known handle, e.g. one read back from
// a persisted snapshot
func (s *Store) Restore(ref label.ImageRef, data []byte, contentType string) {
	if contentType == "" {
		contentType = "image/png"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[ref] = Image{
		Ref:         ref,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now(),
	}
}

// Get resolves a handle
func (s *Store) Get(ref label.ImageRef) (Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[ref]
	return img, ok
}

// Release frees an image. It returns false when the handle was already
// released or never existed.
func (s *Store) Release(ref label.ImageRef) bool {
	if ref == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[ref]; !ok {
		return false
	}
	delete(s.images, ref)
	return true
}

// ReleaseAll frees every image of the given records
func (s *Store) ReleaseAll(records []label.Record) int {
	n := 0
	for _, r := range records {
		if s.Release(r.Image) {
			n++
		}
	}
	return n
}

// Len returns the number of live images
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
