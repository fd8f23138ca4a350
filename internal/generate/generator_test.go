package generate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/qrgen"
	"github.com/prince-dkc/universal-qr-print/internal/sheet"
)

type fakeService struct {
	calls  atomic.Int32
	failOn string
	jitter bool

	mu       sync.Mutex
	requests []qrgen.Request
}

func (f *fakeService) Generate(ctx context.Context, req qrgen.Request) (qrgen.Image, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	if f.failOn != "" && req.Code == f.failOn {
		return qrgen.Image{}, errors.New("service unavailable")
	}
	return qrgen.Image{Data: []byte("img-" + req.Code), ContentType: "image/png"}, nil
}

func rows(n int) sheet.Sheet {
	s := sheet.Sheet{Headers: []string{"qr_code", "quantity", "custom_text", "batch"}}
	for i := 0; i < n; i++ {
		s.Rows = append(s.Rows, sheet.Row{
			"qr_code":  fmt.Sprintf("CODE%03d", i),
			"quantity": fmt.Sprintf("%d", i%3+1),
			"batch":    fmt.Sprintf("b%d", i%2),
		})
	}
	return s
}

func TestSingleRejectsEmptyCode(t *testing.T) {
	svc := &fakeService{}
	g := New(svc, images.NewStore(), Options{})

	_, err := g.Single(context.Background(), "   ", "caption")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if svc.calls.Load() != 0 {
		t.Errorf("Expected no requests, got %d", svc.calls.Load())
	}
}

func TestSingleBuildsRequest(t *testing.T) {
	svc := &fakeService{}
	store := images.NewStore()
	g := New(svc, store, Options{UppercaseCodes: true})

	rec, err := g.Single(context.Background(), " abc123def ", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req := svc.requests[0]
	if req.Code != "ABC123DEF" || !req.WithoutText || req.TextContent != "" {
		t.Errorf("Unexpected request %+v", req)
	}
	if rec.HasCaption || rec.Quantity != 1 {
		t.Errorf("Unexpected record %+v", rec)
	}
	if _, ok := store.Get(rec.Image); !ok {
		t.Error("Generated image not stored")
	}

	rec, err = g.Single(context.Background(), "X", "Bay 4")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !rec.HasCaption || svc.requests[1].WithoutText || svc.requests[1].TextContent != "Bay 4" {
		t.Errorf("Caption not forwarded: %+v %+v", rec, svc.requests[1])
	}
}

func TestSingleFailure(t *testing.T) {
	svc := &fakeService{failOn: "BAD"}
	store := images.NewStore()
	g := New(svc, store, Options{})

	_, err := g.Single(context.Background(), "BAD", "")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Expected ErrGenerationFailed, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Expected no stored images, got %d", store.Len())
	}
}

func TestBulkTooManyRowsMakesNoRequests(t *testing.T) {
	svc := &fakeService{}
	g := New(svc, images.NewStore(), Options{})

	_, err := g.Bulk(context.Background(), rows(501))
	if !errors.Is(err, ErrTooManyRows) {
		t.Errorf("Expected ErrTooManyRows, got %v", err)
	}
	if svc.calls.Load() != 0 {
		t.Errorf("Expected zero requests, got %d", svc.calls.Load())
	}
}

func TestBulkQuantityLimit(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		max      int
		wantErr  bool
	}{
		{"at limit", "10", 10, false},
		{"over limit", "11", 10, true},
		{"float over limit", "11.0", 10, true},
		{"huge with default limit", "50000000", 0, true},
		{"zero normalizes to one", " 0 ", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			g := New(svc, images.NewStore(), Options{MaxQuantity: tt.max})

			s := rows(3)
			s.Rows[1]["quantity"] = tt.quantity
			_, err := g.Bulk(context.Background(), s)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("Expected ErrInvalidInput, got %v", err)
				}
				if svc.calls.Load() != 0 {
					t.Errorf("Expected zero requests, got %d", svc.calls.Load())
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestBulkMissingColumns(t *testing.T) {
	tests := []struct {
		name  string
		sheet sheet.Sheet
	}{
		{
			name:  "no rows",
			sheet: sheet.Sheet{Headers: []string{"qr_code", "quantity"}},
		},
		{
			name: "no quantity header",
			sheet: sheet.Sheet{
				Headers: []string{"qr_code"},
				Rows:    []sheet.Row{{"qr_code": "A"}},
			},
		},
		{
			name: "row without code",
			sheet: sheet.Sheet{
				Headers: []string{"qr_code", "quantity"},
				Rows:    []sheet.Row{{"qr_code": "A", "quantity": "1"}, {"quantity": "2"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			g := New(svc, images.NewStore(), Options{})

			_, err := g.Bulk(context.Background(), tt.sheet)
			if !errors.Is(err, ErrMissingColumns) {
				t.Errorf("Expected ErrMissingColumns, got %v", err)
			}
			if svc.calls.Load() != 0 {
				t.Errorf("Expected zero requests, got %d", svc.calls.Load())
			}
		})
	}
}

func TestBulkKeepsRowOrder(t *testing.T) {
	svc := &fakeService{jitter: true}
	store := images.NewStore()
	g := New(svc, store, Options{Concurrency: 8})

	records, err := g.Bulk(context.Background(), rows(60))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(records) != 60 {
		t.Fatalf("Expected 60 records, got %d", len(records))
	}
	for i, rec := range records {
		want := fmt.Sprintf("CODE%03d", i)
		if rec.Code != want {
			t.Errorf("Record %d: expected %s, got %s", i, want, rec.Code)
		}
		if rec.Quantity != i%3+1 {
			t.Errorf("Record %d: expected quantity %d, got %d", i, i%3+1, rec.Quantity)
		}
		if rec.Fields["batch"] == "" {
			t.Errorf("Record %d lost its extra columns", i)
		}
		img, ok := store.Get(rec.Image)
		if !ok || string(img.Data) != "img-"+want {
			t.Errorf("Record %d points at the wrong image", i)
		}
	}
}

func TestBulkIsAllOrNothing(t *testing.T) {
	svc := &fakeService{failOn: "CODE007"}
	store := images.NewStore()
	reg := prometheus.NewRegistry()
	g := New(svc, store, Options{Metrics: NewMetrics(reg)})

	records, err := g.Bulk(context.Background(), rows(20))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Expected ErrGenerationFailed, got %v", err)
	}
	if records != nil {
		t.Errorf("Expected no records, got %d", len(records))
	}
	if store.Len() != 0 {
		t.Errorf("Expected all images released, %d left", store.Len())
	}
	if n := testutil.ToFloat64(g.opts.Metrics.requests.WithLabelValues("bulk", "failure")); n != 1 {
		t.Errorf("Expected one failed bulk run recorded, got %v", n)
	}
}
