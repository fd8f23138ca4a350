package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/qrgen"
	"github.com/prince-dkc/universal-qr-print/internal/sheet"
)

// DefaultMaxRows is the largest sheet accepted for bulk generation
const DefaultMaxRows = 500

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrMissingColumns   = errors.New("missing required columns")
	ErrTooManyRows      = errors.New("too many rows")
	ErrAlreadyGenerated = errors.New("bulk labels already generated")
	ErrGenerationFailed = errors.New("label generation failed")
)

// ImageService produces one label image per request
type ImageService interface {
	Generate(ctx context.Context, req qrgen.Request) (qrgen.Image, error)
}

// Options tunes a Generator
type Options struct {
	MaxRows int
	// MaxQuantity caps the quantity cell of a bulk row
	MaxQuantity int
	// Concurrency caps in-flight bulk requests; 0 issues every row at once.
	Concurrency    int
	UppercaseCodes bool
	Metrics        *Metrics
}

// Generator turns codes and sheet rows into label records with images
type Generator struct {
	service ImageService
	images  *images.Store
	opts    Options
}

// New creates a Generator storing images in store
func New(service ImageService, store *images.Store, opts Options) *Generator {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = label.DefaultMaxQuantity
	}
	return &Generator{
		service: service,
		images:  store,
		opts:    opts,
	}
}

// MaxRows returns the bulk row limit
func (g *Generator) MaxRows() int {
	return g.opts.MaxRows
}

// Single generates one label image for code
func (g *Generator) Single(ctx context.Context, code, caption string) (label.Record, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return label.Record{}, fmt.Errorf("%w: please enter a QR code", ErrInvalidInput)
	}
	if g.opts.UppercaseCodes {
		code = strings.ToUpper(code)
	}

	start := time.Now()
	img, err := g.service.Generate(ctx, request(code, caption))
	g.opts.Metrics.observe("single", start, err)
	if err != nil {
		slog.Error("Single label generation failed", "code", code, "err", err)
		return label.Record{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	ref := g.images.Put(img.Data, img.ContentType)
	slog.Info("Label generated", "code", code, "has_caption", caption != "", "bytes", len(img.Data))
	return label.NewRecord(code, 1, caption, ref), nil
}

// Validate checks a sheet against the bulk limits without any network call
func (g *Generator) Validate(s sheet.Sheet) error {
	if len(s.Rows) > g.opts.MaxRows {
		return fmt.Errorf("%w: the uploaded file contains %d rows, only up to %d rows are allowed",
			ErrTooManyRows, len(s.Rows), g.opts.MaxRows)
	}
	if len(s.Rows) == 0 {
		return fmt.Errorf("%w: file must contain '%s' & '%s'", ErrMissingColumns, label.ColumnCode, label.ColumnQuantity)
	}
	for _, col := range []string{label.ColumnCode, label.ColumnQuantity} {
		if !s.HasColumn(col) {
			return fmt.Errorf("%w: file must contain '%s' & '%s'", ErrMissingColumns, label.ColumnCode, label.ColumnQuantity)
		}
	}
	for i, row := range s.Rows {
		if !row.Has(label.ColumnCode) || !row.Has(label.ColumnQuantity) {
			return fmt.Errorf("%w: row %d has no %s or %s", ErrMissingColumns, i+2, label.ColumnCode, label.ColumnQuantity)
		}
		if q := label.ParseQuantity(row[label.ColumnQuantity]); q > g.opts.MaxQuantity {
			return fmt.Errorf("%w: row %d asks for %d labels, only up to %d are allowed",
				ErrInvalidInput, i+2, q, g.opts.MaxQuantity)
		}
	}
	return nil
}

// Bulk generates one image per sheet row. Requests run concurrently and
// results keep sheet order. If any request fails every image produced so
// far is released and nothing is returned.
func (g *Generator) Bulk(ctx context.Context, s sheet.Sheet) ([]label.Record, error) {
	if err := g.Validate(s); err != nil {
		return nil, err
	}

	start := time.Now()
	records := make([]label.Record, len(s.Rows))

	eg, egCtx := errgroup.WithContext(ctx)
	if g.opts.Concurrency > 0 {
		eg.SetLimit(g.opts.Concurrency)
	}

	for i, row := range s.Rows {
		eg.Go(func() error {
			code := row[label.ColumnCode]
			caption := row[label.ColumnCaption]

			reqStart := time.Now()
			img, err := g.service.Generate(egCtx, request(code, caption))
			g.opts.Metrics.observe("bulk_row", reqStart, err)
			if err != nil {
				return fmt.Errorf("failed QR for %s: %w", code, err)
			}

			rec := label.NewRecord(code, label.ParseQuantity(row[label.ColumnQuantity]), caption, g.images.Put(img.Data, img.ContentType))
			rec.Fields = copyRow(row)
			records[i] = rec
			return nil
		})
	}

	err := eg.Wait()
	g.opts.Metrics.observe("bulk", start, err)
	if err != nil {
		released := g.images.ReleaseAll(records)
		slog.Error("Bulk generation failed", "rows", len(s.Rows), "released", released, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	slog.Info("Bulk labels generated", "rows", len(records), "duration", time.Since(start))
	return records, nil
}

func request(code, caption string) qrgen.Request {
	return qrgen.Request{
		Code:        code,
		WithoutText: strings.TrimSpace(caption) == "",
		TextContent: caption,
	}
}

func copyRow(row sheet.Row) map[string]string {
	fields := make(map[string]string, len(row))
	for k, v := range row {
		fields[k] = v
	}
	return fields
}
