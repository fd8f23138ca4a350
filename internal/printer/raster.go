package printer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/prince-dkc/universal-qr-print/internal/label"
)

// DefaultThreshold splits gray levels into printed and blank dots
const DefaultThreshold = 128

// ImageLoader returns the encoded bitmap for a label image
type ImageLoader func(label.ImageRef) ([]byte, error)

// ComposeRows draws tiled rows onto one canvas at the media resolution.
// Rows stack top to bottom, each as tall as its tallest tile. A canvas
// wider than the media is scaled down to fit.
func ComposeRows(rows []label.Row, media Media, load ImageLoader) (*image.Gray, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("nothing to print")
	}

	width, height := 0, 0
	for _, row := range rows {
		w, h := 0, 0
		for _, c := range row {
			w += media.Pixels(c.WidthMM)
			h = max(h, media.Pixels(c.HeightMM))
		}
		width = max(width, w)
		height += h
	}

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	decoded := make(map[label.ImageRef]image.Image)
	y := 0
	for _, row := range rows {
		x, rowHeight := 0, 0
		for _, c := range row {
			src, ok := decoded[c.Image]
			if !ok {
				data, err := load(c.Image)
				if err != nil {
					return nil, fmt.Errorf("load image for %s: %w", c.Code, err)
				}
				src, _, err = image.Decode(bytes.NewReader(data))
				if err != nil {
					return nil, fmt.Errorf("decode image for %s: %w", c.Code, err)
				}
				decoded[c.Image] = src
			}
			w, h := media.Pixels(c.WidthMM), media.Pixels(c.HeightMM)
			xdraw.CatmullRom.Scale(canvas, fit(src.Bounds(), image.Rect(x, y, x+w, y+h)), src, src.Bounds(), draw.Over, nil)
			x += w
			rowHeight = max(rowHeight, h)
		}
		y += rowHeight
	}

	maxWidth := media.Pixels(media.WidthMM)
	if maxWidth > 0 && width > maxWidth {
		scaled := image.NewGray(image.Rect(0, 0, maxWidth, height*maxWidth/width))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
		canvas = scaled
	}
	return canvas, nil
}

// fit centers src inside dst keeping its aspect ratio
func fit(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}
	w, h := dw, sh*dw/sw
	if h > dh {
		w, h = sw*dh/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// MaxBandRows is the tallest GS v 0 block sent in one command
const MaxBandRows = 2048

// EncodeRaster converts img to an ESC/POS job: initialize, GS v 0 raster
// bands of at most MaxBandRows rows, feed and partial cut
func EncodeRaster(img image.Image, threshold uint8) []byte {
	b := img.Bounds()
	widthBytes := (b.Dx() + 7) / 8
	height := b.Dy()
	bands := (height + MaxBandRows - 1) / MaxBandRows

	data := make([]byte, 0, 16+8*bands+widthBytes*height)

	// Initialize printer
	data = append(data, 0x1B, 0x40) // ESC @

	for top := b.Min.Y; top < b.Max.Y; top += MaxBandRows {
		bottom := min(top+MaxBandRows, b.Max.Y)
		rows := bottom - top

		// Raster bit image, normal density
		data = append(data, 0x1D, 0x76, 0x30, 0x00) // GS v 0 m
		data = append(data,
			byte(widthBytes), byte(widthBytes>>8),
			byte(rows), byte(rows>>8))

		for y := top; y < bottom; y++ {
			row := make([]byte, widthBytes)
			for x := b.Min.X; x < b.Max.X; x++ {
				gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				if gray.Y < threshold {
					i := x - b.Min.X
					row[i/8] |= 0x80 >> (i % 8)
				}
			}
			data = append(data, row...)
		}
	}

	// Feed and cut (partial cut)
	data = append(data, 0x1B, 0x64, 0x03)       // ESC d 3
	data = append(data, 0x1D, 0x56, 0x42, 0x00) // GS V 66 0

	return data
}
