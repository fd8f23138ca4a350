package render

import (
	"image"
	"image/color"
	"image/draw"
)

// TestPattern draws a square alignment target: a one-module border and
// three finder squares in the corners, sized to size x size pixels.
func TestPattern(size int) *image.Gray {
	if size < 21 {
		size = 21
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	module := size / 21
	black := image.NewUniform(color.Black)
	white := image.NewUniform(color.White)

	// outer border
	draw.Draw(img, image.Rect(0, 0, size, module), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, size-module, size, size), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, module, size), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(size-module, 0, size, size), black, image.Point{}, draw.Src)

	finder := func(x, y int) {
		outer := image.Rect(x, y, x+7*module, y+7*module)
		draw.Draw(img, outer, black, image.Point{}, draw.Src)
		draw.Draw(img, outer.Inset(module), white, image.Point{}, draw.Src)
		draw.Draw(img, outer.Inset(2*module), black, image.Point{}, draw.Src)
	}
	off := 2 * module
	finder(off, off)
	finder(size-off-7*module, off)
	finder(off, size-off-7*module)

	return img
}
