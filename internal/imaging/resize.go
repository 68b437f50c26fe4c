package imaging

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Resize scales img by factor using nearest-neighbour sampling. Each output
// dimension is truncated and clamped to at least one pixel. Gray input stays
// gray; everything else becomes RGBA.
func Resize(img image.Image, factor float64) (image.Image, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("scale factor must be positive, got %v", factor)
	}

	b := img.Bounds()
	width := max(int(float64(b.Dx())*factor), 1)
	height := max(int(float64(b.Dy())*factor), 1)
	rect := image.Rect(0, 0, width, height)

	var dst xdraw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}

	xdraw.NearestNeighbor.Scale(dst, rect, img, b, xdraw.Src, nil)
	return dst, nil
}
