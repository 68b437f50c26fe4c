package imaging

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// kernelTruncate is the number of standard deviations the kernel spans on
// each side of its centre.
const kernelTruncate = 4.0

// GaussianKernel returns normalised 1-D weights for the given sigma
func GaussianKernel(sigma float64) ([]float64, error) {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("sigma must be positive and finite, got %v", sigma)
	}

	radius := int(kernelTruncate*sigma + 0.5)
	dist := distuv.Normal{Mu: 0, Sigma: sigma}

	weights := make([]float64, 2*radius+1)
	for i := range weights {
		weights[i] = dist.Prob(float64(i - radius))
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return weights, nil
}

// GaussianBlur applies a separable Gaussian blur to every channel of r
// independently and returns a new raster of the same shape. Borders are
// mirrored (d c b a | a b c d | d c b a). ctx is checked between rows.
func GaussianBlur(ctx context.Context, r *Raster, sigma float64) (*Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	kernel, err := GaussianKernel(sigma)
	if err != nil {
		return nil, err
	}
	radius := len(kernel) / 2

	w, h, c := r.Width, r.Height, r.Channels
	tmp := make([]float64, len(r.Pix))

	// Horizontal pass.
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := y * w * c
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				var acc float64
				for k, weight := range kernel {
					sx := reflectIndex(x+k-radius, w)
					acc += weight * float64(r.Pix[row+sx*c+ch])
				}
				tmp[row+x*c+ch] = acc
			}
		}
	}

	// Vertical pass.
	out := NewRaster(w, h, c)
	stride := w * c
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				var acc float64
				for k, weight := range kernel {
					sy := reflectIndex(y+k-radius, h)
					acc += weight * tmp[sy*stride+x*c+ch]
				}
				out.Pix[y*stride+x*c+ch] = clampByte(acc)
			}
		}
	}
	return out, nil
}

// reflectIndex mirrors i into [0, n) including the edge sample
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
