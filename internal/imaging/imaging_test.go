package imaging

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h, c int) *Raster {
	r := NewRaster(w, h, c)
	for i := range r.Pix {
		r.Pix[i] = uint8((i * 7) % 251)
	}
	return r
}

func TestColumns(t *testing.T) {
	r := gradient(5, 3, 3)

	cols, err := r.Columns(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, cols.Width)
	assert.Equal(t, 3, cols.Height)

	for y := 0; y < 3; y++ {
		for x := 0; x < 2; x++ {
			for ch := 0; ch < 3; ch++ {
				assert.Equal(t, r.Pix[r.Offset(x+1, y)+ch], cols.Pix[cols.Offset(x, y)+ch])
			}
		}
	}

	_, err = r.Columns(3, 6)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	r := NewRaster(2, 2, 3)
	assert.NoError(t, r.Validate())

	r.Pix = r.Pix[:5]
	assert.Error(t, r.Validate())
}

func TestImageRoundTrip(t *testing.T) {
	r := gradient(4, 3, 3)

	img, err := r.ToImage()
	require.NoError(t, err)
	back := FromImage(img)
	assert.True(t, r.Equal(back))

	gray := gradient(4, 3, 1)
	gimg, err := gray.ToImage()
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, gimg)

	_, err = NewRaster(1, 1, 2).ToImage()
	assert.Error(t, err)
}

func TestGaussianKernel(t *testing.T) {
	kernel, err := GaussianKernel(5)
	require.NoError(t, err)

	assert.Len(t, kernel, 41)
	var sum float64
	for i := range kernel {
		sum += kernel[i]
		assert.InDelta(t, kernel[i], kernel[len(kernel)-1-i], 1e-12)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	_, err = GaussianKernel(0)
	assert.Error(t, err)
}

func TestGaussianBlurUniformIsStable(t *testing.T) {
	r := NewRaster(6, 4, 3)
	for i := range r.Pix {
		r.Pix[i] = 120
	}

	out, err := GaussianBlur(context.Background(), r, 2)
	require.NoError(t, err)
	assert.True(t, r.Equal(out))
}

func TestGaussianBlurSmooths(t *testing.T) {
	r := NewRaster(8, 8, 1)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				r.Pix[y*8+x] = 255
			}
		}
	}

	out, err := GaussianBlur(context.Background(), r, 1)
	require.NoError(t, err)
	assert.False(t, r.Equal(out))
	assert.True(t, r.SameShape(out))
	for _, v := range out.Pix {
		assert.InDelta(t, 127, int(v), 40)
	}
}

func TestGaussianBlurHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GaussianBlur(ctx, gradient(4, 4, 3), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReflectIndex(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 4, 0},
		{3, 4, 3},
		{-1, 4, 0},
		{-2, 4, 1},
		{4, 4, 3},
		{5, 4, 2},
		{-9, 4, 0},
		{7, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reflectIndex(tt.i, tt.n), "reflectIndex(%d, %d)", tt.i, tt.n)
	}
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 21))
	out, err := Resize(src, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 10, out.Bounds().Dy())

	tiny := image.NewGray(image.Rect(0, 0, 1, 1))
	out, err = Resize(tiny, 0.5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1, 1), out.Bounds())
	assert.IsType(t, &image.Gray{}, out)

	_, err = Resize(src, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("definitely not an image"), {0xff, 0xd8, 0xff, 0x00}} {
		_, _, err := Decode(payload)
		assert.ErrorIs(t, err, ErrDecodeFailure)
	}
}

func TestEncodeDecodePNG(t *testing.T) {
	r := gradient(5, 5, 3)
	img, err := r.ToImage()
	require.NoError(t, err)

	data, err := EncodeBytes(img, FormatPNG)
	require.NoError(t, err)

	format, err := Detect(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)

	decoded, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.True(t, r.Equal(FromImage(decoded)))
}

func TestEncodeDecodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	data, err := EncodeBytes(img, FormatJPEG)
	require.NoError(t, err)

	decoded, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)
	assert.Equal(t, 16, decoded.Bounds().Dx())

	_, err = EncodeBytes(img, "bmp")
	assert.Error(t, err)
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})

	gray := Grayscale(img)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(1, 0).Y)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	r := gradient(3, 2, 3)
	img, err := r.ToImage()
	require.NoError(t, err)

	require.NoError(t, Save(path, img))
	loaded, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.True(t, r.Equal(FromImage(loaded)))

	assert.Error(t, Save(filepath.Join(t.TempDir(), "out.tiff"), img))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension(FormatJPEG))
	assert.Equal(t, "png", Extension(FormatPNG))
}
