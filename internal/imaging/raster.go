package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
)

// Raster is a row-major, channel-interleaved 8-bit pixel buffer.
// Pix holds Height*Width*Channels bytes.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewRaster allocates a zeroed raster
func NewRaster(width, height, channels int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Len is the flattened length of the raster
func (r *Raster) Len() int {
	return r.Width * r.Height * r.Channels
}

// Stride is the number of bytes in one row
func (r *Raster) Stride() int {
	return r.Width * r.Channels
}

// Offset returns the index of the first channel of pixel (x, y)
func (r *Raster) Offset(x, y int) int {
	return y*r.Stride() + x*r.Channels
}

// Validate checks that Pix matches the declared shape
func (r *Raster) Validate() error {
	if r.Width < 0 || r.Height < 0 || r.Channels <= 0 {
		return fmt.Errorf("invalid raster shape %dx%dx%d", r.Width, r.Height, r.Channels)
	}
	if len(r.Pix) != r.Len() {
		return fmt.Errorf("raster %dx%dx%d expects %d bytes, has %d", r.Width, r.Height, r.Channels, r.Len(), len(r.Pix))
	}
	return nil
}

// Columns copies the column range [left, right) into a new raster
func (r *Raster) Columns(left, right int) (*Raster, error) {
	if left < 0 || right > r.Width || left > right {
		return nil, fmt.Errorf("column range [%d, %d) outside width %d", left, right, r.Width)
	}

	out := NewRaster(right-left, r.Height, r.Channels)
	rowBytes := out.Stride()
	for y := 0; y < r.Height; y++ {
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], r.Pix[r.Offset(left, y):r.Offset(left, y)+rowBytes])
	}
	return out, nil
}

// SameShape reports whether two rasters have identical dimensions
func (r *Raster) SameShape(o *Raster) bool {
	return r.Width == o.Width && r.Height == o.Height && r.Channels == o.Channels
}

// Equal reports whether two rasters have the same shape and pixels
func (r *Raster) Equal(o *Raster) bool {
	return r.SameShape(o) && bytes.Equal(r.Pix, o.Pix)
}

// FromImage converts any image to a 3-channel RGB raster
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy(), 3)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out.Pix[i] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			i += 3
		}
	}
	return out
}

// ToImage converts the raster back to an image. One channel yields
// *image.Gray, three channels an opaque *image.RGBA.
func (r *Raster) ToImage() (image.Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch r.Channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
		for y := 0; y < r.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+r.Width], r.Pix[y*r.Width:(y+1)*r.Width])
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
		src := 0
		for y := 0; y < r.Height; y++ {
			dst := y * img.Stride
			for x := 0; x < r.Width; x++ {
				img.Pix[dst] = r.Pix[src]
				img.Pix[dst+1] = r.Pix[src+1]
				img.Pix[dst+2] = r.Pix[src+2]
				img.Pix[dst+3] = 0xff
				dst += 4
				src += 3
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("cannot convert %d-channel raster to image", r.Channels)
	}
}
