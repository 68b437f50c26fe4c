package tiling

import (
	"errors"
	"fmt"
	"sort"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
)

var (
	ErrInvalidPartition  = errors.New("invalid partition")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// OutputChannels is the channel count of a composed image
const OutputChannels = 3

// Bounds is the half-open column range [Left, Right) a tile covers in the
// source image.
type Bounds struct {
	Left  int
	Right int
}

// Width returns the number of columns covered
func (b Bounds) Width() int {
	return b.Right - b.Left
}

// Tile is one column slice of the source image
type Tile struct {
	Index  int
	Bounds Bounds
	Raster *imaging.Raster
}

// Len is the flattened pixel length of the tile
func (t Tile) Len() int {
	return t.Raster.Len()
}

// Partition computes the column bounds of n tiles over width columns. Every
// tile is width/n columns wide except the last, which absorbs the remainder.
func Partition(width, n int) ([]Bounds, error) {
	if n <= 0 || n > width {
		return nil, fmt.Errorf("%w: %d tiles over width %d", ErrInvalidPartition, n, width)
	}

	base := width / n
	bounds := make([]Bounds, n)
	for i := 0; i < n; i++ {
		right := (i + 1) * base
		if i == n-1 {
			right = width
		}
		bounds[i] = Bounds{Left: i * base, Right: right}
	}
	return bounds, nil
}

// Split cuts src into n tiles. Tile pixels are copies; src is not retained.
func Split(src *imaging.Raster, n int) ([]Tile, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPartition, err)
	}

	bounds, err := Partition(src.Width, n)
	if err != nil {
		return nil, err
	}

	tiles := make([]Tile, n)
	for i, b := range bounds {
		raster, err := src.Columns(b.Left, b.Right)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPartition, err)
		}
		tiles[i] = Tile{Index: i, Bounds: b, Raster: raster}
	}
	return tiles, nil
}

// Compose stitches tiles left to right in slice order into one 3-channel
// image. All tiles must share a height and have three channels.
func Compose(tiles []Tile) (*imaging.Raster, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: no tiles to compose", ErrDimensionMismatch)
	}

	height := tiles[0].Raster.Height
	width := 0
	for _, t := range tiles {
		if err := t.Raster.Validate(); err != nil {
			return nil, fmt.Errorf("%w: tile %d: %v", ErrDimensionMismatch, t.Index, err)
		}
		if t.Raster.Height != height {
			return nil, fmt.Errorf("%w: tile %d has height %d, expected %d", ErrDimensionMismatch, t.Index, t.Raster.Height, height)
		}
		if t.Raster.Channels != OutputChannels {
			return nil, fmt.Errorf("%w: tile %d has %d channels, expected %d", ErrDimensionMismatch, t.Index, t.Raster.Channels, OutputChannels)
		}
		width += t.Raster.Width
	}

	out := imaging.NewRaster(width, height, OutputChannels)
	offset := 0
	for _, t := range tiles {
		rowBytes := t.Raster.Stride()
		for y := 0; y < height; y++ {
			dst := out.Offset(offset, y)
			copy(out.Pix[dst:dst+rowBytes], t.Raster.Pix[y*rowBytes:(y+1)*rowBytes])
		}
		offset += t.Raster.Width
	}
	return out, nil
}

// FilterSelection is the set of tile indices to filter. Indices outside the
// tile range are kept but never match a tile.
type FilterSelection struct {
	indices map[int]struct{}
}

// NewFilterSelection builds a selection from indices
func NewFilterSelection(indices ...int) FilterSelection {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	return FilterSelection{indices: set}
}

// Contains reports whether tile index i is selected
func (s FilterSelection) Contains(i int) bool {
	_, ok := s.indices[i]
	return ok
}

// Effective returns the sorted selected indices that exist for tileCount tiles
func (s FilterSelection) Effective(tileCount int) []int {
	out := make([]int, 0, len(s.indices))
	for i := range s.indices {
		if i >= 0 && i < tileCount {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Ignored returns the sorted selected indices that match no tile
func (s FilterSelection) Ignored(tileCount int) []int {
	out := make([]int, 0)
	for i := range s.indices {
		if i < 0 || i >= tileCount {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
