// Package imaging holds the pixel-level collaborators of tilerelay: the
// Raster buffer tiles are cut from, codec helpers with content sniffing,
// grayscale conversion, nearest-neighbour resizing and a separable Gaussian
// blur. Everything here is a pure function of its inputs.
package imaging
