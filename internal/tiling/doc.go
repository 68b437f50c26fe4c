// Package tiling partitions an image into contiguous column tiles, tracks
// which tiles are selected for filtering, and composes processed tiles back
// into one image.
//
// Tiles are contiguous and non-overlapping: bounds[i].Right equals
// bounds[i+1].Left and the widths sum to the source width. Partition and
// Compose fail with ErrInvalidPartition and ErrDimensionMismatch so callers
// can reject a run before any worker is started.
package tiling
