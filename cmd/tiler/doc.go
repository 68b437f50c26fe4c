// Package main runs the local tile pipeline.
//
// The source image is split into vertical tiles, the selected tiles are
// Gaussian-blurred on parallel workers and the tiles are composed back into
// one image. Results travel through a shared arena or per-worker channels.
//
// Usage:
//
//	# Four tiles, blur 0-2, shared arena
//	./tiler -source eclipse.jpg -output processed.jpg
//
//	# Same job described in a file (YAML or TOML)
//	./tiler -job job.yaml
//
//	# Channel transport, custom selection
//	./tiler -source in.png -output out.png -tiles 8 -filter 1,3,5 -transport channel
//
// Signals:
//   - SIGINT, SIGTERM: cancel workers and exit
package main
