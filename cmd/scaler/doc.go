// Package main is the entry point for the scale service.
//
// Each connection sends one framed image and receives it back resized by
// SCALE_FACTOR (0.5 by default) in the same format, or an error frame.
//
// Usage:
//
//	./scaler -ip 127.0.0.1 -port 8001
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
