// Package main is the entry point for the image relay.
//
// The relay accepts framed image uploads, converts them to grayscale JPEG,
// has the scale service shrink them, stores the result and answers with a
// URL served by the built-in artifact HTTP server.
//
// Architecture:
//
//	Client → Relay → Scale service
//	           ↓
//	      Artifact store → HTTP (/<name>, /health, /metrics)
//
// Configuration:
//   - Environment variables (RELAY_*, SCALE_ADDR, ARTIFACT_*, IO_TIMEOUT, ...)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./relay -ip 0.0.0.0 -port 9000 -scale 127.0.0.1:8001
//
//	# Development mode (colored logs, debug level)
//	./relay -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
