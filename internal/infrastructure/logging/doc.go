// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every tilerelay component receives a *Logger and derives a named child
// with Component so log lines carry "tiler", "relay", "scale" or "client".
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	relayLog := logger.Component("relay")
//	relayLog.Info("Listening", zap.String("addr", "0.0.0.0:9000"))
//	relayLog.Error("Scale call failed", zap.Error(err))
package logging
