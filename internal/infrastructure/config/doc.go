// Package config provides 12-factor configuration for the tilerelay binaries.
//
// Service configuration is loaded from environment variables with sensible
// defaults; CLI flags in each cmd override individual values. The local tile
// pipeline reads a job file instead (YAML or TOML, see LoadJob).
//
// Configuration Sections:
//   - Relay: client-facing listener
//   - Scale: scale service listener and the address the relay dials
//   - Artifacts: persisted image directory, static server address, base URL
//   - Network: dial/IO timeouts and the maximum frame size
//   - Logging: Log level and output format
//   - RateLimit: relay accept rate limiting
//   - Shutdown: drain timeout after an interrupt
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Relay listening on %s\n", cfg.RelayAddr())
//
// Environment Variables:
//   - RELAY_HOST, RELAY_PORT, SCALE_HOST, SCALE_PORT, SCALE_ADDR, SCALE_FACTOR
//   - ARTIFACT_DIR, ARTIFACT_ADDR, ARTIFACT_BASE_URL
//   - DIAL_TIMEOUT, IO_TIMEOUT, MAX_FRAME_SIZE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_CPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - DRAIN_TIMEOUT
package config
