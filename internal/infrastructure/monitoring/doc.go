/*
Package monitoring provides Prometheus metrics for tilerelay.

# Overview

Each Metrics value owns a private registry, so the relay, the scale service
and tests can all build their own collector without duplicate registration
panics.

# Features

- Frame counts and sizes per leg (client, scale) and direction
- Error frames by kind
- Active connections and request outcomes per service
- Tile worker counts and durations per transport
- Persisted artifact counts and sizes
- Lifecycle state and uptime

# Usage

	metrics := monitoring.NewMetrics()

	metrics.RecordFrame(monitoring.LegScale, monitoring.DirectionOut, len(payload))

	timer := monitoring.NewTimer(metrics, "relay")
	// ... handle request ...
	timer.Stop("ok")

# Metrics Endpoint

The artifact HTTP server mounts Handler at /metrics:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
