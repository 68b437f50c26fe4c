/*
Package server is the artifact HTTP server.

It serves files from the artifact directory at /<name>, reports liveness at
/health and exposes Prometheus metrics at /metrics. CORS is open by default and
per-IP rate limiting is optional.
*/
package server
