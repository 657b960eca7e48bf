// Package http serves the calibration dashboard API.
//
// Routes:
//
//	GET  /healthz              liveness, version and connected clients
//	GET  /readyz               manifest readability
//	GET  /metrics              Prometheus exposition
//	GET  /api/runs             the full run manifest
//	GET  /api/runs/{key}       one manifest run key
//	POST /api/batches          start a dateset batch in the background
//	GET  /api/batches          snapshots of every known batch
//	GET  /api/batches/{id}     one batch snapshot
//	GET  /ws                   WebSocket progress feed
//
// Handlers stay thin: request decoding and validation happen here, batch
// execution belongs to the pipeline and status to the StatusBroadcaster.
package http
