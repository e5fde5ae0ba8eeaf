// Package server provides the HTTP surfaces of the sync service.
//
// The control API (Server) manages calendar accounts:
//   - GET /healthz, GET /readyz: liveness and readiness probes
//   - GET/PUT /accounts/{id}/settings: sync settings
//   - POST /accounts/{id}/sync: trigger a run now, returns the run result
//   - GET /accounts/{id}/calendars: remote calendars available to the account
//   - DELETE /accounts/{id}: disconnect the account
//
// A manual sync against a disconnected or disabled account answers 409 with
// an actionable message instead of running.
//
// The MetricsServer exposes Prometheus metrics on a separate port.
package server
