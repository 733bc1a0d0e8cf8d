// Package api serves the operational HTTP surface of Tracker Core.
//
// The listener carries health and readiness probes, the Prometheus scrape
// endpoint, a system snapshot and a few maintenance routes used by operators
// and devices:
//
//	GET  /health                    connection checks, 503 when any fails
//	GET  /metrics                   Prometheus exposition
//	GET  /api/v1/system             runtime, database and fleet counters
//	GET  /api/v1/firmware/latest    the firmware devices should run
//	POST /api/v1/reconcile          run one repair pass and return the report
//
// Failures are written as apperror bodies, so a domain error keeps the status
// and message it carries.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
