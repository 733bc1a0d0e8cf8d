package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// healthTimeout bounds every connection check made by /health.
const healthTimeout = 3 * time.Second

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SystemSnapshot is the body of /api/v1/system.
type SystemSnapshot struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeStats       `json:"runtime"`
	Database      *DatabaseStats     `json:"database,omitempty"`
	Devices       map[string]int     `json:"devices"`
	Notifications *NotificationQueue `json:"notifications,omitempty"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseStats contains connection pool statistics.
type DatabaseStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

// NotificationQueue is the outbox depth.
type NotificationQueue struct {
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	for _, c := range s.checks {
		if err := c.Checker.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[c.Name] = err.Error()
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := SystemSnapshot{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		Devices: make(map[string]int),
	}

	for _, st := range []device.AssignStatus{device.NotAssigned, device.PendingApproval, device.Assigned} {
		res, err := s.devices.List(r.Context(), device.Filter{AssignStatus: st}, paging.Page{Number: 1, PerPage: 1})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		snap.Devices[string(st)] = res.Total
	}

	if s.db != nil {
		st := s.db.Stats()
		snap.Database = &DatabaseStats{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			WaitCount:       st.WaitCount,
		}
	}
	if s.outbox != nil {
		snap.Notifications = &NotificationQueue{Queued: s.outbox.Len(), Capacity: s.outbox.Cap()}
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLatestFirmware(w http.ResponseWriter, r *http.Request) {
	fw, err := s.firmware.Latest(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fw)
}

// handleReconcile runs a pass unless one started from this server is
// still running, in which case it answers 503.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if !s.reconcileMu.TryLock() {
		writeError(w, http.StatusServiceUnavailable, errCodeUnavailable, "reconciliation already running")
		return
	}
	defer s.reconcileMu.Unlock()

	report, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.logger.Info("manual reconciliation finished", "repairs", report.Repairs())
	writeJSON(w, http.StatusOK, report)
}
