// Package metrics registers the Prometheus collectors for Tracker Core.
//
// Collectors are package-level and created once by Init. Every recording
// helper is nil-safe, so packages can record unconditionally and tests that
// never call Init pay nothing.
package metrics

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "tracker_"

// Result labels shared by several collectors.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultError   = "error"
	ResultSent    = "sent"
	ResultDropped = "dropped"
	ResultFailed  = "failed"
)

// Logger is the subset of the service logger used for gauge query failures.
type Logger interface {
	Warn(msg string, args ...any)
}

var (
	registerOnce sync.Once

	cacheLookups     *prometheus.CounterVec
	cacheWriteErrors *prometheus.CounterVec

	assignTransitions *prometheus.CounterVec
	quotaDenials      *prometheus.CounterVec
	fenceLinks        *prometheus.CounterVec

	firmwareLatestChanges prometheus.Counter
	reconcileRepairs      *prometheus.CounterVec
	notifications         *prometheus.CounterVec
	txRetries             *prometheus.CounterVec
)

// Init creates and registers all collectors with the default registry.
// db may be nil, in which case the store-backed gauges are skipped.
func Init(db *sql.DB, logger Logger) {
	registerOnce.Do(func() {
		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_lookups_total",
				Help: "Cache lookups by key family and result",
			},
			[]string{"family", "result"},
		)
		cacheWriteErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_write_errors_total",
				Help: "Failed cache set/delete operations by operation",
			},
			[]string{"op"},
		)
		assignTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "assignment_transitions_total",
				Help: "Device assignment state transitions by source and target state",
			},
			[]string{"from", "to"},
		)
		quotaDenials = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quota_denials_total",
				Help: "Requests rejected by a device or fence quota",
			},
			[]string{"quota"},
		)
		fenceLinks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "geofence_link_operations_total",
				Help: "Geofence attach and detach operations",
			},
			[]string{"op"},
		)
		firmwareLatestChanges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "firmware_latest_changes_total",
				Help: "Times the latest firmware flag moved to another version",
			},
		)
		reconcileRepairs = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_repairs_total",
				Help: "Inconsistencies repaired by the reconciliation pass",
			},
			[]string{"kind"},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Outbound notifications by kind and outcome",
			},
			[]string{"kind", "result"},
		)
		txRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transaction_retries_total",
				Help: "Transactions re-run after a concurrency conflict",
			},
			[]string{"operation"},
		)

		prometheus.MustRegister(
			cacheLookups,
			cacheWriteErrors,
			assignTransitions,
			quotaDenials,
			fenceLinks,
			firmwareLatestChanges,
			reconcileRepairs,
			notifications,
			txRetries,
		)

		if db != nil {
			registerStoreGauges(db, logger)
		}
	})
}

// ObserveCacheLookup counts a cache read for the given key family.
func ObserveCacheLookup(family, result string) {
	if family == "" {
		family = "unknown"
	}
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(family, result).Inc()
	}
}

// IncCacheWriteError counts a failed cache set or delete.
func IncCacheWriteError(op string) {
	if cacheWriteErrors != nil {
		cacheWriteErrors.WithLabelValues(op).Inc()
	}
}

// IncAssignTransition counts one assignment state change.
func IncAssignTransition(from, to string) {
	if assignTransitions != nil {
		assignTransitions.WithLabelValues(from, to).Inc()
	}
}

// IncQuotaDenial counts a request refused by the named quota ("device" or "fence").
func IncQuotaDenial(quota string) {
	if quotaDenials != nil {
		quotaDenials.WithLabelValues(quota).Inc()
	}
}

// IncFenceLink counts an attach or detach.
func IncFenceLink(op string) {
	if fenceLinks != nil {
		fenceLinks.WithLabelValues(op).Inc()
	}
}

// IncFirmwareLatestChange counts a move of the latest flag.
func IncFirmwareLatestChange() {
	if firmwareLatestChanges != nil {
		firmwareLatestChanges.Inc()
	}
}

// AddReconcileRepairs adds n repaired inconsistencies of the given kind.
func AddReconcileRepairs(kind string, n int) {
	if n <= 0 {
		return
	}
	if reconcileRepairs != nil {
		reconcileRepairs.WithLabelValues(kind).Add(float64(n))
	}
}

// IncNotification counts a notification outcome.
func IncNotification(kind, result string) {
	if notifications != nil {
		notifications.WithLabelValues(kind, result).Inc()
	}
}

// IncTxRetry counts a retried transaction.
func IncTxRetry(operation string) {
	if txRetries != nil {
		txRetries.WithLabelValues(operation).Inc()
	}
}
