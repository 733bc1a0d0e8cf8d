package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

func registerStoreGauges(db *sql.DB, logger Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "devices_pending_approval",
			Help: "Devices waiting for an assignment decision",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM devices WHERE assign_status = 'pending_approval'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "device_pools_unconfigured",
			Help: "Provisioned serials not yet configured",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM device_pools WHERE status = 'created'")
		},
	))
}

func queryCount(db *sql.DB, logger Logger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
