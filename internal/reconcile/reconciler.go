package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/firmware"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/retry"
)

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Repair kinds reported in metrics.
const (
	repairLinkAdded      = "link_added"
	repairLinkRemoved    = "link_removed"
	repairFirmwareLatest = "firmware_latest"
)

// LatestRepairer rebuilds the firmware latest flag.
type LatestRepairer interface {
	RecomputeLatest(ctx context.Context) (firmware.LatestChange, error)
}

// Deps holds the Reconciler's collaborators.
type Deps struct {
	DB             *database.DB
	Devices        *device.SQLiteRepository
	Fences         *geofence.SQLiteRepository
	Firmware       *firmware.SQLiteRepository
	Latest         LatestRepairer
	DeviceRegistry *device.Registry
	FenceRegistry  *geofence.Registry
	RetryAttempts  int
	Logger         Logger
}

// Report summarises one reconciliation pass.
type Report struct {
	LinksAdded     int       `json:"linksAdded"`
	LinksRemoved   int       `json:"linksRemoved"`
	LatestRepaired bool      `json:"latestRepaired"`
	Devices        []string  `json:"devices,omitempty"`
	Fences         []string  `json:"fences,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	Duration       string    `json:"duration"`
}

// Repairs returns the total number of fixes made.
func (r Report) Repairs() int {
	n := r.LinksAdded + r.LinksRemoved
	if r.LatestRepaired {
		n++
	}
	return n
}

// Reconciler finds and repairs broken link and firmware state.
type Reconciler struct {
	db             *database.DB
	devices        *device.SQLiteRepository
	fences         *geofence.SQLiteRepository
	firmware       *firmware.SQLiteRepository
	latest         LatestRepairer
	deviceRegistry *device.Registry
	fenceRegistry  *geofence.Registry
	retry          retry.Policy
	logger         Logger
}

// New creates a Reconciler.
func New(deps Deps) (*Reconciler, error) {
	if deps.DB == nil || deps.Devices == nil || deps.Fences == nil || deps.Firmware == nil || deps.Latest == nil {
		return nil, errors.New("reconcile: database, repositories and latest repairer are required")
	}
	if deps.DeviceRegistry == nil || deps.FenceRegistry == nil {
		return nil, errors.New("reconcile: registries are required")
	}
	if deps.RetryAttempts <= 0 {
		deps.RetryAttempts = retry.DefaultAttempts
	}
	var logger Logger = noopLogger{}
	if deps.Logger != nil {
		logger = deps.Logger
	}
	return &Reconciler{
		db:             deps.DB,
		devices:        deps.Devices,
		fences:         deps.Fences,
		firmware:       deps.Firmware,
		latest:         deps.Latest,
		deviceRegistry: deps.DeviceRegistry,
		fenceRegistry:  deps.FenceRegistry,
		retry:          retry.New(deps.RetryAttempts, database.IsBusy),
		logger:         logger,
	}, nil
}

// Run performs one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}

	var links linkRepair
	err := r.retry.Do(ctx, func() error {
		return r.db.InTx(ctx, func(tx *sql.Tx) error {
			var err error
			links, err = repairLinks(ctx, r.devices.WithTx(tx), r.fences.WithTx(tx))
			return err
		})
	})
	if err != nil {
		return report, fmt.Errorf("repairing geofence links: %w", err)
	}
	report.LinksAdded = links.added
	report.LinksRemoved = links.removed
	report.Devices = slices.Sorted(maps.Keys(links.devices))
	report.Fences = slices.Sorted(maps.Keys(links.fences))

	r.deviceRegistry.RefreshMany(ctx, report.Devices)
	r.fenceRegistry.RefreshMany(ctx, report.Fences)
	metrics.AddReconcileRepairs(repairLinkAdded, links.added)
	metrics.AddReconcileRepairs(repairLinkRemoved, links.removed)

	refs, err := r.firmware.Versions(ctx)
	if err != nil {
		return report, fmt.Errorf("reading firmware versions: %w", err)
	}
	if firmware.Inconsistent(refs) {
		if _, err := r.latest.RecomputeLatest(ctx); err != nil {
			return report, fmt.Errorf("repairing latest firmware: %w", err)
		}
		report.LatestRepaired = true
		metrics.AddReconcileRepairs(repairFirmwareLatest, 1)
	}

	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	if report.Repairs() > 0 {
		r.logger.Warn("reconciliation repaired inconsistencies",
			"links_added", report.LinksAdded,
			"links_removed", report.LinksRemoved,
			"latest_repaired", report.LatestRepaired,
		)
	} else {
		r.logger.Debug("reconciliation found nothing to repair", "duration", report.Duration)
	}
	return report, nil
}

// Loop runs a pass every interval until ctx is cancelled. Failed passes are
// logged and retried on the next tick.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("reconciliation loop started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconciliation pass failed", "error", err)
			}
		}
	}
}
