package fencing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/retry"
	"github.com/nerrad567/tracker-core/internal/quota"
)

// Logger defines the logging interface used by the Engine.
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

// Link operations reported in metrics.
const (
	opAttach = "attach"
	opDetach = "detach"
)

// Link is both sides of a device and fence pair after a change.
type Link struct {
	Device *device.Device  `json:"device"`
	Fence  *geofence.Fence `json:"fence"`
}

// Engine maintains device and fence links and the fence lifecycle.
type Engine struct {
	db             *database.DB
	devices        *device.SQLiteRepository
	fences         *geofence.SQLiteRepository
	deviceRegistry *device.Registry
	fenceRegistry  *geofence.Registry
	quota          *quota.Resolver
	retry          retry.Policy
	logger         Logger
}

// NewEngine creates a fencing engine.
func NewEngine(db *database.DB, devices *device.SQLiteRepository, fences *geofence.SQLiteRepository,
	deviceRegistry *device.Registry, fenceRegistry *geofence.Registry, q *quota.Resolver) *Engine {
	return &Engine{
		db:             db,
		devices:        devices,
		fences:         fences,
		deviceRegistry: deviceRegistry,
		fenceRegistry:  fenceRegistry,
		quota:          q,
		retry:          retry.New(retry.DefaultAttempts, database.IsBusy),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetRetryAttempts overrides the transaction retry budget.
func (e *Engine) SetRetryAttempts(n int) {
	e.retry = retry.New(n, database.IsBusy)
}

func (e *Engine) inTx(ctx context.Context, fn func(devices *device.SQLiteRepository, fences *geofence.SQLiteRepository) error) error {
	return e.retry.Do(ctx, func() error {
		return e.db.InTx(ctx, func(tx *sql.Tx) error {
			return fn(e.devices.WithTx(tx), e.fences.WithTx(tx))
		})
	})
}

// ownedDevice reads serial and requires userID to own it.
func ownedDevice(ctx context.Context, devices *device.SQLiteRepository, userID, serial string) (*device.Device, error) {
	d, err := devices.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, apperror.NewNotFound("Invalid device", err)
		}
		return nil, err
	}
	if !d.OwnedBy(userID) {
		return nil, apperror.NewNotFound("Invalid device", device.ErrDeviceNotFound)
	}
	return d, nil
}

func ownedFence(ctx context.Context, fences *geofence.SQLiteRepository, userID, id string) (*geofence.Fence, error) {
	f, err := fences.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, fenceNotFound(err)
	}
	return f, nil
}

// Attach links fenceID to serial. Both must belong to userID. The device's
// fence limit is resolved first and the attached count is checked again
// inside the transaction that writes the link. A link the device already
// lists is completed on the fence side without a quota check.
func (e *Engine) Attach(ctx context.Context, userID, serial, fenceID string) (*Link, error) {
	serial = device.NormalizeSerial(serial)

	d, err := ownedDevice(ctx, e.devices, userID, serial)
	if err != nil {
		return nil, e.fail("reading device", err, "serial", serial)
	}
	limit, err := e.quota.FenceLimit(ctx, d)
	if err != nil {
		return nil, e.fail("resolving fence limit", err, "serial", serial)
	}

	err = e.inTx(ctx, func(devices *device.SQLiteRepository, fences *geofence.SQLiteRepository) error {
		f, err := ownedFence(ctx, fences, userID, fenceID)
		if err != nil {
			return err
		}
		d, err := ownedDevice(ctx, devices, userID, serial)
		if err != nil {
			return err
		}
		if f.HasDevice(serial) {
			return apperror.NewValidation("Geo fence is already added to device", ErrAlreadyAttached)
		}
		// A device that already lists the fence is only missing the fence side.
		// Completing it adds nothing to the device's count.
		if d.HasGeoFence(f.ID) {
			return fences.SetDeviceSerials(ctx, f.ID, append(f.AttachedDeviceSerials, serial))
		}
		if !limit.Allows(len(d.AttachedGeoFences)) {
			return quota.FenceLimitExceeded()
		}

		if err := fences.SetDeviceSerials(ctx, f.ID, append(f.AttachedDeviceSerials, serial)); err != nil {
			return err
		}
		return devices.SetGeoFences(ctx, serial, append(d.AttachedGeoFences, f.ID))
	})
	if err != nil {
		return nil, e.fail("attaching geofence", err, "serial", serial, "fence_id", fenceID)
	}

	metrics.IncFenceLink(opAttach)
	e.logger.Info("geofence attached", "serial", serial, "fence_id", fenceID)
	return e.refreshLink(ctx, serial, fenceID)
}

// Detach removes the link between fenceID and serial from both sides.
func (e *Engine) Detach(ctx context.Context, userID, serial, fenceID string) (*Link, error) {
	serial = device.NormalizeSerial(serial)

	err := e.inTx(ctx, func(devices *device.SQLiteRepository, fences *geofence.SQLiteRepository) error {
		f, err := ownedFence(ctx, fences, userID, fenceID)
		if err != nil {
			return err
		}
		d, err := ownedDevice(ctx, devices, userID, serial)
		if err != nil {
			return err
		}
		if !f.HasDevice(serial) && !d.HasGeoFence(f.ID) {
			return apperror.NewValidation("Geo fence is not added to device", ErrNotAttached)
		}

		if f.HasDevice(serial) {
			if err := fences.SetDeviceSerials(ctx, f.ID, without(f.AttachedDeviceSerials, serial)); err != nil {
				return err
			}
		}
		if d.HasGeoFence(f.ID) {
			return devices.SetGeoFences(ctx, serial, without(d.AttachedGeoFences, f.ID))
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("detaching geofence", err, "serial", serial, "fence_id", fenceID)
	}

	metrics.IncFenceLink(opDetach)
	e.logger.Info("geofence detached", "serial", serial, "fence_id", fenceID)
	return e.refreshLink(ctx, serial, fenceID)
}

// PullDeviceSerial removes serial from every fence and returns the IDs of
// the fences that changed.
func (e *Engine) PullDeviceSerial(ctx context.Context, serial string) ([]string, error) {
	serial = device.NormalizeSerial(serial)
	var ids []string
	err := e.inTx(ctx, func(_ *device.SQLiteRepository, fences *geofence.SQLiteRepository) error {
		var err error
		ids, err = fences.PullDeviceSerial(ctx, serial)
		return err
	})
	if err != nil {
		return nil, e.fail("pulling serial from geofences", err, "serial", serial)
	}
	e.fenceRegistry.RefreshMany(ctx, ids)
	return ids, nil
}

// PullGeoFenceID removes fenceID from every device and returns the serials
// of the devices that changed.
func (e *Engine) PullGeoFenceID(ctx context.Context, fenceID string) ([]string, error) {
	var serials []string
	err := e.inTx(ctx, func(devices *device.SQLiteRepository, _ *geofence.SQLiteRepository) error {
		var err error
		serials, err = devices.PullGeoFenceID(ctx, fenceID)
		return err
	})
	if err != nil {
		return nil, e.fail("pulling geofence from devices", err, "fence_id", fenceID)
	}
	e.deviceRegistry.RefreshMany(ctx, serials)
	return serials, nil
}

func (e *Engine) refreshLink(ctx context.Context, serial, fenceID string) (*Link, error) {
	d, err := e.deviceRegistry.Refresh(ctx, serial)
	if err != nil {
		return nil, e.fail("reading linked device", err, "serial", serial)
	}
	f, err := e.fenceRegistry.Refresh(ctx, fenceID)
	if err != nil {
		return nil, e.fail("reading linked geofence", err, "fence_id", fenceID)
	}
	return &Link{Device: d, Fence: f}, nil
}

// fail logs unclassified errors and passes classified ones through.
func (e *Engine) fail(op string, err error, args ...any) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	e.logger.Error(op+" failed", append(args, "error", err)...)
	return fmt.Errorf("%s: %w", op, err)
}

func fenceNotFound(err error) error {
	if errors.Is(err, geofence.ErrFenceNotFound) {
		return apperror.NewNotFound("Invalid geo fence", err)
	}
	return err
}

// without returns a copy of list minus every occurrence of v.
func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
