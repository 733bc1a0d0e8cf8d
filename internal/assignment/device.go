package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// removed marks the history entry written when a device is deleted.
const removed device.AssignStatus = "removed"

// GetDevice returns one device through the cache.
func (s *Service) GetDevice(ctx context.Context, serial string) (*device.Device, error) {
	d, err := s.registry.GetBySerial(ctx, serial)
	if err != nil {
		return nil, s.fail("reading device", deviceNotFound(err), "serial", serial)
	}
	return d, nil
}

// ListDevices returns one page of devices matching f.
func (s *Service) ListDevices(ctx context.Context, f device.Filter, page paging.Page) (paging.Result[device.Device], error) {
	res, err := s.registry.List(ctx, f, page)
	if err != nil {
		return res, s.fail("listing devices", err)
	}
	return res, nil
}

// History returns the recent ownership transitions of serial, newest first.
func (s *Service) History(ctx context.Context, serial string, limit int) ([]device.Transition, error) {
	entries, err := s.history.ListBySerial(ctx, serial, limit)
	if err != nil {
		return nil, s.fail("reading assignment history", err, "serial", serial)
	}
	return entries, nil
}

// UpdateDeviceStatus switches an assigned device on or off. Setting the
// status it already has is a conflict.
func (s *Service) UpdateDeviceStatus(ctx context.Context, serial string, status device.Status) (*device.Device, error) {
	if err := device.ValidateStatus(status); err != nil {
		return nil, apperror.NewValidation("Invalid device status", err)
	}

	ok, err := s.devices.SetStatus(ctx, serial, status)
	if err != nil {
		return nil, s.fail("updating device status", err, "serial", serial)
	}
	if !ok {
		current, err := s.devices.GetBySerial(ctx, serial)
		if err != nil {
			return nil, s.fail("reading device", deviceNotFound(err), "serial", serial)
		}
		if current.AssignStatus != device.Assigned {
			return nil, apperror.NewConflict("Device not assigned to any user", ErrNotAssigned)
		}
		return nil, apperror.NewConflict(fmt.Sprintf("Device already %s", status), ErrStatusUnchanged)
	}

	d, err := s.registry.Refresh(ctx, serial)
	if err != nil {
		return nil, s.fail("reading device", err, "serial", serial)
	}
	s.logger.Info("device status changed", "serial", d.Serial, "status", status)
	return d, nil
}

// UpdateDevice lets the owner of an assigned device edit its descriptive
// fields. Empty fields in details keep their current value.
func (s *Service) UpdateDevice(ctx context.Context, userID, serial string, details device.Details) (*device.Device, error) {
	details = device.TrimDetails(details)
	if err := device.ValidateDetails(details); err != nil {
		return nil, apperror.NewValidation("Invalid device details", err)
	}

	d, err := s.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, s.fail("reading device", deviceNotFound(err), "serial", serial)
	}
	if d.AssignStatus != device.Assigned {
		return nil, apperror.NewConflict("Invalid device", ErrNotAssigned)
	}
	if !d.OwnedBy(userID) {
		return nil, apperror.NewConflict("Invalid device", ErrNotOwner)
	}

	d.Details = mergeDetails(d.Details, details)
	if err := s.registry.Update(ctx, d); err != nil {
		return nil, s.fail("updating device", deviceNotFound(err), "serial", serial)
	}
	return s.registry.GetBySerial(ctx, serial)
}

func mergeDetails(current, next device.Details) device.Details {
	pick := func(cur, nxt string) string {
		if nxt == "" {
			return cur
		}
		return nxt
	}
	return device.Details{
		Name:               pick(current.Name, next.Name),
		VehicleName:        pick(current.VehicleName, next.VehicleName),
		VehicleNumber:      pick(current.VehicleNumber, next.VehicleNumber),
		DriverName:         pick(current.DriverName, next.DriverName),
		DriverContact:      pick(current.DriverContact, next.DriverContact),
		DriverOtherDetails: pick(current.DriverOtherDetails, next.DriverOtherDetails),
	}
}

// UpdateMaxFence sets the per-device fence override, -1 to defer to the
// owner and the global setting.
func (s *Service) UpdateMaxFence(ctx context.Context, serial string, maxFence int) (*device.Device, error) {
	d, err := s.registry.SetMaxFence(ctx, serial, maxFence)
	if err != nil {
		if errors.Is(err, device.ErrInvalidMaxFence) {
			return nil, apperror.NewValidation("Max fence must be between -1 and 100", err)
		}
		return nil, s.fail("updating max fence", deviceNotFound(err), "serial", serial)
	}
	return d, nil
}

// DeleteDevice removes an unclaimed device together with its pool row and
// pulls its serial from every geofence, all in one transaction.
func (s *Service) DeleteDevice(ctx context.Context, actorID, serial string) error {
	serial = device.NormalizeSerial(serial)

	var d *device.Device
	var p *device.Pool
	var fenceIDs []string
	err := s.inTx(ctx, func(r txRepos) error {
		var err error
		if d, err = r.devices.GetBySerial(ctx, serial); err != nil {
			return deviceNotFound(err)
		}
		if d.AssignStatus != device.NotAssigned {
			return apperror.NewConflict("Device is assigned, can not delete", ErrDeviceInUse)
		}
		if p, err = r.pools.GetBySerial(ctx, serial); err != nil && !errors.Is(err, device.ErrPoolNotFound) {
			return err
		}

		if fenceIDs, err = r.fences.PullDeviceSerial(ctx, serial); err != nil {
			return err
		}
		if err := r.devices.Delete(ctx, serial); err != nil {
			return err
		}
		if p != nil {
			if err := r.pools.Delete(ctx, serial); err != nil {
				return err
			}
		}
		return r.history.Record(ctx, device.Transition{
			Serial:    serial,
			From:      d.AssignStatus,
			To:        removed,
			ActorID:   optional(actorID),
			CreatedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return s.fail("deleting device", err, "serial", serial)
	}

	s.registry.Forget(ctx, d)
	if p != nil {
		s.registry.ForgetPool(ctx, p)
	}
	s.fenceRegistry.RefreshMany(ctx, fenceIDs)
	s.logger.Info("device deleted", "serial", serial, "geofences_updated", len(fenceIDs))
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
