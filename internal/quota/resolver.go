package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/siteconfig"
	"github.com/nerrad567/tracker-core/internal/user"
)

// UserSource reads account overrides. Satisfied by *user.Registry.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// SettingSource reads global settings. Satisfied by *siteconfig.Resolver.
type SettingSource interface {
	Int(ctx context.Context, key string, def int64) (int64, error)
}

// DeviceCounter counts the devices a user holds. Satisfied by *device.Registry.
type DeviceCounter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Resolver computes effective limits. It depends one way on the user,
// site config and device registries.
type Resolver struct {
	users    UserSource
	settings SettingSource
	devices  DeviceCounter
}

// NewResolver creates a quota resolver.
func NewResolver(users UserSource, settings SettingSource, devices DeviceCounter) *Resolver {
	return &Resolver{users: users, settings: settings, devices: devices}
}

// DeviceLimit returns the number of devices userID may hold: the user's
// override when set, else max_device_per_user.
func (r *Resolver) DeviceLimit(ctx context.Context, userID string) (Limit, error) {
	u, err := r.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.MaxDevice >= 0 {
		return Limit(u.MaxDevice), nil
	}
	return r.global(ctx, siteconfig.KeyMaxDevicePerUser)
}

// RemainingDevices returns the device limit of userID together with the
// number of devices the user holds, pending requests included.
func (r *Resolver) RemainingDevices(ctx context.Context, userID string) (Usage, error) {
	limit, err := r.DeviceLimit(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	used, err := r.devices.CountByUser(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("counting devices of %s: %w", userID, err)
	}
	return Usage{Limit: limit, Used: used}, nil
}

// FenceLimit returns the number of geofences d may carry: the device
// override, else the owner's override, else max_geo_fence_per_device.
func (r *Resolver) FenceLimit(ctx context.Context, d *device.Device) (Limit, error) {
	if d.MaxFence >= 0 {
		return Limit(d.MaxFence), nil
	}
	if d.UserID != nil {
		u, err := r.user(ctx, *d.UserID)
		switch {
		case err == nil && u.MaxFencePerDevice >= 0:
			return Limit(u.MaxFencePerDevice), nil
		case err != nil && !errors.Is(err, user.ErrUserNotFound):
			return 0, err
		}
	}
	return r.global(ctx, siteconfig.KeyMaxGeoFencePerDevice)
}

// RemainingFences returns the fence limit of d together with its attached count.
func (r *Resolver) RemainingFences(ctx context.Context, d *device.Device) (Usage, error) {
	limit, err := r.FenceLimit(ctx, d)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Limit: limit, Used: len(d.AttachedGeoFences)}, nil
}

func (r *Resolver) user(ctx context.Context, id string) (*user.User, error) {
	u, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, apperror.NewNotFound("User not found", err)
		}
		return nil, fmt.Errorf("reading user %s: %w", id, err)
	}
	return u, nil
}

// global reads a numeric setting. A missing or negative setting is unlimited.
func (r *Resolver) global(ctx context.Context, key string) (Limit, error) {
	n, err := r.settings.Int(ctx, key, int64(Unlimited))
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if n < 0 {
		return Unlimited, nil
	}
	return Limit(n), nil
}
