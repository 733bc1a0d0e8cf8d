package fencing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// FenceInput carries the user-editable fields of a fence.
type FenceInput struct {
	Name     string
	Geometry json.RawMessage
}

func invalidFence(err error) error {
	switch {
	case errors.Is(err, geofence.ErrInvalidName):
		return apperror.NewValidation("Invalid geo fence name", err)
	case errors.Is(err, geofence.ErrInvalidGeometry):
		return apperror.NewValidation("Invalid geo fence shape", err)
	}
	return fenceNotFound(err)
}

// CreateFence stores a new active fence owned by userID.
func (e *Engine) CreateFence(ctx context.Context, userID string, in FenceInput) (*geofence.Fence, error) {
	f := &geofence.Fence{
		Name:     strings.TrimSpace(in.Name),
		Geometry: in.Geometry,
		IsActive: true,
		UserID:   userID,
	}
	if err := e.fenceRegistry.Create(ctx, f); err != nil {
		return nil, e.fail("creating geofence", invalidFence(err), "user_id", userID)
	}
	return f, nil
}

// GetFence returns a fence owned by userID.
func (e *Engine) GetFence(ctx context.Context, userID, id string) (*geofence.Fence, error) {
	f, err := e.fenceRegistry.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, e.fail("reading geofence", fenceNotFound(err), "fence_id", id)
	}
	return f, nil
}

// ListFences returns one page of userID's fences.
func (e *Engine) ListFences(ctx context.Context, userID string, f geofence.Filter, page paging.Page) (paging.Result[geofence.Fence], error) {
	res, err := e.fenceRegistry.ListByUser(ctx, userID, f, page)
	if err != nil {
		return res, e.fail("listing geofences", err, "user_id", userID)
	}
	return res, nil
}

// UpdateFence rewrites the name and geometry of a fence owned by userID.
func (e *Engine) UpdateFence(ctx context.Context, userID, id string, in FenceInput) (*geofence.Fence, error) {
	f, err := e.GetFence(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	f.Name = strings.TrimSpace(in.Name)
	f.Geometry = in.Geometry

	updated, err := e.fenceRegistry.Update(ctx, f)
	if err != nil {
		return nil, e.fail("updating geofence", invalidFence(err), "fence_id", id)
	}
	return updated, nil
}

// SetFenceActive switches a fence owned by userID on or off.
func (e *Engine) SetFenceActive(ctx context.Context, userID, id string, active bool) (*geofence.Fence, error) {
	if _, err := e.GetFence(ctx, userID, id); err != nil {
		return nil, err
	}
	f, err := e.fenceRegistry.SetActive(ctx, id, active)
	if err != nil {
		return nil, e.fail("updating geofence", fenceNotFound(err), "fence_id", id)
	}
	return f, nil
}

// DeleteFence removes a fence owned by userID and pulls its ID from every
// device in the same transaction.
func (e *Engine) DeleteFence(ctx context.Context, userID, id string) error {
	var serials []string
	err := e.inTx(ctx, func(devices *device.SQLiteRepository, fences *geofence.SQLiteRepository) error {
		if _, err := ownedFence(ctx, fences, userID, id); err != nil {
			return err
		}
		var err error
		if serials, err = devices.PullGeoFenceID(ctx, id); err != nil {
			return err
		}
		return fences.Delete(ctx, id)
	})
	if err != nil {
		return e.fail("deleting geofence", err, "fence_id", id)
	}

	e.fenceRegistry.Forget(ctx, id)
	e.deviceRegistry.RefreshMany(ctx, serials)
	e.logger.Info("geofence deleted", "fence_id", id, "devices_updated", len(serials))
	return nil
}
