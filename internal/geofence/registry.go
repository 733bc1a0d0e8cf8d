package geofence

import (
	"context"

	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Logger defines the logging interface used by the Registry.
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

// Registry puts the geo_fence_by_id_<id> cache in front of a Repository.
type Registry struct {
	repo   Repository
	cache  *cache.Aside
	logger Logger
}

// NewRegistry creates a fence registry.
func NewRegistry(repo Repository, c *cache.Aside) *Registry {
	return &Registry{repo: repo, cache: c, logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetByID returns a fence, reading through the cache.
func (r *Registry) GetByID(ctx context.Context, id string) (*Fence, error) {
	var cached Fence
	if r.cache.GetJSON(ctx, cache.GeoFenceByID(id), &cached) {
		return &cached, nil
	}

	f, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.GeoFenceByID(id), f)
	return f, nil
}

// GetForUser returns a fence owned by userID, reading through the cache.
func (r *Registry) GetForUser(ctx context.Context, id, userID string) (*Fence, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, ErrFenceNotFound
	}
	return f, nil
}

// ListByUser returns a page of a user's fences straight from the store.
func (r *Registry) ListByUser(ctx context.Context, userID string, f Filter, page paging.Page) (paging.Result[Fence], error) {
	page = page.Normalize()
	fences, total, err := r.repo.ListByUser(ctx, userID, f, page)
	if err != nil {
		return paging.Result[Fence]{}, err
	}
	return paging.NewResult(fences, total, page), nil
}

// Create validates and persists a fence, then caches it.
func (r *Registry) Create(ctx context.Context, f *Fence) error {
	if err := ValidateName(f.Name); err != nil {
		return err
	}
	if err := ValidateGeometry(f.Geometry); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, f); err != nil {
		return err
	}
	r.cache.SetJSON(ctx, cache.GeoFenceByID(f.ID), f)
	r.logger.Info("geofence created", "id", f.ID, "user_id", f.UserID)
	return nil
}

// Update validates and writes name and geometry, then refreshes the cache.
func (r *Registry) Update(ctx context.Context, f *Fence) (*Fence, error) {
	if err := ValidateName(f.Name); err != nil {
		return nil, err
	}
	if err := ValidateGeometry(f.Geometry); err != nil {
		return nil, err
	}
	if err := r.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return r.Refresh(ctx, f.ID)
}

// SetActive switches a fence on or off and refreshes the cache.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (*Fence, error) {
	if err := r.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	r.logger.Info("geofence active flag changed", "id", id, "active", active)
	return r.Refresh(ctx, id)
}

// Refresh re-reads a fence from the store into the cache.
func (r *Registry) Refresh(ctx context.Context, id string) (*Fence, error) {
	f, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.GeoFenceByID(id), f)
	return f, nil
}

// RefreshMany refreshes several fences, logging rather than returning failures.
func (r *Registry) RefreshMany(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, err := r.Refresh(ctx, id); err != nil {
			r.logger.Warn("refreshing geofence cache failed", "id", id, "error", err)
			r.cache.Delete(ctx, cache.GeoFenceByID(id))
		}
	}
}

// Forget drops the cache entry of a deleted fence.
func (r *Registry) Forget(ctx context.Context, id string) {
	r.cache.Delete(ctx, cache.GeoFenceByID(id))
}
