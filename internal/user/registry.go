package user

import (
	"context"

	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
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

// Registry puts the user_by_id_<id> cache in front of a Repository.
type Registry struct {
	repo   Repository
	cache  *cache.Aside
	logger Logger
}

// NewRegistry creates a user registry.
func NewRegistry(repo Repository, c *cache.Aside) *Registry {
	return &Registry{repo: repo, cache: c, logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetByID returns the user, reading through the cache.
func (r *Registry) GetByID(ctx context.Context, id string) (*User, error) {
	var cached User
	if r.cache.GetJSON(ctx, cache.UserByID(id), &cached) {
		return &cached, nil
	}

	u, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.UserByID(id), u)
	return u, nil
}

// AdminEmails returns the e-mail addresses of all admin users in creation order.
// Not cached: the admin set is small and read only when notifying admins.
func (r *Registry) AdminEmails(ctx context.Context) ([]string, error) {
	admins, err := r.repo.ListByRole(ctx, RoleAdmin)
	if err != nil {
		r.logger.Error("listing admin users failed", "error", err)
		return nil, err
	}
	emails := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return emails, nil
}

// UpdateLimits validates and stores a user's quota overrides, then replaces the
// cached copy with the stored row so quota checks see the new limits at once.
func (r *Registry) UpdateLimits(ctx context.Context, id string, maxDevice, maxFencePerDevice int) (*User, error) {
	if err := ValidateLimits(maxDevice, maxFencePerDevice); err != nil {
		return nil, err
	}
	if err := r.repo.UpdateLimits(ctx, id, maxDevice, maxFencePerDevice); err != nil {
		return nil, err
	}

	u, err := r.repo.GetByID(ctx, id)
	if err != nil {
		r.cache.Delete(ctx, cache.UserByID(id))
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.UserByID(id), u)
	r.logger.Info("user limits updated", "user_id", id,
		"max_device", maxDevice, "max_fence_per_device", maxFencePerDevice)
	return u, nil
}

// Invalidate drops the cached copy of a user after an external change.
func (r *Registry) Invalidate(ctx context.Context, id string) {
	r.cache.Delete(ctx, cache.UserByID(id))
}
