package assignment

import (
	"context"
	"errors"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/user"
)

// UpdateUserLimits sets a user's device and per-device fence overrides.
// NoOverride (-1) defers to the site configuration. The next quota check
// sees the new values.
func (s *Service) UpdateUserLimits(ctx context.Context, adminID, userID string, maxDevice, maxFencePerDevice int) (*user.User, error) {
	u, err := s.users.UpdateLimits(ctx, userID, maxDevice, maxFencePerDevice)
	switch {
	case errors.Is(err, user.ErrInvalidLimit):
		return nil, apperror.NewValidation("Invalid user limit", err)
	case errors.Is(err, user.ErrUserNotFound):
		return nil, apperror.NewNotFound("Invalid user", err)
	case err != nil:
		return nil, s.fail("updating user limits", err, "user_id", userID)
	}

	s.logger.Info("user limits changed", "user_id", userID, "by", adminID,
		"max_device", maxDevice, "max_fence_per_device", maxFencePerDevice)
	return u, nil
}
