package assignment

import (
	"context"
	"time"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/quota"
)

// guard explains why a conditional transition matched no row, given the
// device as it is now. It returns nil when the state guards hold, which
// leaves the quota predicate as the failing one.
type guard func(d *device.Device) error

// transition applies a together with its history entry in one
// transaction, then refreshes the cached device.
func (s *Service) transition(ctx context.Context, a device.Assignment, actor, owner *string, why guard) (*device.Device, error) {
	serial := device.NormalizeSerial(a.Serial)
	a.Serial = serial

	err := s.inTx(ctx, func(r txRepos) error {
		ok, err := r.devices.CompareAndSwapAssignment(ctx, a)
		if err != nil {
			return err
		}
		if !ok {
			current, err := r.devices.GetBySerial(ctx, serial)
			if err != nil {
				return deviceNotFound(err)
			}
			if err := why(current); err != nil {
				return err
			}
			return quota.DeviceLimitExceeded()
		}
		return r.history.Record(ctx, device.Transition{
			Serial:    serial,
			From:      a.From,
			To:        a.To,
			ActorID:   actor,
			UserID:    owner,
			CreatedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, s.fail("changing device assignment", err, "serial", serial, "to", a.To)
	}

	metrics.IncAssignTransition(string(a.From), string(a.To))
	d, err := s.registry.Refresh(ctx, serial)
	if err != nil {
		return nil, s.fail("reading assigned device", err, "serial", serial)
	}
	s.logger.Info("device assignment changed", "serial", serial, "from", a.From, "to", a.To)
	return d, nil
}

// claimGuard rejects devices that are taken or owned by someone else.
func claimGuard(userID string) guard {
	return func(d *device.Device) error {
		switch {
		case d.AssignStatus == device.Assigned:
			return apperror.NewConflict("Device already assigned", ErrAlreadyAssigned)
		case d.AssignStatus == device.PendingApproval:
			return apperror.NewConflict("Request already created", ErrRequestPending)
		case d.UserID != nil && *d.UserID != userID:
			return apperror.NewConflict("Invalid device", ErrNotOwner)
		}
		return nil
	}
}

// RequestAssignment asks for serial on behalf of userID and leaves it
// pending admin approval. The state, ownership and device quota guards are
// evaluated by one conditional update.
func (s *Service) RequestAssignment(ctx context.Context, userID, serial string, details device.Details) (*device.Device, error) {
	details = device.TrimDetails(details)
	if err := device.ValidateDetails(details); err != nil {
		return nil, apperror.NewValidation("Invalid device details", err)
	}
	limit, err := s.quota.DeviceLimit(ctx, userID)
	if err != nil {
		return nil, s.fail("resolving device limit", err, "user_id", userID)
	}

	now := s.now().UTC()
	d, err := s.transition(ctx, device.Assignment{
		Serial:                serial,
		From:                  device.NotAssigned,
		To:                    device.PendingApproval,
		Status:                device.StatusInactive,
		SetOwner:              true,
		Owner:                 &userID,
		RequireOwnerOrUnowned: userID,
		DeviceLimit:           int(limit),
		ApprovalRequestedAt:   &now,
		Details:               &details,
	}, &userID, &userID, claimGuard(userID))
	if err != nil {
		return nil, err
	}

	s.outbox.Enqueue(s.approvalRequested(ctx, d.Serial, userID, now))
	return d, nil
}

func (s *Service) approvalRequested(ctx context.Context, serial, userID string, at time.Time) notify.ApprovalRequested {
	msg := notify.ApprovalRequested{Serial: serial, UserID: userID, At: at}
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		msg.UserEmail = u.Email
		msg.UserName = u.FullName()
	} else {
		s.logger.Warn("reading requester for notification failed", "user_id", userID, "error", err)
	}
	if s.admins != nil {
		emails, err := s.admins.FindAdminMailingList(ctx)
		if err != nil {
			s.logger.Warn("reading admin mailing list failed", "error", err)
		}
		msg.AdminEmails = emails
	}
	return msg
}

// AssignDevice gives serial to userID directly, skipping approval. The
// device must be unclaimed and the user must have device quota left.
func (s *Service) AssignDevice(ctx context.Context, adminID, serial, userID string) (*device.Device, error) {
	limit, err := s.quota.DeviceLimit(ctx, userID)
	if err != nil {
		return nil, s.fail("resolving device limit", err, "user_id", userID)
	}

	now := s.now().UTC()
	d, err := s.transition(ctx, device.Assignment{
		Serial:                serial,
		From:                  device.NotAssigned,
		To:                    device.Assigned,
		Status:                device.StatusActive,
		SetOwner:              true,
		Owner:                 &userID,
		RequireOwnerOrUnowned: userID,
		DeviceLimit:           int(limit),
		ApprovedBy:            &adminID,
		ApprovedAt:            &now,
	}, &adminID, &userID, claimGuard(userID))
	if err != nil {
		return nil, err
	}

	s.outbox.Enqueue(notify.DeviceAddedToAccount{Serial: d.Serial, UserID: userID, AssignedBy: adminID, At: now})
	return d, nil
}

func pendingGuard(d *device.Device) error {
	if d.AssignStatus != device.PendingApproval {
		return apperror.NewConflict("Approval status already updated", ErrNotPending)
	}
	return nil
}

// UpdateApproval settles a pending request. Approval makes the requester
// the owner and activates the device; rejection releases the device and
// clears the requester and the descriptive fields they entered.
func (s *Service) UpdateApproval(ctx context.Context, adminID, serial string, approve bool) (*device.Device, error) {
	current, err := s.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, s.fail("reading device", deviceNotFound(err), "serial", serial)
	}
	if err := pendingGuard(current); err != nil {
		return nil, err
	}
	requester := current.UserID
	now := s.now().UTC()

	a := device.Assignment{
		Serial: serial,
		From:   device.PendingApproval,
	}
	if approve {
		a.To = device.Assigned
		a.Status = device.StatusActive
		a.ApprovedBy = &adminID
		a.ApprovedAt = &now
		a.ApprovalRequestedAt = current.ApprovalRequestedAt
		// The pending device already counted against the requester's quota.
		a.DeviceLimit = int(quota.Unlimited)
	} else {
		a.To = device.NotAssigned
		a.Status = device.StatusInactive
		a.SetOwner = true
		a.ClearDetails = true
		a.DeviceLimit = int(quota.Unlimited)
	}

	d, err := s.transition(ctx, a, &adminID, requester, pendingGuard)
	if err != nil {
		return nil, err
	}

	if requester != nil {
		if approve {
			s.outbox.Enqueue(notify.ApprovalAccepted{Serial: d.Serial, UserID: *requester, ApprovedBy: adminID, At: now})
		} else {
			s.outbox.Enqueue(notify.ApprovalRejected{Serial: d.Serial, UserID: *requester, RejectedBy: adminID, At: now})
		}
	}
	return d, nil
}
