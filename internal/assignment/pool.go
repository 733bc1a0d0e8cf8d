package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// CreatePool provisions a new serial. A generated serial that collides with
// an existing one is regenerated, up to the retry budget.
func (s *Service) CreatePool(ctx context.Context) (*device.Pool, error) {
	for attempt := 0; attempt <= s.attempts; attempt++ {
		serial, err := GenerateSerial(s.prefix, s.now())
		if err != nil {
			return nil, s.fail("generating serial", err)
		}

		p := &device.Pool{Serial: serial, Status: device.PoolCreated}
		err = s.registry.CreatePool(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, device.ErrPoolExists) {
			return nil, s.fail("creating device pool", err, "serial", serial)
		}
		s.logger.Warn("generated serial collided, retrying", "serial", serial, "attempt", attempt)
	}
	return nil, s.fail("creating device pool", ErrSerialExhausted)
}

// Provision creates n pool rows and returns them in creation order.
// It stops at the first failure and returns the rows created so far.
func (s *Service) Provision(ctx context.Context, n int) ([]device.Pool, error) {
	if n < 1 {
		return nil, apperror.NewValidation("Count must be at least 1", fmt.Errorf("count %d", n))
	}
	pools := make([]device.Pool, 0, n)
	for range n {
		p, err := s.CreatePool(ctx)
		if err != nil {
			return pools, err
		}
		pools = append(pools, *p)
	}
	return pools, nil
}

// MarkAsConfigured flips a pool row to configured and creates its device
// in the same transaction, so a device exists exactly when its pool row is
// configured.
func (s *Service) MarkAsConfigured(ctx context.Context, serial string) (*device.Pool, error) {
	serial = device.NormalizeSerial(serial)

	err := s.inTx(ctx, func(r txRepos) error {
		p, err := r.pools.GetBySerial(ctx, serial)
		if err != nil {
			if errors.Is(err, device.ErrPoolNotFound) {
				return apperror.NewNotFound("Invalid request", err)
			}
			return err
		}
		if p.Status == device.PoolConfigured {
			return apperror.NewConflict("Already configured", ErrAlreadyConfigured)
		}

		if err := r.devices.Create(ctx, &device.Device{Serial: serial}); err != nil {
			if errors.Is(err, device.ErrDeviceExists) {
				return apperror.NewConflict("Already configured", fmt.Errorf("%w: %w", ErrAlreadyConfigured, err))
			}
			return err
		}
		ok, err := r.pools.UpdateStatus(ctx, serial, device.PoolCreated, device.PoolConfigured)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NewConflict("Already configured", ErrAlreadyConfigured)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("configuring device pool", err, "serial", serial)
	}

	if _, err := s.registry.Refresh(ctx, serial); err != nil {
		s.logger.Warn("caching configured device failed", "serial", serial, "error", err)
	}
	p, err := s.registry.RefreshPool(ctx, serial)
	if err != nil {
		return nil, s.fail("reading configured pool", err, "serial", serial)
	}
	s.logger.Info("device pool configured", "serial", serial)
	return p, nil
}

// ListPools returns one page of pool rows.
func (s *Service) ListPools(ctx context.Context, f device.PoolFilter, page paging.Page) (paging.Result[device.Pool], error) {
	res, err := s.registry.ListPools(ctx, f, page)
	if err != nil {
		return res, s.fail("listing device pools", err)
	}
	return res, nil
}
