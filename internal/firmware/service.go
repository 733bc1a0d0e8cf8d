package firmware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tracker-core/internal/infrastructure/retry"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Logger defines the logging interface used by the Service.
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

// DeviceDirectory resolves sync targets and records confirmed versions.
// Satisfied by *device.Registry.
type DeviceDirectory interface {
	Serials(ctx context.Context, f device.Filter) ([]string, error)
	SetFirmwareVersion(ctx context.Context, serial, version string) (*device.Device, error)
}

// CreateInput carries the fields of a new firmware upload.
type CreateInput struct {
	Version   string
	Key       string
	ETag      string
	FileURL   string
	CreatedBy string
}

// Service manages firmware uploads, the latest flag and sync jobs.
//
// Every write that can move the latest flag runs in one transaction; a
// concurrent writer that grabs the flag first trips the single-latest index
// and the whole transaction is retried.
type Service struct {
	db      *database.DB
	repo    *SQLiteRepository
	devices DeviceDirectory
	cache   *cache.Aside
	outbox  notify.Publisher
	retry   retry.Policy
	logger  Logger
	now     func() time.Time
}

// NewService wires the firmware service. outbox may be nil.
func NewService(db *database.DB, repo *SQLiteRepository, devices DeviceDirectory, c *cache.Aside, outbox notify.Publisher) *Service {
	if outbox == nil {
		outbox = notify.Discard{}
	}
	return &Service{
		db:      db,
		repo:    repo,
		devices: devices,
		cache:   c,
		outbox:  outbox,
		retry:   retry.New(retry.DefaultAttempts, retryableTx),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRetryAttempts overrides the transaction retry budget.
func (s *Service) SetRetryAttempts(n int) {
	s.retry = retry.New(n, retryableTx)
}

func retryableTx(err error) bool {
	return apperror.Is(err, apperror.ConcurrencyConflict) || database.IsBusy(err)
}

// classifyLatest turns a single-latest index violation into a retryable conflict.
func classifyLatest(err error) error {
	if database.IsUniqueViolation(err) {
		return apperror.NewConcurrencyConflict("Latest firmware changed concurrently", ErrLatestConflict)
	}
	return err
}

// inTx runs fn in a transaction under the retry policy.
func (s *Service) inTx(ctx context.Context, operation string, fn func(repo *SQLiteRepository) error) error {
	attempt := 0
	return s.retry.Do(ctx, func() error {
		if attempt > 0 {
			metrics.IncTxRetry(operation)
			s.logger.Debug("retrying firmware transaction", "operation", operation, "attempt", attempt)
		}
		attempt++
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			return fn(s.repo.WithTx(tx))
		})
	})
}

// Create stores a new firmware version and moves the latest flag to it
// when it is the highest version.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Firmware, error) {
	version, err := NormalizeVersion(in.Version)
	if err != nil {
		return nil, apperror.NewValidation("Invalid firmware version", err)
	}

	var fw *Firmware
	var change LatestChange
	err = s.inTx(ctx, "firmware_create", func(repo *SQLiteRepository) error {
		fw = &Firmware{
			Version:   version,
			Key:       strings.TrimSpace(in.Key),
			ETag:      strings.TrimSpace(in.ETag),
			FileURL:   strings.TrimSpace(in.FileURL),
			CreatedBy: optional(in.CreatedBy),
		}
		if err := repo.Create(ctx, fw); err != nil {
			if errors.Is(err, ErrFirmwareExists) {
				return apperror.NewConflict("Firmware version already exists", err)
			}
			return err
		}
		c, err := promoteIfNewest(ctx, repo, fw)
		if err != nil {
			return classifyLatest(err)
		}
		change = c
		return nil
	})
	if err != nil {
		return nil, s.fail("creating firmware", err, "version", version)
	}

	s.afterLatestChange(ctx, change)
	s.cache.SetJSON(ctx, cache.FirmwareByID(fw.ID), fw)
	s.logger.Info("firmware created", "id", fw.ID, "version", fw.Version, "latest", fw.IsLatest)
	return fw, nil
}

// Get returns one firmware row through the cache.
func (s *Service) Get(ctx context.Context, id string) (*Firmware, error) {
	var cached Firmware
	if s.cache.GetJSON(ctx, cache.FirmwareByID(id), &cached) {
		return &cached, nil
	}
	fw, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	s.cache.SetJSON(ctx, cache.FirmwareByID(id), fw)
	return fw, nil
}

// Latest returns the firmware carrying the latest flag through the cache.
func (s *Service) Latest(ctx context.Context) (*Firmware, error) {
	var cached Firmware
	if s.cache.GetJSON(ctx, cache.FirmwareLatest, &cached) {
		return &cached, nil
	}
	fw, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	s.cache.SetJSON(ctx, cache.FirmwareLatest, fw)
	return fw, nil
}

// List returns one page of firmware, newest upload first.
func (s *Service) List(ctx context.Context, page paging.Page) (paging.Result[Firmware], error) {
	page = page.Normalize()
	items, total, err := s.repo.List(ctx, page)
	if err != nil {
		return paging.Result[Firmware]{}, s.fail("listing firmware", err)
	}
	return paging.NewResult(items, total, page), nil
}

// Update writes fw's version, key, etag and file URL. With recompute the
// latest flag is rebuilt afterwards, which matters when the version changed.
func (s *Service) Update(ctx context.Context, fw *Firmware, recompute bool) (*Firmware, error) {
	version, err := NormalizeVersion(fw.Version)
	if err != nil {
		return nil, apperror.NewValidation("Invalid firmware version", err)
	}

	var updated *Firmware
	var change LatestChange
	err = s.inTx(ctx, "firmware_update", func(repo *SQLiteRepository) error {
		next := *fw
		next.Version = version
		if err := repo.Update(ctx, &next); err != nil {
			switch {
			case errors.Is(err, ErrFirmwareExists):
				return apperror.NewConflict("Firmware version already exists", err)
			case errors.Is(err, ErrFirmwareNotFound):
				return notFound(err)
			}
			return err
		}
		if recompute {
			c, err := Recompute(ctx, repo)
			if err != nil {
				return classifyLatest(err)
			}
			change = c
		}
		got, err := repo.GetByID(ctx, fw.ID)
		if err != nil {
			return err
		}
		updated = got
		return nil
	})
	if err != nil {
		return nil, s.fail("updating firmware", err, "id", fw.ID)
	}

	s.afterLatestChange(ctx, change)
	s.cache.SetJSON(ctx, cache.FirmwareByID(updated.ID), updated)
	if updated.IsLatest {
		s.cache.SetJSON(ctx, cache.FirmwareLatest, updated)
	}
	return updated, nil
}

// MarkSynced flags a firmware as pushed without touching the latest flag.
func (s *Service) MarkSynced(ctx context.Context, id, by string) (*Firmware, error) {
	ok, err := s.repo.MarkSynced(ctx, id, by, s.now())
	if err != nil {
		return nil, s.fail("marking firmware synced", err, "id", id)
	}
	if !ok {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, notFound(err)
		}
		return nil, apperror.NewConflict("Firmware is already synced", ErrAlreadySynced)
	}
	return s.refresh(ctx, id)
}

// Delete removes a firmware that has not been synced. When it held the
// latest flag, the highest remaining version takes it.
func (s *Service) Delete(ctx context.Context, id string) error {
	var change LatestChange
	err := s.inTx(ctx, "firmware_delete", func(repo *SQLiteRepository) error {
		fw, err := repo.GetByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if fw.IsSynced() {
			return apperror.NewConflict("Firmware is synced, can not delete", ErrFirmwareSynced)
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		if !fw.IsLatest {
			return nil
		}
		c, err := restoreAfterDelete(ctx, repo, id)
		if err != nil {
			return classifyLatest(err)
		}
		change = c
		return nil
	})
	if err != nil {
		return s.fail("deleting firmware", err, "id", id)
	}

	s.cache.Delete(ctx, cache.FirmwareByID(id))
	s.afterLatestChange(ctx, change)
	s.logger.Info("firmware deleted", "id", id)
	return nil
}

// Sync pushes a firmware to devices: it appends a sync job, marks the
// firmware synced and emits FirmwareSyncRequested. Targets are resolved
// before the transaction opens.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (*SyncJob, error) {
	serials, err := s.targets(ctx, req)
	if err != nil {
		return nil, err
	}

	var job *SyncJob
	var fw *Firmware
	err = s.inTx(ctx, "firmware_sync", func(repo *SQLiteRepository) error {
		got, err := repo.GetByID(ctx, req.FirmwareID)
		if err != nil {
			return notFound(err)
		}
		ok, err := repo.MarkSynced(ctx, got.ID, req.By, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NewConflict("Firmware is already synced", ErrAlreadySynced)
		}
		job = &SyncJob{
			FirmwareID:          got.ID,
			SyncBy:              req.By,
			IsAllDeviceSelected: req.AllDevices,
			AttachedDevices:     serials,
		}
		if err := repo.CreateSyncJob(ctx, job); err != nil {
			return err
		}
		fw = got
		return nil
	})
	if err != nil {
		return nil, s.fail("syncing firmware", err, "id", req.FirmwareID)
	}

	if _, err := s.refresh(ctx, fw.ID); err != nil {
		s.logger.Warn("refreshing firmware cache failed", "id", fw.ID, "error", err)
	}
	s.outbox.Enqueue(notify.FirmwareSyncRequested{
		FirmwareID:  fw.ID,
		Version:     fw.Version,
		FileURL:     fw.FileURL,
		ETag:        fw.ETag,
		SyncJobID:   job.SyncJobID,
		Serials:     job.AttachedDevices,
		AllDevices:  job.IsAllDeviceSelected,
		RequestedBy: req.By,
		At:          job.CreatedAt,
	})
	s.logger.Info("firmware sync requested",
		"id", fw.ID, "version", fw.Version, "sync_job_id", job.SyncJobID, "devices", job.TotalDeviceCount)
	return job, nil
}

func (s *Service) targets(ctx context.Context, req SyncRequest) ([]string, error) {
	if req.AllDevices {
		serials, err := s.devices.Serials(ctx, device.Filter{})
		if err != nil {
			return nil, s.fail("resolving sync targets", err)
		}
		return serials, nil
	}

	seen := make(map[string]bool, len(req.Serials))
	serials := make([]string, 0, len(req.Serials))
	for _, raw := range req.Serials {
		serial := device.NormalizeSerial(raw)
		if serial == "" || seen[serial] {
			continue
		}
		seen[serial] = true
		serials = append(serials, serial)
	}
	if len(serials) == 0 {
		return nil, apperror.NewValidation("Select at least one device", ErrNoSyncTargets)
	}
	return serials, nil
}

// ListSyncJobs returns one page of sync jobs for a firmware, newest first.
func (s *Service) ListSyncJobs(ctx context.Context, firmwareID string, page paging.Page) (paging.Result[SyncJob], error) {
	page = page.Normalize()
	jobs, total, err := s.repo.ListSyncJobs(ctx, firmwareID, page)
	if err != nil {
		return paging.Result[SyncJob]{}, s.fail("listing sync jobs", err, "firmware_id", firmwareID)
	}
	return paging.NewResult(jobs, total, page), nil
}

// ConfirmSync records that serial installed the firmware of a sync job and
// stores the version on the device. Repeated confirmations are ignored.
func (s *Service) ConfirmSync(ctx context.Context, syncJobID, serial string) (*SyncJob, error) {
	serial = device.NormalizeSerial(serial)
	ok, err := s.repo.ConfirmSyncJob(ctx, syncJobID, serial, s.now())
	if err != nil {
		return nil, s.fail("confirming sync job", err, "sync_job_id", syncJobID)
	}

	job, err := s.repo.GetSyncJob(ctx, syncJobID)
	if err != nil {
		if errors.Is(err, ErrSyncJobNotFound) {
			return nil, apperror.NewNotFound("Sync job not found", err)
		}
		return nil, s.fail("reading sync job", err, "sync_job_id", syncJobID)
	}
	if !ok {
		if slices.Contains(job.ConfirmedDevices, serial) {
			return job, nil
		}
		return nil, apperror.NewValidation("Device is not part of this sync job", ErrNotSyncTarget)
	}

	fw, err := s.repo.GetByID(ctx, job.FirmwareID)
	if err != nil {
		return nil, s.fail("reading synced firmware", err, "firmware_id", job.FirmwareID)
	}
	if _, err := s.devices.SetFirmwareVersion(ctx, serial, fw.Version); err != nil {
		s.logger.Warn("recording device firmware version failed", "serial", serial, "error", err)
	}
	s.logger.Info("firmware sync confirmed",
		"sync_job_id", syncJobID, "serial", serial,
		"confirmed", job.ConfirmedCount, "total", job.TotalDeviceCount)
	return job, nil
}

// RecomputeLatest rebuilds the latest flag and refreshes the cache.
// Used by the reconciliation pass.
func (s *Service) RecomputeLatest(ctx context.Context) (LatestChange, error) {
	var change LatestChange
	err := s.inTx(ctx, "firmware_recompute", func(repo *SQLiteRepository) error {
		c, err := Recompute(ctx, repo)
		if err != nil {
			return classifyLatest(err)
		}
		change = c
		return nil
	})
	if err != nil {
		return LatestChange{}, s.fail("recomputing latest firmware", err)
	}
	s.afterLatestChange(ctx, change)
	return change, nil
}

// afterLatestChange drops the cache entries whose latest flag moved.
func (s *Service) afterLatestChange(ctx context.Context, change LatestChange) {
	if !change.Changed() {
		return
	}
	keys := []string{cache.FirmwareLatest}
	if change.Previous != "" {
		keys = append(keys, cache.FirmwareByID(change.Previous))
	}
	if change.Current != "" {
		keys = append(keys, cache.FirmwareByID(change.Current))
	}
	s.cache.Delete(ctx, keys...)
	metrics.IncFirmwareLatestChange()
	s.logger.Info("latest firmware changed", "previous", change.Previous, "current", change.Current)
}

func (s *Service) refresh(ctx context.Context, id string) (*Firmware, error) {
	fw, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	s.cache.SetJSON(ctx, cache.FirmwareByID(id), fw)
	if fw.IsLatest {
		s.cache.SetJSON(ctx, cache.FirmwareLatest, fw)
	}
	return fw, nil
}

// fail logs unclassified errors and passes classified ones through.
func (s *Service) fail(op string, err error, args ...any) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error(op+" failed", append(args, "error", err)...)
	return fmt.Errorf("%s: %w", op, err)
}

func notFound(err error) error {
	if errors.Is(err, ErrFirmwareNotFound) {
		return apperror.NewNotFound("Firmware not found", err)
	}
	return err
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
