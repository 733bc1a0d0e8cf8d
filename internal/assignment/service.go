package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/retry"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/quota"
	"github.com/nerrad567/tracker-core/internal/user"
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

// UserDirectory reads account details and updates quota overrides.
// Satisfied by *user.Registry.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	UpdateLimits(ctx context.Context, id string, maxDevice, maxFencePerDevice int) (*user.User, error)
}

// AdminDirectory returns the addresses told about new requests.
// Satisfied by *siteconfig.Resolver.
type AdminDirectory interface {
	FindAdminMailingList(ctx context.Context) ([]string, error)
}

// DefaultSerialPrefix is used when Deps.SerialPrefix is empty.
const DefaultSerialPrefix = "VT"

// Deps holds the dependencies of the Service.
type Deps struct {
	DB      *database.DB
	Pools   *device.SQLitePoolRepository
	Devices *device.SQLiteRepository
	History *device.SQLiteHistoryRepository
	Fences  *geofence.SQLiteRepository

	// Registry serves cached reads and is refreshed after every commit.
	Registry      *device.Registry
	FenceRegistry *geofence.Registry

	Quota  *quota.Resolver
	Users  UserDirectory
	Admins AdminDirectory   // optional
	Outbox notify.Publisher // optional

	SerialPrefix  string
	RetryAttempts int
	Logger        Logger // optional
}

// Service implements provisioning and the ownership state machine.
type Service struct {
	db            *database.DB
	pools         *device.SQLitePoolRepository
	devices       *device.SQLiteRepository
	history       *device.SQLiteHistoryRepository
	fences        *geofence.SQLiteRepository
	registry      *device.Registry
	fenceRegistry *geofence.Registry
	quota         *quota.Resolver
	users         UserDirectory
	admins        AdminDirectory
	outbox        notify.Publisher
	prefix        string
	attempts      int
	retry         retry.Policy
	logger        Logger
	now           func() time.Time
}

// New creates the assignment service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("database is required")
	case deps.Pools == nil || deps.Devices == nil || deps.History == nil || deps.Fences == nil:
		return nil, fmt.Errorf("repositories are required")
	case deps.Registry == nil || deps.FenceRegistry == nil:
		return nil, fmt.Errorf("registries are required")
	case deps.Quota == nil:
		return nil, fmt.Errorf("quota resolver is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user directory is required")
	}

	s := &Service{
		db:            deps.DB,
		pools:         deps.Pools,
		devices:       deps.Devices,
		history:       deps.History,
		fences:        deps.Fences,
		registry:      deps.Registry,
		fenceRegistry: deps.FenceRegistry,
		quota:         deps.Quota,
		users:         deps.Users,
		admins:        deps.Admins,
		outbox:        deps.Outbox,
		prefix:        deps.SerialPrefix,
		attempts:      deps.RetryAttempts,
		logger:        deps.Logger,
		now:           time.Now,
	}
	if s.outbox == nil {
		s.outbox = notify.Discard{}
	}
	if s.prefix == "" {
		s.prefix = DefaultSerialPrefix
	}
	if s.attempts <= 0 {
		s.attempts = retry.DefaultAttempts
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	s.retry = retry.New(s.attempts, database.IsBusy)
	return s, nil
}

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	pools   *device.SQLitePoolRepository
	devices *device.SQLiteRepository
	history *device.SQLiteHistoryRepository
	fences  *geofence.SQLiteRepository
}

// inTx runs fn in one transaction, retrying when the store is busy.
func (s *Service) inTx(ctx context.Context, fn func(r txRepos) error) error {
	return s.retry.Do(ctx, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			return fn(txRepos{
				pools:   s.pools.WithTx(tx),
				devices: s.devices.WithTx(tx),
				history: s.history.WithTx(tx),
				fences:  s.fences.WithTx(tx),
			})
		})
	})
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

func deviceNotFound(err error) error {
	if errors.Is(err, device.ErrDeviceNotFound) {
		return apperror.NewNotFound("Invalid device", err)
	}
	return err
}
