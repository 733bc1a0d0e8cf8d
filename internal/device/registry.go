package device

import (
	"context"

	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry puts the shared cache in front of the pool and device repositories.
//
// Reads check the cache by serial or ID, fall back to the store and populate
// both keys. Writes go to the store first and then refresh the cache on a
// best-effort basis. Writes performed inside a transaction by another package
// are followed by Refresh or Forget once the transaction commits.
type Registry struct {
	pools   PoolRepository
	devices Repository
	cache   *cache.Aside
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(pools PoolRepository, devices Repository, c *cache.Aside) *Registry {
	return &Registry{
		pools:   pools,
		devices: devices,
		cache:   c,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetPoolBySerial retrieves a pool row by serial.
func (r *Registry) GetPoolBySerial(ctx context.Context, serial string) (*Pool, error) {
	var cached Pool
	if r.cache.GetJSON(ctx, cache.DevicePoolBySerial(serial), &cached) {
		return &cached, nil
	}

	p, err := r.pools.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	r.cachePool(ctx, p)
	return p, nil
}

// GetPoolByID retrieves a pool row by ID.
func (r *Registry) GetPoolByID(ctx context.Context, id string) (*Pool, error) {
	var cached Pool
	if r.cache.GetJSON(ctx, cache.DevicePoolByID(id), &cached) {
		return &cached, nil
	}

	p, err := r.pools.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cachePool(ctx, p)
	return p, nil
}

// ListPools returns a page of pool rows straight from the store.
func (r *Registry) ListPools(ctx context.Context, f PoolFilter, page paging.Page) (paging.Result[Pool], error) {
	page = page.Normalize()
	pools, total, err := r.pools.List(ctx, f, page)
	if err != nil {
		return paging.Result[Pool]{}, err
	}
	return paging.NewResult(pools, total, page), nil
}

// CreatePool persists a pool row and caches it.
func (r *Registry) CreatePool(ctx context.Context, p *Pool) error {
	if err := r.pools.Create(ctx, p); err != nil {
		return err
	}
	r.cachePool(ctx, p)
	r.logger.Info("device pool created", "serial", p.Serial)
	return nil
}

// RefreshPool re-reads a pool row from the store into the cache.
func (r *Registry) RefreshPool(ctx context.Context, serial string) (*Pool, error) {
	p, err := r.pools.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	r.cachePool(ctx, p)
	return p, nil
}

// ForgetPool drops the cache entries of a deleted pool row.
func (r *Registry) ForgetPool(ctx context.Context, p *Pool) {
	r.cache.Delete(ctx, cache.DevicePoolBySerial(p.Serial), cache.DevicePoolByID(p.ID))
}

// GetBySerial retrieves a device by serial.
func (r *Registry) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	var cached Device
	if r.cache.GetJSON(ctx, cache.DeviceBySerial(serial), &cached) {
		return &cached, nil
	}

	d, err := r.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	r.cacheDevice(ctx, d)
	return d, nil
}

// GetByID retrieves a device by ID.
func (r *Registry) GetByID(ctx context.Context, id string) (*Device, error) {
	var cached Device
	if r.cache.GetJSON(ctx, cache.DeviceByID(id), &cached) {
		return &cached, nil
	}

	d, err := r.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheDevice(ctx, d)
	return d, nil
}

// List returns a page of devices straight from the store.
func (r *Registry) List(ctx context.Context, f Filter, page paging.Page) (paging.Result[Device], error) {
	page = page.Normalize()
	devices, total, err := r.devices.List(ctx, f, page)
	if err != nil {
		return paging.Result[Device]{}, err
	}
	return paging.NewResult(devices, total, page), nil
}

// CountByUser counts the devices held by userID. Never cached: the count
// feeds quota decisions.
func (r *Registry) CountByUser(ctx context.Context, userID string) (int, error) {
	return r.devices.CountByUser(ctx, userID)
}

// Update writes the descriptive and live fields of d through to the cache.
func (r *Registry) Update(ctx context.Context, d *Device) error {
	if err := r.devices.Update(ctx, d); err != nil {
		return err
	}
	_, err := r.Refresh(ctx, d.Serial)
	return err
}

// SetMaxFence stores the per-device fence override.
func (r *Registry) SetMaxFence(ctx context.Context, serial string, maxFence int) (*Device, error) {
	if err := ValidateMaxFence(maxFence); err != nil {
		return nil, err
	}
	if err := r.devices.SetMaxFence(ctx, serial, maxFence); err != nil {
		return nil, err
	}
	r.logger.Info("device max fence updated", "serial", NormalizeSerial(serial), "max_fence", maxFence)
	return r.Refresh(ctx, serial)
}

// Serials lists the serials matching f. Never cached.
func (r *Registry) Serials(ctx context.Context, f Filter) ([]string, error) {
	return r.devices.Serials(ctx, f)
}

// SetFirmwareVersion records the firmware a device reports and refreshes its cache entry.
func (r *Registry) SetFirmwareVersion(ctx context.Context, serial, version string) (*Device, error) {
	if err := r.devices.SetFirmwareVersion(ctx, serial, version); err != nil {
		return nil, err
	}
	return r.Refresh(ctx, serial)
}

// Refresh re-reads a device from the store into the cache and returns it.
func (r *Registry) Refresh(ctx context.Context, serial string) (*Device, error) {
	d, err := r.devices.GetBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	r.cacheDevice(ctx, d)
	return d, nil
}

// RefreshMany refreshes several devices, logging rather than returning
// failures. Used after bulk updates.
func (r *Registry) RefreshMany(ctx context.Context, serials []string) {
	for _, s := range serials {
		if _, err := r.Refresh(ctx, s); err != nil {
			r.logger.Warn("refreshing device cache failed", "serial", s, "error", err)
			r.cache.Delete(ctx, cache.DeviceBySerial(s))
		}
	}
}

// Forget drops the cache entries of a deleted device.
func (r *Registry) Forget(ctx context.Context, d *Device) {
	r.cache.Delete(ctx, cache.DeviceBySerial(d.Serial), cache.DeviceByID(d.ID))
}

func (r *Registry) cachePool(ctx context.Context, p *Pool) {
	r.cache.SetJSON(ctx, cache.DevicePoolBySerial(p.Serial), p)
	r.cache.SetJSON(ctx, cache.DevicePoolByID(p.ID), p)
}

func (r *Registry) cacheDevice(ctx context.Context, d *Device) {
	r.cache.SetJSON(ctx, cache.DeviceBySerial(d.Serial), d)
	r.cache.SetJSON(ctx, cache.DeviceByID(d.ID), d)
}
