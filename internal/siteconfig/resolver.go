package siteconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Logger defines the logging interface used by the Resolver.
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

// AdminDirectory supplies the e-mail addresses of admin users.
// Satisfied by *user.Registry.
type AdminDirectory interface {
	AdminEmails(ctx context.Context) ([]string, error)
}

// Resolver reads typed settings through the cache.
//
// Three cache entries exist per setting: the row by key, the row by ID and
// the coerced value by key. Every write refreshes or drops all three.
type Resolver struct {
	repo   Repository
	cache  *cache.Aside
	admins AdminDirectory
	logger Logger
}

// NewResolver creates a resolver. admins may be nil, in which case
// FindAdminMailingList returns only the configured list.
func NewResolver(repo Repository, c *cache.Aside, admins AdminDirectory) *Resolver {
	return &Resolver{repo: repo, cache: c, admins: admins, logger: noopLogger{}}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// GetByKey returns the stored row, reading through the cache.
func (r *Resolver) GetByKey(ctx context.Context, key string) (*Entry, error) {
	key = NormalizeKey(key)

	var cached Entry
	if r.cache.GetJSON(ctx, cache.SiteConfigByKey(key), &cached) {
		return &cached, nil
	}

	e, err := r.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	r.cacheEntry(ctx, e)
	return e, nil
}

// GetByID returns the stored row, reading through the cache.
func (r *Resolver) GetByID(ctx context.Context, id string) (*Entry, error) {
	var cached Entry
	if r.cache.GetJSON(ctx, cache.SiteConfigByID(id), &cached) {
		return &cached, nil
	}

	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheEntry(ctx, e)
	return e, nil
}

// GetValueByKey returns the coerced value of key, or def when the key is
// missing or its raw value does not coerce (Value.Set is false).
func (r *Resolver) GetValueByKey(ctx context.Context, key string, def Value) (Value, error) {
	key = NormalizeKey(key)

	var cached Value
	if r.cache.GetJSON(ctx, cache.SiteConfigValueByKey(key), &cached) {
		return pick(cached, def), nil
	}

	e, err := r.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return def, nil
		}
		r.logger.Error("reading site config failed", "key", key, "error", err)
		return def, err
	}

	v := Coerce(e.Type, e.Value)
	r.cacheEntry(ctx, e)
	r.cache.SetJSON(ctx, cache.SiteConfigValueByKey(key), v)
	return pick(v, def), nil
}

func pick(v, def Value) Value {
	if !v.Set {
		return def
	}
	return v
}

// Int returns a number setting, or def.
func (r *Resolver) Int(ctx context.Context, key string, def int64) (int64, error) {
	v, err := r.GetValueByKey(ctx, key, Value{Type: TypeNumber, Set: true, Number: def})
	if err != nil {
		return def, err
	}
	if v.Type != TypeNumber {
		return def, nil
	}
	return v.Number, nil
}

// Bool returns a boolean setting, or def.
func (r *Resolver) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := r.GetValueByKey(ctx, key, Value{Type: TypeBoolean, Set: true, Bool: def})
	if err != nil {
		return def, err
	}
	if v.Type != TypeBoolean {
		return def, nil
	}
	return v.Bool, nil
}

// String returns a text setting, or def.
func (r *Resolver) String(ctx context.Context, key, def string) (string, error) {
	v, err := r.GetValueByKey(ctx, key, Value{Type: TypeText, Set: true, Text: def})
	if err != nil {
		return def, err
	}
	if v.Type != TypeText {
		return def, nil
	}
	return v.Text, nil
}

// Time returns a date or date-time setting. nil means unset.
func (r *Resolver) Time(ctx context.Context, key string) (*time.Time, error) {
	v, err := r.GetValueByKey(ctx, key, Value{})
	if err != nil {
		return nil, err
	}
	return v.Time, nil
}

// List returns a comma separated text setting as a slice.
func (r *Resolver) List(ctx context.Context, key string) ([]string, error) {
	v, err := r.GetValueByKey(ctx, key, Value{Type: TypeText})
	if err != nil {
		return nil, err
	}
	return v.List(), nil
}

// SyncAvailableConfig inserts every declared setting missing from the
// store and returns how many were inserted. Safe to run repeatedly and
// concurrently.
func (r *Resolver) SyncAvailableConfig(ctx context.Context) (int, error) {
	inserted := 0
	for _, d := range Declared {
		e := &Entry{
			Key:             d.Key,
			Type:            d.Type,
			Value:           d.Default,
			Description:     d.Description,
			IsMultipleEntry: d.IsMultipleEntry,
		}
		ok, err := r.repo.InsertIfMissing(ctx, e)
		if err != nil {
			r.logger.Error("syncing site config failed", "key", d.Key, "error", err)
			return inserted, err
		}
		if ok {
			inserted++
			r.logger.Info("site config added", "key", d.Key, "type", string(d.Type))
		}
	}

	keys, err := r.repo.Keys(ctx)
	if err != nil {
		return inserted, err
	}
	r.cache.SetJSON(ctx, cache.SiteConfigAllAvailableKeys, keys)
	return inserted, nil
}

// AvailableKeys returns every stored key, reading through the cache.
func (r *Resolver) AvailableKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if r.cache.GetJSON(ctx, cache.SiteConfigAllAvailableKeys, &keys) {
		return keys, nil
	}

	keys, err := r.repo.Keys(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, cache.SiteConfigAllAvailableKeys, keys)
	return keys, nil
}

// FindAdminMailingList returns the configured admin mailing list followed by
// the e-mail of every admin user. Addresses appearing in both are kept twice.
func (r *Resolver) FindAdminMailingList(ctx context.Context) ([]string, error) {
	list, err := r.List(ctx, KeyAdminMailingList)
	if err != nil {
		return nil, err
	}
	if r.admins == nil {
		return list, nil
	}

	emails, err := r.admins.AdminEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing admin e-mails: %w", err)
	}
	return append(list, emails...), nil
}

// Upsert validates raw against the declared type of key and stores it,
// creating the row from its declaration when missing.
func (r *Resolver) Upsert(ctx context.Context, key, raw string) (*Entry, error) {
	key = NormalizeKey(key)
	def, ok := Lookup(key)
	if !ok {
		return nil, apperror.NewValidation("Unknown config key", fmt.Errorf("%w: %s", ErrUnknownKey, key))
	}

	value, err := Validate(def.Type, raw, def.IsMultipleEntry)
	if err != nil {
		return nil, apperror.NewValidation("Value does not match the config type", err)
	}

	e, err := r.repo.UpdateValue(ctx, key, value)
	if errors.Is(err, ErrConfigNotFound) {
		e = &Entry{
			Key:             def.Key,
			Type:            def.Type,
			Value:           value,
			Description:     def.Description,
			IsMultipleEntry: def.IsMultipleEntry,
		}
		err = r.repo.Create(ctx, e)
		if errors.Is(err, ErrConfigExists) {
			e, err = r.repo.UpdateValue(ctx, key, value)
		}
	}
	if err != nil {
		r.logger.Error("writing site config failed", "key", key, "error", err)
		return nil, err
	}

	r.cacheEntry(ctx, e)
	r.cache.SetJSON(ctx, cache.SiteConfigValueByKey(key), Coerce(e.Type, e.Value))
	r.cache.Delete(ctx, cache.SiteConfigAllAvailableKeys)
	r.logger.Info("site config updated", "key", key)
	return e, nil
}

// ListEntries returns one page of stored settings. Not cached.
func (r *Resolver) ListEntries(ctx context.Context, page paging.Page) (paging.Result[Entry], error) {
	page = page.Normalize()
	entries, total, err := r.repo.List(ctx, page)
	if err != nil {
		return paging.Result[Entry]{}, err
	}
	return paging.NewResult(entries, total, page), nil
}

func (r *Resolver) cacheEntry(ctx context.Context, e *Entry) {
	r.cache.SetJSON(ctx, cache.SiteConfigByKey(e.Key), e)
	r.cache.SetJSON(ctx, cache.SiteConfigByID(e.ID), e)
}
