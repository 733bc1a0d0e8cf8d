package siteconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Repository persists settings.
type Repository interface {
	// Create inserts e, assigning ID and timestamps when empty.
	// Returns ErrConfigExists on a duplicate key.
	Create(ctx context.Context, e *Entry) error

	// InsertIfMissing inserts e unless its key exists and reports whether a row was written.
	InsertIfMissing(ctx context.Context, e *Entry) (bool, error)

	// GetByKey returns ErrConfigNotFound if the key does not exist.
	GetByKey(ctx context.Context, key string) (*Entry, error)

	// GetByID returns ErrConfigNotFound if the ID does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// UpdateValue stores a new raw value. Returns ErrConfigNotFound if the key does not exist.
	UpdateValue(ctx context.Context, key, value string) (*Entry, error)

	// List returns one page of settings ordered by key.
	List(ctx context.Context, page paging.Page) ([]Entry, int, error)

	// Keys returns every stored key.
	Keys(ctx context.Context) ([]string, error)
}

// SQLiteRepository implements Repository on the site_configs table.
type SQLiteRepository struct {
	q database.Querier
}

// NewSQLiteRepository creates a repository on q.
func NewSQLiteRepository(q database.Querier) *SQLiteRepository {
	return &SQLiteRepository{q: q}
}

const selectEntry = `
	SELECT id, key, type, value, description, is_multiple_entry, created_at, updated_at
	FROM site_configs`

func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	prepare(e)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO site_configs (id, key, type, value, description, is_multiple_entry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Key, string(e.Type), e.Value, e.Description, database.BoolToInt(e.IsMultipleEntry),
		database.FormatTime(e.CreatedAt), database.FormatTime(e.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrConfigExists
		}
		return fmt.Errorf("inserting site config: %w", err)
	}
	return nil
}

// InsertIfMissing relies on the unique key index, so concurrent callers
// cannot create duplicates.
func (r *SQLiteRepository) InsertIfMissing(ctx context.Context, e *Entry) (bool, error) {
	prepare(e)
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO site_configs (id, key, type, value, description, is_multiple_entry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		e.ID, e.Key, string(e.Type), e.Value, e.Description, database.BoolToInt(e.IsMultipleEntry),
		database.FormatTime(e.CreatedAt), database.FormatTime(e.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting site config %s: %w", e.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) GetByKey(ctx context.Context, key string) (*Entry, error) {
	return r.getOne(ctx, selectEntry+" WHERE key = ?", NormalizeKey(key))
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	return r.getOne(ctx, selectEntry+" WHERE id = ?", id)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg string) (*Entry, error) {
	e, err := scanEntry(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("querying site config: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateValue(ctx context.Context, key, value string) (*Entry, error) {
	key = NormalizeKey(key)
	res, err := r.q.ExecContext(ctx,
		"UPDATE site_configs SET value = ?, updated_at = ? WHERE key = ?",
		value, database.FormatTime(time.Now()), key,
	)
	if err != nil {
		return nil, fmt.Errorf("updating site config %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrConfigNotFound
	}
	return r.GetByKey(ctx, key)
}

func (r *SQLiteRepository) List(ctx context.Context, page paging.Page) ([]Entry, int, error) {
	page = page.Normalize()

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM site_configs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting site configs: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, selectEntry+" ORDER BY key LIMIT ? OFFSET ?", page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("querying site configs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning site config: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating site configs: %w", err)
	}
	return entries, total, nil
}

func (r *SQLiteRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT key FROM site_configs ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying site config keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning site config key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func prepare(e *Entry) {
	if e.ID == "" {
		e.ID = "cfg-" + uuid.NewString()
	}
	e.Key = NormalizeKey(e.Key)
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
}

func scanEntry(s database.RowScanner) (*Entry, error) {
	var e Entry
	var typ, createdAt, updatedAt string
	var multiple int

	if err := s.Scan(&e.ID, &e.Key, &typ, &e.Value, &e.Description, &multiple, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Type = ValueType(typ)
	e.IsMultipleEntry = multiple != 0

	var err error
	if e.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
