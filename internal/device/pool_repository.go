package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// PoolRepository defines persistence operations for provisioned serials.
type PoolRepository interface {
	// Create inserts a pool row. Returns ErrPoolExists on a duplicate serial.
	Create(ctx context.Context, p *Pool) error

	// GetBySerial returns ErrPoolNotFound if the serial does not exist.
	GetBySerial(ctx context.Context, serial string) (*Pool, error)

	// GetByID returns ErrPoolNotFound if the ID does not exist.
	GetByID(ctx context.Context, id string) (*Pool, error)

	// List returns one page of pool rows, newest first.
	List(ctx context.Context, f PoolFilter, page paging.Page) ([]Pool, int, error)

	// UpdateStatus moves a pool row from one status to another and reports
	// whether the row was in the expected status.
	UpdateStatus(ctx context.Context, serial string, from, to PoolStatus) (bool, error)

	// Delete removes a pool row. Returns ErrPoolNotFound if it does not exist.
	Delete(ctx context.Context, serial string) error
}

// SQLitePoolRepository implements PoolRepository on the device_pools table.
type SQLitePoolRepository struct {
	q database.Querier
}

// NewSQLitePoolRepository creates a pool repository on q.
func NewSQLitePoolRepository(q database.Querier) *SQLitePoolRepository {
	return &SQLitePoolRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SQLitePoolRepository) WithTx(tx *sql.Tx) *SQLitePoolRepository {
	return &SQLitePoolRepository{q: tx}
}

const selectPool = `SELECT id, serial, status, created_at, updated_at FROM device_pools`

// Create inserts a new pool row.
func (r *SQLitePoolRepository) Create(ctx context.Context, p *Pool) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	p.Serial = NormalizeSerial(p.Serial)
	if p.Status == "" {
		p.Status = PoolCreated
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.q.ExecContext(ctx,
		"INSERT INTO device_pools (id, serial, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Serial, string(p.Status), database.FormatTime(p.CreatedAt), database.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrPoolExists
		}
		return fmt.Errorf("inserting device pool: %w", err)
	}
	return nil
}

// GetBySerial retrieves a pool row by serial.
func (r *SQLitePoolRepository) GetBySerial(ctx context.Context, serial string) (*Pool, error) {
	return r.getOne(ctx, selectPool+" WHERE serial = ?", NormalizeSerial(serial))
}

// GetByID retrieves a pool row by ID.
func (r *SQLitePoolRepository) GetByID(ctx context.Context, id string) (*Pool, error) {
	return r.getOne(ctx, selectPool+" WHERE id = ?", id)
}

func (r *SQLitePoolRepository) getOne(ctx context.Context, query, arg string) (*Pool, error) {
	p, err := scanPool(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("querying device pool: %w", err)
	}
	return p, nil
}

// List retrieves a filtered page of pool rows.
func (r *SQLitePoolRepository) List(ctx context.Context, f PoolFilter, page paging.Page) ([]Pool, int, error) {
	page = page.Normalize()

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Serial != "" {
		where = append(where, "serial LIKE ?")
		args = append(args, "%"+NormalizeSerial(f.Serial)+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_pools"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting device pools: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		selectPool+clause+" ORDER BY created_at DESC, serial LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying device pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning device pool: %w", err)
		}
		pools = append(pools, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating device pools: %w", err)
	}
	return pools, total, nil
}

// UpdateStatus performs a conditional status change.
func (r *SQLitePoolRepository) UpdateStatus(ctx context.Context, serial string, from, to PoolStatus) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE device_pools SET status = ?, updated_at = ? WHERE serial = ? AND status = ?",
		string(to), database.FormatTime(time.Now()), NormalizeSerial(serial), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("updating device pool status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// Delete removes a pool row by serial.
func (r *SQLitePoolRepository) Delete(ctx context.Context, serial string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM device_pools WHERE serial = ?", NormalizeSerial(serial))
	if err != nil {
		return fmt.Errorf("deleting device pool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPoolNotFound
	}
	return nil
}

func scanPool(s database.RowScanner) (*Pool, error) {
	var p Pool
	var status, createdAt, updatedAt string
	if err := s.Scan(&p.ID, &p.Serial, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = PoolStatus(status)

	var err error
	if p.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
