package geofence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/paging"
)

// Repository defines persistence operations for geofences.
type Repository interface {
	// Create inserts a fence, assigning ID and timestamps.
	Create(ctx context.Context, f *Fence) error

	// GetByID returns ErrFenceNotFound if the fence does not exist.
	GetByID(ctx context.Context, id string) (*Fence, error)

	// GetForUser returns ErrFenceNotFound unless the fence exists and belongs to userID.
	GetForUser(ctx context.Context, id, userID string) (*Fence, error)

	// ListByUser returns one page of a user's fences, newest first.
	ListByUser(ctx context.Context, userID string, f Filter, page paging.Page) ([]Fence, int, error)

	// Update writes name and geometry.
	Update(ctx context.Context, f *Fence) error

	// SetActive switches a fence on or off.
	SetActive(ctx context.Context, id string, active bool) error

	// SetDeviceSerials replaces the attached serial list.
	SetDeviceSerials(ctx context.Context, id string, serials []string) error

	// Delete removes a fence. Returns ErrFenceNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// PullDeviceSerial removes serial from every fence and returns the IDs
	// of the fences that referenced it.
	PullDeviceSerial(ctx context.Context, serial string) ([]string, error)

	// DeviceLinks returns the attached serial list of every fence that has one.
	DeviceLinks(ctx context.Context) (map[string][]string, error)
}

// SQLiteRepository implements Repository on the geofences table.
type SQLiteRepository struct {
	q database.Querier
}

// NewSQLiteRepository creates a repository on q.
func NewSQLiteRepository(q database.Querier) *SQLiteRepository {
	return &SQLiteRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{q: tx}
}

const selectFence = `
	SELECT id, name, fence, is_active, user_id, attached_device_serials, created_at, updated_at
	FROM geofences`

// Create inserts a new fence.
func (r *SQLiteRepository) Create(ctx context.Context, f *Fence) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.AttachedDeviceSerials == nil {
		f.AttachedDeviceSerials = []string{}
	}
	if len(f.Geometry) == 0 {
		f.Geometry = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	serials, err := database.EncodeStrings(f.AttachedDeviceSerials)
	if err != nil {
		return fmt.Errorf("marshalling attached serials: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO geofences (id, name, fence, is_active, user_id, attached_device_serials, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, string(f.Geometry), database.BoolToInt(f.IsActive), f.UserID, serials,
		database.FormatTime(f.CreatedAt), database.FormatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting geofence: %w", err)
	}
	return nil
}

// GetByID retrieves a fence by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Fence, error) {
	f, err := scanFence(r.q.QueryRowContext(ctx, selectFence+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFenceNotFound
		}
		return nil, fmt.Errorf("querying geofence: %w", err)
	}
	return f, nil
}

// GetForUser retrieves a fence owned by userID.
func (r *SQLiteRepository) GetForUser(ctx context.Context, id, userID string) (*Fence, error) {
	f, err := scanFence(r.q.QueryRowContext(ctx, selectFence+" WHERE id = ? AND user_id = ?", id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFenceNotFound
		}
		return nil, fmt.Errorf("querying geofence: %w", err)
	}
	return f, nil
}

// ListByUser retrieves a filtered page of a user's fences.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, f Filter, page paging.Page) ([]Fence, int, error) {
	page = page.Normalize()

	where := []string{"user_id = ?"}
	args := []any{userID}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+s+"%")
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, database.BoolToInt(*f.IsActive))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM geofences"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting geofences: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		selectFence+clause+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying geofences: %w", err)
	}
	defer rows.Close()

	var fences []Fence
	for rows.Next() {
		fence, err := scanFence(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning geofence: %w", err)
		}
		fences = append(fences, *fence)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating geofences: %w", err)
	}
	return fences, total, nil
}

// Update writes the name and geometry of f.
func (r *SQLiteRepository) Update(ctx context.Context, f *Fence) error {
	f.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx,
		"UPDATE geofences SET name = ?, fence = ?, updated_at = ? WHERE id = ?",
		f.Name, string(f.Geometry), database.FormatTime(f.UpdatedAt), f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating geofence: %w", err)
	}
	return expectOne(res)
}

// SetActive switches a fence on or off.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE geofences SET is_active = ?, updated_at = ? WHERE id = ?",
		database.BoolToInt(active), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating geofence active flag: %w", err)
	}
	return expectOne(res)
}

// SetDeviceSerials replaces the attached serial list.
func (r *SQLiteRepository) SetDeviceSerials(ctx context.Context, id string, serials []string) error {
	raw, err := database.EncodeStrings(serials)
	if err != nil {
		return fmt.Errorf("marshalling attached serials: %w", err)
	}
	res, err := r.q.ExecContext(ctx,
		"UPDATE geofences SET attached_device_serials = ?, updated_at = ? WHERE id = ?",
		raw, database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating geofence serials: %w", err)
	}
	return expectOne(res)
}

// Delete removes a fence by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM geofences WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting geofence: %w", err)
	}
	return expectOne(res)
}

// PullDeviceSerial rewrites the JSON serial list of every referencing fence.
func (r *SQLiteRepository) PullDeviceSerial(ctx context.Context, serial string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM geofences
		WHERE EXISTS (SELECT 1 FROM json_each(geofences.attached_device_serials) WHERE value = ?)
		ORDER BY id`, serial)
	if err != nil {
		return nil, fmt.Errorf("querying geofences by serial: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning geofence id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating geofence ids: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	_, err = r.q.ExecContext(ctx, `
		UPDATE geofences SET
			attached_device_serials = (
				SELECT COALESCE(json_group_array(value), '[]')
				FROM json_each(geofences.attached_device_serials) WHERE value <> ?
			),
			updated_at = ?
		WHERE EXISTS (SELECT 1 FROM json_each(geofences.attached_device_serials) WHERE value = ?)`,
		serial, database.FormatTime(time.Now()), serial,
	)
	if err != nil {
		return nil, fmt.Errorf("pulling serial from geofences: %w", err)
	}
	return ids, nil
}

// DeviceLinks returns fence ID -> attached serials for fences with at least one device.
func (r *SQLiteRepository) DeviceLinks(ctx context.Context) (map[string][]string, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, attached_device_serials FROM geofences WHERE attached_device_serials <> '[]'")
	if err != nil {
		return nil, fmt.Errorf("querying geofence device links: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning geofence device link: %w", err)
		}
		serials, err := database.DecodeStrings("attached_device_serials", raw)
		if err != nil {
			return nil, err
		}
		if len(serials) > 0 {
			links[id] = serials
		}
	}
	return links, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrFenceNotFound
	}
	return nil
}

func scanFence(s database.RowScanner) (*Fence, error) {
	var f Fence
	var geometry, serials, createdAt, updatedAt string
	var active int

	if err := s.Scan(&f.ID, &f.Name, &geometry, &active, &f.UserID, &serials, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Geometry = json.RawMessage(geometry)
	f.IsActive = active != 0

	var err error
	if f.AttachedDeviceSerials, err = database.DecodeStrings("attached_device_serials", serials); err != nil {
		return nil, err
	}
	if f.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
