package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
)

// Repository reads accounts and writes their quota overrides.
type Repository interface {
	// GetByID returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// ListByRole returns users with the given role ordered by creation time.
	ListByRole(ctx context.Context, role Role) ([]User, error)

	// UpdateLimits stores both quota overrides. Returns ErrUserNotFound if
	// the user does not exist.
	UpdateLimits(ctx context.Context, id string, maxDevice, maxFencePerDevice int) error
}

// SQLiteRepository implements Repository on the users table.
type SQLiteRepository struct {
	q database.Querier
}

// NewSQLiteRepository creates a repository on q (a *sql.DB or *sql.Tx).
func NewSQLiteRepository(q database.Querier) *SQLiteRepository {
	return &SQLiteRepository{q: q}
}

const selectUser = `
	SELECT id, email, role, first_name, last_name, is_active,
		max_device, max_fence_per_device, created_at, updated_at
	FROM users`

// GetByID retrieves a user by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, selectUser+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return u, nil
}

// ListByRole retrieves all users with a role.
func (r *SQLiteRepository) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.q.QueryContext(ctx, selectUser+" WHERE role = ? ORDER BY created_at, id", string(role))
	if err != nil {
		return nil, fmt.Errorf("querying users by role: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// UpdateLimits sets max_device and max_fence_per_device for a user.
func (r *SQLiteRepository) UpdateLimits(ctx context.Context, id string, maxDevice, maxFencePerDevice int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET max_device = ?, max_fence_per_device = ?, updated_at = ?
		WHERE id = ?`,
		maxDevice, maxFencePerDevice, database.FormatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("updating user limits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(s database.RowScanner) (*User, error) {
	var u User
	var role, createdAt, updatedAt string
	var active int

	if err := s.Scan(&u.ID, &u.Email, &role, &u.FirstName, &u.LastName, &active,
		&u.MaxDevice, &u.MaxFencePerDevice, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.IsActive = active != 0

	var err error
	if u.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
