package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Transition records one ownership state change of a device.
//
// Entries are kept after the device is deleted so an operator can trace who
// requested, approved or removed a serial.
type Transition struct {
	ID        int64        `json:"id"`
	Serial    string       `json:"serial"`
	From      AssignStatus `json:"from"`
	To        AssignStatus `json:"to"`
	ActorID   *string      `json:"actorId,omitempty"`
	UserID    *string      `json:"userId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// HistoryRepository stores and retrieves ownership transitions.
type HistoryRepository interface {
	// Record appends a transition.
	Record(ctx context.Context, t Transition) error

	// ListBySerial returns transitions for serial, newest first.
	// limit defaults to 50 and is clamped to 200.
	ListBySerial(ctx context.Context, serial string, limit int) ([]Transition, error)
}

// SQLiteHistoryRepository implements HistoryRepository on device_assignment_history.
type SQLiteHistoryRepository struct {
	q database.Querier
}

// NewSQLiteHistoryRepository creates a history repository on q.
func NewSQLiteHistoryRepository(q database.Querier) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SQLiteHistoryRepository) WithTx(tx *sql.Tx) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{q: tx}
}

// Record inserts a transition row.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, t Transition) error {
	if t.Serial == "" {
		return fmt.Errorf("serial is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO device_assignment_history (serial, from_status, to_status, actor_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		NormalizeSerial(t.Serial), string(t.From), string(t.To),
		database.NullString(t.ActorID), database.NullString(t.UserID), database.FormatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting assignment history: %w", err)
	}
	return nil
}

// ListBySerial returns recent transitions for a serial.
func (r *SQLiteHistoryRepository) ListBySerial(ctx context.Context, serial string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, serial, from_status, to_status, actor_id, user_id, created_at
		FROM device_assignment_history
		WHERE serial = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		NormalizeSerial(serial), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying assignment history: %w", err)
	}
	defer rows.Close()

	entries := make([]Transition, 0, limit)
	for rows.Next() {
		var t Transition
		var from, to, createdAt string
		var actor, owner sql.NullString

		if err := rows.Scan(&t.ID, &t.Serial, &from, &to, &actor, &owner, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning assignment history: %w", err)
		}
		t.From = AssignStatus(from)
		t.To = AssignStatus(to)
		t.ActorID = database.StringPtr(actor)
		t.UserID = database.StringPtr(owner)
		if t.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignment history: %w", err)
	}
	return entries, nil
}
