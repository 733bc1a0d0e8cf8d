package firmware

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

// Repository defines firmware and sync job persistence.
type Repository interface {
	// Create inserts fw with the latest flag cleared. Returns ErrFirmwareExists
	// on a duplicate version.
	Create(ctx context.Context, fw *Firmware) error

	GetByID(ctx context.Context, id string) (*Firmware, error)
	GetByVersion(ctx context.Context, version string) (*Firmware, error)

	// List returns one page of firmware, newest upload first.
	List(ctx context.Context, page paging.Page) ([]Firmware, int, error)

	// Latest returns the row carrying the latest flag, or ErrFirmwareNotFound.
	Latest(ctx context.Context) (*Firmware, error)

	// Versions returns every row's id, version and latest flag.
	Versions(ctx context.Context) ([]VersionRef, error)

	// Update writes version, key, etag and file URL. The latest flag and
	// sync state are left alone.
	Update(ctx context.Context, fw *Firmware) error

	// SetLatest sets or clears the latest flag on one row. Setting it while
	// another row holds it fails with a unique constraint violation.
	SetLatest(ctx context.Context, id string, latest bool) error

	// ClearLatest clears the flag on every row and returns how many changed.
	ClearLatest(ctx context.Context) (int, error)

	// MarkSynced flips a not-yet-synced row to synced and reports whether it did.
	MarkSynced(ctx context.Context, id, by string, at time.Time) (bool, error)

	Delete(ctx context.Context, id string) error

	CreateSyncJob(ctx context.Context, job *SyncJob) error
	GetSyncJob(ctx context.Context, syncJobID string) (*SyncJob, error)
	ListSyncJobs(ctx context.Context, firmwareID string, page paging.Page) ([]SyncJob, int, error)

	// ConfirmSyncJob records serial's confirmation and reports whether it
	// was new. The job completes when the last targeted device confirms.
	ConfirmSyncJob(ctx context.Context, syncJobID, serial string, at time.Time) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	q database.Querier
}

// NewSQLiteRepository creates a repository on a *sql.DB or *sql.Tx.
func NewSQLiteRepository(q database.Querier) *SQLiteRepository {
	return &SQLiteRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{q: tx}
}

const selectFirmware = `
	SELECT id, version, key, etag, file_url, is_latest, sync_status,
		sync_at, sync_by, created_by, created_at, updated_at
	FROM device_firmwares`

func (r *SQLiteRepository) Create(ctx context.Context, fw *Firmware) error {
	if fw.ID == "" {
		fw.ID = uuid.NewString()
	}
	if fw.SyncStatus == "" {
		fw.SyncStatus = NotSynced
	}
	fw.IsLatest = false
	now := time.Now().UTC()
	fw.CreatedAt, fw.UpdatedAt = now, now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO device_firmwares (
			id, version, key, etag, file_url, is_latest, sync_status,
			sync_at, sync_by, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		fw.ID, fw.Version, fw.Key, fw.ETag, fw.FileURL, string(fw.SyncStatus),
		database.NullTime(fw.SyncAt), database.NullString(fw.SyncBy), database.NullString(fw.CreatedBy),
		database.FormatTime(fw.CreatedAt), database.FormatTime(fw.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrFirmwareExists
		}
		return fmt.Errorf("inserting firmware: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Firmware, error) {
	return r.getOne(ctx, selectFirmware+" WHERE id = ?", id)
}

func (r *SQLiteRepository) GetByVersion(ctx context.Context, version string) (*Firmware, error) {
	return r.getOne(ctx, selectFirmware+" WHERE version = ?", version)
}

func (r *SQLiteRepository) Latest(ctx context.Context) (*Firmware, error) {
	return r.getOne(ctx, selectFirmware+" WHERE is_latest = 1 LIMIT 1")
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, args ...any) (*Firmware, error) {
	fw, err := scanFirmware(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFirmwareNotFound
		}
		return nil, fmt.Errorf("querying firmware: %w", err)
	}
	return fw, nil
}

func (r *SQLiteRepository) List(ctx context.Context, page paging.Page) ([]Firmware, int, error) {
	page = page.Normalize()

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_firmwares").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting firmware: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		selectFirmware+" ORDER BY created_at DESC, version DESC LIMIT ? OFFSET ?",
		page.PerPage, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying firmware: %w", err)
	}
	defer rows.Close()

	var out []Firmware
	for rows.Next() {
		fw, err := scanFirmware(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning firmware: %w", err)
		}
		out = append(out, *fw)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating firmware: %w", err)
	}
	return out, total, nil
}

func (r *SQLiteRepository) Versions(ctx context.Context) ([]VersionRef, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id, version, is_latest FROM device_firmwares")
	if err != nil {
		return nil, fmt.Errorf("querying firmware versions: %w", err)
	}
	defer rows.Close()

	var refs []VersionRef
	for rows.Next() {
		var ref VersionRef
		var latest int
		if err := rows.Scan(&ref.ID, &ref.Version, &latest); err != nil {
			return nil, fmt.Errorf("scanning firmware version: %w", err)
		}
		ref.IsLatest = latest == 1
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, fw *Firmware) error {
	fw.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE device_firmwares SET version = ?, key = ?, etag = ?, file_url = ?, updated_at = ?
		WHERE id = ?`,
		fw.Version, fw.Key, fw.ETag, fw.FileURL, database.FormatTime(fw.UpdatedAt), fw.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrFirmwareExists
		}
		return fmt.Errorf("updating firmware: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) SetLatest(ctx context.Context, id string, latest bool) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE device_firmwares SET is_latest = ?, updated_at = ? WHERE id = ?",
		database.BoolToInt(latest), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("setting firmware latest flag: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) ClearLatest(ctx context.Context) (int, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE device_firmwares SET is_latest = 0, updated_at = ? WHERE is_latest = 1",
		database.FormatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("clearing firmware latest flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, by string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE device_firmwares SET sync_status = ?, sync_at = ?, sync_by = ?, updated_at = ?
		WHERE id = ? AND sync_status = ?`,
		string(Synced), database.FormatTime(at), by, database.FormatTime(time.Now()), id, string(NotSynced),
	)
	if err != nil {
		return false, fmt.Errorf("marking firmware synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM device_firmwares WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting firmware: %w", err)
	}
	return expectOne(res)
}

const selectSyncJob = `
	SELECT id, firmware_id, sync_job_id, sync_by, is_all_device_selected,
		attached_devices, confirmed_devices, confirmed_count, total_device_count,
		completed_at, created_at
	FROM device_firmware_sync_jobs`

func (r *SQLiteRepository) CreateSyncJob(ctx context.Context, job *SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SyncJobID == "" {
		job.SyncJobID = uuid.NewString()
	}
	if job.AttachedDevices == nil {
		job.AttachedDevices = []string{}
	}
	if job.ConfirmedDevices == nil {
		job.ConfirmedDevices = []string{}
	}
	job.TotalDeviceCount = len(job.AttachedDevices)
	job.CreatedAt = time.Now().UTC()

	attached, err := database.EncodeStrings(job.AttachedDevices)
	if err != nil {
		return fmt.Errorf("marshalling attached devices: %w", err)
	}
	confirmed, err := database.EncodeStrings(job.ConfirmedDevices)
	if err != nil {
		return fmt.Errorf("marshalling confirmed devices: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO device_firmware_sync_jobs (
			id, firmware_id, sync_job_id, sync_by, is_all_device_selected,
			attached_devices, confirmed_devices, confirmed_count, total_device_count,
			completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.FirmwareID, job.SyncJobID, job.SyncBy, database.BoolToInt(job.IsAllDeviceSelected),
		attached, confirmed, job.ConfirmedCount, job.TotalDeviceCount,
		database.NullTime(job.CompletedAt), database.FormatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting sync job: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncJob(ctx context.Context, syncJobID string) (*SyncJob, error) {
	job, err := scanSyncJob(r.q.QueryRowContext(ctx, selectSyncJob+" WHERE sync_job_id = ?", syncJobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSyncJobNotFound
		}
		return nil, fmt.Errorf("querying sync job: %w", err)
	}
	return job, nil
}

func (r *SQLiteRepository) ListSyncJobs(ctx context.Context, firmwareID string, page paging.Page) ([]SyncJob, int, error) {
	page = page.Normalize()

	var total int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM device_firmware_sync_jobs WHERE firmware_id = ?", firmwareID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting sync jobs: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		selectSyncJob+" WHERE firmware_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		firmwareID, page.PerPage, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating sync jobs: %w", err)
	}
	return jobs, total, nil
}

// ConfirmSyncJob appends serial with JSON1 so the membership checks and the
// counter move together in one statement.
func (r *SQLiteRepository) ConfirmSyncJob(ctx context.Context, syncJobID, serial string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE device_firmware_sync_jobs SET
			confirmed_devices = json_insert(confirmed_devices, '$[#]', ?),
			confirmed_count = confirmed_count + 1,
			completed_at = CASE
				WHEN confirmed_count + 1 >= total_device_count THEN ?
				ELSE completed_at
			END
		WHERE sync_job_id = ?
			AND EXISTS (SELECT 1 FROM json_each(attached_devices) WHERE value = ?)
			AND NOT EXISTS (SELECT 1 FROM json_each(confirmed_devices) WHERE value = ?)`,
		serial, database.FormatTime(at), syncJobID, serial, serial,
	)
	if err != nil {
		return false, fmt.Errorf("confirming sync job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrFirmwareNotFound
	}
	return nil
}

func scanFirmware(s database.RowScanner) (*Firmware, error) {
	var fw Firmware
	var latest int
	var status, createdAt, updatedAt string
	var syncAt, syncBy, createdBy sql.NullString

	err := s.Scan(
		&fw.ID, &fw.Version, &fw.Key, &fw.ETag, &fw.FileURL, &latest, &status,
		&syncAt, &syncBy, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	fw.IsLatest = latest == 1
	fw.SyncStatus = SyncStatus(status)
	fw.SyncAt = database.TimePtr(syncAt)
	fw.SyncBy = database.StringPtr(syncBy)
	fw.CreatedBy = database.StringPtr(createdBy)
	if fw.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if fw.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &fw, nil
}

func scanSyncJob(s database.RowScanner) (*SyncJob, error) {
	var job SyncJob
	var all int
	var attached, confirmed, createdAt string
	var completedAt sql.NullString

	err := s.Scan(
		&job.ID, &job.FirmwareID, &job.SyncJobID, &job.SyncBy, &all,
		&attached, &confirmed, &job.ConfirmedCount, &job.TotalDeviceCount,
		&completedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	job.IsAllDeviceSelected = all == 1
	job.CompletedAt = database.TimePtr(completedAt)
	if job.AttachedDevices, err = database.DecodeStrings("attached_devices", attached); err != nil {
		return nil, err
	}
	if job.ConfirmedDevices, err = database.DecodeStrings("confirmed_devices", confirmed); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	return &job, nil
}
