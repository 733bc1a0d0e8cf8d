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

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a device. Returns ErrDeviceExists on a duplicate serial.
	Create(ctx context.Context, d *Device) error

	// GetBySerial returns ErrDeviceNotFound if the serial does not exist.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// GetByID returns ErrDeviceNotFound if the ID does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns one page of devices, newest first.
	List(ctx context.Context, f Filter, page paging.Page) ([]Device, int, error)

	// Update writes the descriptive, firmware and live fields of d.
	// Ownership fields are only changed by CompareAndSwapAssignment.
	Update(ctx context.Context, d *Device) error

	// CompareAndSwapAssignment applies a in a single conditional statement
	// and reports whether every guard held.
	CompareAndSwapAssignment(ctx context.Context, a Assignment) (bool, error)

	// SetStatus changes the operational status of an assigned device whose
	// status differs, and reports whether the row changed.
	SetStatus(ctx context.Context, serial string, status Status) (bool, error)

	// SetMaxFence stores the per-device fence override.
	SetMaxFence(ctx context.Context, serial string, maxFence int) error

	// SetGeoFences replaces the attached fence list.
	SetGeoFences(ctx context.Context, serial string, fenceIDs []string) error

	// CountByUser counts devices owned by (or pending for) userID.
	CountByUser(ctx context.Context, userID string) (int, error)

	// Delete removes a device. Returns ErrDeviceNotFound if it does not exist.
	Delete(ctx context.Context, serial string) error

	// PullGeoFenceID removes fenceID from every device and returns the
	// serials that referenced it.
	PullGeoFenceID(ctx context.Context, fenceID string) ([]string, error)

	// GeoFenceLinks returns the attached fence list of every device that has one.
	GeoFenceLinks(ctx context.Context) (map[string][]string, error)

	// Serials returns every serial matching f, ordered.
	Serials(ctx context.Context, f Filter) ([]string, error)

	// SetFirmwareVersion records the firmware a device reported running.
	SetFirmwareVersion(ctx context.Context, serial, version string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	q database.Querier
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// q is a *sql.DB or a *sql.Tx.
func NewSQLiteRepository(q database.Querier) *SQLiteRepository {
	return &SQLiteRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{q: tx}
}

const selectDevice = `
	SELECT id, serial, firmware_version, live_status, assign_status, status,
		user_id, approved_by, approved_at, approval_requested_at, last_seen_at,
		name, vehicle_name, vehicle_number, driver_name, driver_contact, driver_other_details,
		attached_geofences, max_fence, created_at, updated_at
	FROM devices`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	d.Serial = NormalizeSerial(d.Serial)
	if d.FirmwareVersion == "" {
		d.FirmwareVersion = DefaultFirmwareVersion
	}
	if d.LiveStatus == "" {
		d.LiveStatus = LiveNA
	}
	if d.AssignStatus == "" {
		d.AssignStatus = NotAssigned
	}
	if d.Status == "" {
		d.Status = StatusInactive
	}
	if d.AttachedGeoFences == nil {
		d.AttachedGeoFences = []string{}
	}
	if d.MaxFence == 0 {
		d.MaxFence = UnlimitedFences
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	fences, err := database.EncodeStrings(d.AttachedGeoFences)
	if err != nil {
		return fmt.Errorf("marshalling attached geofences: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO devices (
			id, serial, firmware_version, live_status, assign_status, status,
			user_id, approved_by, approved_at, approval_requested_at, last_seen_at,
			name, vehicle_name, vehicle_number, driver_name, driver_contact, driver_other_details,
			attached_geofences, max_fence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Serial, d.FirmwareVersion, string(d.LiveStatus), string(d.AssignStatus), string(d.Status),
		database.NullString(d.UserID), database.NullString(d.ApprovedBy),
		database.NullTime(d.ApprovedAt), database.NullTime(d.ApprovalRequestedAt), database.NullTime(d.LastSeenAt),
		d.Name, d.VehicleName, d.VehicleNumber, d.DriverName, d.DriverContact, d.DriverOtherDetails,
		fences, d.MaxFence, database.FormatTime(d.CreatedAt), database.FormatTime(d.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// GetBySerial retrieves a device by serial.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	return r.getOne(ctx, selectDevice+" WHERE serial = ?", NormalizeSerial(serial))
}

// GetByID retrieves a device by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOne(ctx, selectDevice+" WHERE id = ?", id)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query, arg string) (*Device, error) {
	d, err := scanDevice(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// List retrieves a filtered page of devices.
func (r *SQLiteRepository) List(ctx context.Context, f Filter, page paging.Page) ([]Device, int, error) {
	page = page.Normalize()

	clause, args := f.where()

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting devices: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		selectDevice+clause+" ORDER BY created_at DESC, serial LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, total, nil
}

// Update modifies the non-ownership fields of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE devices SET
			firmware_version = ?, live_status = ?, last_seen_at = ?,
			name = ?, vehicle_name = ?, vehicle_number = ?,
			driver_name = ?, driver_contact = ?, driver_other_details = ?,
			updated_at = ?
		WHERE serial = ?`,
		d.FirmwareVersion, string(d.LiveStatus), database.NullTime(d.LastSeenAt),
		d.Name, d.VehicleName, d.VehicleNumber,
		d.DriverName, d.DriverContact, d.DriverOtherDetails,
		database.FormatTime(d.UpdatedAt), NormalizeSerial(d.Serial),
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return expectOne(res)
}

// CompareAndSwapAssignment builds one UPDATE whose WHERE clause carries every
// guard of a, including the owner's device count, so the check and the
// transition cannot interleave with another writer.
func (r *SQLiteRepository) CompareAndSwapAssignment(ctx context.Context, a Assignment) (bool, error) {
	serial := NormalizeSerial(a.Serial)

	sets := []string{
		"assign_status = ?", "status = ?",
		"approved_by = ?", "approved_at = ?", "approval_requested_at = ?",
		"updated_at = ?",
	}
	args := []any{
		string(a.To), string(a.Status),
		database.NullString(a.ApprovedBy), database.NullTime(a.ApprovedAt), database.NullTime(a.ApprovalRequestedAt),
		database.FormatTime(time.Now()),
	}
	if a.SetOwner {
		sets = append(sets, "user_id = ?")
		args = append(args, database.NullString(a.Owner))
	}
	switch {
	case a.Details != nil:
		sets = append(sets,
			"name = ?", "vehicle_name = ?", "vehicle_number = ?",
			"driver_name = ?", "driver_contact = ?", "driver_other_details = ?")
		args = append(args,
			a.Details.Name, a.Details.VehicleName, a.Details.VehicleNumber,
			a.Details.DriverName, a.Details.DriverContact, a.Details.DriverOtherDetails)
	case a.ClearDetails:
		sets = append(sets,
			"name = ''", "vehicle_name = ''", "vehicle_number = ''",
			"driver_name = ''", "driver_contact = ''", "driver_other_details = ''")
	}

	where := []string{"serial = ?", "assign_status = ?"}
	args = append(args, serial, string(a.From))

	if a.RequireOwnerOrUnowned != "" {
		where = append(where, "(user_id IS NULL OR user_id = ?)")
		args = append(args, a.RequireOwnerOrUnowned)
	}
	if a.DeviceLimit >= 0 && a.Owner != nil {
		where = append(where, "(SELECT COUNT(*) FROM devices AS owned WHERE owned.user_id = ? AND owned.serial <> ?) < ?")
		args = append(args, *a.Owner, serial, a.DeviceLimit)
	}

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating device assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// SetStatus toggles the status of an assigned device.
func (r *SQLiteRepository) SetStatus(ctx context.Context, serial string, status Status) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE devices SET status = ?, updated_at = ?
		WHERE serial = ? AND assign_status = ? AND status <> ?`,
		string(status), database.FormatTime(time.Now()), NormalizeSerial(serial), string(Assigned), string(status),
	)
	if err != nil {
		return false, fmt.Errorf("updating device status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// SetMaxFence stores the per-device fence override.
func (r *SQLiteRepository) SetMaxFence(ctx context.Context, serial string, maxFence int) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE devices SET max_fence = ?, updated_at = ? WHERE serial = ?",
		maxFence, database.FormatTime(time.Now()), NormalizeSerial(serial),
	)
	if err != nil {
		return fmt.Errorf("updating device max fence: %w", err)
	}
	return expectOne(res)
}

// SetGeoFences replaces the attached fence list.
func (r *SQLiteRepository) SetGeoFences(ctx context.Context, serial string, fenceIDs []string) error {
	fences, err := database.EncodeStrings(fenceIDs)
	if err != nil {
		return fmt.Errorf("marshalling attached geofences: %w", err)
	}
	res, err := r.q.ExecContext(ctx,
		"UPDATE devices SET attached_geofences = ?, updated_at = ? WHERE serial = ?",
		fences, database.FormatTime(time.Now()), NormalizeSerial(serial),
	)
	if err != nil {
		return fmt.Errorf("updating device geofences: %w", err)
	}
	return expectOne(res)
}

// CountByUser counts devices referencing userID in any assign status.
func (r *SQLiteRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices by user: %w", err)
	}
	return n, nil
}

// Delete removes a device by serial.
func (r *SQLiteRepository) Delete(ctx context.Context, serial string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM devices WHERE serial = ?", NormalizeSerial(serial))
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return expectOne(res)
}

// PullGeoFenceID rewrites the JSON fence list of every referencing device.
func (r *SQLiteRepository) PullGeoFenceID(ctx context.Context, fenceID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT serial FROM devices
		WHERE EXISTS (SELECT 1 FROM json_each(devices.attached_geofences) WHERE value = ?)
		ORDER BY serial`, fenceID)
	if err != nil {
		return nil, fmt.Errorf("querying devices by geofence: %w", err)
	}
	serials, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning device serials: %w", err)
	}
	if len(serials) == 0 {
		return serials, nil
	}

	_, err = r.q.ExecContext(ctx, `
		UPDATE devices SET
			attached_geofences = (
				SELECT COALESCE(json_group_array(value), '[]')
				FROM json_each(devices.attached_geofences) WHERE value <> ?
			),
			updated_at = ?
		WHERE EXISTS (SELECT 1 FROM json_each(devices.attached_geofences) WHERE value = ?)`,
		fenceID, database.FormatTime(time.Now()), fenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("pulling geofence from devices: %w", err)
	}
	return serials, nil
}

// GeoFenceLinks returns serial -> attached fence IDs for devices with at least one fence.
func (r *SQLiteRepository) GeoFenceLinks(ctx context.Context) (map[string][]string, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT serial, attached_geofences FROM devices WHERE attached_geofences <> '[]'")
	if err != nil {
		return nil, fmt.Errorf("querying device geofence links: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var serial, raw string
		if err := rows.Scan(&serial, &raw); err != nil {
			return nil, fmt.Errorf("scanning device geofence link: %w", err)
		}
		ids, err := database.DecodeStrings("attached_geofences", raw)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			links[serial] = ids
		}
	}
	return links, rows.Err()
}

// where renders the filter as a WHERE clause and its arguments.
func (f Filter) where() (string, []any) {
	var where []string
	var args []any
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.AssignStatus != "" {
		where = append(where, "assign_status = ?")
		args = append(args, string(f.AssignStatus))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.LiveStatus != "" {
		where = append(where, "live_status = ?")
		args = append(args, string(f.LiveStatus))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + s + "%"
		where = append(where, "(serial LIKE ? OR name LIKE ? OR vehicle_number LIKE ? OR driver_name LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// Serials lists the serials of every device matching f.
func (r *SQLiteRepository) Serials(ctx context.Context, f Filter) ([]string, error) {
	clause, args := f.where()
	rows, err := r.q.QueryContext(ctx, "SELECT serial FROM devices"+clause+" ORDER BY serial", args...)
	if err != nil {
		return nil, fmt.Errorf("querying device serials: %w", err)
	}
	serials, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning device serials: %w", err)
	}
	return serials, nil
}

// SetFirmwareVersion stores the reported firmware version.
func (r *SQLiteRepository) SetFirmwareVersion(ctx context.Context, serial, version string) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE devices SET firmware_version = ?, updated_at = ? WHERE serial = ?",
		version, database.FormatTime(time.Now()), NormalizeSerial(serial),
	)
	if err != nil {
		return fmt.Errorf("updating device firmware version: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanDevice scans a device from a database row.
func scanDevice(s database.RowScanner) (*Device, error) {
	var d Device
	var liveStatus, assignStatus, status, fences, createdAt, updatedAt string
	var userID, approvedBy, approvedAt, requestedAt, lastSeenAt sql.NullString

	err := s.Scan(
		&d.ID, &d.Serial, &d.FirmwareVersion, &liveStatus, &assignStatus, &status,
		&userID, &approvedBy, &approvedAt, &requestedAt, &lastSeenAt,
		&d.Name, &d.VehicleName, &d.VehicleNumber, &d.DriverName, &d.DriverContact, &d.DriverOtherDetails,
		&fences, &d.MaxFence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.LiveStatus = LiveStatus(liveStatus)
	d.AssignStatus = AssignStatus(assignStatus)
	d.Status = Status(status)
	d.UserID = database.StringPtr(userID)
	d.ApprovedBy = database.StringPtr(approvedBy)
	d.ApprovedAt = database.TimePtr(approvedAt)
	d.ApprovalRequestedAt = database.TimePtr(requestedAt)
	d.LastSeenAt = database.TimePtr(lastSeenAt)

	if d.AttachedGeoFences, err = database.DecodeStrings("attached_geofences", fences); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = database.ParseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
