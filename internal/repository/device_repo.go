package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lynx-remote/backend/internal/model"
)

// DeviceRepository provides data access for device records.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a new device record into the database.
func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	query := `
		INSERT INTO devices (id, user_id, name, status, last_seen, grp, os, version, uptime, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.UserID,
		device.Name,
		device.Status,
		device.LastSeen,
		nullString(device.Group),
		nullString(device.OS),
		nullString(device.Version),
		device.Uptime,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

// GetByID retrieves a device record by its ID.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*model.Device, error) {
	query := `
		SELECT id, user_id, name, status, last_seen, grp, os, version, uptime, created_at, updated_at
		FROM devices
		WHERE id = ?
	`

	device := &model.Device{}
	var lastSeen sql.NullTime
	var group, os, version sql.NullString
	var uptime sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&device.ID,
		&device.UserID,
		&device.Name,
		&device.Status,
		&lastSeen,
		&group,
		&os,
		&version,
		&uptime,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if lastSeen.Valid {
		t := lastSeen.Time
		device.LastSeen = &t
	}
	if group.Valid {
		device.Group = group.String
	}
	if os.Valid {
		device.OS = os.String
	}
	if version.Valid {
		device.Version = version.String
	}
	if uptime.Valid {
		u := uptime.Int64
		device.Uptime = &u
	}

	return device, nil
}

// List retrieves all device records.
func (r *DeviceRepository) List(ctx context.Context) ([]*model.Device, error) {
	query := `
		SELECT id, user_id, name, status, last_seen, grp, os, version, uptime, created_at, updated_at
		FROM devices
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		device := &model.Device{}
		var lastSeen sql.NullTime
		var group, os, version sql.NullString
		var uptime sql.NullInt64

		err := rows.Scan(
			&device.ID,
			&device.UserID,
			&device.Name,
			&device.Status,
			&lastSeen,
			&group,
			&os,
			&version,
			&uptime,
			&device.CreatedAt,
			&device.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		if lastSeen.Valid {
			t := lastSeen.Time
			device.LastSeen = &t
		}
		if group.Valid {
			device.Group = group.String
		}
		if os.Valid {
			device.OS = os.String
		}
		if version.Valid {
			device.Version = version.String
		}
		if uptime.Valid {
			u := uptime.Int64
			device.Uptime = &u
		}

		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// Upsert creates the record if it does not exist, otherwise applies the
// non-nil fields of the partial update. Inserting requires a UserID.
func (r *DeviceRepository) Upsert(ctx context.Context, up model.DeviceUpsert) error {
	_, err := r.GetByID(ctx, up.ID)
	if err == model.ErrDeviceNotFound {
		if up.UserID == "" {
			return model.ErrNoOwner
		}

		now := time.Now()
		device := &model.Device{
			ID:        up.ID,
			UserID:    up.UserID,
			Status:    model.DeviceStatusOffline,
			LastSeen:  up.LastSeen,
			Uptime:    up.Uptime,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if up.Name != nil {
			device.Name = *up.Name
		} else {
			device.Name = up.ID
		}
		if up.Status != nil {
			device.Status = *up.Status
		}
		if up.Group != nil {
			device.Group = *up.Group
		}
		if up.OS != nil {
			device.OS = *up.OS
		}
		if up.Version != nil {
			device.Version = *up.Version
		}
		return r.Create(ctx, device)
	}
	if err != nil {
		return err
	}

	return r.update(ctx, up)
}

// update applies the non-nil fields of a partial update to an existing record.
func (r *DeviceRepository) update(ctx context.Context, up model.DeviceUpsert) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	if up.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *up.Name)
	}
	if up.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *up.Status)
	}
	if up.LastSeen != nil {
		sets = append(sets, "last_seen = ?")
		args = append(args, *up.LastSeen)
	}
	if up.Group != nil {
		sets = append(sets, "grp = ?")
		args = append(args, *up.Group)
	}
	if up.OS != nil {
		sets = append(sets, "os = ?")
		args = append(args, *up.OS)
	}
	if up.Version != nil {
		sets = append(sets, "version = ?")
		args = append(args, *up.Version)
	}
	if up.Uptime != nil {
		sets = append(sets, "uptime = ?")
		args = append(args, *up.Uptime)
	}

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, up.ID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrDeviceNotFound
	}

	return nil
}

// Delete removes a device record from the database.
func (r *DeviceRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM devices WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrDeviceNotFound
	}

	return nil
}

// FallbackOwnerID returns the ID of the first registered user, used to
// assign ownership of auto-registered devices when the connecting agent
// did not supply one.
func (r *DeviceRepository) FallbackOwnerID(ctx context.Context) (string, error) {
	query := `SELECT id FROM users ORDER BY created_at ASC LIMIT 1`

	var id string
	err := r.db.QueryRowContext(ctx, query).Scan(&id)
	if err == sql.ErrNoRows {
		return "", model.ErrNoOwner
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve fallback owner: %w", err)
	}

	return id, nil
}

// CreateUser inserts a user. Users are normally managed by the dashboard;
// this exists for bootstrap and tests.
func (r *DeviceRepository) CreateUser(ctx context.Context, id, name, email string) error {
	query := `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, id, name, email, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// InsertLog appends a lifecycle log entry for a device.
func (r *DeviceRepository) InsertLog(ctx context.Context, deviceID string, logType model.DeviceLogType, message string) error {
	query := `INSERT INTO device_logs (device_id, type, timestamp, message) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, deviceID, logType, time.Now(), nullString(message))
	if err != nil {
		return fmt.Errorf("failed to insert device log: %w", err)
	}

	return nil
}

// ListLogs retrieves the most recent lifecycle log entries for a device.
func (r *DeviceRepository) ListLogs(ctx context.Context, deviceID string, limit int) ([]*model.DeviceLog, error) {
	query := `
		SELECT id, device_id, type, timestamp, message
		FROM device_logs
		WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.DeviceLog
	for rows.Next() {
		entry := &model.DeviceLog{}
		var message sql.NullString

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.Type, &entry.Timestamp, &message); err != nil {
			return nil, fmt.Errorf("failed to scan device log: %w", err)
		}
		if message.Valid {
			entry.Message = message.String
		}

		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device logs: %w", err)
	}

	return logs, nil
}

// nullString maps an empty string to NULL for storage.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
