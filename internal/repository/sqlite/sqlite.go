package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"topowatch/internal/domain"

	_ "modernc.org/sqlite"
)

// Store implements repository.Store using SQLite
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite topology store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		serial TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		mac TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		upstream_serial TEXT,
		network_id TEXT NOT NULL DEFAULT '',
		network_name TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS open_tickets (
		device_serial TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_devices_upstream ON devices(upstream_serial);
	CREATE INDEX IF NOT EXISTS idx_devices_role ON devices(role);
	`

	_, err := s.db.Exec(schema)
	return err
}

const deviceColumns = `serial, name, model, mac, role, status, upstream_serial, network_id, network_name`

// UpsertDevice inserts or replaces a device. An empty upstream serial on the
// incoming device preserves any upstream pointer already recorded, so a link
// that names a switch as the upper end does not erase the switch's own
// attachment to its router.
func (s *Store) UpsertDevice(ctx context.Context, device *domain.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (serial, name, model, mac, role, status, upstream_serial, network_id, network_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(serial) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			mac = excluded.mac,
			role = excluded.role,
			status = excluded.status,
			upstream_serial = COALESCE(excluded.upstream_serial, devices.upstream_serial),
			network_id = excluded.network_id,
			network_name = excluded.network_name,
			updated_at = CURRENT_TIMESTAMP
	`, device.Serial, device.Name, device.Model, device.MAC, string(device.Role),
		string(device.Status), stringToNull(device.UpstreamSerial), device.NetworkID, device.NetworkName)

	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.Serial, err)
	}
	return nil
}

// GetDevice retrieves a single device by serial. Returns nil, nil when the
// serial is unknown.
func (s *Store) GetDevice(ctx context.Context, serial string) (*domain.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE serial = ?
	`, serial)

	device, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device %s: %w", serial, err)
	}
	return device, nil
}

// SetStatus updates the recorded status of a device.
func (s *Store) SetStatus(ctx context.Context, serial string, status domain.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE serial = ?
	`, string(status), serial)
	if err != nil {
		return fmt.Errorf("failed to set status for %s: %w", serial, err)
	}
	return nil
}

// DeleteDevice removes a device. Downstream devices keep their dangling
// upstream pointer; readers tolerate it.
func (s *Store) DeleteDevice(ctx context.Context, serial string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE serial = ?`, serial)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", serial, err)
	}
	return nil
}

// ListSerials returns the serials of every device in the store.
func (s *Store) ListSerials(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT serial FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("failed to list serials: %w", err)
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("failed to scan serial: %w", err)
		}
		serials = append(serials, serial)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating serials: %w", err)
	}
	return serials, nil
}

// Downstream returns all devices of the given role directly downstream of
// serial, ordered by serial for deterministic traversal.
func (s *Store) Downstream(ctx context.Context, serial string, role domain.Role) ([]domain.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE upstream_serial = ? AND role = ?
		ORDER BY serial
	`, serial, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query downstream of %s: %w", serial, err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// PutOpenTicket records the external ticket opened for a device, replacing
// any previous reference.
func (s *Store) PutOpenTicket(ctx context.Context, serial, ticketID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_tickets (device_serial, ticket_id, created_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_serial) DO UPDATE SET
			ticket_id = excluded.ticket_id,
			created_at = CURRENT_TIMESTAMP
	`, serial, ticketID)
	if err != nil {
		return fmt.Errorf("failed to record open ticket for %s: %w", serial, err)
	}
	return nil
}

// GetOpenTicket returns the external ticket ID recorded for a device, or ""
// when none is open.
func (s *Store) GetOpenTicket(ctx context.Context, serial string) (string, error) {
	var ticketID string
	err := s.db.QueryRowContext(ctx, `
		SELECT ticket_id FROM open_tickets WHERE device_serial = ?
	`, serial).Scan(&ticketID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query open ticket for %s: %w", serial, err)
	}
	return ticketID, nil
}

// DeleteOpenTicket removes the open ticket reference for a device.
func (s *Store) DeleteOpenTicket(ctx context.Context, serial string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM open_tickets WHERE device_serial = ?`, serial)
	if err != nil {
		return fmt.Errorf("failed to delete open ticket for %s: %w", serial, err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
