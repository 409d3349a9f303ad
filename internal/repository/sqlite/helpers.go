package sqlite

import (
	"database/sql"

	"topowatch/internal/domain"
)

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one devices row in deviceColumns order.
func scanDevice(row scanner) (*domain.Device, error) {
	var (
		device   domain.Device
		role     string
		status   string
		upstream sql.NullString
	)
	if err := row.Scan(&device.Serial, &device.Name, &device.Model, &device.MAC,
		&role, &status, &upstream, &device.NetworkID, &device.NetworkName); err != nil {
		return nil, err
	}
	device.Role = domain.Role(role)
	device.Status = domain.Status(status)
	device.UpstreamSerial = nullToString(upstream)
	return &device, nil
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
