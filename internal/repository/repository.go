package repository

import (
	"context"

	"topowatch/internal/domain"
)

// Store defines the interface for topology and open-ticket data access.
type Store interface {
	// Device operations (all writes are insert-or-replace upserts)
	UpsertDevice(ctx context.Context, device *domain.Device) error
	GetDevice(ctx context.Context, serial string) (*domain.Device, error)
	SetStatus(ctx context.Context, serial string, status domain.Status) error
	DeleteDevice(ctx context.Context, serial string) error
	ListSerials(ctx context.Context) ([]string, error)

	// Downstream returns all devices of the given role whose upstream
	// pointer references serial.
	Downstream(ctx context.Context, serial string, role domain.Role) ([]domain.Device, error)

	// Open ticket references (at most one per device)
	PutOpenTicket(ctx context.Context, serial, ticketID string) error
	GetOpenTicket(ctx context.Context, serial string) (string, error)
	DeleteOpenTicket(ctx context.Context, serial string) error

	// Close releases resources
	Close() error
}
