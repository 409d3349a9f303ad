package service

import (
	"context"

	"topowatch/internal/adapter"
)

// Directory is the slice of the device-directory API the services consume.
// *adapter.Dashboard satisfies it; tests substitute doubles.
type Directory interface {
	Organizations(ctx context.Context) ([]adapter.Organization, error)
	Networks(ctx context.Context, orgID string) ([]adapter.Network, error)
	Devices(ctx context.Context, orgID string) ([]adapter.DeviceInfo, error)
	DeviceByMAC(ctx context.Context, orgID, mac string) (*adapter.DeviceInfo, error)
	Device(ctx context.Context, serial string) (*adapter.DeviceInfo, error)
	DeviceStatuses(ctx context.Context, orgID string) ([]adapter.DeviceStatus, error)
	DeviceStatus(ctx context.Context, orgID, serial string) (*adapter.DeviceStatus, error)
	LinkLayerTopology(ctx context.Context, networkID string) (*adapter.Topology, error)
	SwitchPortStatuses(ctx context.Context, serial string) ([]adapter.PortStatus, error)
	CycleSwitchPorts(ctx context.Context, serial string, ports []string) error
}

// Ticketer is the slice of the ticketing API the reporter consumes.
// *adapter.ServiceNow satisfies it.
type Ticketer interface {
	CreateIncident(ctx context.Context, incident adapter.Incident) (*adapter.IncidentResult, error)
	GetIncident(ctx context.Context, sysID string) (*adapter.IncidentResult, error)
	ResolveIncident(ctx context.Context, sysID, comment string) error
	CallerName(ctx context.Context) (string, error)
}
