package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"topowatch/internal/adapter"
	"topowatch/internal/repository"
	"topowatch/internal/repository/sqlite"
)

// newTestDB returns a file-backed store plus an opener handing out fresh
// connections to the same database, the way async chains get theirs.
func newTestDB(t *testing.T) (repository.Store, func() (repository.Store, error)) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topo.db")
	store, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store, func() (repository.Store, error) {
		return sqlite.New(path)
	}
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// fakeDirectory is an in-memory device directory double.
type fakeDirectory struct {
	mu sync.Mutex

	orgs       []adapter.Organization
	networks   map[string][]adapter.Network
	inventory  map[string][]adapter.DeviceInfo // orgID → inventory
	live       map[string]string               // serial → live status
	topologies map[string]*adapter.Topology    // networkID → topology
	ports      map[string][]adapter.PortStatus // switch serial → ports

	inventoryErr error
	portsErr     error
	cycleErr     error

	cycled      [][]string
	statusCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		networks:   make(map[string][]adapter.Network),
		inventory:  make(map[string][]adapter.DeviceInfo),
		live:       make(map[string]string),
		topologies: make(map[string]*adapter.Topology),
		ports:      make(map[string][]adapter.PortStatus),
	}
}

func (f *fakeDirectory) Organizations(context.Context) ([]adapter.Organization, error) {
	return f.orgs, nil
}

func (f *fakeDirectory) Networks(_ context.Context, orgID string) ([]adapter.Network, error) {
	return f.networks[orgID], nil
}

func (f *fakeDirectory) Devices(_ context.Context, orgID string) ([]adapter.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	return f.inventory[orgID], nil
}

func (f *fakeDirectory) DeviceByMAC(_ context.Context, orgID, mac string) (*adapter.DeviceInfo, error) {
	for _, dev := range f.inventory[orgID] {
		if dev.MAC == mac {
			d := dev
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) Device(_ context.Context, serial string) (*adapter.DeviceInfo, error) {
	for _, devices := range f.inventory {
		for _, dev := range devices {
			if dev.Serial == serial {
				d := dev
				return &d, nil
			}
		}
	}
	return nil, fmt.Errorf("device %s not in inventory", serial)
}

func (f *fakeDirectory) DeviceStatuses(_ context.Context, orgID string) ([]adapter.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var statuses []adapter.DeviceStatus
	for _, dev := range f.inventory[orgID] {
		statuses = append(statuses, adapter.DeviceStatus{
			Serial: dev.Serial,
			Status: f.live[dev.Serial],
			MAC:    dev.MAC,
		})
	}
	return statuses, nil
}

func (f *fakeDirectory) DeviceStatus(_ context.Context, _, serial string) (*adapter.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	status, tracked := f.live[serial]
	if !tracked {
		return nil, fmt.Errorf("no status reported for %s", serial)
	}
	var mac string
	for _, devices := range f.inventory {
		for _, dev := range devices {
			if dev.Serial == serial {
				mac = dev.MAC
			}
		}
	}
	return &adapter.DeviceStatus{Serial: serial, Status: status, MAC: mac}, nil
}

func (f *fakeDirectory) LinkLayerTopology(_ context.Context, networkID string) (*adapter.Topology, error) {
	topo, present := f.topologies[networkID]
	if !present {
		return nil, fmt.Errorf("no topology for %s", networkID)
	}
	return topo, nil
}

func (f *fakeDirectory) SwitchPortStatuses(_ context.Context, serial string) ([]adapter.PortStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.portsErr != nil {
		return nil, f.portsErr
	}
	return f.ports[serial], nil
}

func (f *fakeDirectory) CycleSwitchPorts(_ context.Context, serial string, ports []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cycleErr != nil {
		return f.cycleErr
	}
	f.cycled = append(f.cycled, append([]string{serial}, ports...))
	return nil
}

func (f *fakeDirectory) setLive(serial, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[serial] = status
}

func (f *fakeDirectory) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cycled)
}

// fakeTicketer is an in-memory ticketing double.
type fakeTicketer struct {
	mu       sync.Mutex
	created  []adapter.Incident
	tickets  map[string]*adapter.IncidentResult
	resolved []string
}

func newFakeTicketer() *fakeTicketer {
	return &fakeTicketer{tickets: make(map[string]*adapter.IncidentResult)}
}

func (f *fakeTicketer) CallerName(context.Context) (string, error) {
	return "Automation Account", nil
}

func (f *fakeTicketer) CreateIncident(_ context.Context, incident adapter.Incident) (*adapter.IncidentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, incident)
	result := &adapter.IncidentResult{
		SysID:            fmt.Sprintf("SYS%04d", len(f.created)),
		Number:           fmt.Sprintf("INC%07d", len(f.created)),
		State:            "1",
		ShortDescription: incident.ShortDescription,
	}
	f.tickets[result.SysID] = result
	return result, nil
}

func (f *fakeTicketer) GetIncident(_ context.Context, sysID string) (*adapter.IncidentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, present := f.tickets[sysID]
	if !present {
		return nil, nil
	}
	return ticket, nil
}

func (f *fakeTicketer) ResolveIncident(_ context.Context, sysID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket, present := f.tickets[sysID]; present {
		ticket.State = adapter.StateResolved
	}
	f.resolved = append(f.resolved, sysID)
	return nil
}

func (f *fakeTicketer) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}
