package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"topowatch/internal/adapter"
	"topowatch/internal/domain"
	"topowatch/internal/repository"
	"topowatch/internal/scheduler"
	"topowatch/internal/tasks"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type smFixture struct {
	store     repository.Store
	dir       *fakeDirectory
	tickets   *fakeTicketer
	sm        *StateMachine
	ledgerDir string
}

func newStateMachineFixture(t *testing.T, policy Policy) *smFixture {
	t.Helper()
	store, open := newTestDB(t)

	dir := newFakeDirectory()
	tickets := newFakeTicketer()
	bus := NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runner := tasks.NewRunner(2, 16)
	runner.Start(ctx)
	t.Cleanup(runner.Stop)

	sched := scheduler.New()
	go sched.Start(ctx)

	ledgerDir := t.TempDir()
	ledger := NewLedger(ledgerDir)
	reporter := NewReporter(ledger, tickets, dir, bus)
	remediator := NewRemediator(dir, 0, bus)
	impact := NewImpact(dir)
	builder := NewBuilder(dir, open, 2, bus)

	sm := NewStateMachine(store, open, runner, sched, remediator, impact, reporter, builder, bus, policy)
	return &smFixture{store: store, dir: dir, tickets: tickets, sm: sm, ledgerDir: ledgerDir}
}

func (f *smFixture) seed(t *testing.T, devices ...*domain.Device) {
	t.Helper()
	for _, dev := range devices {
		if err := f.store.UpsertDevice(context.Background(), dev); err != nil {
			t.Fatalf("seeding %s: %v", dev.Serial, err)
		}
	}
}

func alertFor(typ domain.AlertType, serial, name string) domain.Alert {
	return domain.Alert{
		ID:             "641",
		Type:           typ,
		OrganizationID: "org1",
		NetworkID:      "net1",
		NetworkName:    "HQ",
		DeviceSerial:   serial,
		DeviceName:     name,
		OccurredAt:     time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeDirectory) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func TestStateMachineRepeatedDownIsNoOp(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "S1", Model: "MS220", Role: domain.RoleSwitch, Status: domain.StatusUp},
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusUp, UpstreamSerial: "S1"},
	)
	f.dir.setLive("C1", "online") // chain's re-check sees a recovered camera

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraDown, "C1", "Lobby Cam")))
	waitFor(t, 2*time.Second, func() bool { return f.dir.statusCallCount() == 1 })

	// A second down while already down must not dispatch another chain.
	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraDown, "C1", "Lobby Cam")))
	time.Sleep(50 * time.Millisecond)
	if got := f.dir.statusCallCount(); got != 1 {
		t.Errorf("expected 1 remediation dispatch, saw %d status checks", got)
	}

	dev, err := f.store.GetDevice(ctx, "C1")
	assertNoError(t, err)
	if dev.Status != domain.StatusDown {
		t.Errorf("expected C1 recorded down, got %s", dev.Status)
	}
}

func TestStateMachineSuppressesWhenUpstreamDown(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "S1", Model: "MS220", Role: domain.RoleSwitch, Status: domain.StatusDown},
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusUp, UpstreamSerial: "S1"},
	)

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraDown, "C1", "Lobby Cam")))
	time.Sleep(50 * time.Millisecond)

	if got := f.dir.statusCallCount(); got != 0 {
		t.Errorf("expected no remediation for suppressed incident, saw %d status checks", got)
	}
	dev, err := f.store.GetDevice(ctx, "C1")
	assertNoError(t, err)
	if dev.Status != domain.StatusDown {
		t.Errorf("status transition still applies on suppression, got %s", dev.Status)
	}
}

func TestStateMachineCascadeCreatesOneIncident(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "R1", Name: "Core Router", Model: "MX84", Role: domain.RoleRouter, Status: domain.StatusUp},
		&domain.Device{Serial: "S1", Name: "Floor 1 Switch", Model: "MS220", Role: domain.RoleSwitch, Status: domain.StatusUp, UpstreamSerial: "R1"},
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusUp, UpstreamSerial: "S1"},
	)
	f.dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "C1", Name: "Lobby Cam", Model: "MV12"},
	}

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertRouterDown, "R1", "Core Router")))
	waitFor(t, 2*time.Second, func() bool { return f.tickets.createdCount() == 1 })

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertSwitchDown, "S1", "Floor 1 Switch")))
	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraDown, "C1", "Lobby Cam")))
	time.Sleep(50 * time.Millisecond)

	if got := f.tickets.createdCount(); got != 1 {
		t.Fatalf("expected exactly one incident for the cascade, got %d", got)
	}
	if got := f.dir.statusCallCount(); got != 0 {
		t.Errorf("no remediation should run for a suppressed camera, saw %d status checks", got)
	}

	rows := readRows(t, filepath.Join(f.ledgerDir, "incidents-2026-W35.csv"))
	if len(rows) != 2 {
		t.Fatalf("expected exactly one ledger row, got %d", len(rows)-1)
	}
	if rows[1][5] != "R1" {
		t.Errorf("incident should be for R1, got %s", rows[1][5])
	}
	if rows[1][7] != "C1" {
		t.Errorf("incident should list C1 impacted, got %q", rows[1][7])
	}
}

func TestStateMachineUnknownUpRebuildsNetwork(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	ctx := context.Background()

	f.dir.orgs = []adapter.Organization{{ID: "org1", Name: "Acme"}}
	f.dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "R1", Name: "Core Router", Model: "MX84", MAC: "00:00:00:00:00:01"},
		{Serial: "S1", Name: "Floor 1 Switch", Model: "MS220", MAC: "00:00:00:00:00:02"},
	}
	f.dir.setLive("R1", "online")
	f.dir.setLive("S1", "online")
	f.dir.topologies["net1"] = &adapter.Topology{
		Links: []adapter.TopologyLink{
			{Ends: []adapter.LinkEnd{deviceEnd("R1"), deviceEnd("S1")}},
		},
	}

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertSwitchUp, "S1", "Floor 1 Switch")))

	waitFor(t, 2*time.Second, func() bool {
		dev, err := f.store.GetDevice(ctx, "S1")
		return err == nil && dev != nil && dev.UpstreamSerial == "R1"
	})
}

func TestStateMachineUpClearsTicketAndSchedulesCleanup(t *testing.T) {
	f := newStateMachineFixture(t, Policy{TicketCleanupEnabled: true, TicketCleanupDelay: 10 * time.Millisecond})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusDown, UpstreamSerial: "S1"},
	)
	assertNoError(t, f.store.PutOpenTicket(ctx, "C1", "SYS0001"))
	f.tickets.tickets["SYS0001"] = &adapter.IncidentResult{SysID: "SYS0001", State: "1"}
	f.dir.inventory["org1"] = []adapter.DeviceInfo{{Serial: "C1", Model: "MV12"}}
	f.dir.setLive("C1", "online")

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraUp, "C1", "Lobby Cam")))

	ticketID, err := f.store.GetOpenTicket(ctx, "C1")
	assertNoError(t, err)
	if ticketID != "" {
		t.Errorf("expected ticket reference deleted, got %q", ticketID)
	}

	waitFor(t, 2*time.Second, func() bool {
		f.tickets.mu.Lock()
		defer f.tickets.mu.Unlock()
		return len(f.tickets.resolved) == 1 && f.tickets.resolved[0] == "SYS0001"
	})
}

func TestStateMachineCleanupKeepsTicketWhenDeviceFlapsBack(t *testing.T) {
	f := newStateMachineFixture(t, Policy{TicketCleanupEnabled: true, TicketCleanupDelay: 10 * time.Millisecond})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusDown, UpstreamSerial: "S1"},
	)
	assertNoError(t, f.store.PutOpenTicket(ctx, "C1", "SYS0001"))
	f.tickets.tickets["SYS0001"] = &adapter.IncidentResult{SysID: "SYS0001", State: "1"}
	f.dir.setLive("C1", "online")

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraUp, "C1", "Lobby Cam")))

	// The device goes back down before the cleanup fires.
	f.dir.setLive("C1", "offline")
	time.Sleep(100 * time.Millisecond)

	f.tickets.mu.Lock()
	resolved := len(f.tickets.resolved)
	f.tickets.mu.Unlock()
	if resolved != 0 {
		t.Error("cleanup must not resolve a ticket for a device that flapped back down")
	}
}

func TestStateMachineDuplicateTicketSuppression(t *testing.T) {
	f := newStateMachineFixture(t, Policy{SuppressDuplicateTickets: true})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "S1", Model: "MS220", Role: domain.RoleSwitch, Status: domain.StatusUp},
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusUp, UpstreamSerial: "S1"},
	)
	assertNoError(t, f.store.PutOpenTicket(ctx, "C1", "SYS0001"))

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraDown, "C1", "Lobby Cam")))
	time.Sleep(50 * time.Millisecond)

	if got := f.dir.statusCallCount(); got != 0 {
		t.Errorf("existing ticket must suppress the chain, saw %d status checks", got)
	}
}

func TestStateMachineHardwareFailureIgnoresStatus(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	ctx := context.Background()
	f.seed(t,
		&domain.Device{Serial: "C1", Name: "Lobby Cam", Model: "MV12", Role: domain.RoleCamera, Status: domain.StatusDown, UpstreamSerial: "S1"},
	)
	f.dir.inventory["org1"] = []adapter.DeviceInfo{{Serial: "C1", Name: "Lobby Cam", Model: "MV12"}}
	f.dir.setLive("C1", "online")

	assertNoError(t, f.sm.HandleAlert(ctx, alertFor(domain.AlertCameraHWFailure, "C1", "Lobby Cam")))

	// Even a camera reporting online gets a hardware-failure incident.
	waitFor(t, 2*time.Second, func() bool { return f.tickets.createdCount() == 1 })
}

func TestStateMachineDropsUnknownAlertType(t *testing.T) {
	f := newStateMachineFixture(t, Policy{})
	alert := alertFor("uplink status changed", "C1", "Lobby Cam")
	assertNoError(t, f.sm.HandleAlert(context.Background(), alert))
}
