package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"topowatch/internal/domain"
	"topowatch/internal/repository"
	"topowatch/internal/scheduler"
	"topowatch/internal/tasks"
)

// Policy holds the ticket-handling switches of the state machine.
type Policy struct {
	// SuppressDuplicateTickets skips incident handling for a camera that
	// already has an open ticket.
	SuppressDuplicateTickets bool
	// TicketCleanupEnabled schedules a deferred resolve of the external
	// ticket after a device comes back up.
	TicketCleanupEnabled bool
	TicketCleanupDelay   time.Duration
}

// StateMachine consumes connectivity-change alerts, mutates device status,
// and decides whether remediation or incident creation is warranted. The
// synchronous path only touches the store; everything that waits on the
// network runs as a chain on the task runner, keyed by device serial so at
// most one chain per device is in flight.
type StateMachine struct {
	store     repository.Store
	openStore func() (repository.Store, error)

	runner     *tasks.Runner
	sched      *scheduler.Scheduler
	remediator *Remediator
	impact     *Impact
	reporter   *Reporter
	builder    *Builder
	bus        *EventBus
	policy     Policy
}

// NewStateMachine wires the state machine to its collaborators. store is the
// synchronous-path connection; openStore hands each async chain its own.
func NewStateMachine(store repository.Store, openStore func() (repository.Store, error), runner *tasks.Runner, sched *scheduler.Scheduler, remediator *Remediator, impact *Impact, reporter *Reporter, builder *Builder, bus *EventBus, policy Policy) *StateMachine {
	return &StateMachine{
		store:      store,
		openStore:  openStore,
		runner:     runner,
		sched:      sched,
		remediator: remediator,
		impact:     impact,
		reporter:   reporter,
		builder:    builder,
		bus:        bus,
		policy:     policy,
	}
}

// HandleAlert processes one inbound alert. It returns quickly; store errors
// are the only faults it propagates.
func (m *StateMachine) HandleAlert(ctx context.Context, alert domain.Alert) error {
	switch {
	case !alert.Type.Known():
		log.Printf("statemachine: dropping unrecognized alert type %q", alert.Type)
		return nil
	case alert.Type == domain.AlertCameraHWFailure:
		return m.handleHardwareFailure(ctx, alert)
	case alert.Type.IsDown():
		return m.handleDown(ctx, alert)
	default:
		return m.handleUp(ctx, alert)
	}
}

// handleDown applies the down transition. Repeated down events while the
// device is already down are no-ops, and a down upstream suppresses the
// incident because the upstream's own incident covers this device.
func (m *StateMachine) handleDown(ctx context.Context, alert domain.Alert) error {
	dev, err := m.store.GetDevice(ctx, alert.DeviceSerial)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", alert.DeviceSerial, err)
	}
	if dev == nil {
		log.Printf("statemachine: down event for unknown device %s, ignoring", alert.DeviceSerial)
		return nil
	}
	if dev.Status != domain.StatusUp {
		log.Printf("statemachine: %s already down, no-op", alert.DeviceSerial)
		return nil
	}

	if err := m.store.SetStatus(ctx, alert.DeviceSerial, domain.StatusDown); err != nil {
		return fmt.Errorf("mark %s down: %w", alert.DeviceSerial, err)
	}
	m.bus.Publish(Event{Type: EventDeviceDown, Payload: map[string]string{"serial": alert.DeviceSerial}})

	warranted, err := m.incidentWarranted(ctx, dev)
	if err != nil {
		return err
	}
	if !warranted {
		log.Printf("statemachine: upstream of %s already down, suppressing incident", alert.DeviceSerial)
		return nil
	}

	if dev.Role == domain.RoleCamera {
		suppress, err := m.duplicateTicket(ctx, alert.DeviceSerial)
		if err != nil {
			return err
		}
		if suppress {
			return nil
		}
		m.dispatchRemediation(alert, dev.UpstreamSerial)
		return nil
	}

	m.dispatchImpact(alert, dev.Role)
	return nil
}

// incidentWarranted checks the device one tier up. Routers always warrant an
// incident; a missing or dangling upstream pointer counts as "not down".
func (m *StateMachine) incidentWarranted(ctx context.Context, dev *domain.Device) (bool, error) {
	if dev.Role == domain.RoleRouter || dev.UpstreamSerial == "" {
		return true, nil
	}
	upstream, err := m.store.GetDevice(ctx, dev.UpstreamSerial)
	if err != nil {
		return false, fmt.Errorf("lookup upstream %s: %w", dev.UpstreamSerial, err)
	}
	if upstream == nil {
		return true, nil
	}
	return upstream.Status == domain.StatusUp, nil
}

// handleHardwareFailure always dispatches remediation for a known camera,
// regardless of its recorded status.
func (m *StateMachine) handleHardwareFailure(ctx context.Context, alert domain.Alert) error {
	dev, err := m.store.GetDevice(ctx, alert.DeviceSerial)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", alert.DeviceSerial, err)
	}
	if dev == nil {
		log.Printf("statemachine: hardware failure for unknown device %s, ignoring", alert.DeviceSerial)
		return nil
	}

	suppress, err := m.duplicateTicket(ctx, alert.DeviceSerial)
	if err != nil {
		return err
	}
	if suppress {
		return nil
	}
	m.dispatchRemediation(alert, dev.UpstreamSerial)
	return nil
}

// handleUp applies the up transition. An unknown serial means a new device:
// that triggers a single-network topology rebuild instead of a status change.
func (m *StateMachine) handleUp(ctx context.Context, alert domain.Alert) error {
	dev, err := m.store.GetDevice(ctx, alert.DeviceSerial)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", alert.DeviceSerial, err)
	}
	if dev == nil {
		log.Printf("statemachine: up event for unknown device %s, rebuilding network %s", alert.DeviceSerial, alert.NetworkID)
		m.bus.Publish(Event{Type: EventDeviceDiscovered, Payload: map[string]string{"serial": alert.DeviceSerial}})
		m.dispatchRebuild(alert)
		return nil
	}

	if err := m.store.SetStatus(ctx, alert.DeviceSerial, domain.StatusUp); err != nil {
		return fmt.Errorf("mark %s up: %w", alert.DeviceSerial, err)
	}
	m.bus.Publish(Event{Type: EventDeviceUp, Payload: map[string]string{"serial": alert.DeviceSerial}})

	ticketID, err := m.store.GetOpenTicket(ctx, alert.DeviceSerial)
	if err != nil {
		return fmt.Errorf("open ticket for %s: %w", alert.DeviceSerial, err)
	}
	if ticketID == "" {
		return nil
	}
	if err := m.store.DeleteOpenTicket(ctx, alert.DeviceSerial); err != nil {
		return fmt.Errorf("drop ticket ref for %s: %w", alert.DeviceSerial, err)
	}

	if m.policy.TicketCleanupEnabled {
		delay := m.policy.TicketCleanupDelay
		orgID, serial := alert.OrganizationID, alert.DeviceSerial
		m.sched.After(delay, "ticket-cleanup-"+serial, func(ctx context.Context) {
			m.reporter.Cleanup(ctx, orgID, serial, ticketID, delay)
		})
	}
	return nil
}

func (m *StateMachine) duplicateTicket(ctx context.Context, serial string) (bool, error) {
	if !m.policy.SuppressDuplicateTickets {
		return false, nil
	}
	ticketID, err := m.store.GetOpenTicket(ctx, serial)
	if err != nil {
		return false, fmt.Errorf("open ticket for %s: %w", serial, err)
	}
	if ticketID != "" {
		log.Printf("statemachine: existing ticket %s for %s, suppressing", ticketID, serial)
		return true, nil
	}
	return false, nil
}

// dispatchRemediation queues the remediation → report chain for a camera.
func (m *StateMachine) dispatchRemediation(alert domain.Alert, switchSerial string) {
	submitted := m.runner.Submit(alert.DeviceSerial, func(ctx context.Context) {
		store, err := m.openStore()
		if err != nil {
			log.Printf("statemachine: store for remediation chain %s: %v", alert.DeviceSerial, err)
			return
		}
		defer store.Close()

		outcome := m.remediator.Run(ctx, alert.OrganizationID, alert.DeviceSerial, alert.DeviceName, switchSerial)
		if err := m.reporter.Report(ctx, store, alert, outcome, nil); err != nil {
			log.Printf("statemachine: report for %s: %v", alert.DeviceSerial, err)
		}
	})
	if !submitted {
		log.Printf("statemachine: remediation for %s already in flight", alert.DeviceSerial)
	}
}

// dispatchImpact queues the impact → report chain for a router or switch.
func (m *StateMachine) dispatchImpact(alert domain.Alert, role domain.Role) {
	submitted := m.runner.Submit(alert.DeviceSerial, func(ctx context.Context) {
		store, err := m.openStore()
		if err != nil {
			log.Printf("statemachine: store for impact chain %s: %v", alert.DeviceSerial, err)
			return
		}
		defer store.Close()

		impacted, err := m.impact.Resolve(ctx, store, alert.DeviceSerial, role)
		if err != nil {
			log.Printf("statemachine: impact for %s: %v", alert.DeviceSerial, err)
		}
		if err := m.reporter.Report(ctx, store, alert, nil, impacted); err != nil {
			log.Printf("statemachine: report for %s: %v", alert.DeviceSerial, err)
		}
	})
	if !submitted {
		log.Printf("statemachine: incident chain for %s already in flight", alert.DeviceSerial)
	}
}

func (m *StateMachine) dispatchRebuild(alert domain.Alert) {
	submitted := m.runner.Submit("rebuild-"+alert.NetworkID, func(ctx context.Context) {
		if err := m.builder.BuildNetwork(ctx, alert.OrganizationID, alert.NetworkID, alert.NetworkName); err != nil {
			log.Printf("statemachine: rebuild of %s: %v", alert.NetworkID, err)
		}
	})
	if !submitted {
		log.Printf("statemachine: rebuild of %s already in flight", alert.NetworkID)
	}
}
