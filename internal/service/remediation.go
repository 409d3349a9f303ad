package service

import (
	"context"
	"log"
	"strings"
	"time"

	"topowatch/internal/domain"
)

// Remediator runs the camera remediation workflow: a delayed re-check,
// upstream port discovery, a port cycle, and a final re-check with port
// diagnostics. It never returns an error; collaborator failures are captured
// into the outcome record.
type Remediator struct {
	directory Directory
	delay     time.Duration
	bus       *EventBus
}

// NewRemediator creates a remediator. A zero delay skips both waits, which
// tests rely on.
func NewRemediator(directory Directory, delay time.Duration, bus *EventBus) *Remediator {
	return &Remediator{directory: directory, delay: delay, bus: bus}
}

// Run executes the workflow for one camera. switchSerial is the expected
// upstream switch recorded in the topology. The workflow is not cancellable
// once dispatched; ctx only cuts the waits short on process shutdown.
func (r *Remediator) Run(ctx context.Context, orgID, serial, name, switchSerial string) *domain.RemediationOutcome {
	outcome := &domain.RemediationOutcome{
		DeviceSerial: serial,
		DeviceName:   name,
		FinalStatus:  domain.StatusDown,
		SwitchSerial: switchSerial,
	}

	r.bus.Publish(Event{Type: EventRemediationStarted, Payload: map[string]string{"serial": serial}})
	defer func() {
		r.bus.Publish(Event{Type: EventRemediationFinished, Payload: map[string]string{
			"serial": serial,
			"status": string(outcome.FinalStatus),
			"port":   outcome.SwitchPort,
		}})
	}()

	// Give a transient flap time to settle before touching anything.
	r.wait(ctx)

	log.Printf("remediation: checking camera %s status", serial)
	live, err := r.directory.DeviceStatus(ctx, orgID, serial)
	if err != nil {
		outcome.APIError = err.Error()
		return outcome
	}
	if domain.StatusFromLive(live.Status) == domain.StatusUp {
		log.Printf("remediation: camera %s is back online", serial)
		outcome.FinalStatus = domain.StatusUp
		return outcome
	}

	if switchSerial == "" {
		log.Printf("remediation: camera %s has no known upstream switch", serial)
		return outcome
	}

	log.Printf("remediation: camera %s still offline, locating switch port on %s", serial, switchSerial)
	port, apiErr := r.findSwitchPort(ctx, switchSerial, live.MAC)
	if port == "" {
		if apiErr != "" {
			log.Printf("remediation: no switch port for %s, API error: %s", serial, apiErr)
		} else {
			log.Printf("remediation: no switch port found for %s", serial)
		}
		outcome.APIError = apiErr
		return outcome
	}
	outcome.SwitchPort = port

	log.Printf("remediation: cycling port %s on switch %s", port, switchSerial)
	if err := r.directory.CycleSwitchPorts(ctx, switchSerial, []string{port}); err != nil {
		log.Printf("remediation: cycle failed for %s: %v", serial, err)
		outcome.APIError = err.Error()
		return outcome
	}

	r.wait(ctx)

	live, err = r.directory.DeviceStatus(ctx, orgID, serial)
	if err != nil {
		outcome.APIError = err.Error()
	} else {
		outcome.FinalStatus = domain.StatusFromLive(live.Status)
	}

	outcome.PortErrors, outcome.PortWarnings = r.portDiagnostics(ctx, switchSerial, port)
	return outcome
}

// findSwitchPort matches the camera's MAC against the switch's neighbor
// discovery records: LLDP chassis IDs first, then CDP device IDs, which
// report the MAC with the colons stripped.
func (r *Remediator) findSwitchPort(ctx context.Context, switchSerial, cameraMAC string) (string, string) {
	ports, err := r.directory.SwitchPortStatuses(ctx, switchSerial)
	if err != nil {
		return "", err.Error()
	}

	stripped := strings.ReplaceAll(cameraMAC, ":", "")
	for _, port := range ports {
		if port.LLDP != nil && port.LLDP.ChassisID == cameraMAC {
			return port.PortID, ""
		}
		if port.CDP != nil && port.CDP.DeviceID == stripped {
			return port.PortID, ""
		}
	}
	return "", ""
}

func (r *Remediator) portDiagnostics(ctx context.Context, switchSerial, portID string) ([]string, []string) {
	ports, err := r.directory.SwitchPortStatuses(ctx, switchSerial)
	if err != nil {
		log.Printf("remediation: port diagnostics for %s/%s: %v", switchSerial, portID, err)
		return nil, nil
	}
	for _, port := range ports {
		if port.PortID == portID {
			return port.Errors, port.Warnings
		}
	}
	return nil, nil
}

func (r *Remediator) wait(ctx context.Context) {
	if r.delay <= 0 {
		return
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}
}
