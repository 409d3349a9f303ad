package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"topowatch/internal/adapter"
	"topowatch/internal/domain"
	"topowatch/internal/repository"
)

// Reporter turns an alert plus its remediation outcome or impact set into an
// incident: a ledger row and, when ticketing is enabled, an external ticket
// tracked against the device.
type Reporter struct {
	ledger    *Ledger
	tickets   Ticketer // nil disables ticketing
	directory Directory
	bus       *EventBus
}

// NewReporter creates a reporter. Pass a nil Ticketer to disable the
// external ticketing integration.
func NewReporter(ledger *Ledger, tickets Ticketer, directory Directory, bus *EventBus) *Reporter {
	return &Reporter{ledger: ledger, tickets: tickets, directory: directory, bus: bus}
}

// Report records the incident for alert. outcome is non-nil for camera
// alerts, impacted is non-nil for router/switch alerts. Ticketing failures
// never block the ledger write.
func (r *Reporter) Report(ctx context.Context, store repository.Store, alert domain.Alert, outcome *domain.RemediationOutcome, impacted []domain.ImpactedDevice) error {
	rec := r.buildRecord(ctx, store, alert, outcome, impacted)
	if rec == nil {
		log.Printf("reporter: no incident for %s on %s", alert.Type, alert.DeviceSerial)
		return nil
	}

	if err := r.ledger.Record(rec); err != nil {
		return fmt.Errorf("ledger write for %s: %w", alert.DeviceSerial, err)
	}
	r.bus.Publish(Event{Type: EventIncidentRecorded, Payload: map[string]string{
		"serial": alert.DeviceSerial,
		"alert":  string(alert.Type),
	}})

	if r.tickets != nil {
		r.openTicket(ctx, store, alert, rec)
	}
	return nil
}

// buildRecord assembles the ledger row. It returns nil when no incident is
// warranted: a camera that recovered during remediation needs no row unless
// the alert was a hardware failure.
func (r *Reporter) buildRecord(ctx context.Context, store repository.Store, alert domain.Alert, outcome *domain.RemediationOutcome, impacted []domain.ImpactedDevice) *domain.IncidentRecord {
	rec := &domain.IncidentRecord{
		Timestamp:    alert.OccurredAt.UTC(),
		AlertType:    alert.Type,
		Network:      alert.NetworkName,
		DeviceName:   alert.DeviceName,
		DeviceSerial: alert.DeviceSerial,
	}

	switch {
	case alert.Type == domain.AlertCameraDown || alert.Type == domain.AlertCameraHWFailure:
		if alert.Type == domain.AlertCameraDown && outcome.FinalStatus == domain.StatusUp {
			return nil
		}
		rec.DeviceType = domain.RoleCamera.DisplayType()
		rec.UpstreamSerial = "N/A"
		rec.UpstreamName = "N/A"
		if outcome.SwitchSerial != "" {
			rec.UpstreamSerial = outcome.SwitchSerial
			rec.UpstreamName = r.deviceName(ctx, store, outcome.SwitchSerial)
		}
		rec.UpstreamPort = outcome.SwitchPort
		if rec.UpstreamPort == "" {
			rec.UpstreamPort = "Not found"
		}
		rec.APIError = outcome.APIError
		rec.PortErrors = outcome.PortErrors
		rec.PortWarnings = outcome.PortWarnings

	case alert.Type == domain.AlertRouterDown || alert.Type == domain.AlertSwitchDown:
		rec.DeviceType = alert.Type.Role().DisplayType()
		for _, dev := range impacted {
			rec.ImpactedNames = append(rec.ImpactedNames, dev.Name)
			rec.ImpactedSerials = append(rec.ImpactedSerials, dev.Serial)
		}
		rec.UpstreamSerial = "N/A"
		rec.UpstreamName = "N/A"
		rec.UpstreamPort = "N/A"

	default:
		return nil
	}

	return rec
}

func (r *Reporter) deviceName(ctx context.Context, store repository.Store, serial string) string {
	info, err := r.directory.Device(ctx, serial)
	if err == nil && info.Name != "" {
		return info.Name
	}
	if err != nil {
		log.Printf("reporter: name lookup for %s: %v", serial, err)
	}
	if dev, err := store.GetDevice(ctx, serial); err == nil && dev != nil && dev.Name != "" {
		return dev.Name
	}
	return "N/A"
}

func (r *Reporter) openTicket(ctx context.Context, store repository.Store, alert domain.Alert, rec *domain.IncidentRecord) {
	caller, err := r.tickets.CallerName(ctx)
	if err != nil {
		log.Printf("reporter: caller lookup: %v", err)
	}

	impact, urgency := severity(alert.Type)
	incident := adapter.Incident{
		CallerID:         caller,
		Impact:           impact,
		Urgency:          urgency,
		Category:         "Network",
		ShortDescription: string(alert.Type) + " (Alert ID: " + alert.ID + ")",
		Description:      describeRecord(rec),
		CorrelationID:    uuid.NewString(),
	}

	result, err := r.tickets.CreateIncident(ctx, incident)
	if err != nil {
		log.Printf("reporter: ticket creation for %s: %v", alert.DeviceSerial, err)
		return
	}
	log.Printf("reporter: opened ticket %s for %s", result.Number, alert.DeviceSerial)

	if err := store.PutOpenTicket(ctx, alert.DeviceSerial, result.SysID); err != nil {
		log.Printf("reporter: tracking ticket %s: %v", result.SysID, err)
	}
	r.bus.Publish(Event{Type: EventTicketOpened, Payload: map[string]string{
		"serial": alert.DeviceSerial,
		"number": result.Number,
	}})
}

// severity maps an alert type to ticket impact/urgency levels.
func severity(t domain.AlertType) (impact, urgency string) {
	switch t {
	case domain.AlertCameraDown:
		return "2", "3"
	case domain.AlertSwitchDown:
		return "2", "2"
	case domain.AlertRouterDown:
		return "2", "1"
	case domain.AlertCameraHWFailure:
		return "2", "1"
	}
	return "3", "3"
}

// describeRecord renders the ledger row as the ticket description body.
func describeRecord(rec *domain.IncidentRecord) string {
	body := struct {
		Timestamp       string   `json:"Timestamp"`
		AlertType       string   `json:"Alert Type"`
		Network         string   `json:"Network"`
		DeviceType      string   `json:"Affected Device Type"`
		DeviceName      string   `json:"Affected Device Name"`
		DeviceSerial    string   `json:"Affected Device Serial"`
		ImpactedNames   []string `json:"Impacted Camera Name(s),omitempty"`
		ImpactedSerials []string `json:"Impacted Camera Serial(s),omitempty"`
		UpstreamSerial  string   `json:"Upstream Switch Serial"`
		UpstreamName    string   `json:"Upstream Switch Name"`
		UpstreamPort    string   `json:"Upstream Switch Port"`
		APIError        string   `json:"API Error,omitempty"`
		PortErrors      []string `json:"Switch Port Errors,omitempty"`
		PortWarnings    []string `json:"Switch Port Warnings,omitempty"`
	}{
		Timestamp:       rec.Timestamp.Format(timestampLayout),
		AlertType:       string(rec.AlertType),
		Network:         rec.Network,
		DeviceType:      rec.DeviceType,
		DeviceName:      rec.DeviceName,
		DeviceSerial:    rec.DeviceSerial,
		ImpactedNames:   rec.ImpactedNames,
		ImpactedSerials: rec.ImpactedSerials,
		UpstreamSerial:  rec.UpstreamSerial,
		UpstreamName:    rec.UpstreamName,
		UpstreamPort:    rec.UpstreamPort,
		APIError:        rec.APIError,
		PortErrors:      rec.PortErrors,
		PortWarnings:    rec.PortWarnings,
	}

	detail, err := json.MarshalIndent(body, "", "    ")
	if err != nil {
		return "The full incident record could not be rendered."
	}
	return "The full incident record is:\n" + string(detail)
}

// Cleanup resolves the external ticket for a device that has stayed up since
// its recovery. It re-checks live status first so a device that flapped back
// down keeps its ticket, and skips tickets that were already closed or
// deleted. Safe to run more than once.
func (r *Reporter) Cleanup(ctx context.Context, orgID, serial, ticketID string, upFor time.Duration) {
	if r.tickets == nil {
		return
	}

	live, err := r.directory.DeviceStatus(ctx, orgID, serial)
	if err != nil {
		log.Printf("cleanup: status check for %s: %v", serial, err)
		return
	}
	if domain.StatusFromLive(live.Status) != domain.StatusUp {
		log.Printf("cleanup: %s is down again, keeping ticket %s", serial, ticketID)
		return
	}

	ticket, err := r.tickets.GetIncident(ctx, ticketID)
	if err != nil {
		log.Printf("cleanup: ticket lookup %s: %v", ticketID, err)
		return
	}
	if ticket == nil || ticket.State == adapter.StateClosed {
		log.Printf("cleanup: ticket %s gone or already closed, skipping", ticketID)
		return
	}

	comment := fmt.Sprintf("This ticket has been automatically marked resolved: the underlying device has been online for %s.", upFor)
	if err := r.tickets.ResolveIncident(ctx, ticketID, comment); err != nil {
		log.Printf("cleanup: resolving ticket %s: %v", ticketID, err)
		return
	}
	log.Printf("cleanup: resolved ticket %s for %s", ticketID, serial)
	r.bus.Publish(Event{Type: EventTicketResolved, Payload: map[string]string{
		"serial": serial,
		"ticket": ticketID,
	}})
}
