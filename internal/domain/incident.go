package domain

import (
	"strings"
	"time"
)

// IncidentRecord is one logical row of the period-scoped incident ledger.
// All fields except Timestamp and Occurrences are descriptive and together
// form the deduplication key: a repeat observation with the same key merges
// into the existing row instead of appending a new one.
type IncidentRecord struct {
	Timestamp       time.Time
	AlertType       AlertType
	Network         string
	DeviceType      string
	DeviceName      string
	DeviceSerial    string
	ImpactedNames   []string
	ImpactedSerials []string
	UpstreamSerial  string
	UpstreamName    string
	UpstreamPort    string
	APIError        string
	PortErrors      []string
	PortWarnings    []string
	Occurrences     int
}

// keySep separates key fields; unit separator keeps field values from
// colliding with the join character.
const keySep = "\x1f"

// Key returns the deduplication key: every descriptive field, excluding
// Timestamp and Occurrences.
func (r *IncidentRecord) Key() string {
	parts := []string{
		string(r.AlertType),
		r.Network,
		r.DeviceType,
		r.DeviceName,
		r.DeviceSerial,
		strings.Join(r.ImpactedNames, ","),
		strings.Join(r.ImpactedSerials, ","),
		r.UpstreamSerial,
		r.UpstreamName,
		r.UpstreamPort,
		r.APIError,
		strings.Join(r.PortErrors, ","),
		strings.Join(r.PortWarnings, ","),
	}
	return strings.Join(parts, keySep)
}
