package domain

import "strings"

// Role represents the tier a device occupies in the topology forest.
type Role string

const (
	RoleRouter  Role = "router"
	RoleSwitch  Role = "switch"
	RoleCamera  Role = "camera"
	RoleUnknown Role = "unknown"
)

// Status is the recorded connectivity status of a device.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Device represents a monitored network device.
type Device struct {
	Serial      string `json:"serial"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	MAC         string `json:"mac,omitempty"`
	Role        Role   `json:"role"`
	Status      Status `json:"status"`
	// UpstreamSerial points at the device one tier above; empty for routers
	// and for devices whose attachment is not yet known. The pointer may
	// dangle after a stale-device sweep; readers treat that as no upstream.
	UpstreamSerial string `json:"upstream_serial,omitempty"`
	NetworkID      string `json:"network_id,omitempty"`
	NetworkName    string `json:"network_name,omitempty"`
}

// Tier returns the depth of a role in the forest (1 = root). Unknown roles
// have no tier and return 0.
func (r Role) Tier() int {
	switch r {
	case RoleRouter:
		return 1
	case RoleSwitch:
		return 2
	case RoleCamera:
		return 3
	}
	return 0
}

// DisplayType returns the human-readable device type used in incident rows.
func (r Role) DisplayType() string {
	switch r {
	case RoleRouter:
		return "Router"
	case RoleSwitch:
		return "Switch"
	case RoleCamera:
		return "Camera"
	}
	return "Unknown"
}

// ClassifyModel maps a vendor model identifier to a role. The three markers
// are mutually exclusive in the vendor's model naming; anything else is
// RoleUnknown and excluded from graph edges.
func ClassifyModel(model string) Role {
	switch {
	case strings.Contains(model, "MX"):
		return RoleRouter
	case strings.Contains(model, "MS"):
		return RoleSwitch
	case strings.Contains(model, "MV"):
		return RoleCamera
	}
	return RoleUnknown
}

// StatusFromLive maps a live dashboard status to the recorded up/down status.
// A device that is online, or alerting but still reachable, counts as up.
func StatusFromLive(live string) Status {
	if live == "online" || live == "alerting" {
		return StatusUp
	}
	return StatusDown
}

// OrderLink orders the two ends of a physical link by tier. It returns the
// upper- and lower-tier device and true only when the roles form an adjacent
// pair (router-switch or switch-camera); every other pairing is not a valid
// topology edge.
func OrderLink(a, b *Device) (upper, lower *Device, ok bool) {
	ta, tb := a.Role.Tier(), b.Role.Tier()
	if ta == 0 || tb == 0 {
		return nil, nil, false
	}
	if ta > tb {
		a, b = b, a
		ta, tb = tb, ta
	}
	if tb-ta != 1 {
		return nil, nil, false
	}
	return a, b, true
}

// ImpactedDevice is a (serial, display name) pair returned by the impact
// resolver.
type ImpactedDevice struct {
	Serial string `json:"serial"`
	Name   string `json:"name"`
}
