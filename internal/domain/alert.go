package domain

import "time"

// AlertType identifies an inbound connectivity-change event. The values are
// the literal alert type strings delivered by the dashboard webhook.
type AlertType string

const (
	AlertCameraDown      AlertType = "cameras went down"
	AlertCameraUp        AlertType = "cameras came up"
	AlertSwitchDown      AlertType = "switches went down"
	AlertSwitchUp        AlertType = "switches came up"
	AlertRouterDown      AlertType = "appliances went down"
	AlertRouterUp        AlertType = "appliances came up"
	AlertCameraHWFailure AlertType = "Camera may have critical hardware failure"
)

// Alert is the structured event handed to the state machine by the webhook
// transport.
type Alert struct {
	ID             string    `json:"alertId"`
	Type           AlertType `json:"alertType"`
	SharedSecret   string    `json:"sharedSecret"`
	OrganizationID string    `json:"organizationId"`
	NetworkID      string    `json:"networkId"`
	NetworkName    string    `json:"networkName"`
	DeviceSerial   string    `json:"deviceSerial"`
	DeviceName     string    `json:"deviceName"`
	DeviceModel    string    `json:"deviceModel,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Role returns the device role an alert type refers to.
func (t AlertType) Role() Role {
	switch t {
	case AlertCameraDown, AlertCameraUp, AlertCameraHWFailure:
		return RoleCamera
	case AlertSwitchDown, AlertSwitchUp:
		return RoleSwitch
	case AlertRouterDown, AlertRouterUp:
		return RoleRouter
	}
	return RoleUnknown
}

// IsDown reports whether the alert signals a device going down.
func (t AlertType) IsDown() bool {
	return t == AlertCameraDown || t == AlertSwitchDown || t == AlertRouterDown
}

// IsUp reports whether the alert signals a device coming back up.
func (t AlertType) IsUp() bool {
	return t == AlertCameraUp || t == AlertSwitchUp || t == AlertRouterUp
}

// Known reports whether the alert type is one the state machine handles.
// Unrecognized types are dropped without an incident.
func (t AlertType) Known() bool {
	return t.IsDown() || t.IsUp() || t == AlertCameraHWFailure
}
