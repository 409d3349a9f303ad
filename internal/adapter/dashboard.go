package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Dashboard is the device directory client. It speaks the vendor dashboard
// API: organization and network enumeration, device inventory and live
// statuses, link-layer topology, and switch port inspection/control.
type Dashboard struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDashboard creates a dashboard client. timeout bounds every request;
// there is no retry layer here.
func NewDashboard(baseURL, apiKey string, timeout time.Duration) *Dashboard {
	return &Dashboard{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Organization is a dashboard organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Network is a network scope within an organization.
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeviceInfo is an inventory entry.
type DeviceInfo struct {
	Serial    string `json:"serial"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	MAC       string `json:"mac"`
	NetworkID string `json:"networkId"`
}

// DeviceStatus is a live status entry. Status is the raw dashboard value
// (online, alerting, offline, dormant).
type DeviceStatus struct {
	Serial string `json:"serial"`
	Status string `json:"status"`
	MAC    string `json:"mac"`
}

// Topology is the link-layer topology of one network scope.
type Topology struct {
	Nodes []TopologyNode `json:"nodes"`
	Links []TopologyLink `json:"links"`
}

// TopologyNode describes one node of the link-layer graph. Discovered nodes
// carry a derived ID and, when the vendor heard it on the wire, a MAC.
type TopologyNode struct {
	DerivedID string `json:"derivedId"`
	MAC       string `json:"mac,omitempty"`
}

// TopologyLink is a physical link with exactly two ends.
type TopologyLink struct {
	Ends []LinkEnd `json:"ends"`
}

// LinkEnd is one end of a link: either a device defined in this scope or a
// "discovered" remote node defined elsewhere.
type LinkEnd struct {
	Node struct {
		Type      string `json:"type"` // "device" or "discovered"
		DerivedID string `json:"derivedId"`
	} `json:"node"`
	Device struct {
		Serial string `json:"serial"`
	} `json:"device"`
}

// PortStatus is the status of one switch port including neighbor-discovery
// records and accumulated diagnostics.
type PortStatus struct {
	PortID   string   `json:"portId"`
	Enabled  bool     `json:"enabled"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	LLDP     *struct {
		ChassisID string `json:"chassisId"`
	} `json:"lldp,omitempty"`
	CDP *struct {
		DeviceID string `json:"deviceId"`
	} `json:"cdp,omitempty"`
}

// Organizations lists all organizations visible to the API key.
func (d *Dashboard) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := d.get(ctx, "/organizations", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// Networks lists the networks of an organization.
func (d *Dashboard) Networks(ctx context.Context, orgID string) ([]Network, error) {
	var networks []Network
	if err := d.get(ctx, "/organizations/"+orgID+"/networks", nil, &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// Devices lists the full device inventory of an organization.
func (d *Dashboard) Devices(ctx context.Context, orgID string) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	if err := d.get(ctx, "/organizations/"+orgID+"/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// DeviceByMAC resolves a MAC address to an inventory entry. Returns nil, nil
// when the inventory has no matching device.
func (d *Dashboard) DeviceByMAC(ctx context.Context, orgID, mac string) (*DeviceInfo, error) {
	var devices []DeviceInfo
	query := url.Values{"mac": {mac}}
	if err := d.get(ctx, "/organizations/"+orgID+"/devices", query, &devices); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, nil
	}
	return &devices[0], nil
}

// Device looks up one device's inventory detail by serial.
func (d *Dashboard) Device(ctx context.Context, serial string) (*DeviceInfo, error) {
	var device DeviceInfo
	if err := d.get(ctx, "/devices/"+serial, nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// DeviceStatuses lists the live status of every device in an organization.
func (d *Dashboard) DeviceStatuses(ctx context.Context, orgID string) ([]DeviceStatus, error) {
	var statuses []DeviceStatus
	if err := d.get(ctx, "/organizations/"+orgID+"/devices/statuses", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// DeviceStatus fetches the live status of a single device.
func (d *Dashboard) DeviceStatus(ctx context.Context, orgID, serial string) (*DeviceStatus, error) {
	var statuses []DeviceStatus
	query := url.Values{"serials[]": {serial}}
	if err := d.get(ctx, "/organizations/"+orgID+"/devices/statuses", query, &statuses); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("no status reported for %s", serial)
	}
	return &statuses[0], nil
}

// LinkLayerTopology fetches the physical topology of one network scope.
func (d *Dashboard) LinkLayerTopology(ctx context.Context, networkID string) (*Topology, error) {
	var topology Topology
	if err := d.get(ctx, "/networks/"+networkID+"/topology/linkLayer", nil, &topology); err != nil {
		return nil, err
	}
	return &topology, nil
}

// SwitchPortStatuses fetches the port statuses of a switch, including
// LLDP/CDP neighbor records.
func (d *Dashboard) SwitchPortStatuses(ctx context.Context, serial string) ([]PortStatus, error) {
	var ports []PortStatus
	if err := d.get(ctx, "/devices/"+serial+"/switch/ports/statuses", nil, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

// CycleSwitchPorts power-cycles the named ports on a switch.
func (d *Dashboard) CycleSwitchPorts(ctx context.Context, serial string, ports []string) error {
	body := map[string][]string{"ports": ports}
	return d.post(ctx, "/devices/"+serial+"/switch/ports/cycle", body, nil)
}

func (d *Dashboard) get(ctx context.Context, path string, query url.Values, out any) error {
	u := d.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return d.do(req, out)
}

func (d *Dashboard) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req, out)
}

func (d *Dashboard) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dashboard %s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", req.URL.Path, err)
	}
	return nil
}
