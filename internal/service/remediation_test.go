package service

import (
	"context"
	"testing"

	"topowatch/internal/adapter"
	"topowatch/internal/domain"
)

func lldpPort(portID, chassisID string) adapter.PortStatus {
	return adapter.PortStatus{
		PortID:  portID,
		Enabled: true,
		LLDP: &struct {
			ChassisID string `json:"chassisId"`
		}{ChassisID: chassisID},
	}
}

func cdpPort(portID, deviceID string) adapter.PortStatus {
	return adapter.PortStatus{
		PortID:  portID,
		Enabled: true,
		CDP: &struct {
			DeviceID string `json:"deviceId"`
		}{DeviceID: deviceID},
	}
}

func TestRemediatorCameraRecoversOnFirstRecheck(t *testing.T) {
	dir := newFakeDirectory()
	dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "CAM1", Name: "Lobby", Model: "MV12", MAC: "aa:bb:cc:00:00:01"},
	}
	dir.setLive("CAM1", "online")

	r := NewRemediator(dir, 0, NewEventBus())
	outcome := r.Run(context.Background(), "org1", "CAM1", "Lobby", "SW1")

	if outcome.FinalStatus != domain.StatusUp {
		t.Errorf("expected final status up, got %s", outcome.FinalStatus)
	}
	if outcome.SwitchPort != "" {
		t.Errorf("expected no switch port, got %q", outcome.SwitchPort)
	}
	if dir.cycleCount() != 0 {
		t.Error("expected no port cycle for a recovered camera")
	}
}

func TestRemediatorCyclesPortOnLLDPMatch(t *testing.T) {
	dir := newFakeDirectory()
	dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "CAM1", Name: "Lobby", Model: "MV12", MAC: "aa:bb:cc:00:00:01"},
	}
	dir.setLive("CAM1", "offline")
	dir.ports["SW1"] = []adapter.PortStatus{
		lldpPort("3", "ff:ff:ff:00:00:99"),
		lldpPort("7", "aa:bb:cc:00:00:01"),
	}
	dir.ports["SW1"][1].Errors = []string{"PoE overload"}
	dir.ports["SW1"][1].Warnings = []string{"High collisions"}

	r := NewRemediator(dir, 0, NewEventBus())
	outcome := r.Run(context.Background(), "org1", "CAM1", "Lobby", "SW1")

	if outcome.SwitchPort != "7" {
		t.Fatalf("expected port 7, got %q", outcome.SwitchPort)
	}
	if dir.cycleCount() != 1 {
		t.Fatalf("expected one cycle call, got %d", dir.cycleCount())
	}
	if outcome.FinalStatus != domain.StatusDown {
		t.Errorf("expected final status down, got %s", outcome.FinalStatus)
	}
	if len(outcome.PortErrors) != 1 || outcome.PortErrors[0] != "PoE overload" {
		t.Errorf("expected port errors collected, got %v", outcome.PortErrors)
	}
	if len(outcome.PortWarnings) != 1 {
		t.Errorf("expected port warnings collected, got %v", outcome.PortWarnings)
	}
}

func TestRemediatorMatchesCDPWithStrippedMAC(t *testing.T) {
	dir := newFakeDirectory()
	dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "CAM1", Name: "Lobby", Model: "MV12", MAC: "aa:bb:cc:00:00:01"},
	}
	dir.setLive("CAM1", "offline")
	dir.ports["SW1"] = []adapter.PortStatus{
		cdpPort("12", "aabbcc000001"),
	}

	r := NewRemediator(dir, 0, NewEventBus())
	outcome := r.Run(context.Background(), "org1", "CAM1", "Lobby", "SW1")

	if outcome.SwitchPort != "12" {
		t.Errorf("expected CDP match on port 12, got %q", outcome.SwitchPort)
	}
}

func TestRemediatorNoPortMatch(t *testing.T) {
	dir := newFakeDirectory()
	dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "CAM1", Name: "Lobby", Model: "MV12", MAC: "aa:bb:cc:00:00:01"},
	}
	dir.setLive("CAM1", "offline")
	dir.ports["SW1"] = []adapter.PortStatus{
		lldpPort("3", "ff:ff:ff:00:00:99"),
	}

	r := NewRemediator(dir, 0, NewEventBus())
	outcome := r.Run(context.Background(), "org1", "CAM1", "Lobby", "SW1")

	if outcome.SwitchPort != "" {
		t.Errorf("expected no port, got %q", outcome.SwitchPort)
	}
	if dir.cycleCount() != 0 {
		t.Error("expected no cycle without a located port")
	}
	if outcome.APIError != "" {
		t.Errorf("a clean miss is not an API error, got %q", outcome.APIError)
	}
}

func TestRemediatorCapturesCycleFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.inventory["org1"] = []adapter.DeviceInfo{
		{Serial: "CAM1", Name: "Lobby", Model: "MV12", MAC: "aa:bb:cc:00:00:01"},
	}
	dir.setLive("CAM1", "offline")
	dir.ports["SW1"] = []adapter.PortStatus{
		lldpPort("7", "aa:bb:cc:00:00:01"),
	}
	dir.cycleErr = context.DeadlineExceeded

	r := NewRemediator(dir, 0, NewEventBus())
	outcome := r.Run(context.Background(), "org1", "CAM1", "Lobby", "SW1")

	if outcome.APIError == "" {
		t.Error("expected the cycle failure captured in the outcome")
	}
	if outcome.SwitchPort != "7" {
		t.Errorf("outcome should still carry the located port, got %q", outcome.SwitchPort)
	}
}
