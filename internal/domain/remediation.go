package domain

// RemediationOutcome is the result of one camera remediation attempt. It is
// not persisted on its own; the incident ledger consumes it once.
type RemediationOutcome struct {
	DeviceSerial string
	DeviceName   string
	// FinalStatus is the camera's live status at the last re-check.
	FinalStatus Status
	// SwitchSerial is the expected upstream switch the workflow inspected.
	SwitchSerial string
	// SwitchPort is the located attachment port, empty when no discovery
	// record matched the camera's hardware address.
	SwitchPort string
	// APIError carries a captured collaborator failure; it never aborts the
	// workflow, only annotates the outcome.
	APIError     string
	PortErrors   []string
	PortWarnings []string
}

// Recovered reports whether the camera came back on its own, meaning no
// corrective action was taken.
func (o *RemediationOutcome) Recovered() bool {
	return o.FinalStatus == StatusUp && o.SwitchPort == ""
}
