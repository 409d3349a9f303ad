// Package domain defines the core domain types for the topowatch incident
// lifecycle engine.
//
// The monitored estate is a three-tier forest: routers at the root, switches
// below them, camera endpoints at the leaves. Every device carries at most
// one upstream pointer to the device one tier above it.
//
// # Core Types
//
// Device represents a monitored network device with its role, recorded
// status, and upstream attachment.
//
// Alert is the inbound connectivity-change event delivered by the webhook
// transport.
//
// RemediationOutcome is the ephemeral result of the camera remediation
// workflow, consumed once by the incident ledger.
//
// IncidentRecord is a ledger row; identical descriptive fields merge into a
// single row with an occurrence counter.
//
// # Design Principles
//
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
// - Rich type system with meaningful constants and enumerations
package domain
