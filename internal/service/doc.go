// Package service contains the incident lifecycle engine: the topology
// builder, the alert-driven status state machine, the camera remediation
// workflow, the downstream impact resolver, the occurrence-deduplicated
// incident ledger, and the ticket reporter.
//
// Services receive their collaborators (device directory, ticketing client,
// topology store) through constructors so tests can substitute doubles. The
// synchronous webhook path stays fast: anything that waits on the network
// for minutes is handed to the task runner as a chain keyed by device
// serial.
package service
