// Package adapter contains the REST clients for the two external
// collaborators: the vendor dashboard (device directory, topology, switch
// port control) and the ServiceNow-style ticketing system.
//
// Both collaborators have a narrow contract and lenient failure semantics:
// their errors are returned to the caller, which captures them into outcome
// or incident fields rather than treating them as faults. Neither client
// retries; request bounds come from the configured HTTP client timeout.
package adapter
