// Package handler exposes the inbound webhook surface. It is deliberately
// thin: validate the shared secret and network allow-list, decode the alert,
// and hand it to the state machine.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"topowatch/internal/domain"
)

// AlertSink consumes validated alerts. *service.StateMachine satisfies it.
type AlertSink interface {
	HandleAlert(ctx context.Context, alert domain.Alert) error
}

// Policy is the hot-reloadable webhook policy: the shared secret inbound
// events must carry and the optional network allow-list.
type Policy struct {
	SharedSecret   string
	TargetNetworks []string
}

func (p Policy) networkAllowed(name string) bool {
	if len(p.TargetNetworks) == 0 {
		return true
	}
	for _, network := range p.TargetNetworks {
		if network == name {
			return true
		}
	}
	return false
}

// AlertHandler handles webhook requests
type AlertHandler struct {
	sink AlertSink

	mu     sync.RWMutex
	policy Policy
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(sink AlertSink, policy Policy) *AlertHandler {
	return &AlertHandler{sink: sink, policy: policy}
}

// UpdatePolicy swaps the webhook policy, used by the config watcher.
func (h *AlertHandler) UpdatePolicy(policy Policy) {
	h.mu.Lock()
	h.policy = policy
	h.mu.Unlock()
	log.Printf("handler: webhook policy updated (%d allowed networks)", len(policy.TargetNetworks))
}

// Routes registers the handler's endpoints on mux.
func (h *AlertHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/alerts", h.ReceiveAlert)
	mux.HandleFunc("/healthz", h.Health)
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ReceiveAlert accepts one webhook event and runs it through the state
// machine synchronously; long-running work is dispatched internally.
func (h *AlertHandler) ReceiveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", "", http.StatusMethodNotAllowed)
		return
	}

	var alert domain.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	policy := h.policy
	h.mu.RUnlock()

	if alert.SharedSecret != policy.SharedSecret {
		log.Printf("handler: shared secret mismatch from %s, ignoring", r.RemoteAddr)
		h.writeError(w, "Shared secret mismatch", "", http.StatusUnauthorized)
		return
	}
	if !policy.networkAllowed(alert.NetworkName) {
		log.Printf("handler: network %q not in allow-list, ignoring", alert.NetworkName)
		h.writeJSON(w, map[string]string{"status": "ignored", "reason": "network not allowed"}, http.StatusOK)
		return
	}

	if err := h.sink.HandleAlert(r.Context(), alert); err != nil {
		log.Printf("handler: processing alert %s for %s: %v", alert.Type, alert.DeviceSerial, err)
		h.writeError(w, "Failed to process alert", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{"status": "accepted"}, http.StatusOK)
}

// Health is the liveness probe.
func (h *AlertHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Helper methods

func (h *AlertHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *AlertHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
