package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServiceNow incident state values.
const (
	StateResolved = "6"
	StateClosed   = "7"
)

// ServiceNow is the ticketing client, speaking the incident Table API with
// basic-auth credentials.
type ServiceNow struct {
	instance string
	username string
	password string
	client   *http.Client
}

// NewServiceNow creates a ticketing client for the given instance URL.
func NewServiceNow(instance, username, password string, timeout time.Duration) *ServiceNow {
	return &ServiceNow{
		instance: strings.TrimRight(instance, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

// Incident is the payload for creating an incident.
type Incident struct {
	CallerID         string `json:"caller_id,omitempty"`
	Impact           string `json:"impact"`
	Urgency          string `json:"urgency"`
	Category         string `json:"category"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

// IncidentResult is a single incident record returned by the Table API.
type IncidentResult struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	State            string `json:"state"`
	ShortDescription string `json:"short_description"`
}

// CreateIncident opens a new incident and returns the created record.
func (s *ServiceNow) CreateIncident(ctx context.Context, incident Incident) (*IncidentResult, error) {
	var result struct {
		Result IncidentResult `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/now/table/incident", nil, incident, &result); err != nil {
		return nil, err
	}
	return &result.Result, nil
}

// GetIncident fetches an incident by sys_id. Returns nil, nil when the
// record no longer exists.
func (s *ServiceNow) GetIncident(ctx context.Context, sysID string) (*IncidentResult, error) {
	var result struct {
		Result []IncidentResult `json:"result"`
	}
	query := url.Values{"sys_id": {sysID}}
	if err := s.do(ctx, http.MethodGet, "/api/now/table/incident", query, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Result) == 0 {
		return nil, nil
	}
	return &result.Result[0], nil
}

// ResolveIncident marks an incident resolved (state 6) with an automated
// comment.
func (s *ServiceNow) ResolveIncident(ctx context.Context, sysID, comment string) error {
	update := map[string]string{
		"state":    StateResolved,
		"comments": comment,
	}
	return s.do(ctx, http.MethodPut, "/api/now/table/incident/"+sysID, nil, update, nil)
}

// CallerName resolves the configured service account to its display name,
// used as the incident caller.
func (s *ServiceNow) CallerName(ctx context.Context) (string, error) {
	var result struct {
		Result []struct {
			Name string `json:"name"`
		} `json:"result"`
	}
	query := url.Values{"sysparm_query": {"user_name=" + s.username}}
	if err := s.do(ctx, http.MethodGet, "/api/now/table/sys_user", query, nil, &result); err != nil {
		return "", err
	}
	if len(result.Result) == 0 {
		return "", fmt.Errorf("no sys_user record for %s", s.username)
	}
	return result.Result[0].Name, nil
}

func (s *ServiceNow) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := s.instance + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ticketing request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ticketing %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
