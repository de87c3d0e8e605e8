package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Health is the body of GET /health.
type Health struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether the server considers itself fully up.
func (h *Health) Healthy() bool {
	return h.Status == "healthy"
}

// Status is the body of GET /v1/status.
type Status struct {
	State             string  `json:"state"`
	Uptime            string  `json:"uptime"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Tasks             int     `json:"tasks"`
	CachedUtilities   int     `json:"cached_utilities"`
	CachedServices    int     `json:"cached_services"`
	DiscoveredPlugins int     `json:"discovered_plugins"`
}

// Health fetches the health endpoint. Unlike every other call, a 503
// still carries a decodable body: a degraded server reports its state
// rather than an error, so probes can tell "down" from "starting".
func (c *Client) Health() (*Health, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &h, nil
}

// Status fetches the runtime status: lifecycle state, uptime, task and
// cache counts.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.get("/v1/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}
