package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/auth"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultClientTimeout is the default timeout for API requests.
	DefaultClientTimeout = 10 * time.Second
	// CallClientTimeout covers a forwarded tool call, which the daemon bounds
	// at 30s by default.
	CallClientTimeout = 45 * time.Second
)

// apiError is the error body every daemon endpoint returns.
type apiError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func newAPIClient(timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(apiAddr).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader(auth.HeaderAPIKey, apiKey)
	}
	return c
}

// apiGet performs a GET request to the daemon.
func apiGet(path string) ([]byte, error) {
	resp, err := newAPIClient(DefaultClientTimeout).R().Get(path)
	return handleResponse(resp, err)
}

// apiPost performs a POST request with a JSON body.
func apiPost(path string, body any, headers map[string]string) ([]byte, error) {
	return apiPostTimeout(path, body, headers, DefaultClientTimeout)
}

func apiPostTimeout(path string, body any, headers map[string]string, timeout time.Duration) ([]byte, error) {
	resp, err := newAPIClient(timeout).R().
		SetHeaders(headers).
		SetBody(body).
		Post(path)
	return handleResponse(resp, err)
}

func handleResponse(resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	if resp.IsError() {
		var e apiError
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			if e.Reason != "" {
				return nil, fmt.Errorf("API error (%d): %s: %s", resp.StatusCode(), e.Error, e.Reason)
			}
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode(), e.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}

// HealthResponse matches the daemon's health response.
type HealthResponse struct {
	Success    bool     `json:"success"`
	Status     string   `json:"status"`
	Service    string   `json:"service"`
	Version    string   `json:"version"`
	Uptime     string   `json:"uptime"`
	Connected  []string `json:"connected"`
	Configured int      `json:"configured"`
	Registered int      `json:"registered"`
	Governance *struct {
		Intercepted      int64   `json:"intercepted"`
		Denied           int64   `json:"denied"`
		InterceptionRate float64 `json:"interceptionRate"`
	} `json:"governance"`
	Time string `json:"time"`
}

// checkHealth fetches /health with a short timeout.
func checkHealth() (*HealthResponse, error) {
	resp, err := newAPIClient(time.Second).R().Get("/health")
	body, err := handleResponse(resp, err)
	if err != nil {
		return nil, err
	}
	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}
