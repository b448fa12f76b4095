// Package client is a thin HTTP client for the control-plane API's
// session/ledger query endpoints, used by tooling and other services
// that need read access to ledger state without linking the ledger
// package directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
)

const userAgent = "neural-engine-ledger-client/1.0"

// Config configures a LedgerClient.
type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxConnections int
}

// Session mirrors pkg/api.SessionResponse, the control-plane API's
// GET /v1/sessions/{sessionID} body.
type Session struct {
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt int64             `json:"started_at_ns"`
	EndedAt   int64             `json:"ended_at_ns,omitempty"`
}

// LedgerClient queries the control-plane API's session endpoints over HTTP.
type LedgerClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewLedgerClient builds a LedgerClient. A zero Timeout defaults to 30s,
// and a zero MaxConnections defaults to 20 idle connections per host.
func NewLedgerClient(cfg Config) *LedgerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 20
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: maxConns,
	}

	return &LedgerClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *LedgerClient) do(ctx context.Context, method, path string, query map[string]string) (*http.Response, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger client URL: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

func parseProblem(resp *http.Response) error {
	var problem validation.RFC7807Problem
	if err := json.NewDecoder(resp.Body).Decode(&problem); err != nil {
		return fmt.Errorf("ledger client: unexpected status %d", resp.StatusCode)
	}
	return &problem
}

// GetSessionByID fetches one session. It returns (nil, nil) when the
// control-plane API reports 404, matching the "absence is not an error"
// convention used elsewhere in the ledger reconstruction path.
func (c *LedgerClient) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("ledger client: get session %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseProblem(resp)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("ledger client: decode session %s: %w", id, err)
	}
	return &session, nil
}
