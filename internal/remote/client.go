// Package remote is the HTTP client for the sync backend. Types mirror the
// server API and are defined independently of the engine's internal models.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

// Client is an HTTP client for the possync server.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: requestTimeout},
	}
}

// Record is one entity record on the wire.
type Record struct {
	ID        string          `json:"id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// PullRequest describes one page fetch for an entity endpoint.
type PullRequest struct {
	Endpoint   string
	Since      time.Time
	Page       int // 1-based
	PageSize   int
	Order      string // "asc" or "desc" by modification time
	CompanyID  string
	LocationID string
}

// PullResponse is one page of records plus the server-reported total.
type PullResponse struct {
	Results []Record `json:"results"`
	Count   int      `json:"count"`
}

// PushRequest is the body for a batched entity write.
type PushRequest struct {
	DeviceID string   `json:"device_id"`
	Records  []Record `json:"records"`
}

// PushRejection explains why a pushed record was refused.
type PushRejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PushResponse acknowledges a batched write.
type PushResponse struct {
	Accepted []string        `json:"accepted"`
	Rejected []PushRejection `json:"rejected,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Pull fetches one page of records modified since the given watermark.
func (c *Client) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	params := url.Values{}
	if !req.Since.IsZero() {
		params.Set("since", req.Since.UTC().Format(time.RFC3339Nano))
	}
	params.Set("page", strconv.Itoa(req.Page))
	params.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Order != "" {
		params.Set("order", req.Order)
	}
	if req.CompanyID != "" {
		params.Set("company_id", req.CompanyID)
	}
	if req.LocationID != "" {
		params.Set("location_id", req.LocationID)
	}

	var resp PullResponse
	path := fmt.Sprintf("/v1/sync/%s?%s", req.Endpoint, params.Encode())
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push sends a batch of locally-mutated records for an entity endpoint.
// Delivery is at-least-once: the server deduplicates by record id.
func (c *Client) Push(ctx context.Context, endpoint string, records []Record) (*PushResponse, error) {
	req := PushRequest{DeviceID: c.DeviceID, Records: records}
	var resp PushResponse
	if err := c.do(ctx, "POST", fmt.Sprintf("/v1/sync/%s/push", endpoint), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health hits /healthz to verify server reachability.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// do executes a request with capped exponential backoff on transient
// failures. Network errors and 5xx responses are retried; 4xx responses are
// permanent.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyData []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyData = data
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.doOnce(ctx, method, path, bodyData, result)
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)
	return err
}

// transientError wraps retryable failures so do can tell them apart.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &transientError{fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &transientError{fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
			default:
				return &apiErr
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
