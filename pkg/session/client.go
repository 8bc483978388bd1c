package session

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

// LeaseInfo is the caller's view of a lease it holds.
type LeaseInfo struct {
	LeaseID   string    `json:"lease_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HolderInfo describes the user currently holding a contested lock.
type HolderInfo struct {
	HolderID   string    `json:"holder_id"`
	HolderName string    `json:"holder_name"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AcquireResult is the outcome of an acquire call. Exactly one of Lease and
// Holder is set.
type AcquireResult struct {
	Acquired bool
	Lease    *LeaseInfo
	Holder   *HolderInfo
}

// LeaseAPI is the remote lock surface an edit session drives. Heartbeat
// returning false means the lock is lost; Release returning false means the
// lock belongs to someone else.
type LeaseAPI interface {
	Acquire(ctx context.Context, resourceType, resourceID string) (*AcquireResult, error)
	Heartbeat(ctx context.Context, leaseID string) (bool, error)
	Release(ctx context.Context, leaseID string) (bool, error)
	ReleaseByResource(ctx context.Context, resourceType, resourceID string) error
}

// Client is the HTTP implementation of LeaseAPI.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig configures the lease HTTP client.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the bearer token presented on every call.
	Token string
	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration
}

// NewClient creates a lease API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Data    json.RawMessage        `json:"data"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// Acquire requests the lock on a resource. A 409 is an outcome, not an
// error: the result carries the current holder's record.
func (c *Client) Acquire(ctx context.Context, resourceType, resourceID string) (*AcquireResult, error) {
	body, err := json.Marshal(map[string]string{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	})
	if err != nil {
		return nil, err
	}

	status, env, err := c.do(ctx, http.MethodPost, "/api/v1/locks", body)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var info LeaseInfo
		if err := json.Unmarshal(env.Data, &info); err != nil {
			return nil, fmt.Errorf("decode lease: %w", err)
		}
		return &AcquireResult{Acquired: true, Lease: &info}, nil
	case http.StatusConflict:
		return &AcquireResult{Acquired: false, Holder: holderFromDetails(env.Details)}, nil
	default:
		return nil, fmt.Errorf("acquire failed: status %d: %s", status, env.Message)
	}
}

// Heartbeat renews the lease. False means the lock is gone or reassigned.
func (c *Client) Heartbeat(ctx context.Context, leaseID string) (bool, error) {
	path := "/api/v1/locks/" + url.PathEscape(leaseID) + "/heartbeat"
	status, env, err := c.do(ctx, http.MethodPut, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("heartbeat failed: status %d: %s", status, env.Message)
	}
}

// Release gives the lock back. False means it belongs to someone else.
func (c *Client) Release(ctx context.Context, leaseID string) (bool, error) {
	path := "/api/v1/locks/" + url.PathEscape(leaseID)
	status, env, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("release failed: status %d: %s", status, env.Message)
	}
}

// ReleaseByResource releases whatever lease the caller holds on the resource.
func (c *Client) ReleaseByResource(ctx context.Context, resourceType, resourceID string) error {
	q := url.Values{}
	q.Set("resource_type", resourceType)
	q.Set("resource_id", resourceID)
	status, env, err := c.do(ctx, http.MethodDelete, "/api/v1/locks?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("release by resource failed: status %d: %s", status, env.Message)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, *envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	env := &envelope{}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, env, nil
}

func holderFromDetails(details map[string]interface{}) *HolderInfo {
	h := &HolderInfo{}
	if v, ok := details["holder_id"].(string); ok {
		h.HolderID = v
	}
	if v, ok := details["holder_name"].(string); ok {
		h.HolderName = v
	}
	if v, ok := details["acquired_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			h.AcquiredAt = t
		}
	}
	if v, ok := details["expires_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			h.ExpiresAt = t
		}
	}
	return h
}
