package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ReleaseBeacon is the best-effort, fire-and-forget release path used at
// teardown and page unload, when a normal request is not guaranteed to
// complete. Delivery is not guaranteed; lease expiry is the backstop.
type ReleaseBeacon interface {
	Send(leaseID string)
}

// HTTPBeacon posts a method-override release, mirroring navigator.sendBeacon
// which can only POST. When the POST cannot be sent it falls back to a
// synchronous DELETE, still bounded by the timeout.
type HTTPBeacon struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPBeacon creates a beacon against the service root.
func NewHTTPBeacon(baseURL, token string, timeout time.Duration) *HTTPBeacon {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPBeacon{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send fires the release without waiting for the caller. Errors are
// swallowed: the caller is tearing down and cannot act on them.
func (b *HTTPBeacon) Send(leaseID string) {
	if leaseID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.httpClient.Timeout)
		defer cancel()

		path := b.baseURL + "/api/v1/locks/" + url.PathEscape(leaseID) + "?_method=DELETE"
		if b.request(ctx, http.MethodPost, path) {
			return
		}
		b.request(ctx, http.MethodDelete, b.baseURL+"/api/v1/locks/"+url.PathEscape(leaseID))
	}()
}

func (b *HTTPBeacon) request(ctx context.Context, method, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return false
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
