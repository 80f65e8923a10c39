package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every outbound request unless overridden.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a VA response is read.
const maxBodySize = 1 << 20

// UserAgent is sent with every outbound request.
const UserAgent = "hap-core/1.0"

// HTTPClient performs the JSON GET requests used for key discovery and
// claim lookup. It never retries: a failed request is reported once as a
// TRANSPORT_ERROR and the caller decides what to do next.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a new HTTPClient. A nil client uses
// http.DefaultClient; a non-positive timeout uses DefaultTimeout.
func NewHTTPClient(client *http.Client, timeout time.Duration) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		client:  client,
		timeout: timeout,
	}
}

// Timeout returns the per-request timeout.
func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// GetJSON fetches url and decodes the JSON body into out. Any 2xx status is
// accepted, plus the statuses listed in accept. It returns the HTTP status
// code on success.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any, accept ...int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, WrapError(ErrCodeTransport, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, WrapError(ErrCodeTransport, fmt.Sprintf("request to %s failed", url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !statusAccepted(resp.StatusCode, accept) {
		return resp.StatusCode, NewError(ErrCodeTransport, fmt.Sprintf("%s returned status %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, WrapError(ErrCodeTransport, "failed to read response", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, WrapError(ErrCodeTransport, "failed to decode response", err)
	}

	return resp.StatusCode, nil
}

func statusAccepted(status int, accept []int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}
