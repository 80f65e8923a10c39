package authority

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

	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
)

// Client calls a VA's issuance API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new issuance client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Issue requests a new claim.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*IssueResponse, error) {
	var out IssueResponse
	if err := c.post(ctx, "/api/v1/claims", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke revokes a claim and returns the VA's updated record.
func (c *Client) Revoke(ctx context.Context, id string, reason protocol.RevocationReason) (*registry.ClaimRecord, error) {
	var out registry.ClaimRecord
	path := "/api/v1/claims/" + url.PathEscape(id) + "/revoke"
	if err := c.post(ctx, path, RevokeRequest{Reason: reason}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, want int, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("User-Agent", protocol.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		return handleErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// handleErrorResponse converts HTTP error status codes to ClientError.
func handleErrorResponse(statusCode int, respBody []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(respBody, &errResp)

	switch statusCode {
	case http.StatusUnauthorized:
		return &ClientError{Code: "AUTH_INVALID", Message: "invalid or missing API key"}
	case http.StatusNotFound:
		return &ClientError{Code: "CLAIM_NOT_FOUND", Message: "claim not found"}
	case http.StatusConflict:
		return &ClientError{Code: "ALREADY_REVOKED", Message: "claim already revoked"}
	case http.StatusBadRequest:
		return &ClientError{Code: "BAD_REQUEST", Message: errResp.Error}
	default:
		return &ClientError{Code: "VA_ERROR", Message: fmt.Sprintf("VA returned status %d: %s", statusCode, errResp.Error)}
	}
}

// ClientError represents an error from the issuance API.
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAuthError returns true if this is an authentication error.
func (e *ClientError) IsAuthError() bool {
	return e.Code == "AUTH_INVALID"
}

// IsNotFoundError returns true if the claim was not found.
func (e *ClientError) IsNotFoundError() bool {
	return e.Code == "CLAIM_NOT_FOUND"
}
