package authority_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/capiscio/hap-core/pkg/authority"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
	"github.com/capiscio/hap-core/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "test-api-key"

type testVA struct {
	server   *httptest.Server
	client   *authority.Client
	pipeline *verify.Pipeline
	domain   string
}

// newTestVA runs a VA whose issuer is the TLS test server's host, so the
// resolver and the pipeline see exactly what a relying party would.
func newTestVA(t *testing.T) *testVA {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	key := signingKey(t, "key_001")
	a, err := authority.New(u.Host, key, []authority.SigningKey{key}, authority.NewMemoryStore(), server.URL+"/v")
	require.NoError(t, err)

	srv := authority.NewServer(a, apiKey, logger)
	mux.Handle("/", srv.Handler())

	client := authority.NewClient(server.URL, apiKey)
	client.HTTPClient = server.Client()

	pipeline, err := verify.New(registry.NewHTTPResolver(server.Client(), time.Second), verify.WithLogger(logger))
	require.NoError(t, err)

	return &testVA{server: server, client: client, pipeline: pipeline, domain: u.Host}
}

func issueRequest() authority.IssueRequest {
	return authority.IssueRequest{
		Recipient:     claim.Recipient{Name: "Acme Corp", Domain: "acme.com"},
		Method:        "ba_priority_mail",
		Description:   "Priority mail packet",
		ExpiresInDays: 30,
		Physical:      claim.Bool(true),
	}
}

func TestServer_IssueVerifyRevoke(t *testing.T) {
	va := newTestVA(t)
	ctx := context.Background()

	issued, err := va.client.Issue(ctx, issueRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, issued.JWS)
	assert.NotEmpty(t, issued.Compact)
	assert.Contains(t, issued.CompactURL, "?c=")

	outcome := va.pipeline.Verify(ctx, issued.ID, va.domain)
	require.True(t, outcome.Verified(), outcome.Detail())
	assert.Equal(t, "key_001", outcome.KeyID)
	require.NotNil(t, outcome.Claim.Physical)
	assert.True(t, *outcome.Claim.Physical)

	outcome = va.pipeline.VerifyCompact(ctx, issued.Compact)
	require.True(t, outcome.Verified(), outcome.Detail())
	assert.Equal(t, issued.ID, outcome.Claim.ID)

	rec, err := va.client.Revoke(ctx, issued.ID, protocol.RevocationFraud)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)

	outcome = va.pipeline.Verify(ctx, issued.ID, va.domain)
	assert.Equal(t, verify.ReasonRevoked, outcome.Reason)
	assert.Equal(t, protocol.RevocationFraud, outcome.RevocationReason)
	assert.NotNil(t, outcome.RevokedAt)

	_, err = va.client.Revoke(ctx, issued.ID, protocol.RevocationFraud)
	var clientErr *authority.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "ALREADY_REVOKED", clientErr.Code)
}

func TestServer_LookupShapes(t *testing.T) {
	va := newTestVA(t)
	ctx := context.Background()

	outcome := va.pipeline.Verify(ctx, "hap_zzzzzzzzzzzz", va.domain)
	assert.Equal(t, verify.ReasonNotFound, outcome.Reason)

	resp, err := va.server.Client().Get(va.server.URL + protocol.VerifyPathBase + "bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rec registry.ClaimRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.True(t, rec.IsInvalidFormat())
}

func TestServer_KeysAndHealth(t *testing.T) {
	va := newTestVA(t)

	resp, err := va.server.Client().Get(va.server.URL + protocol.WellKnownPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(authority.RequestIDHeader))

	resp, err = va.server.Client().Get(va.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	va := newTestVA(t)

	req, err := http.NewRequest(http.MethodGet, va.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(authority.RequestIDHeader, "req-123")

	resp, err := va.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(authority.RequestIDHeader))
}

func TestServer_IssuanceRequiresAPIKey(t *testing.T) {
	va := newTestVA(t)

	for _, key := range []string{"", "wrong"} {
		client := authority.NewClient(va.server.URL, key)
		client.HTTPClient = va.server.Client()

		_, err := client.Issue(context.Background(), issueRequest())
		var clientErr *authority.ClientError
		require.ErrorAs(t, err, &clientErr)
		assert.True(t, clientErr.IsAuthError())
	}
}

func TestServer_IssueBadRequests(t *testing.T) {
	va := newTestVA(t)

	post := func(body string) int {
		req, err := http.NewRequest(http.MethodPost, va.server.URL+"/api/v1/claims", bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		resp, err := va.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, post("{"))
	assert.Equal(t, http.StatusBadRequest, post(`{"method":"m","unknown":1}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"method":"m"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"to":{"name":"Acme"},"method":"a.b"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"to":{"name":"Acme"},"method":"m","expiresInDays":-1}`))
	assert.Equal(t, http.StatusCreated, post(`{"to":{"name":"Acme"},"method":"m"}`))
}

func TestServer_RevokeErrors(t *testing.T) {
	va := newTestVA(t)
	ctx := context.Background()

	_, err := va.client.Revoke(ctx, "hap_zzzzzzzzzzzz", protocol.RevocationFraud)
	var clientErr *authority.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.True(t, clientErr.IsNotFoundError())

	issued, err := va.client.Issue(ctx, issueRequest())
	require.NoError(t, err)

	_, err = va.client.Revoke(ctx, issued.ID, "because")
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "BAD_REQUEST", clientErr.Code)
}
