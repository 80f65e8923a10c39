package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// DefaultScheme is used for every VA URL unless overridden.
const DefaultScheme = "https"

// HTTPResolver implements Resolver against live VA endpoints.
type HTTPResolver struct {
	// Scheme is "https" unless a test points the resolver at plain HTTP.
	Scheme string

	client *protocol.HTTPClient
}

// NewHTTPResolver creates a resolver. A nil client uses
// http.DefaultClient; a non-positive timeout uses protocol.DefaultTimeout.
func NewHTTPResolver(client *http.Client, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		Scheme: DefaultScheme,
		client: protocol.NewHTTPClient(client, timeout),
	}
}

// KeysURL returns the key discovery URL for domain.
func (r *HTTPResolver) KeysURL(domain string) string {
	return r.base(domain) + protocol.WellKnownPath
}

// ClaimURL returns the claim lookup URL for id on domain.
func (r *HTTPResolver) ClaimURL(domain, id string) string {
	return r.base(domain) + protocol.VerifyPathBase + url.PathEscape(id)
}

func (r *HTTPResolver) base(domain string) string {
	scheme := r.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + domain
}

// FetchKeys retrieves /.well-known/hap.json from domain.
func (r *HTTPResolver) FetchKeys(ctx context.Context, domain string) (*crypto.KeySet, error) {
	if err := checkDomain(domain); err != nil {
		return nil, err
	}

	var set crypto.KeySet
	if _, err := r.client.GetJSON(ctx, r.KeysURL(domain), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// FetchClaim retrieves the claim record for id from domain. 400 and 404
// replies are accepted when they carry a protocol error field.
func (r *HTTPResolver) FetchClaim(ctx context.Context, domain, id string) (*ClaimRecord, error) {
	if err := checkDomain(domain); err != nil {
		return nil, err
	}

	var rec ClaimRecord
	status, err := r.client.GetJSON(ctx, r.ClaimURL(domain, id), &rec, http.StatusBadRequest, http.StatusNotFound)
	if err != nil {
		return nil, err
	}

	if status >= 300 && rec.Error == "" {
		return nil, protocol.NewError(protocol.ErrCodeTransport,
			fmt.Sprintf("claim lookup returned status %d without an error field", status))
	}
	if !rec.Valid && !rec.Revoked && rec.Error == "" {
		return nil, protocol.NewError(protocol.ErrCodeTransport, "claim lookup returned an unrecognized record")
	}
	return &rec, nil
}

// checkDomain rejects values that would change the request target when
// spliced into a URL.
func checkDomain(domain string) error {
	if domain == "" || strings.ContainsAny(domain, "/?#@\\ ") {
		return protocol.NewError(protocol.ErrCodeInvalidFormat, fmt.Sprintf("invalid issuer domain %q", domain))
	}
	return nil
}
