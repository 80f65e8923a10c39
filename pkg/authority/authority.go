// Package authority is a reference Verification Authority: it issues and
// revokes claims, publishes its key set and answers claim lookups.
package authority

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capiscio/hap-core/pkg/attestation"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
)

// SigningKey is a VA private key and its kid.
type SigningKey struct {
	KeyID      string
	PrivateKey ed25519.PrivateKey
}

// LoadSigningKey reads a private JWK file.
func LoadSigningKey(path string) (*SigningKey, error) {
	priv, kid, err := crypto.LoadPrivateKeyJWK(path)
	if err != nil {
		return nil, err
	}
	return &SigningKey{KeyID: kid, PrivateKey: priv}, nil
}

// Record returns the public key record for publication.
func (k SigningKey) Record() crypto.KeyRecord {
	return crypto.EncodePublicKey(k.PrivateKey.Public().(ed25519.PublicKey), k.KeyID)
}

// Issued is everything produced when a claim is issued.
type Issued struct {
	ID        string       `json:"id"`
	Claim     *claim.Claim `json:"claim"`
	JWS       string       `json:"jws"`
	Compact   string       `json:"compact"`
	VerifyURL string       `json:"verifyUrl,omitempty"`
}

// Authority signs claims for one issuer domain and records them in a Store.
type Authority struct {
	issuer        string
	signer        SigningKey
	keys          crypto.KeySet
	store         Store
	verifyBaseURL string
	now           func() time.Time
}

// New creates an Authority. signer must be one of published; every
// published key appears in the key set, in order.
func New(issuer string, signer SigningKey, published []SigningKey, store Store, verifyBaseURL string) (*Authority, error) {
	if issuer == "" {
		return nil, errors.New("authority: issuer is required")
	}
	if len(signer.PrivateKey) != ed25519.PrivateKeySize || signer.KeyID == "" {
		return nil, errors.New("authority: invalid signing key")
	}
	if store == nil {
		return nil, errors.New("authority: nil store")
	}

	set := crypto.KeySet{Issuer: issuer}
	signerPublished := false
	for _, k := range published {
		set.Keys = append(set.Keys, k.Record())
		if k.KeyID == signer.KeyID {
			signerPublished = true
		}
	}
	if !signerPublished {
		set.Keys = append([]crypto.KeyRecord{signer.Record()}, set.Keys...)
	}

	return &Authority{
		issuer:        issuer,
		signer:        signer,
		keys:          set,
		store:         store,
		verifyBaseURL: strings.TrimSuffix(verifyBaseURL, "/"),
		now:           time.Now,
	}, nil
}

// Issuer returns the VA domain.
func (a *Authority) Issuer() string {
	return a.issuer
}

// KeySet returns the published key set.
func (a *Authority) KeySet() *crypto.KeySet {
	set := a.keys
	set.Keys = append([]crypto.KeyRecord(nil), a.keys.Keys...)
	return &set
}

// Issue creates, signs and stores a claim. The issuer and clock in p are
// overridden by the authority's own.
func (a *Authority) Issue(p claim.Params) (*Issued, error) {
	p.Issuer = a.issuer
	p.Now = a.now

	c, err := claim.New(p)
	if err != nil {
		return nil, err
	}

	signed, err := attestation.Sign(c, a.signer.PrivateKey, a.signer.KeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}

	text, err := compact.Sign(signed.Claim, a.signer.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compact claim: %w", err)
	}

	if err := a.store.Put(&StoredClaim{Claim: signed.Claim, JWS: signed.JWS, Compact: text}); err != nil {
		return nil, err
	}

	return &Issued{
		ID:        c.ID,
		Claim:     signed.Claim,
		JWS:       signed.JWS,
		Compact:   text,
		VerifyURL: a.VerifyURL(c.ID),
	}, nil
}

// Revoke marks a claim revoked.
func (a *Authority) Revoke(id string, reason protocol.RevocationReason) (*StoredClaim, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	return a.store.Revoke(id, reason, claim.Timestamp(a.now()))
}

// Lookup returns the claim record for id in the shape relying parties
// expect, plus the HTTP status to send it with.
func (a *Authority) Lookup(id string) (int, *registry.ClaimRecord) {
	if !claim.IsValidID(id) && !claim.IsTestID(id) {
		return http.StatusBadRequest, registry.InvalidFormatRecord()
	}

	stored, err := a.store.Get(id)
	if err != nil {
		return http.StatusNotFound, registry.NotFoundRecord()
	}

	if stored.Revoked {
		resp := &registry.ClaimRecord{
			ID:               id,
			Revoked:          true,
			RevocationReason: stored.RevocationReason,
			Issuer:           a.issuer,
		}
		if stored.RevokedAt != nil {
			resp.RevokedAt = stored.RevokedAt.UTC().Format(time.RFC3339)
		}
		return http.StatusOK, resp
	}

	return http.StatusOK, &registry.ClaimRecord{
		Valid:     true,
		ID:        id,
		Claim:     stored.Claim,
		JWS:       stored.JWS,
		Issuer:    a.issuer,
		VerifyURL: a.VerifyURL(id),
	}
}

// VerifyURL returns the verification page for id, or "" when no base URL
// is configured.
func (a *Authority) VerifyURL(id string) string {
	if a.verifyBaseURL == "" {
		return ""
	}
	return a.verifyBaseURL + "/" + url.PathEscape(id)
}

// CompactURL embeds a compact record in the verification page URL.
func (a *Authority) CompactURL(text string) string {
	if a.verifyBaseURL == "" {
		return ""
	}
	return compact.VerificationURL(a.verifyBaseURL, text)
}
