// Package registry resolves the trust material a relying party needs:
// a VA's published key set and its claim records.
package registry

import (
	"context"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// KeyResolver fetches the key set a VA publishes for its domain.
type KeyResolver interface {
	// FetchKeys returns the current key set for domain.
	// Failures are TRANSPORT_ERROR (or KEY_NOT_FOUND for local resolvers
	// with nothing pinned).
	FetchKeys(ctx context.Context, domain string) (*crypto.KeySet, error)
}

// ClaimResolver looks up a claim record by id on the issuing VA.
type ClaimResolver interface {
	// FetchClaim returns the VA's record for id. A not_found or
	// invalid_format reply is a record, not an error.
	FetchClaim(ctx context.Context, domain, id string) (*ClaimRecord, error)
}

// Resolver is the full set of lookups the verification pipeline needs.
type Resolver interface {
	KeyResolver
	ClaimResolver
}

// ClaimRecord is the body of GET /api/v1/verify/{id}. It takes one of
// four shapes: valid, revoked, not_found and invalid_format.
type ClaimRecord struct {
	// Valid is true for a live claim.
	Valid bool `json:"valid"`

	// ID echoes the requested id.
	ID string `json:"id,omitempty"`

	// Claim is the claim as the VA stores it. Informational only; the
	// signed copy inside JWS is authoritative.
	Claim *claim.Claim `json:"claim,omitempty"`

	// JWS is the structured signature envelope.
	JWS string `json:"jws,omitempty"`

	// Issuer is the VA domain.
	Issuer string `json:"issuer,omitempty"`

	// VerifyURL is the human-facing verification page.
	VerifyURL string `json:"verifyUrl,omitempty"`

	// Revoked marks a revoked claim.
	Revoked bool `json:"revoked,omitempty"`

	RevocationReason protocol.RevocationReason `json:"revocationReason,omitempty"`

	// RevokedAt is RFC 3339 text. Kept as a string so a sloppy timestamp
	// does not make the whole record undecodable.
	RevokedAt string `json:"revokedAt,omitempty"`

	// Error is "not_found" or "invalid_format" for negative replies.
	Error string `json:"error,omitempty"`
}

// IsNotFound reports whether the VA has no record for the id.
func (r *ClaimRecord) IsNotFound() bool {
	return r.Error == protocol.LookupNotFound
}

// IsInvalidFormat reports whether the VA rejected the id syntax.
func (r *ClaimRecord) IsInvalidFormat() bool {
	return r.Error == protocol.LookupInvalidFormat
}

// NotFoundRecord builds the not_found reply.
func NotFoundRecord() *ClaimRecord {
	return &ClaimRecord{Valid: false, Error: protocol.LookupNotFound}
}

// InvalidFormatRecord builds the invalid_format reply.
func InvalidFormatRecord() *ClaimRecord {
	return &ClaimRecord{Valid: false, Error: protocol.LookupInvalidFormat}
}
