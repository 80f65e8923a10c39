// Package protocol defines the Human Attestation Protocol (HAP) constants,
// the error taxonomy shared by every component, and the HTTP collaborator
// used to talk to Verification Authorities.
package protocol

// Version is the protocol version carried in the "v" field of every claim.
const Version = "0.1"

// CompactVersion is the compact format revision.
const CompactVersion = "1"

// CompactTag is the first field of every compact record.
const CompactTag = "HAP" + CompactVersion

// Endpoint paths published by every Verification Authority.
const (
	WellKnownPath  = "/.well-known/hap.json"
	VerifyPathBase = "/api/v1/verify/"
)

// RevocationReason is the VA-supplied reason a claim was revoked.
type RevocationReason string

const (
	RevocationFraud       RevocationReason = "fraud"
	RevocationError       RevocationReason = "error"
	RevocationLegal       RevocationReason = "legal"
	RevocationUserRequest RevocationReason = "user_request"
)

// Lookup error values returned in the "error" field of a claim record.
const (
	LookupNotFound      = "not_found"
	LookupInvalidFormat = "invalid_format"
)

// Valid reports whether r is one of the defined revocation reasons.
func (r RevocationReason) Valid() bool {
	switch r {
	case RevocationFraud, RevocationError, RevocationLegal, RevocationUserRequest:
		return true
	}
	return false
}
