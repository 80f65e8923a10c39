// Package attestation signs HAP claims in the structured (JWS) encoding and
// verifies them against an issuer's published key set.
package attestation

import (
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/go-jose/go-jose/v4"
)

// Algorithm is the only JOSE algorithm HAP accepts.
const Algorithm = jose.EdDSA

// SignedClaim is a claim bound to an Ed25519 signature by a key id.
type SignedClaim struct {
	// Claim is the signed claim, with its protocol version filled in.
	Claim *claim.Claim

	// KeyID is the kid of the signing key.
	KeyID string

	// Signature is the raw Ed25519 signature.
	Signature []byte

	// JWS is the compact JWS serialization carrying header, canonical
	// payload and signature.
	JWS string
}

// VerifyResult contains the result of signature verification.
type VerifyResult struct {
	// Claim is the verified claim, decoded from the signed payload.
	Claim *claim.Claim

	// KeyID is the kid of the key that verified the signature.
	KeyID string

	// Warnings contains non-fatal issues encountered.
	Warnings []string
}
