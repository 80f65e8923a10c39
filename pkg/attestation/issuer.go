package attestation

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/go-jose/go-jose/v4"
)

// Sign serializes the claim to its canonical structured form and signs it
// with the private key, binding the signature to kid. The input claim is not
// modified; an empty version is filled in on the returned copy.
//
// Errors from Sign are programmer errors (bad key, missing kid, incomplete
// claim), never protocol outcomes.
func Sign(c *claim.Claim, privateKey ed25519.PrivateKey, kid string) (*SignedClaim, error) {
	if c == nil {
		return nil, errors.New("claim is required")
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	if kid == "" {
		return nil, errors.New("kid is required")
	}

	signed := *c
	if signed.Version == "" {
		signed.Version = protocol.Version
	}
	if err := signed.Validate(); err != nil {
		return nil, err
	}

	payload, err := crypto.CanonicalJSON(&signed)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: Algorithm, Key: privateKey},
		(&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), kid),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	jwsObj, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}

	token, err := jwsObj.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize JWS: %w", err)
	}

	return &SignedClaim{
		Claim:     &signed,
		KeyID:     kid,
		Signature: jwsObj.Signatures[0].Signature,
		JWS:       token,
	}, nil
}
