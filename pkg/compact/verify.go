package compact

import (
	"crypto/ed25519"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// VerifyResult contains the result of compact verification.
type VerifyResult struct {
	// Claim is the verified reduced claim.
	Claim *claim.Claim

	// KeyID is the kid of the first key that verified the signature.
	KeyID string

	// Skipped lists kids of candidate keys that could not be decoded.
	Skipped []string
}

// Verify checks a compact record against candidate keys.
//
// Compact records carry no key id, so each key is tried in the order given
// and the first that verifies the signature wins; cost is linear in the
// number of keys. This first-match policy means that if a publisher ever
// listed a key that wrongly accepted a forged signature, it would be
// accepted silently. That is inherent to the kid-less format: callers who
// need a kid binding should use the structured encoding.
//
// Malformed candidate keys are skipped. No match yields SIGNATURE_INVALID.
func Verify(text string, keys []crypto.KeyRecord) (*VerifyResult, error) {
	decoded, err := Decode(text)
	if err != nil {
		return nil, err
	}
	return VerifyDecoded(decoded, keys)
}

// VerifyDecoded is Verify for a record that has already been decoded.
func VerifyDecoded(decoded *Decoded, keys []crypto.KeyRecord) (*VerifyResult, error) {
	result := &VerifyResult{}
	if len(decoded.Signature) != ed25519.SignatureSize {
		return nil, protocol.NewError(protocol.ErrCodeSignatureInvalid, "signature has the wrong length")
	}

	message := []byte(decoded.Payload)
	for _, rec := range keys {
		pub, err := crypto.DecodePublicKey(rec)
		if err != nil {
			result.Skipped = append(result.Skipped, rec.KeyID)
			continue
		}
		if ed25519.Verify(pub, message, decoded.Signature) {
			result.Claim = decoded.Claim
			result.KeyID = rec.KeyID
			return result, nil
		}
	}

	return nil, protocol.NewError(protocol.ErrCodeSignatureInvalid, "no published key verifies the signature")
}
