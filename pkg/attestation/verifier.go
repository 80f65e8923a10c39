package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/go-jose/go-jose/v4"
)

// VerifySignature checks a structured (JWS) claim against keys published by
// issuerDomain.
//
// The key whose kid matches the JWS header is used; if the set publishes
// that kid more than once, the first record wins and a warning is returned
// in the result. Failures carry KEY_NOT_FOUND, MALFORMED_KEY,
// SIGNATURE_INVALID or ISSUER_MISMATCH.
func VerifySignature(token string, keys *crypto.KeySet, issuerDomain string) (*VerifyResult, error) {
	jwsObj, kid, err := parse(token)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{KeyID: kid}

	var rec *crypto.KeyRecord
	count := 0
	if keys != nil {
		rec, count = keys.Find(kid)
	}
	if rec == nil {
		return nil, protocol.NewError(protocol.ErrCodeKeyNotFound, fmt.Sprintf("key %q not published by %s", kid, issuerDomain))
	}
	if count > 1 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("key set publishes kid %q %d times; using the first", kid, count))
	}

	pub, err := crypto.DecodePublicKey(*rec)
	if err != nil {
		return nil, err
	}

	payload, err := jwsObj.Verify(pub)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrCodeSignatureInvalid, "signature verification failed", err)
	}

	var verified claim.Claim
	if err := json.Unmarshal(payload, &verified); err != nil {
		return nil, protocol.WrapError(protocol.ErrCodeInvalidFormat, "signed payload is not a claim", err)
	}

	if verified.Issuer != issuerDomain {
		return nil, protocol.NewError(protocol.ErrCodeIssuerMismatch,
			fmt.Sprintf("expected issuer %s, got %s", issuerDomain, verified.Issuer))
	}

	result.Claim = &verified
	return result, nil
}

// Inspect decodes a JWS without verifying it, returning the claim it
// carries and the kid it names. The result must not be trusted.
func Inspect(token string) (*claim.Claim, string, error) {
	jwsObj, kid, err := parse(token)
	if err != nil {
		return nil, "", err
	}

	var c claim.Claim
	if err := json.Unmarshal(jwsObj.UnsafePayloadWithoutVerification(), &c); err != nil {
		return nil, "", protocol.WrapError(protocol.ErrCodeInvalidFormat, "payload is not a claim", err)
	}
	return &c, kid, nil
}

func parse(token string) (*jose.JSONWebSignature, string, error) {
	jwsObj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{Algorithm})
	if err != nil {
		return nil, "", protocol.WrapError(protocol.ErrCodeSignatureInvalid, "failed to parse JWS", err)
	}
	if len(jwsObj.Signatures) != 1 {
		return nil, "", protocol.NewError(protocol.ErrCodeSignatureInvalid, "JWS must carry exactly one signature")
	}

	kid := jwsObj.Signatures[0].Header.KeyID
	if kid == "" {
		return nil, "", protocol.NewError(protocol.ErrCodeKeyNotFound, "JWS header missing kid")
	}
	return jwsObj, kid, nil
}
