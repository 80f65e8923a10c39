// Package compact implements the HAP compact format: a dot-separated text
// encoding of a reduced claim plus its Ed25519 signature, dense enough for
// URLs and QR codes.
//
//	HAP1.<id>.<method>.<name>.<domain>.<at>.<exp>.<iss>.<sig>
//
// Name, domain and issuer are percent-escaped so that no literal "." ever
// appears inside a field. Timestamps are Unix seconds; an expiration of "0"
// means the claim has none. The signature covers the eight payload fields
// exactly as written, never the structured claim.
package compact

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// FieldCount is the number of dot-separated fields in a compact record.
const FieldCount = 9

var (
	compactRegex = regexp.MustCompile(`^HAP1\.hap_[A-Za-z0-9_]+\.[^.]+\.[^.]+\.[^.]*\.\d+\.\d+\.[^.]+\.[A-Za-z0-9_-]+$`)
	idRegex      = regexp.MustCompile(`^hap_[A-Za-z0-9_]+$`)
)

// Decoded is a compact record split into its claim and signature.
type Decoded struct {
	// Claim is the reduced claim: description, tier and effort dimensions
	// are never present.
	Claim *claim.Claim

	// Signature is the raw Ed25519 signature.
	Signature []byte

	// Payload is the signed text (everything before the final ".").
	Payload string
}

// IsValid reports whether text matches the compact grammar.
func IsValid(text string) bool {
	return compactRegex.MatchString(text)
}

// BuildPayload returns the eight payload fields of c joined by ".". This is
// the exact text that gets signed.
func BuildPayload(c *claim.Claim) (string, error) {
	if err := checkEncodable(c); err != nil {
		return "", err
	}

	exp := int64(0)
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Unix()
		if exp < 0 {
			return "", invalid("expiration precedes the Unix epoch")
		}
	}

	fields := []string{
		protocol.CompactTag,
		c.ID,
		c.Method,
		escapeField(c.To.Name),
		escapeField(c.To.Domain),
		strconv.FormatInt(c.IssuedAt.Unix(), 10),
		strconv.FormatInt(exp, 10),
		escapeField(c.Issuer),
	}
	return strings.Join(fields, "."), nil
}

// Encode returns the compact record for c and its signature over BuildPayload(c).
func Encode(c *claim.Claim, signature []byte) (string, error) {
	payload, err := BuildPayload(c)
	if err != nil {
		return "", err
	}
	if len(signature) == 0 {
		return "", invalid("signature is required")
	}
	return payload + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// Sign builds the payload for c, signs it and returns the compact record.
func Sign(c *claim.Claim, privateKey ed25519.PrivateKey) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("invalid private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKey))
	}

	payload, err := BuildPayload(c)
	if err != nil {
		return "", err
	}

	sig := ed25519.Sign(privateKey, []byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode parses a compact record. Text that does not match the grammar, has
// the wrong field count, carries an unknown version tag, or has fields that
// are undecodable or not in the form Encode writes yields an INVALID_FORMAT
// error.
func Decode(text string) (*Decoded, error) {
	if !IsValid(text) {
		return nil, invalid("text does not match the compact grammar")
	}

	parts := strings.Split(text, ".")
	if len(parts) != FieldCount {
		return nil, invalid(fmt.Sprintf("expected %d fields, got %d", FieldCount, len(parts)))
	}
	if parts[0] != protocol.CompactTag {
		return nil, invalid(fmt.Sprintf("unsupported compact version %q", parts[0]))
	}

	name, err := decodeField(parts[3], "recipient name")
	if err != nil {
		return nil, err
	}
	domain, err := decodeField(parts[4], "recipient domain")
	if err != nil {
		return nil, err
	}
	issuer, err := decodeField(parts[7], "issuer")
	if err != nil {
		return nil, err
	}

	at, err := decodeTimestamp(parts[5], "issuance timestamp")
	if err != nil {
		return nil, err
	}
	exp, err := decodeTimestamp(parts[6], "expiration timestamp")
	if err != nil {
		return nil, err
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[8])
	if err != nil {
		return nil, invalidWrap("failed to decode signature", err)
	}

	c := &claim.Claim{
		Version:  protocol.Version,
		ID:       parts[1],
		To:       claim.Recipient{Name: name, Domain: domain},
		IssuedAt: time.Unix(at, 0).UTC(),
		Issuer:   issuer,
		Method:   parts[2],
	}
	// "0" is reserved for "no expiration".
	if exp != 0 {
		t := time.Unix(exp, 0).UTC()
		c.ExpiresAt = &t
	}

	return &Decoded{
		Claim:     c,
		Signature: sig,
		Payload:   text[:strings.LastIndex(text, ".")],
	}, nil
}

// decodeField unescapes one variable field. Only the exact text
// escapeField would produce is accepted, so every decoded record
// re-encodes byte for byte.
func decodeField(raw, what string) (string, error) {
	v, err := unescapeField(raw)
	if err != nil {
		return "", invalidWrap("failed to decode "+what, err)
	}
	if escapeField(v) != raw {
		return "", invalid(fmt.Sprintf("%s %q is not canonically escaped", what, raw))
	}
	return v, nil
}

// decodeTimestamp parses Unix seconds written without leading zeros.
func decodeTimestamp(raw, what string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidWrap("failed to parse "+what, err)
	}
	if strconv.FormatInt(v, 10) != raw {
		return 0, invalid(fmt.Sprintf("%s %q is not canonical", what, raw))
	}
	return v, nil
}

// checkEncodable rejects claims whose compact form would not parse back.
func checkEncodable(c *claim.Claim) error {
	switch {
	case c == nil:
		return invalid("claim is required")
	case !idRegex.MatchString(c.ID):
		return invalid(fmt.Sprintf("id %q cannot be compact-encoded", c.ID))
	case c.Method == "" || strings.Contains(c.Method, "."):
		return invalid(fmt.Sprintf("method %q cannot be compact-encoded", c.Method))
	case c.To.Name == "":
		return invalid("recipient name is required")
	case c.Issuer == "":
		return invalid("issuer is required")
	case c.IssuedAt.Unix() < 0:
		return invalid("issuance precedes the Unix epoch")
	}
	return nil
}

func invalid(msg string) error {
	return protocol.NewError(protocol.ErrCodeInvalidFormat, msg)
}

func invalidWrap(msg string, err error) error {
	return protocol.WrapError(protocol.ErrCodeInvalidFormat, msg, err)
}
