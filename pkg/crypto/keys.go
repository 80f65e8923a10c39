// Package crypto provides the HAP key codec: conversion between raw Ed25519
// key material, published key records and JWK files, plus the canonical
// byte form claims are signed over.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/go-jose/go-jose/v4"
)

// Key type and curve of every HAP key record.
const (
	KeyTypeOKP   = "OKP"
	CurveEd25519 = "Ed25519"
)

// KeyRecord is a published Ed25519 public key.
type KeyRecord struct {
	KeyID   string `json:"kid"`
	KeyType string `json:"kty"`
	Curve   string `json:"crv"`
	X       string `json:"x"`
}

// KeySet is the document a VA serves at /.well-known/hap.json.
type KeySet struct {
	Issuer string      `json:"issuer"`
	Keys   []KeyRecord `json:"keys"`
}

// Find returns the first record with the given kid, in publication order,
// and the number of records that share it. A count above one means the
// publication is malformed.
func (s *KeySet) Find(kid string) (*KeyRecord, int) {
	var (
		found *KeyRecord
		count int
	)
	for i := range s.Keys {
		if s.Keys[i].KeyID != kid {
			continue
		}
		if found == nil {
			found = &s.Keys[i]
		}
		count++
	}
	return found, count
}

// GenerateKeyPair generates a new Ed25519 key pair for signing claims.
func GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return priv, pub, nil
}

// EncodePublicKey converts raw Ed25519 public key bytes into a key record.
func EncodePublicKey(pub ed25519.PublicKey, kid string) KeyRecord {
	return KeyRecord{
		KeyID:   kid,
		KeyType: KeyTypeOKP,
		Curve:   CurveEd25519,
		X:       base64.RawURLEncoding.EncodeToString(pub),
	}
}

// DecodePublicKey recovers the raw Ed25519 public key from a key record.
// The x value may be unpadded or correctly padded base64url; anything else,
// including a decoded length other than 32 bytes, is a MALFORMED_KEY error.
func DecodePublicKey(rec KeyRecord) (ed25519.PublicKey, error) {
	if rec.KeyType != KeyTypeOKP || rec.Curve != CurveEd25519 {
		return nil, protocol.NewError(protocol.ErrCodeMalformedKey,
			fmt.Sprintf("key %q: unsupported key type %s/%s", rec.KeyID, rec.KeyType, rec.Curve))
	}

	raw, err := decodeBase64URL(rec.X)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrCodeMalformedKey, fmt.Sprintf("key %q: invalid encoding", rec.KeyID), err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, protocol.NewError(protocol.ErrCodeMalformedKey,
			fmt.Sprintf("key %q: expected %d bytes, got %d", rec.KeyID, ed25519.PublicKeySize, len(raw)))
	}
	return ed25519.PublicKey(raw), nil
}

// decodeBase64URL decodes strictly, accepting either no padding or exactly
// the padding the input length requires.
func decodeBase64URL(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.Strict().DecodeString(s)
	}
	return base64.RawURLEncoding.Strict().DecodeString(s)
}

// JSONWebKey converts the record into a go-jose public JWK.
func (r KeyRecord) JSONWebKey() (jose.JSONWebKey, error) {
	pub, err := DecodePublicKey(r)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	return jose.JSONWebKey{
		Key:       pub,
		KeyID:     r.KeyID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}, nil
}

// FromJSONWebKey converts an Ed25519 JWK (public or private) into a key record.
func FromJSONWebKey(jwk jose.JSONWebKey) (KeyRecord, error) {
	switch k := jwk.Key.(type) {
	case ed25519.PublicKey:
		return EncodePublicKey(k, jwk.KeyID), nil
	case ed25519.PrivateKey:
		return EncodePublicKey(k.Public().(ed25519.PublicKey), jwk.KeyID), nil
	default:
		return KeyRecord{}, protocol.NewError(protocol.ErrCodeMalformedKey,
			fmt.Sprintf("key %q is not an Ed25519 key", jwk.KeyID))
	}
}

// MarshalPrivateKeyJWK serializes a private key as an indented JWK.
func MarshalPrivateKeyJWK(priv ed25519.PrivateKey, kid string) ([]byte, error) {
	jwk := jose.JSONWebKey{
		Key:       priv,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
	return json.MarshalIndent(jwk, "", "  ")
}

// LoadPrivateKeyJWK reads an Ed25519 private key and its kid from a JWK file.
func LoadPrivateKeyJWK(path string) (ed25519.PrivateKey, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read private key file: %w", err)
	}

	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, "", fmt.Errorf("failed to parse private JWK: %w", err)
	}

	priv, ok := jwk.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("key in %s is not an Ed25519 private key", path)
	}
	if jwk.KeyID == "" {
		return nil, "", fmt.Errorf("key in %s has no kid", path)
	}
	return priv, jwk.KeyID, nil
}
