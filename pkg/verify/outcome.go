// Package verify composes the trust resolver, the signature verifiers and
// the claim model into a single verification pass that ends in a verified
// claim or a typed rejection.
package verify

import (
	"time"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// Status is the terminal state of a verification.
type Status string

const (
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Stage is the pipeline state in which an outcome was decided.
type Stage string

const (
	StageFetching       Stage = "fetching"
	StageSignatureCheck Stage = "signature_check"
	StagePolicyCheck    Stage = "policy_check"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonInvalidFormat    Reason = "invalid_format"
	ReasonTransportError   Reason = "transport_error"
	ReasonNotFound         Reason = "not_found"
	ReasonRevoked          Reason = "revoked"
	ReasonKeyNotFound      Reason = "key_not_found"
	ReasonSignatureInvalid Reason = "signature_invalid"
	ReasonIssuerMismatch   Reason = "issuer_mismatch"
	ReasonMalformedKey     Reason = "malformed_key"
	ReasonClaimMismatch    Reason = "claim_mismatch"
)

// Outcome is the result of one verification. Every protocol-level
// rejection is an Outcome, never a Go error.
type Outcome struct {
	Status Status `json:"status"`

	// Reason is empty for verified outcomes.
	Reason Reason `json:"reason,omitempty"`

	// Stage is where the pipeline stopped.
	Stage Stage `json:"stage"`

	// Claim is the verified claim. For revoked outcomes it is the VA's
	// informational copy, if the record carried one.
	Claim *claim.Claim `json:"claim,omitempty"`

	// KeyID is the kid that verified the signature.
	KeyID string `json:"kid,omitempty"`

	RevocationReason protocol.RevocationReason `json:"revocationReason,omitempty"`
	RevokedAt        *time.Time                `json:"revokedAt,omitempty"`

	// Expired is reported, not enforced. Whether an expired claim is
	// acceptable is the caller's policy.
	Expired bool `json:"expired,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	// Err is the underlying error behind a rejection, if there was one.
	Err error `json:"-"`
}

// Verified reports whether the outcome is a successful verification.
func (o *Outcome) Verified() bool {
	return o.Status == StatusVerified
}

// Detail returns a human-readable description of the rejection cause.
func (o *Outcome) Detail() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return string(o.Reason)
}

func rejected(stage Stage, reason Reason, err error) *Outcome {
	return &Outcome{
		Status: StatusRejected,
		Reason: reason,
		Stage:  stage,
		Err:    err,
	}
}

// reasonFor maps a component error to a rejection reason. Errors without
// a protocol code come from the resolver's collaborators and count as
// transport failures.
func reasonFor(err error) Reason {
	switch protocol.GetErrorCode(err) {
	case protocol.ErrCodeInvalidFormat:
		return ReasonInvalidFormat
	case protocol.ErrCodeNotFound:
		return ReasonNotFound
	case protocol.ErrCodeRevoked:
		return ReasonRevoked
	case protocol.ErrCodeKeyNotFound:
		return ReasonKeyNotFound
	case protocol.ErrCodeSignatureInvalid:
		return ReasonSignatureInvalid
	case protocol.ErrCodeIssuerMismatch:
		return ReasonIssuerMismatch
	case protocol.ErrCodeMalformedKey:
		return ReasonMalformedKey
	default:
		return ReasonTransportError
	}
}
