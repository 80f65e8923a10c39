package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capiscio/hap-core/pkg/attestation"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNow overrides the clock used for the expiration report.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline verifies claims against their issuing VA.
//
// Each Verify call performs at most one claim fetch and one key fetch and
// shares no state with other calls; a Pipeline is safe for concurrent use.
// It never caches: wrap the resolver in a registry.CachingResolver to
// trade freshness for fewer key fetches.
type Pipeline struct {
	resolver registry.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a pipeline over resolver.
func New(resolver registry.Resolver, opts ...Option) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New("verify: nil resolver")
	}

	p := &Pipeline{
		resolver: resolver,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Verify checks claim id as issued by domain.
//
// Revocation is checked before any key fetch. Expiration is reported in
// Outcome.Expired but does not cause a rejection.
func (p *Pipeline) Verify(ctx context.Context, id, domain string) *Outcome {
	log := p.logger.With("claim_id", id, "issuer", domain)

	if !claim.IsValidID(id) && !claim.IsTestID(id) {
		log.Debug("rejected id syntax")
		return rejected(StageFetching, ReasonInvalidFormat,
			protocol.NewError(protocol.ErrCodeInvalidFormat, fmt.Sprintf("invalid claim id %q", id)))
	}

	log.Debug("fetching claim record")
	record, err := p.resolver.FetchClaim(ctx, domain, id)
	if err != nil {
		return p.reject(log, StageFetching, err)
	}
	if record == nil {
		return p.reject(log, StageFetching, protocol.NewError(protocol.ErrCodeTransport, "resolver returned no claim record"))
	}

	switch {
	case record.IsNotFound():
		return rejected(StageFetching, ReasonNotFound, protocol.ErrNotFound)
	case record.IsInvalidFormat():
		return rejected(StageFetching, ReasonInvalidFormat,
			protocol.NewError(protocol.ErrCodeInvalidFormat, "issuer rejected the claim id"))
	case record.Revoked:
		return p.revoked(log, record)
	}

	if record.JWS == "" {
		return rejected(StageSignatureCheck, ReasonSignatureInvalid,
			protocol.NewError(protocol.ErrCodeSignatureInvalid, "claim record carries no signature"))
	}

	keys, err := p.fetchKeys(ctx, log, domain)
	if err != nil {
		return p.reject(log, StageFetching, err)
	}

	log.Debug("checking signature")
	result, err := attestation.VerifySignature(record.JWS, keys, domain)
	if err != nil {
		return p.reject(log, StageSignatureCheck, err)
	}
	for _, w := range result.Warnings {
		log.Warn("malformed key publication", "warning", w)
	}

	log.Debug("checking policy")
	outcome := &Outcome{
		Stage:    StagePolicyCheck,
		Claim:    result.Claim,
		KeyID:    result.KeyID,
		Warnings: append(result.Warnings, keySetWarnings(keys, domain)...),
	}

	if result.Claim.ID != id {
		outcome.Status = StatusRejected
		outcome.Reason = ReasonClaimMismatch
		outcome.Err = fmt.Errorf("signed claim id %q does not match requested id %q", result.Claim.ID, id)
		log.Info("verification rejected", "reason", outcome.Reason)
		return outcome
	}

	outcome.Status = StatusVerified
	outcome.Expired = result.Claim.IsExpired(p.now())
	log.Info("claim verified", "kid", result.KeyID, "expired", outcome.Expired)
	return outcome
}

// VerifyCompact checks a compact record against the current key set of the
// issuer it names. Exactly one key fetch is made; no claim fetch, so
// revocation is not visible to compact verification.
func (p *Pipeline) VerifyCompact(ctx context.Context, text string) *Outcome {
	decoded, err := compact.Decode(text)
	if err != nil {
		p.logger.Debug("rejected compact syntax", "error", err)
		return rejected(StageFetching, ReasonInvalidFormat, err)
	}

	issuer := decoded.Claim.Issuer
	log := p.logger.With("claim_id", decoded.Claim.ID, "issuer", issuer)

	keys, err := p.fetchKeys(ctx, log, issuer)
	if err != nil {
		return p.reject(log, StageFetching, err)
	}

	log.Debug("checking compact signature")
	result, err := compact.VerifyDecoded(decoded, keys.Keys)
	if err != nil {
		return p.reject(log, StageSignatureCheck, err)
	}

	outcome := &Outcome{
		Status:   StatusVerified,
		Stage:    StagePolicyCheck,
		Claim:    result.Claim,
		KeyID:    result.KeyID,
		Expired:  result.Claim.IsExpired(p.now()),
		Warnings: keySetWarnings(keys, issuer),
	}
	for _, kid := range result.Skipped {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("skipped malformed key %q", kid))
	}
	log.Info("compact claim verified", "kid", result.KeyID, "expired", outcome.Expired)
	return outcome
}

func (p *Pipeline) fetchKeys(ctx context.Context, log *slog.Logger, domain string) (*crypto.KeySet, error) {
	log.Debug("fetching keys")
	keys, err := p.resolver.FetchKeys(ctx, domain)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, protocol.NewError(protocol.ErrCodeKeyNotFound, fmt.Sprintf("%s published no keys", domain))
	}
	return keys, nil
}

func (p *Pipeline) reject(log *slog.Logger, stage Stage, err error) *Outcome {
	outcome := rejected(stage, reasonFor(err), err)
	log.Info("verification rejected", "stage", stage, "reason", outcome.Reason, "error", err)
	return outcome
}

func (p *Pipeline) revoked(log *slog.Logger, record *registry.ClaimRecord) *Outcome {
	outcome := rejected(StageFetching, ReasonRevoked, protocol.ErrRevoked)
	outcome.Claim = record.Claim
	outcome.RevocationReason = record.RevocationReason

	if record.RevokedAt != "" {
		at, err := time.Parse(time.RFC3339, record.RevokedAt)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("unparseable revocation time %q", record.RevokedAt))
		} else {
			at = at.UTC()
			outcome.RevokedAt = &at
		}
	}

	log.Info("claim revoked", "revocation_reason", record.RevocationReason)
	return outcome
}

// keySetWarnings flags a key document whose declared issuer is not the
// domain it was served from.
func keySetWarnings(keys *crypto.KeySet, domain string) []string {
	if keys.Issuer != "" && keys.Issuer != domain {
		return []string{fmt.Sprintf("key set declares issuer %q but was fetched for %q", keys.Issuer, domain)}
	}
	return nil
}
