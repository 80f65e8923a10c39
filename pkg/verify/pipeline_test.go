package verify_test

import (
	"context"
	"crypto/ed25519"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/capiscio/hap-core/pkg/attestation"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/capiscio/hap-core/pkg/registry"
	"github.com/capiscio/hap-core/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	issuer = "ballista.jobs"
	testID = "hap_abc123xyz456"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) FetchKeys(ctx context.Context, domain string) (*crypto.KeySet, error) {
	args := m.Called(ctx, domain)
	set, _ := args.Get(0).(*crypto.KeySet)
	return set, args.Error(1)
}

func (m *mockResolver) FetchClaim(ctx context.Context, domain, id string) (*registry.ClaimRecord, error) {
	args := m.Called(ctx, domain, id)
	rec, _ := args.Get(0).(*registry.ClaimRecord)
	return rec, args.Error(1)
}

type fixture struct {
	priv ed25519.PrivateKey
	keys *crypto.KeySet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &fixture{
		priv: priv,
		keys: &crypto.KeySet{Issuer: issuer, Keys: []crypto.KeyRecord{crypto.EncodePublicKey(pub, "key_001")}},
	}
}

func testClaim(id string) *claim.Claim {
	exp := time.Date(2024, 7, 25, 8, 0, 0, 0, time.UTC)
	return &claim.Claim{
		ID:        id,
		To:        claim.Recipient{Name: "Acme Corp", Domain: "acme.com"},
		IssuedAt:  time.Date(2024, 1, 25, 8, 0, 0, 0, time.UTC),
		Issuer:    issuer,
		Method:    "ba_priority_mail",
		ExpiresAt: &exp,
		Cost:      &claim.Cost{Amount: 1500, Currency: "USD"},
	}
}

func (f *fixture) record(t *testing.T, c *claim.Claim) *registry.ClaimRecord {
	t.Helper()
	signed, err := attestation.Sign(c, f.priv, "key_001")
	require.NoError(t, err)
	return &registry.ClaimRecord{Valid: true, ID: c.ID, Claim: signed.Claim, JWS: signed.JWS, Issuer: c.Issuer}
}

func newPipeline(t *testing.T, r registry.Resolver) *verify.Pipeline {
	t.Helper()
	p, err := verify.New(r,
		verify.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		verify.WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return p
}

func TestNew_NilResolver(t *testing.T) {
	_, err := verify.New(nil)
	assert.Error(t, err)
}

func TestVerify_Success(t *testing.T) {
	f := newFixture(t)
	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(f.record(t, testClaim(testID)), nil).Once()
	r.On("FetchKeys", mock.Anything, issuer).Return(f.keys, nil).Once()

	outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)

	require.True(t, outcome.Verified(), outcome.Detail())
	assert.Equal(t, verify.StagePolicyCheck, outcome.Stage)
	assert.Equal(t, "key_001", outcome.KeyID)
	assert.Equal(t, testID, outcome.Claim.ID)
	assert.Equal(t, int64(1500), outcome.Claim.Cost.Amount)
	assert.False(t, outcome.Expired)
	assert.Empty(t, outcome.Warnings)
	r.AssertExpectations(t)
}

func TestVerify_TestID(t *testing.T) {
	f := newFixture(t)
	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, "hap_test_abcd1234").Return(f.record(t, testClaim("hap_test_abcd1234")), nil)
	r.On("FetchKeys", mock.Anything, issuer).Return(f.keys, nil)

	outcome := newPipeline(t, r).Verify(context.Background(), "hap_test_abcd1234", issuer)
	assert.True(t, outcome.Verified(), outcome.Detail())
}

func TestVerify_InvalidIDMakesNoNetworkCalls(t *testing.T) {
	r := new(mockResolver)
	p := newPipeline(t, r)

	for _, id := range []string{"hap_ABCDEFabcdef1234", "hap_short", "HAP_abc123xyz456", ""} {
		outcome := p.Verify(context.Background(), id, issuer)
		assert.Equal(t, verify.StatusRejected, outcome.Status, id)
		assert.Equal(t, verify.ReasonInvalidFormat, outcome.Reason, id)
		assert.ErrorIs(t, outcome.Err, protocol.ErrInvalidFormat)
	}

	r.AssertNotCalled(t, "FetchClaim", mock.Anything, mock.Anything, mock.Anything)
	r.AssertNotCalled(t, "FetchKeys", mock.Anything, mock.Anything)
}

func TestVerify_LookupRejections(t *testing.T) {
	tests := []struct {
		name   string
		record *registry.ClaimRecord
		err    error
		reason verify.Reason
	}{
		{"not found", registry.NotFoundRecord(), nil, verify.ReasonNotFound},
		{"invalid format", registry.InvalidFormatRecord(), nil, verify.ReasonInvalidFormat},
		{"transport", nil, protocol.NewError(protocol.ErrCodeTransport, "timeout"), verify.ReasonTransportError},
		{"no signature", &registry.ClaimRecord{Valid: true, ID: testID}, nil, verify.ReasonSignatureInvalid},
		{"no record", nil, nil, verify.ReasonTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(mockResolver)
			r.On("FetchClaim", mock.Anything, issuer, testID).Return(tt.record, tt.err).Once()

			outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)
			assert.Equal(t, verify.StatusRejected, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
			r.AssertNotCalled(t, "FetchKeys", mock.Anything, mock.Anything)
		})
	}
}

func TestVerify_NilRecordIsRejected(t *testing.T) {
	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(nil, nil).Once()

	var outcome *verify.Outcome
	require.NotPanics(t, func() {
		outcome = newPipeline(t, r).Verify(context.Background(), testID, issuer)
	})
	assert.Equal(t, verify.ReasonTransportError, outcome.Reason)
	assert.Equal(t, verify.StageFetching, outcome.Stage)
	assert.Equal(t, protocol.ErrCodeTransport, protocol.GetErrorCode(outcome.Err))
}

func TestVerify_RevokedShortCircuits(t *testing.T) {
	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(&registry.ClaimRecord{
		ID:               testID,
		Revoked:          true,
		RevocationReason: protocol.RevocationFraud,
		RevokedAt:        "2024-02-01T10:00:00Z",
		Issuer:           issuer,
	}, nil).Once()

	outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)

	assert.Equal(t, verify.ReasonRevoked, outcome.Reason)
	assert.Equal(t, protocol.RevocationFraud, outcome.RevocationReason)
	require.NotNil(t, outcome.RevokedAt)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), *outcome.RevokedAt)
	assert.ErrorIs(t, outcome.Err, protocol.ErrRevoked)
	r.AssertNotCalled(t, "FetchKeys", mock.Anything, mock.Anything)
}

func TestVerify_RevokedWithBadTimestamp(t *testing.T) {
	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(&registry.ClaimRecord{
		Revoked: true, RevokedAt: "yesterday",
	}, nil)

	outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)
	assert.Equal(t, verify.ReasonRevoked, outcome.Reason)
	assert.Nil(t, outcome.RevokedAt)
	assert.Len(t, outcome.Warnings, 1)
}

func TestVerify_SignatureRejections(t *testing.T) {
	f := newFixture(t)

	_, otherPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	foreign := testClaim(testID)
	foreign.Issuer = "mallory.example"

	tests := []struct {
		name   string
		record *registry.ClaimRecord
		keys   *crypto.KeySet
		keyErr error
		reason verify.Reason
		stage  verify.Stage
	}{
		{
			name:   "rotated key",
			record: f.record(t, testClaim(testID)),
			keys:   &crypto.KeySet{Issuer: issuer, Keys: []crypto.KeyRecord{crypto.EncodePublicKey(otherPub, "key_002")}},
			reason: verify.ReasonKeyNotFound,
			stage:  verify.StageSignatureCheck,
		},
		{
			name:   "wrong key under same kid",
			record: f.record(t, testClaim(testID)),
			keys:   &crypto.KeySet{Issuer: issuer, Keys: []crypto.KeyRecord{crypto.EncodePublicKey(otherPub, "key_001")}},
			reason: verify.ReasonSignatureInvalid,
			stage:  verify.StageSignatureCheck,
		},
		{
			name:   "malformed key",
			record: f.record(t, testClaim(testID)),
			keys:   &crypto.KeySet{Issuer: issuer, Keys: []crypto.KeyRecord{{KeyID: "key_001", KeyType: "OKP", Curve: "Ed25519", X: "AAAA"}}},
			reason: verify.ReasonMalformedKey,
			stage:  verify.StageSignatureCheck,
		},
		{
			name:   "issuer mismatch",
			record: f.record(t, foreign),
			keys:   f.keys,
			reason: verify.ReasonIssuerMismatch,
			stage:  verify.StageSignatureCheck,
		},
		{
			name:   "key fetch fails",
			record: f.record(t, testClaim(testID)),
			keyErr: protocol.NewError(protocol.ErrCodeTransport, "connection refused"),
			reason: verify.ReasonTransportError,
			stage:  verify.StageFetching,
		},
		{
			name:   "no key set",
			record: f.record(t, testClaim(testID)),
			reason: verify.ReasonKeyNotFound,
			stage:  verify.StageFetching,
		},
		{
			name:   "claim id mismatch",
			record: f.record(t, testClaim("hap_zzz999yyy888")),
			keys:   f.keys,
			reason: verify.ReasonClaimMismatch,
			stage:  verify.StagePolicyCheck,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(mockResolver)
			r.On("FetchClaim", mock.Anything, issuer, testID).Return(tt.record, nil).Once()
			r.On("FetchKeys", mock.Anything, issuer).Return(tt.keys, tt.keyErr).Once()

			outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)
			assert.Equal(t, verify.StatusRejected, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Equal(t, tt.stage, outcome.Stage)
			assert.Error(t, outcome.Err)
			r.AssertExpectations(t)
		})
	}
}

func TestVerify_ExpiredIsReportedNotEnforced(t *testing.T) {
	f := newFixture(t)
	c := testClaim(testID)
	past := now.Add(-time.Second)
	c.ExpiresAt = &past

	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(f.record(t, c), nil)
	r.On("FetchKeys", mock.Anything, issuer).Return(f.keys, nil)

	outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)
	assert.True(t, outcome.Verified())
	assert.True(t, outcome.Expired)
}

func TestVerify_DuplicateKidWarns(t *testing.T) {
	f := newFixture(t)
	_, otherPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	keys := &crypto.KeySet{Issuer: "cdn.ballista.jobs", Keys: append(f.keys.Keys, crypto.EncodePublicKey(otherPub, "key_001"))}

	r := new(mockResolver)
	r.On("FetchClaim", mock.Anything, issuer, testID).Return(f.record(t, testClaim(testID)), nil)
	r.On("FetchKeys", mock.Anything, issuer).Return(keys, nil)

	outcome := newPipeline(t, r).Verify(context.Background(), testID, issuer)
	require.True(t, outcome.Verified(), outcome.Detail())
	assert.Len(t, outcome.Warnings, 2)
}

func TestVerifyCompact(t *testing.T) {
	f := newFixture(t)
	c := testClaim(testID)
	text, err := compact.Sign(c, f.priv)
	require.NoError(t, err)

	t.Run("verified", func(t *testing.T) {
		r := new(mockResolver)
		r.On("FetchKeys", mock.Anything, issuer).Return(f.keys, nil).Once()

		outcome := newPipeline(t, r).VerifyCompact(context.Background(), text)
		require.True(t, outcome.Verified(), outcome.Detail())
		assert.Equal(t, "key_001", outcome.KeyID)
		assert.Equal(t, "acme.com", outcome.Claim.To.Domain)
		assert.Nil(t, outcome.Claim.Cost)
		r.AssertExpectations(t)
		r.AssertNotCalled(t, "FetchClaim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed keys are skipped with a warning", func(t *testing.T) {
		keys := &crypto.KeySet{Issuer: issuer, Keys: append([]crypto.KeyRecord{{KeyID: "broken", X: "!!"}}, f.keys.Keys...)}
		r := new(mockResolver)
		r.On("FetchKeys", mock.Anything, issuer).Return(keys, nil)

		outcome := newPipeline(t, r).VerifyCompact(context.Background(), text)
		require.True(t, outcome.Verified(), outcome.Detail())
		assert.Len(t, outcome.Warnings, 1)
	})

	t.Run("rotated key set", func(t *testing.T) {
		rotated := newFixture(t)
		r := new(mockResolver)
		r.On("FetchKeys", mock.Anything, issuer).Return(rotated.keys, nil)

		outcome := newPipeline(t, r).VerifyCompact(context.Background(), text)
		assert.Equal(t, verify.ReasonSignatureInvalid, outcome.Reason)
	})

	t.Run("garbage makes no network calls", func(t *testing.T) {
		r := new(mockResolver)
		outcome := newPipeline(t, r).VerifyCompact(context.Background(), "HAP1.not-a-record")
		assert.Equal(t, verify.ReasonInvalidFormat, outcome.Reason)
		r.AssertNotCalled(t, "FetchKeys", mock.Anything, mock.Anything)
	})

	t.Run("key fetch fails", func(t *testing.T) {
		r := new(mockResolver)
		r.On("FetchKeys", mock.Anything, issuer).Return(nil, protocol.NewError(protocol.ErrCodeTransport, "down"))

		outcome := newPipeline(t, r).VerifyCompact(context.Background(), text)
		assert.Equal(t, verify.ReasonTransportError, outcome.Reason)
	})
}
