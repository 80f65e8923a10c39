package authority_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/capiscio/hap-core/pkg/attestation"
	"github.com/capiscio/hap-core/pkg/authority"
	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/compact"
	"github.com/capiscio/hap-core/pkg/crypto"
	"github.com/capiscio/hap-core/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "ballista.jobs"

func signingKey(t *testing.T, kid string) authority.SigningKey {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return authority.SigningKey{KeyID: kid, PrivateKey: priv}
}

func newAuthority(t *testing.T) *authority.Authority {
	t.Helper()
	key := signingKey(t, "key_002")
	a, err := authority.New(issuer, key, []authority.SigningKey{key, signingKey(t, "key_001")},
		authority.NewMemoryStore(), "https://ballista.jobs/v/")
	require.NoError(t, err)
	return a
}

func issueParams() claim.Params {
	return claim.Params{
		Method:        "ba_priority_mail",
		Description:   "Priority mail packet",
		RecipientName: "Acme Corp",
		Domain:        "acme.com",
		ExpiresInDays: 180,
		Cost:          &claim.Cost{Amount: 1500, Currency: "USD"},
	}
}

func TestNew_Validation(t *testing.T) {
	key := signingKey(t, "key_001")
	store := authority.NewMemoryStore()

	_, err := authority.New("", key, nil, store, "")
	assert.Error(t, err)

	_, err = authority.New(issuer, authority.SigningKey{KeyID: "k"}, nil, store, "")
	assert.Error(t, err)

	_, err = authority.New(issuer, authority.SigningKey{PrivateKey: key.PrivateKey}, nil, store, "")
	assert.Error(t, err)

	_, err = authority.New(issuer, key, nil, nil, "")
	assert.Error(t, err)
}

func TestKeySet_PublishesAllKeys(t *testing.T) {
	a := newAuthority(t)

	set := a.KeySet()
	assert.Equal(t, issuer, set.Issuer)
	require.Len(t, set.Keys, 2)
	assert.Equal(t, "key_002", set.Keys[0].KeyID)
	assert.Equal(t, "key_001", set.Keys[1].KeyID)

	set.Keys[0].KeyID = "mutated"
	assert.Equal(t, "key_002", a.KeySet().Keys[0].KeyID)
}

func TestKeySet_SignerAlwaysPublished(t *testing.T) {
	key := signingKey(t, "key_009")
	a, err := authority.New(issuer, key, []authority.SigningKey{signingKey(t, "key_001")}, authority.NewMemoryStore(), "")
	require.NoError(t, err)

	set := a.KeySet()
	require.Len(t, set.Keys, 2)
	assert.Equal(t, "key_009", set.Keys[0].KeyID)
}

func TestIssue(t *testing.T) {
	a := newAuthority(t)

	issued, err := a.Issue(issueParams())
	require.NoError(t, err)

	assert.True(t, claim.IsValidID(issued.ID))
	assert.Equal(t, issuer, issued.Claim.Issuer)
	assert.Equal(t, protocol.Version, issued.Claim.Version)
	assert.Equal(t, "https://ballista.jobs/v/"+issued.ID, issued.VerifyURL)

	result, err := attestation.VerifySignature(issued.JWS, a.KeySet(), issuer)
	require.NoError(t, err)
	assert.Equal(t, "key_002", result.KeyID)
	assert.Equal(t, issued.Claim, result.Claim)

	compactResult, err := compact.Verify(issued.Compact, a.KeySet().Keys)
	require.NoError(t, err)
	assert.Equal(t, "key_002", compactResult.KeyID)
	assert.Equal(t, issued.ID, compactResult.Claim.ID)

	text, err := compact.ExtractFromURL(a.CompactURL(issued.Compact))
	require.NoError(t, err)
	assert.Equal(t, issued.Compact, text)
}

func TestIssue_TestID(t *testing.T) {
	a := newAuthority(t)
	p := issueParams()
	p.Test = true

	issued, err := a.Issue(p)
	require.NoError(t, err)
	assert.True(t, claim.IsTestID(issued.ID))
}

func TestIssue_Rejects(t *testing.T) {
	a := newAuthority(t)

	p := issueParams()
	p.Method = ""
	_, err := a.Issue(p)
	assert.ErrorIs(t, err, claim.ErrMissingMethod)

	p = issueParams()
	p.Method = "mail.priority"
	_, err = a.Issue(p)
	assert.ErrorIs(t, err, protocol.ErrInvalidFormat)
}

func TestLookup(t *testing.T) {
	a := newAuthority(t)
	issued, err := a.Issue(issueParams())
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		status, rec := a.Lookup(issued.ID)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, rec.Valid)
		assert.Equal(t, issued.JWS, rec.JWS)
		assert.Equal(t, issuer, rec.Issuer)
		assert.Equal(t, issued.VerifyURL, rec.VerifyURL)
	})

	t.Run("not found", func(t *testing.T) {
		status, rec := a.Lookup("hap_zzzzzzzzzzzz")
		assert.Equal(t, http.StatusNotFound, status)
		assert.True(t, rec.IsNotFound())
	})

	t.Run("invalid format", func(t *testing.T) {
		status, rec := a.Lookup("hap_ABCDEFabcdef1234")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.True(t, rec.IsInvalidFormat())
	})

	t.Run("revoked", func(t *testing.T) {
		_, err := a.Revoke(issued.ID, protocol.RevocationUserRequest)
		require.NoError(t, err)

		status, rec := a.Lookup(issued.ID)
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, rec.Valid)
		assert.True(t, rec.Revoked)
		assert.Empty(t, rec.JWS)
		assert.Equal(t, protocol.RevocationUserRequest, rec.RevocationReason)

		_, err = time.Parse(time.RFC3339, rec.RevokedAt)
		assert.NoError(t, err)
	})
}

func TestRevoke_Errors(t *testing.T) {
	a := newAuthority(t)
	issued, err := a.Issue(issueParams())
	require.NoError(t, err)

	_, err = a.Revoke(issued.ID, "bored")
	assert.ErrorIs(t, err, authority.ErrInvalidReason)

	_, err = a.Revoke("hap_zzzzzzzzzzzz", protocol.RevocationFraud)
	assert.ErrorIs(t, err, authority.ErrClaimNotFound)

	_, err = a.Revoke(issued.ID, protocol.RevocationFraud)
	require.NoError(t, err)
	_, err = a.Revoke(issued.ID, protocol.RevocationLegal)
	assert.ErrorIs(t, err, authority.ErrAlreadyRevoked)
}

func TestVerifyURL_Unset(t *testing.T) {
	key := signingKey(t, "key_001")
	a, err := authority.New(issuer, key, nil, authority.NewMemoryStore(), "")
	require.NoError(t, err)

	assert.Empty(t, a.VerifyURL("hap_abc123xyz456"))
	assert.Empty(t, a.CompactURL("HAP1.x"))
}
