// Package claim defines the HAP claim: the fact a Verification Authority
// attests about effort a sender spent before contacting a recipient.
package claim

import (
	"errors"
	"time"

	"github.com/capiscio/hap-core/pkg/protocol"
)

// Recipient identifies who the sender contacted.
type Recipient struct {
	// Name is the recipient's display name (e.g., "Acme Corp").
	Name string `json:"name"`

	// Domain is the recipient's domain, if known (e.g., "acme.com").
	Domain string `json:"domain,omitempty"`
}

// Cost is a monetary effort dimension.
type Cost struct {
	// Amount is in the smallest currency unit (e.g., cents).
	Amount int64 `json:"amount"`

	// Currency is an ISO 4217 code.
	Currency string `json:"currency"`
}

// Claim is a HAP claim. Optional fields are pointers or omitted when empty;
// a VA populates only the effort dimensions it can verify.
type Claim struct {
	// Version is the protocol version ("v").
	Version string `json:"v"`

	// ID is the claim identifier (hap_XXXXXXXXXXXX).
	ID string `json:"id"`

	// To is the recipient of the attested effort.
	To Recipient `json:"to"`

	// IssuedAt is when the VA issued the claim.
	IssuedAt time.Time `json:"at"`

	// Issuer is the VA domain (e.g., "ballista.jobs").
	Issuer string `json:"iss"`

	// Method is the VA-defined verification method identifier.
	Method string `json:"method"`

	// Description is a human-readable description of the method.
	Description string `json:"description,omitempty"`

	// ExpiresAt is when the claim stops being meaningful, if ever.
	ExpiresAt *time.Time `json:"exp,omitempty"`

	// Tier is an optional VA service tier.
	Tier string `json:"tier,omitempty"`

	// Cost is the money the sender spent.
	Cost *Cost `json:"cost,omitempty"`

	// Time is exclusive time spent, in seconds.
	Time *int64 `json:"time,omitempty"`

	// Physical reports whether a physical-world action was involved.
	Physical *bool `json:"physical,omitempty"`

	// Energy is energy expended, in kilocalories.
	Energy *int64 `json:"energy,omitempty"`
}

// Validation errors returned by Validate.
var (
	ErrMissingID        = errors.New("claim id is required")
	ErrMissingIssuer    = errors.New("claim issuer is required")
	ErrMissingRecipient = errors.New("claim recipient name is required")
	ErrMissingIssuedAt  = errors.New("claim issuance time is required")
	ErrMissingMethod    = errors.New("claim method is required")
)

// Validate checks the fields every claim must carry.
func (c *Claim) Validate() error {
	switch {
	case c.ID == "":
		return ErrMissingID
	case c.Issuer == "":
		return ErrMissingIssuer
	case c.To.Name == "":
		return ErrMissingRecipient
	case c.IssuedAt.IsZero():
		return ErrMissingIssuedAt
	case c.Method == "":
		return ErrMissingMethod
	}
	return nil
}

// IsExpired reports whether the claim carries an expiration strictly before now.
// A claim without an expiration never expires.
func (c *Claim) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now)
}

// MatchesRecipient reports whether the claim's recipient domain is present and
// equal to domain. The comparison is exact and case-sensitive.
func (c *Claim) MatchesRecipient(domain string) bool {
	if c.To.Domain == "" {
		return false
	}
	return c.To.Domain == domain
}

// HasEffort reports whether any effort dimension is populated.
func (c *Claim) HasEffort() bool {
	return c.Cost != nil || c.Time != nil || c.Physical != nil || c.Energy != nil
}

// Params contains the inputs for New.
type Params struct {
	Method        string
	Description   string
	RecipientName string
	Domain        string
	Tier          string
	Issuer        string
	ExpiresInDays int
	Cost          *Cost
	Time          *int64
	Physical      *bool
	Energy        *int64

	// Test issues a hap_test_ identifier.
	Test bool

	// Now overrides the issuance clock (for testing).
	Now func() time.Time
}

// New creates a claim with a fresh identifier issued now. Timestamps are
// truncated to whole seconds in UTC so the claim survives compact encoding.
func New(p Params) (*Claim, error) {
	var (
		id  string
		err error
	)
	if p.Test {
		id, err = GenerateTestID()
	} else {
		id, err = GenerateID()
	}
	if err != nil {
		return nil, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	at := Timestamp(now())

	c := &Claim{
		Version:     protocol.Version,
		ID:          id,
		To:          Recipient{Name: p.RecipientName, Domain: p.Domain},
		IssuedAt:    at,
		Issuer:      p.Issuer,
		Method:      p.Method,
		Description: p.Description,
		Tier:        p.Tier,
		Cost:        p.Cost,
		Time:        p.Time,
		Physical:    p.Physical,
		Energy:      p.Energy,
	}

	if p.ExpiresInDays > 0 {
		exp := at.AddDate(0, 0, p.ExpiresInDays)
		c.ExpiresAt = &exp
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Timestamp normalizes t to the precision claims carry: whole seconds, UTC.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
