// Package auth mints and restores the short-lived delegate credentials the
// orchestrator acts with on behalf of a job's owner (spec §3, §9). Real
// token issuance (the actual identity provider) is out of scope; this
// package gives the internal auth issuer a concrete, testable shape: an
// AES-encrypted, time-bounded token built from the owner identity, using
// the teacher's crypter package the way tcp.TcpMessage uses it to protect
// frame bodies.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"orchestrator/crypter"
	"orchestrator/job"
)

// DefaultSessionTTL is how long a minted delegate session is honored
// before the per-task prologue must restore it (spec §4.4.2 step 3).
const DefaultSessionTTL = 15 * time.Minute

// Issuer mints and validates delegate sessions.
type Issuer struct {
	crypt crypter.Crypter
	ttl   time.Duration
}

// NewIssuer builds an Issuer. aesKey/aesIv must be 16/24/32 and 16 bytes
// respectively (see crypter.NewAes).
func NewIssuer(aesKey, aesIv string, ttl time.Duration) (*Issuer, error) {
	crypt, err := crypter.NewAes(aesKey, aesIv)
	if err != nil {
		return nil, errors.Errorf("auth: build crypter: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Issuer{crypt: crypt, ttl: ttl}, nil
}

type claims struct {
	UserID    string    `json:"userId"`
	Tenant    string    `json:"tenant"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue mints a new delegate credential scoped to owner.
func (i *Issuer) Issue(owner job.Identity) (*job.Credentials, error) {
	now := time.Now()
	c := claims{
		UserID:    owner.UserID,
		Tenant:    owner.Tenant,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Errorf("auth: marshal claims: %w", err)
	}
	enc, err := i.crypt.EnCrypt(b)
	if err != nil {
		return nil, errors.Errorf("auth: encrypt claims: %w", err)
	}

	return &job.Credentials{
		Token:     base64.StdEncoding.EncodeToString(enc),
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}, nil
}

// Verify decodes and validates a previously issued token, returning the
// owner identity it was minted for.
func (i *Issuer) Verify(token string) (job.Identity, error) {
	enc, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return job.Identity{}, errors.Errorf("auth: decode token: %w", err)
	}
	dec, err := i.crypt.DeCrypt(enc)
	if err != nil {
		return job.Identity{}, errors.Errorf("auth: decrypt token: %w", err)
	}
	var c claims
	if err := json.Unmarshal(dec, &c); err != nil {
		return job.Identity{}, errors.Errorf("auth: unmarshal claims: %w", err)
	}
	if time.Now().After(c.ExpiresAt) {
		return job.Identity{}, errors.New("auth: token expired")
	}
	return job.Identity{UserID: c.UserID, Tenant: c.Tenant}, nil
}

// RestoreFunc adapts Issue to the signature job.State.Restore expects.
func (i *Issuer) RestoreFunc() func(job.Identity) (*job.Credentials, error) {
	return i.Issue
}
