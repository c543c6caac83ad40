package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const refreshTokenBytes = 32

// Refresh is an opaque single-use credential for minting new access tokens.
// Rotation sets RevokedOn; entries are never deleted so the chain stays auditable.
type Refresh struct {
	Token     string
	CreatedOn time.Time
	ExpiresOn time.Time
	RevokedOn *time.Time
}

// Expired reports whether the token's expiry has passed at the given instant.
func (r Refresh) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresOn)
}

// Active reports whether the token is neither expired nor revoked.
func (r Refresh) Active(now time.Time) bool {
	return !r.Expired(now) && r.RevokedOn == nil
}

// NewRefresh mints a refresh token from the CSPRNG, valid from now for ttl.
func NewRefresh(now time.Time, ttl time.Duration) (Refresh, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return Refresh{}, fmt.Errorf("read random bytes: %w", err)
	}

	return Refresh{
		Token:     base64.StdEncoding.EncodeToString(raw),
		CreatedOn: now,
		ExpiresOn: now.Add(ttl),
	}, nil
}
