package hangar

import (
	"context"
	"time"
)

// Credential is a bearer token issued for a scope.
type Credential struct {
	AccessToken string
	Expiry      time.Time
	Scope       string
}

// ValidFor reports whether the credential remains usable for longer than
// margin at now. A zero Expiry is never valid.
func (c Credential) ValidFor(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return false
	}
	return c.Expiry.Sub(now) > margin
}

// CredentialProvider issues bearer tokens. Token blocks while a refresh is
// required. Invalidate discards token if it is still the cached one, so the
// next Token call fetches a fresh credential.
type CredentialProvider interface {
	Token(ctx context.Context) (Credential, error)
	Invalidate(token string)
}
