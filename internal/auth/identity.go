// Package auth talks to the identity provider and turns request tokens
// into identities.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid access token")
)

// Identity is the authenticated caller.
type Identity struct {
	ID        uuid.UUID              `json:"id"`
	Email     string                 `json:"email"`
	Role      string                 `json:"role,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ExpiresAt time.Time              `json:"expires_at,omitempty"`
}

// Resolver maps an access token to its identity.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (*Identity, error)
}

type ResolverFunc func(ctx context.Context, accessToken string) (*Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, accessToken string) (*Identity, error) {
	return f(ctx, accessToken)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
