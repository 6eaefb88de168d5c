package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/database"
)

// CachingResolver remembers resolved identities for ttl, never past the
// token's own expiry. Failed resolutions are not cached.
type CachingResolver struct {
	next   Resolver
	cache  *database.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

func NewCachingResolver(next Resolver, cache *database.Cache, ttl time.Duration, logger *logrus.Logger) *CachingResolver {
	return &CachingResolver{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	if r.ttl <= 0 || !r.cache.Enabled() {
		return r.next.Resolve(ctx, accessToken)
	}

	key := fmt.Sprintf(database.IdentityKey, HashToken(accessToken))

	var cached Identity
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		if cached.ExpiresAt.IsZero() || r.now().Before(cached.ExpiresAt) {
			return &cached, nil
		}
	} else if !errors.Is(err, database.ErrCacheMiss) {
		r.logger.WithError(err).Warn("Identity cache read failed")
	}

	identity, err := r.next.Resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if identity.ExpiresAt.IsZero() {
		identity.ExpiresAt = tokenExpiry(accessToken)
	}

	ttl := r.ttl
	if !identity.ExpiresAt.IsZero() {
		if remaining := identity.ExpiresAt.Sub(r.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := r.cache.Set(ctx, key, identity, ttl); err != nil {
			r.logger.WithError(err).Warn("Identity cache write failed")
		}
	}
	return identity, nil
}

// tokenExpiry reads exp without verifying the signature. The token has
// just been accepted by the provider; this only bounds the cache lifetime.
func tokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}

// HashToken computes the SHA-256 hash of a token as a hex string, so raw
// tokens never become cache keys.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
