package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenVerifier validates provider-issued HS256 access tokens locally.
type TokenVerifier struct {
	secret   []byte
	audience string
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret:   []byte(secret),
		audience: "authenticated",
	}
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

func (v *TokenVerifier) Resolve(_ context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(v.audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject UUID", ErrInvalidToken)
	}

	identity := &Identity{
		ID:       userID,
		Email:    claims.Email,
		Role:     claims.Role,
		Metadata: claims.UserMetadata,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}
