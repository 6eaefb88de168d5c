package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	CodeVerifierCookie = "sb-code-verifier"
)

// Sessions finds the caller's identity from the request.
type Sessions struct {
	resolver Resolver
}

func NewSessions(resolver Resolver) *Sessions {
	return &Sessions{resolver: resolver}
}

// Current returns the identity behind the request's access token, or
// ErrNoSession when the request carries none.
func (s *Sessions) Current(r *http.Request) (*Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, ErrNoSession
	}
	return s.resolver.Resolve(r.Context(), token)
}

// Lookup resolves a raw access token.
func (s *Sessions) Lookup(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	return s.resolver.Resolve(ctx, token)
}

// TokenFromRequest prefers the Authorization bearer token over the cookie.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// CookieOptions controls the attributes of the session cookies.
type CookieOptions struct {
	Secure bool
	// MaxAge bounds the refresh token cookie.
	MaxAge time.Duration
	// SessionExpiry caps the access token cookie and is the lifetime used
	// when the provider reports none.
	SessionExpiry time.Duration
}

// AccessLifetime is how long the access cookie of session stays valid.
func (o CookieOptions) AccessLifetime(session *Session) time.Duration {
	remaining := time.Until(session.Expiry())
	switch {
	case remaining <= 0 && o.SessionExpiry > 0:
		return o.SessionExpiry
	case remaining <= 0:
		return time.Hour
	case o.SessionExpiry > 0 && remaining > o.SessionExpiry:
		return o.SessionExpiry
	}
	return remaining
}

func (o CookieOptions) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func SetSessionCookies(w http.ResponseWriter, session *Session, opts CookieOptions) {
	accessAge := int(opts.AccessLifetime(session).Seconds())
	http.SetCookie(w, opts.cookie(AccessTokenCookie, session.AccessToken, accessAge))

	if session.RefreshToken != "" {
		refreshAge := int(opts.MaxAge.Seconds())
		if refreshAge <= 0 {
			refreshAge = 7 * 24 * 3600
		}
		http.SetCookie(w, opts.cookie(RefreshTokenCookie, session.RefreshToken, refreshAge))
	}
}

func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, opts.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, opts.cookie(RefreshTokenCookie, "", -1))
}

// SetCodeVerifierCookie keeps the PKCE verifier until the callback.
func SetCodeVerifierCookie(w http.ResponseWriter, verifier string, opts CookieOptions) {
	http.SetCookie(w, opts.cookie(CodeVerifierCookie, verifier, 600))
}

func ClearCodeVerifierCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, opts.cookie(CodeVerifierCookie, "", -1))
}
