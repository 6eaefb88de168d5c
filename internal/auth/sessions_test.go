package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "from-cookie", TokenFromRequest(r))
}

func TestSessions_Current(t *testing.T) {
	userID := uuid.New()
	sessions := NewSessions(ResolverFunc(func(_ context.Context, token string) (*Identity, error) {
		if token != "good" {
			return nil, ErrInvalidToken
		}
		return &Identity{ID: userID, Email: "u@example.com"}, nil
	}))

	r := httptest.NewRequest("GET", "/", nil)
	_, err := sessions.Current(r)
	assert.ErrorIs(t, err, ErrNoSession)

	r.Header.Set("Authorization", "Bearer good")
	identity, err := sessions.Current(r)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.ID)

	r.Header.Set("Authorization", "Bearer bad")
	_, err = sessions.Current(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionCookies(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookies(w, &Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}, CookieOptions{Secure: true})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, AccessTokenCookie, cookies[0].Name)
	assert.Equal(t, "access", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, RefreshTokenCookie, cookies[1].Name)

	w = httptest.NewRecorder()
	ClearSessionCookies(w, CookieOptions{})
	for _, c := range w.Result().Cookies() {
		assert.Equal(t, "", c.Value)
		assert.True(t, c.MaxAge < 0)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{Email: "u@example.com"})
	identity, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u@example.com", identity.Email)
}

func TestCookieOptions_AccessLifetime(t *testing.T) {
	opts := CookieOptions{SessionExpiry: 30 * time.Minute}

	long := &Session{ExpiresAt: time.Now().Add(2 * time.Hour).Unix()}
	assert.Equal(t, 30*time.Minute, opts.AccessLifetime(long))

	short := &Session{ExpiresAt: time.Now().Add(10 * time.Minute).Unix()}
	assert.InDelta(t, (10 * time.Minute).Seconds(), opts.AccessLifetime(short).Seconds(), 2)

	expired := &Session{ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	assert.Equal(t, 30*time.Minute, opts.AccessLifetime(expired))
	assert.Equal(t, time.Hour, CookieOptions{}.AccessLifetime(expired))

	w := httptest.NewRecorder()
	SetSessionCookies(w, long, opts)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, 1800, cookies[0].MaxAge)
}
