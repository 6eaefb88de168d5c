package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldorg/coldbot/backend/internal/access"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

func TestRequireSessionAndAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := utils.DiscardLogger()
	admins := access.NewAdminList([]string{"boss@example.com"})

	build := func(sessions SessionProvider) *gin.Engine {
		r := gin.New()
		api := r.Group("/api", RequireSession(sessions, logger))
		api.GET("/me", func(c *gin.Context) {
			identity, ok := CurrentIdentity(c)
			require.True(t, ok)
			c.String(http.StatusOK, identity.Email)
		})
		api.GET("/admin/stats", RequireAdmin(admins, logger), func(c *gin.Context) {
			c.String(http.StatusOK, "stats")
		})
		return r
	}

	w := httptest.NewRecorder()
	build(&stubSessions{}).ServeHTTP(w, httptest.NewRequest("GET", "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = httptest.NewRecorder()
	build(&stubSessions{identity: userIdentity}).ServeHTTP(w, httptest.NewRequest("GET", "/api/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user@example.com", w.Body.String())

	w = httptest.NewRecorder()
	build(&stubSessions{identity: userIdentity}).ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/stats", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	build(&stubSessions{identity: adminIdentity}).ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.NewInMemory(2, time.Minute)

	r := gin.New()
	r.POST("/api/auth/signin", RateLimit(limiter, "auth"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/signin", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/signin", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// the limiter key carries the scope
	assert.False(t, limiter.Allow(context.Background(), "auth:192.0.2.1").Allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 60, RetryAfterSeconds(time.Minute))
	assert.Equal(t, 0, RetryAfterSeconds(0))
}

func TestRequestIDAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog(utils.DiscardLogger()), Recovery(utils.DiscardLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, w.Header().Get("X-Request-ID"), 16)

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
