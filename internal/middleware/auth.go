package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

const identityContextKey = "identity"

func setIdentity(c *gin.Context, identity *auth.Identity) {
	c.Set(identityContextKey, identity)
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
}

// CurrentIdentity returns the identity stored by the gate or RequireSession.
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok && identity != nil
}

// RequireSession rejects API calls without a valid session with 401.
func RequireSession(sessions SessionProvider, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := sessions.Current(c.Request)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrInvalidToken) {
				logger.WithError(err).Warn("Session lookup failed")
			}
			utils.AbortWithError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		setIdentity(c, identity)
		c.Next()
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin(admins AdminChecker, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !admins.IsAdmin(identity.Email) {
			logger.WithFields(logrus.Fields{
				"email": identity.Email,
				"path":  c.Request.URL.Path,
			}).Warn("Unauthorized admin access attempt")
			utils.AbortWithError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}
