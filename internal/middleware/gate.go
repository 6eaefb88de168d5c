package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
)

// SessionProvider returns the identity behind a request.
type SessionProvider interface {
	Current(r *http.Request) (*auth.Identity, error)
}

// AdminChecker decides admin membership from an email.
type AdminChecker interface {
	IsAdmin(email string) bool
}

type Action int

const (
	Pass Action = iota
	RedirectLogin
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "pass"
	}
}

// Outcome is what the gate does with one request.
type Outcome struct {
	Action   Action
	Location string
	// SecurityHeaders is set when an authenticated request passes.
	SecurityHeaders bool
	// Identity is the session found, if any was looked up.
	Identity *auth.Identity
	// DeniedAdmin marks a signed-in user turned away from an admin path.
	DeniedAdmin bool
}

type GateConfig struct {
	IgnoredPrefixes []string
	PublicPaths     []string
	AdminPrefix     string
	LoginPath       string
	HomePath        string
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		IgnoredPrefixes: []string{"/_next", "/images", "/static", "/favicon.ico", "/api/", "/healthz"},
		PublicPaths:     []string{"/login", "/auth/callback", "/auth/confirm", "/auth/reset-password"},
		AdminPrefix:     "/admin",
		LoginPath:       "/login",
		HomePath:        "/",
	}
}

var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Permissions-Policy":     "camera=(), microphone=(), geolocation=(), interest-cohort=()",
}

// Gate guards page routes. The first matching rule wins:
// ignored prefixes, public paths, missing session, admin prefix, pass.
type Gate struct {
	config GateConfig
	public map[string]bool
	admins AdminChecker
	logger *logrus.Logger
}

func NewGate(config GateConfig, admins AdminChecker, logger *logrus.Logger) *Gate {
	public := make(map[string]bool, len(config.PublicPaths))
	for _, p := range config.PublicPaths {
		public[p] = true
	}
	return &Gate{
		config: config,
		public: public,
		admins: admins,
		logger: logger,
	}
}

// Decide evaluates the rules for path. session is called at most once and
// never for ignored paths; a lookup error counts as no session.
func (g *Gate) Decide(path string, session func() (*auth.Identity, error)) Outcome {
	for _, prefix := range g.config.IgnoredPrefixes {
		if strings.HasPrefix(path, prefix) {
			return Outcome{Action: Pass}
		}
	}

	identity, err := session()
	if err != nil {
		identity = nil
	}

	if g.public[path] {
		if identity != nil {
			return Outcome{Action: RedirectHome, Location: g.config.HomePath, Identity: identity}
		}
		return Outcome{Action: Pass}
	}

	if identity == nil {
		return Outcome{Action: RedirectLogin, Location: g.loginLocation(path)}
	}

	if strings.HasPrefix(path, g.config.AdminPrefix) && !g.admins.IsAdmin(identity.Email) {
		return Outcome{Action: RedirectHome, Location: g.config.HomePath, Identity: identity, DeniedAdmin: true}
	}

	return Outcome{Action: Pass, SecurityHeaders: true, Identity: identity}
}

func (g *Gate) loginLocation(path string) string {
	// "/" is legal in a query value; keep return targets readable.
	target := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return g.config.LoginPath + "?redirectTo=" + target
}

// Handler adapts the gate to gin. It always produces a pass or a redirect.
func (g *Gate) Handler(sessions SessionProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		outcome := g.Decide(path, func() (*auth.Identity, error) {
			identity, err := sessions.Current(c.Request)
			if err != nil && !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrInvalidToken) {
				g.logger.WithError(err).WithField("path", path).Warn("Session lookup failed, treating as signed out")
			}
			return identity, err
		})

		if outcome.DeniedAdmin {
			g.logger.WithFields(logrus.Fields{
				"email": outcome.Identity.Email,
				"path":  path,
			}).Warn("Unauthorized admin access attempt")
		}

		switch outcome.Action {
		case RedirectLogin, RedirectHome:
			c.Redirect(http.StatusTemporaryRedirect, outcome.Location)
			c.Abort()
			return
		}

		if outcome.Identity != nil {
			setIdentity(c, outcome.Identity)
		}
		if outcome.SecurityHeaders {
			for name, value := range securityHeaders {
				c.Header(name, value)
			}
		}
		c.Next()
	}
}
