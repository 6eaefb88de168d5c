package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

const minPasswordLength = 6

// AuthProvider is the subset of the identity provider the auth routes use.
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo, codeChallenge string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error
	VerifyOTP(ctx context.Context, tokenHash, otpType string) (*auth.Session, error)
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type ProfileToucher interface {
	Touch(ctx context.Context, id uuid.UUID, email string, at time.Time) error
}

type AuthHandler struct {
	provider AuthProvider
	captcha  CaptchaVerifier
	profiles ProfileToucher
	admins   middleware.AdminChecker
	siteURL  string
	cookies  auth.CookieOptions
	logger   *logrus.Logger
}

func NewAuthHandler(
	provider AuthProvider,
	captcha CaptchaVerifier,
	profiles ProfileToucher,
	admins middleware.AdminChecker,
	siteURL string,
	cookies auth.CookieOptions,
	logger *logrus.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		captcha:  captcha,
		profiles: profiles,
		admins:   admins,
		siteURL:  strings.TrimRight(siteURL, "/"),
		cookies:  cookies,
		logger:   logger,
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (h *AuthHandler) verifyCaptcha(c *gin.Context, token string) bool {
	if err := h.captcha.Verify(c.Request.Context(), token, c.ClientIP()); err != nil {
		h.logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Captcha rejected")
		utils.ErrorResponse(c, http.StatusBadRequest, "Captcha verification failed", "captchaToken")
		return false
	}
	return true
}

// providerRejected reports whether err is the provider refusing the
// request, as opposed to the provider being unreachable.
func providerRejected(err error) (*auth.APIError, bool) {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		return apiErr, true
	}
	return nil, false
}

// startSession stores the session cookies and records the sign-in.
func (h *AuthHandler) startSession(c *gin.Context, session *auth.Session) (*models.SessionResponse, error) {
	if session.User == nil {
		return nil, auth.ErrInvalidToken
	}
	caller, err := session.User.Identity()
	if err != nil {
		return nil, err
	}

	auth.SetSessionCookies(c.Writer, session, h.cookies)
	if err := h.profiles.Touch(c.Request.Context(), caller.ID, caller.Email, time.Now().UTC()); err != nil {
		h.logger.WithError(err).WithField("user_id", caller.ID).Warn("Failed to update user profile")
	}

	return &models.SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.Expiry(),
		ExpiresIn:    int(h.cookies.AccessLifetime(session).Seconds()),
		UserID:       caller.ID.String(),
		Email:        caller.Email,
		IsAdmin:      h.admins.IsAdmin(caller.Email),
	}, nil
}

func (h *AuthHandler) HandleSignIn(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) || req.Password == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Email and password are required", "email")
		return
	}
	if !h.verifyCaptcha(c, req.CaptchaToken) {
		return
	}

	session, err := h.provider.SignInWithPassword(c.Request.Context(), email, req.Password)
	if err != nil {
		if _, ok := providerRejected(err); ok {
			h.logger.WithField("email", email).Info("Sign-in rejected")
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid email or password", "")
			return
		}
		h.logger.WithError(err).Error("Sign-in failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}

	resp, err := h.startSession(c, session)
	if err != nil {
		h.logger.WithError(err).Error("Provider returned an unusable session")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}
	h.logger.WithField("user_id", resp.UserID).Info("User signed in")
	utils.SuccessResponse(c, http.StatusOK, "Signed in", resp)
}

func (h *AuthHandler) HandleSignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		utils.ErrorResponse(c, http.StatusBadRequest, "A valid email is required", "email")
		return
	}
	if len(req.Password) < minPasswordLength {
		utils.ErrorResponse(c, http.StatusBadRequest, "Password must be at least 6 characters", "password")
		return
	}
	if !h.verifyCaptcha(c, req.CaptchaToken) {
		return
	}

	verifier, err := auth.NewCodeVerifier()
	if err != nil {
		respondError(c, h.logger, err, "Sign-up")
		return
	}

	session, err := h.provider.SignUp(c.Request.Context(), email, req.Password, h.siteURL+"/api/auth/callback", auth.CodeChallenge(verifier))
	if err != nil {
		if apiErr, ok := providerRejected(err); ok {
			utils.ErrorResponse(c, http.StatusBadRequest, "Sign-up rejected", apiErr.Message)
			return
		}
		h.logger.WithError(err).Error("Sign-up failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}

	if session.AccessToken == "" {
		auth.SetCodeVerifierCookie(c.Writer, verifier, h.cookies)
		h.logger.WithField("email", email).Info("Sign-up pending email confirmation")
		utils.SuccessResponse(c, http.StatusOK, "Check your email to confirm your account", nil)
		return
	}

	resp, err := h.startSession(c, session)
	if err != nil {
		h.logger.WithError(err).Error("Provider returned an unusable session")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Signed up", resp)
}

func (h *AuthHandler) HandleSignOut(c *gin.Context) {
	if token := auth.TokenFromRequest(c.Request); token != "" {
		if err := h.provider.SignOut(c.Request.Context(), token); err != nil {
			h.logger.WithError(err).Warn("Provider sign-out failed")
		}
	}
	auth.ClearSessionCookies(c.Writer, h.cookies)
	utils.SuccessResponse(c, http.StatusOK, "Signed out", nil)
}

func (h *AuthHandler) HandleRefresh(c *gin.Context) {
	var req models.RefreshRequest
	_ = c.ShouldBindJSON(&req)

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if cookie, err := c.Cookie(auth.RefreshTokenCookie); err == nil {
			token = cookie
		}
	}
	if token == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	session, err := h.provider.RefreshSession(c.Request.Context(), token)
	if err != nil {
		if _, ok := providerRejected(err); ok {
			auth.ClearSessionCookies(c.Writer, h.cookies)
			utils.ErrorResponse(c, http.StatusUnauthorized, "Session expired", "")
			return
		}
		h.logger.WithError(err).Error("Session refresh failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}

	resp, err := h.startSession(c, session)
	if err != nil {
		h.logger.WithError(err).Error("Provider returned an unusable session")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session refreshed", resp)
}

// HandleResetPassword always answers the same way for known and unknown
// addresses.
func (h *AuthHandler) HandleResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		utils.ErrorResponse(c, http.StatusBadRequest, "A valid email is required", "email")
		return
	}
	if !h.verifyCaptcha(c, req.CaptchaToken) {
		return
	}

	verifier, err := auth.NewCodeVerifier()
	if err != nil {
		respondError(c, h.logger, err, "Password reset")
		return
	}

	redirectTo := h.siteURL + "/api/auth/callback?next=/auth/reset-password"
	err = h.provider.ResetPasswordForEmail(c.Request.Context(), email, redirectTo, auth.CodeChallenge(verifier))
	if err != nil {
		if _, ok := providerRejected(err); !ok {
			h.logger.WithError(err).Error("Password reset failed")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable", "")
			return
		}
		h.logger.WithError(err).WithField("email", email).Info("Password reset rejected by provider")
	}

	auth.SetCodeVerifierCookie(c.Writer, verifier, h.cookies)
	utils.SuccessResponse(c, http.StatusOK, "If an account exists, a reset link has been sent", nil)
}

// HandleCallback answers GET /api/auth/callback?code=.
func (h *AuthHandler) HandleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.logger.Warn("Auth callback without code")
		c.Redirect(http.StatusTemporaryRedirect, "/login?error=callback_failed")
		return
	}

	verifier, _ := c.Cookie(auth.CodeVerifierCookie)
	session, err := h.provider.ExchangeCode(c.Request.Context(), code, verifier)
	if err == nil {
		_, err = h.startSession(c, session)
	}
	if err != nil {
		h.logger.WithError(err).Warn("Auth callback failed")
		c.Redirect(http.StatusTemporaryRedirect, "/login?error=callback_failed")
		return
	}

	auth.ClearCodeVerifierCookie(c.Writer, h.cookies)
	c.Redirect(http.StatusTemporaryRedirect, localPath(c.Query("next")))
}

// HandleConfirm answers the email confirmation link
// GET /api/auth/confirm?token_hash=&type=.
func (h *AuthHandler) HandleConfirm(c *gin.Context) {
	tokenHash := c.Query("token_hash")
	otpType := c.DefaultQuery("type", "email")
	if tokenHash == "" {
		c.Redirect(http.StatusTemporaryRedirect, "/login?error=confirmation_failed")
		return
	}

	session, err := h.provider.VerifyOTP(c.Request.Context(), tokenHash, otpType)
	if err == nil {
		_, err = h.startSession(c, session)
	}
	if err != nil {
		h.logger.WithError(err).Warn("Email confirmation failed")
		c.Redirect(http.StatusTemporaryRedirect, "/login?error=confirmation_failed")
		return
	}

	if otpType == "recovery" {
		c.Redirect(http.StatusTemporaryRedirect, "/auth/reset-password")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, localPath(c.Query("next")))
}

// localPath keeps redirects on this site.
func localPath(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
