package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is an HTTP client for the GoTrue auth API.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *logrus.Logger
}

type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

func (u *User) Identity() (*Identity, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidToken, u.ID)
	}
	return &Identity{
		ID:       id,
		Email:    u.Email,
		Role:     u.Role,
		Metadata: u.UserMetadata,
	}, nil
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// Expiry returns when the access token stops being valid.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0).UTC()
	}
	return time.Now().UTC().Add(time.Duration(s.ExpiresIn) * time.Second)
}

// APIError is a non-2xx answer from the auth API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth request failed with status %d: %s", e.StatusCode, e.Message)
}

func NewClient(baseURL, anonKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.makeRequest(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SignUp registers a user. When email confirmation is enabled the returned
// session has no access token and only User is set.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo, codeChallenge string) (*Session, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	if codeChallenge != "" {
		payload["code_challenge"] = codeChallenge
		payload["code_challenge_method"] = "s256"
	}

	var raw struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/signup"+redirectQuery(redirectTo), "", payload, &raw); err != nil {
		return nil, err
	}

	session := raw.Session
	if session.User == nil && raw.ID != "" {
		session.User = &User{ID: raw.ID, Email: raw.Email}
	}
	return &session, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.makeRequest(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := c.makeRequest(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ExchangeCode trades a PKCE authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Session, error) {
	var session Session
	err := c.makeRequest(ctx, http.MethodPost, "/token?grant_type=pkce", "", map[string]string{
		"auth_code":     code,
		"code_verifier": codeVerifier,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo, codeChallenge string) error {
	payload := map[string]string{"email": email}
	if codeChallenge != "" {
		payload["code_challenge"] = codeChallenge
		payload["code_challenge_method"] = "s256"
	}
	return c.makeRequest(ctx, http.MethodPost, "/recover"+redirectQuery(redirectTo), "", payload, nil)
}

// VerifyOTP confirms an email link token hash (signup, recovery, ...).
func (c *Client) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*Session, error) {
	var session Session
	err := c.makeRequest(ctx, http.MethodPost, "/verify", "", map[string]string{
		"token_hash": tokenHash,
		"type":       otpType,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.makeRequest(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Resolve asks the provider who owns accessToken.
func (c *Client) Resolve(ctx context.Context, accessToken string) (*Identity, error) {
	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, apiErr.Message)
		}
		return nil, err
	}
	return user.Identity()
}

// Ping checks the provider's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.makeRequest(ctx, http.MethodGet, "/health", "", nil, nil)
}

func redirectQuery(redirectTo string) string {
	if redirectTo == "" {
		return ""
	}
	return "?redirect_to=" + url.QueryEscape(redirectTo)
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint, accessToken string, payload interface{}, result interface{}) error {
	reqURL := c.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"method":      method,
		"endpoint":    strings.SplitN(endpoint, "?", 2)[0],
	}).Debug("Auth API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(responseBody)}
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the provider's message from its error shapes.
func errorMessage(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}
