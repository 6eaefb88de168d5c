package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coldorg/coldbot/backend/internal/models"
	"github.com/coldorg/coldbot/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Message)
}

// HistoryParams are the optional filters of GET /api/history.
type HistoryParams struct {
	Start  string
	End    string
	Query  string
	UserID string
	All    bool
}

type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string, logger *logrus.Logger) *APIClient {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger,
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignIn opens a session and keeps its access token for later calls.
func (c *APIClient) SignIn(ctx context.Context, email, password, captchaToken string) (*models.SessionResponse, error) {
	var session models.SessionResponse
	payload := models.SignInRequest{Email: email, Password: password, CaptchaToken: captchaToken}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/auth/signin", payload, envelope(&session)); err != nil {
		return nil, err
	}
	c.SetToken(session.AccessToken)
	return &session, nil
}

// Refresh trades a refresh token for a new session and keeps its access token.
func (c *APIClient) Refresh(ctx context.Context, refreshToken string) (*models.SessionResponse, error) {
	var session models.SessionResponse
	payload := models.RefreshRequest{RefreshToken: refreshToken}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/auth/refresh", payload, envelope(&session)); err != nil {
		return nil, err
	}
	c.SetToken(session.AccessToken)
	return &session, nil
}

func (c *APIClient) Chat(ctx context.Context, message, conversationID string) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	payload := models.ChatRequest{Message: message, ConversationID: conversationID}
	if err := c.makeRequest(ctx, http.MethodPost, "/api/chatbot", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Feedback(ctx context.Context, req models.FeedbackRequest) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := c.makeRequest(ctx, http.MethodPost, "/api/feedback", req, envelope(&feedback)); err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (c *APIClient) History(ctx context.Context, params HistoryParams) (*models.HistoryResponse, error) {
	query := url.Values{}
	if params.Start != "" {
		query.Set("start", params.Start)
	}
	if params.End != "" {
		query.Set("end", params.End)
	}
	if params.Query != "" {
		query.Set("q", params.Query)
	}
	if params.UserID != "" {
		query.Set("userId", params.UserID)
	}
	if params.All {
		query.Set("all", "true")
	}

	path := "/api/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var history models.HistoryResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, envelope(&history)); err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *APIClient) CheckAdmin(ctx context.Context) (*models.CheckAdminResponse, error) {
	var resp models.CheckAdminResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/api/check-admin", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type enveloped struct {
	data interface{}
}

func envelope(data interface{}) enveloped {
	return enveloped{data: data}
}

func (c *APIClient) makeRequest(ctx context.Context, method, path string, payload interface{}, result interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
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
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, responseBody)
	}

	if result == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}

	if env, ok := result.(enveloped); ok {
		wrapper := struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}{}
		if err := json.Unmarshal(responseBody, &wrapper); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(wrapper.Data) == 0 || string(wrapper.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(wrapper.Data, env.data); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal(responseBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed utils.APIResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Message
		apiErr.RetryAfter = parsed.RetryAfter
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
	}
	if apiErr.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = secs
		}
	}
	return apiErr
}
