package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	URL        string
	APIKey     string
	Username   string
	Password   string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	url        string
	apiKey     string
	username   string
	password   string
	httpClient *http.Client
	retry      RetryConfig
	logger     *logrus.Logger
}

// StatusError is a non-2xx answer from the prediction endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prediction request failed with status %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	return &Client{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  retry,
		logger: logger,
	}
}

// WithRetry replaces the retry policy.
func (c *Client) WithRetry(cfg RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Predict sends the question and returns the endpoint's answer.
func (c *Client) Predict(ctx context.Context, question string) (string, error) {
	var response PredictResponse
	err := c.retryOperation(ctx, func() error {
		response = PredictResponse{}
		return c.makeRequest(ctx, http.MethodPost, PredictRequest{Question: question}, &response)
	})
	if err != nil {
		return "", err
	}
	return response.Answer(), nil
}

// Ping checks the endpoint is reachable. Any HTTP answer below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	case c.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) makeRequest(ctx context.Context, method string, payload interface{}, result interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":       method,
		"url":          c.url,
		"payload_size": len(jsonData),
	}).Debug("Making prediction request")

	req, err := http.NewRequestWithContext(ctx, method, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

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
		"status_code":   resp.StatusCode,
		"response_size": len(responseBody),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("Prediction response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(responseBody)}
	}

	if len(bytes.TrimSpace(responseBody)) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return &decodeError{err: fmt.Errorf("failed to unmarshal response: %w", err)}
		}
	}
	return nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
