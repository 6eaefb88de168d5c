// Package captcha verifies reCAPTCHA tokens submitted with the auth forms.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var ErrFailed = errors.New("captcha verification failed")

type Verifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	logger     *logrus.Logger
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// NewVerifier returns a verifier. With an empty secret every token passes.
func NewVerifier(secret string, logger *logrus.Logger) *Verifier {
	return &Verifier{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithVerifyURL points the verifier at another endpoint, for tests.
func (v *Verifier) WithVerifyURL(u string) *Verifier {
	v.verifyURL = u
	return v
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify checks token with the provider. remoteIP may be empty.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing token", ErrFailed)
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("captcha request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha verification returned status %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode captcha response: %w", err)
	}
	if !result.Success {
		v.logger.WithField("error_codes", result.ErrorCodes).Info("Captcha rejected")
		return fmt.Errorf("%w: %s", ErrFailed, strings.Join(result.ErrorCodes, ","))
	}
	return nil
}
