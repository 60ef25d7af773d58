package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"forecasting/internal/forecasts"
)

// ValidationResult is the outcome of a validation check with a message fit
// for display in the CLI.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is the interface used by validators that make outbound calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator holds the dependencies of the input validators.
type Validator struct {
	httpClient HTTPClient
	// verifyURL is a forecast URL used to try the weather API key. Empty
	// skips the live check.
	verifyURL string
}

// NewValidator creates a Validator with a real HTTP client.
func NewValidator(verifyURL string) *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, verifyURL)
}

// NewValidatorWithDeps creates a Validator with an injected HTTP client.
func NewValidatorWithDeps(httpClient HTTPClient, verifyURL string) *Validator {
	return &Validator{httpClient: httpClient, verifyURL: verifyURL}
}

// validateTimeout bounds a single live check.
const validateTimeout = 15 * time.Second

var apiKeyRegex = regexp.MustCompile(`^[0-9A-Za-z_-]{16,}$`)

// ValidateWeatherAPIKey checks the key format and, when a verify URL is
// configured, that the forecast API accepts it.
func (v *Validator) ValidateWeatherAPIKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "weather API key must not be empty"}
	}
	if !apiKeyRegex.MatchString(key) {
		return ValidationResult{
			Valid:   false,
			Message: "weather API key must be at least 16 characters of letters, digits, '-' or '_'",
		}
	}
	if v.verifyURL == "" {
		return ValidationResult{Valid: true, Message: "key format accepted (no verify URL, API check skipped)"}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(verifyCtx, http.MethodGet, v.verifyURL, nil)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid verify URL: %v", err)}
	}
	req.Header.Set(forecasts.APIKeyHeader, key)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("forecast API unreachable: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusOK:
		return ValidationResult{Valid: true, Message: "forecast API accepted the key"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ValidationResult{Valid: false, Message: fmt.Sprintf("forecast API rejected the key (HTTP %d)", resp.StatusCode)}
	default:
		return ValidationResult{Valid: false, Message: fmt.Sprintf("unexpected forecast API response: HTTP %d", resp.StatusCode)}
	}
}

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidateBucketName checks the S3 bucket naming rules.
func (v *Validator) ValidateBucketName(_ context.Context, name string) ValidationResult {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ValidationResult{Valid: false, Message: "bucket name must not be empty"}
	case !bucketNameRegex.MatchString(name):
		return ValidationResult{Valid: false, Message: "bucket name must be 3-63 lowercase letters, digits, '.' or '-'"}
	case strings.Contains(name, ".."):
		return ValidationResult{Valid: false, Message: "bucket name must not contain consecutive dots"}
	case net.ParseIP(name) != nil:
		return ValidationResult{Valid: false, Message: "bucket name must not be an IP address"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("bucket name %q accepted", name)}
}

var queuePathRegex = regexp.MustCompile(`^/\d{12}/[A-Za-z0-9_-]{1,80}(\.fifo)?$`)

// ValidateQueueURL checks an SQS queue URL of the form
// https://sqs.{region}.amazonaws.com/{account}/{queue}.
func (v *Validator) ValidateQueueURL(_ context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ValidationResult{Valid: false, Message: "queue URL must not be empty"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("expected https:// scheme, got %q", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return ValidationResult{Valid: false, Message: "queue URL has no host"}
	}
	if !queuePathRegex.MatchString(parsed.Path) {
		return ValidationResult{Valid: false, Message: "queue URL path must be /{12-digit account}/{queue name}"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("queue URL accepted (host=%s)", parsed.Host)}
}
