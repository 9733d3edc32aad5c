// Package devops provides the remote Git-platform REST API client and the
// paginated collector built on top of it.
package devops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prmetrics/extractor/internal/config"
	"github.com/prmetrics/extractor/pkg/logger"
	"github.com/prmetrics/extractor/pkg/retry"
)

// maxErrorBodyBytes bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBodyBytes = 512

// ClientConfig holds remote API client configuration.
type ClientConfig struct {
	BaseURL         string
	Version         string
	Organization    string
	Token           string
	RequestTimeout  time.Duration
	PaceInterval    time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RetryMultiplier float64
	PageSize        int
}

// ClientConfigFrom builds a ClientConfig from the application configuration.
func ClientConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		BaseURL:         cfg.API.BaseURL,
		Version:         cfg.API.Version,
		Organization:    cfg.Organization,
		Token:           cfg.Token,
		RequestTimeout:  cfg.API.RequestTimeout,
		PaceInterval:    cfg.API.PaceInterval,
		MaxRetries:      cfg.API.MaxRetries,
		RetryDelay:      cfg.API.RetryDelay,
		RetryMultiplier: cfg.API.RetryMultiplier,
		PageSize:        cfg.API.PageSize,
	}
}

// Client issues authenticated requests against the remote API with fixed
// inter-request pacing, bounded timeouts, retry with exponential backoff on
// transient failures and structured error classification.
type Client struct {
	http     *http.Client
	cfg      ClientConfig
	retryCfg retry.Config
	logger   *zap.SugaredLogger
	redactor *logger.Redactor

	// sleep is replaceable in tests to avoid real pacing delays.
	sleep func(time.Duration)
}

// NewClient creates a new remote API client.
func NewClient(cfg ClientConfig, log *zap.SugaredLogger, redactor *logger.Redactor) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:  cfg,
		retryCfg: retry.Config{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     60 * time.Second,
			Multiplier:   cfg.RetryMultiplier,
			Retryable:    IsTransient,
		},
		logger:   log,
		redactor: redactor,
		sleep:    time.Sleep,
	}
}

// GetJSON issues a paced, retried GET request against an organization-scoped
// path and decodes the JSON response body into out. The response headers are
// returned so callers can read continuation tokens. Transient retry
// exhaustion surfaces as FatalError for the call.
func (c *Client) GetJSON(
	ctx context.Context,
	path string,
	params url.Values,
	out interface{},
) (http.Header, error) {
	header, err := retry.DoWithResult(ctx, c.retryCfg, func() (http.Header, error) {
		return c.doOnce(ctx, path, params, out)
	})
	if err != nil {
		if IsTransient(err) {
			// The cause is flattened to text so the surfaced error no longer
			// classifies as retryable.
			return nil, &FatalError{Op: path, Err: fmt.Errorf("retries exhausted: %s", err)}
		}
		return nil, err
	}
	return header, nil
}

// doOnce performs a single paced request attempt and classifies the outcome.
func (c *Client) doOnce(
	ctx context.Context,
	path string,
	params url.Values,
	out interface{},
) (http.Header, error) {
	// Fixed pacing before every call, independent of outcome.
	if c.cfg.PaceInterval > 0 {
		c.sleep(c.cfg.PaceInterval)
	}

	requestURL, err := c.buildURL(path, params)
	if err != nil {
		return nil, &FatalError{Op: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &FatalError{Op: path, Err: err}
	}
	// PAT authentication: empty user, token as password.
	req.SetBasicAuth("", c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debugw("api request", "method", http.MethodGet, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network failures and client timeouts are retryable.
		return nil, &TransientError{Op: path, Err: c.redactor.Sanitize(err)}
	}
	defer resp.Body.Close()

	c.logger.Debugw("api response", "path", path, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// Remote APIs can return transient HTML/empty error pages
			// under load with a 200 status.
			return nil, &TransientError{
				Op:  path,
				Err: fmt.Errorf("malformed response body: %w", c.redactor.Sanitize(err)),
			}
		}
		return resp.Header, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Op: path, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{Op: path, Status: resp.StatusCode}

	default:
		body := readErrorBody(resp.Body)
		return nil, &FatalError{
			Op:  path,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, c.redactor.Redact(body)),
		}
	}
}

// buildURL joins the base URL, organization and path, and appends query
// parameters including the api-version.
func (c *Client) buildURL(path string, params url.Values) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	joined := strings.TrimSuffix(base.Path, "/") + "/" + url.PathEscape(c.cfg.Organization)
	if path != "" {
		joined += "/" + strings.TrimPrefix(path, "/")
	}
	base.Path = joined

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("api-version", c.cfg.Version)
	base.RawQuery = query.Encode()

	return base.String(), nil
}

// readErrorBody reads a bounded prefix of an error response body.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
