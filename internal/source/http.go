// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

// # Rain API Transport

// rainEnvelope is the uniform response wrapper of the Rain aggregation API.
type rainEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Rain API business codes carried inside a 200 envelope.
const (
	rainCodeOK              = 0
	rainCodeBookNotFound    = 40400
	rainCodeChapterNotFound = 40401
)

// Options configures the shared Rain API transport for one provider client.
type Options struct {
	// BaseURL is the Rain API root, e.g. "https://rain.example.com".
	BaseURL string
	// APIKey is sent as X-API-Key on every request. Optional.
	APIKey string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// Retries is the total attempt count per request (first try included).
	Retries int
	// Pace is the minimum interval between requests to the provider.
	// Zero disables pacing.
	Pace time.Duration
	// Logger receives request telemetry. Defaults to slog.Default.
	Logger *slog.Logger
}

// rainClient is the HTTP plumbing shared by all provider clients: API key
// auth, request pacing, exponential retry with Retry-After awareness, and
// envelope decoding.
type rainClient struct {
	provider Provider
	http     *http.Client
	baseURL  string
	apiKey   string
	retries  int
	limiter  *rate.Limiter
	log      *slog.Logger
}

func newRainClient(provider Provider, opts Options) *rainClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}

	var limiter *rate.Limiter
	if opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Pace), 1)
	}

	return &rainClient{
		provider: provider,
		http:     &http.Client{Timeout: opts.Timeout},
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		retries:  retries,
		limiter:  limiter,
		log:      logger.With(slog.String("provider", string(provider))),
	}
}

/*
getJSON performs a paced, retried GET against the Rain API and decodes the
envelope's data field into out.

Retry policy: exponential backoff starting at 500ms, doubling per attempt.
A RateLimitError with an upstream Retry-After overrides the computed delay.
Permanent errors (not found, audio-only) abort the schedule immediately.
*/
func (c *rainClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			return c.attempt(ctx, endpoint, out)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries)),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			c.log.Warn("source_request_retry",
				slog.String("url", endpoint),
				slog.Uint64("attempt", uint64(attempt+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
}

// retryDelay is the backoff schedule: upstream Retry-After when advertised,
// otherwise exponential from the configured base delay.
func (c *rainClient) retryDelay(n uint, err error, config *retry.Config) time.Duration {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}

// attempt performs one HTTP round trip and maps the outcome onto the
// package error taxonomy.
func (c *rainClient) attempt(ctx context.Context, endpoint string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("source: build request: %w", err))
	}

	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("X-API-Key", c.apiKey)
	}

	response, err := c.http.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Unrecoverable(ctx.Err())
		}
		return &NetworkError{Provider: c.provider, Err: err}
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, response.Body)
		return &RateLimitError{
			Provider:   c.provider,
			RetryAfter: parseRetryAfter(response.Header.Get("Retry-After")),
		}

	case response.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, response.Body)
		return ErrBookNotFound

	case response.StatusCode >= 500:
		io.Copy(io.Discard, response.Body)
		return &NetworkError{
			Provider: c.provider,
			Err:      fmt.Errorf("upstream status %d", response.StatusCode),
		}

	case response.StatusCode != http.StatusOK:
		io.Copy(io.Discard, response.Body)
		return fmt.Errorf("%w: unexpected status %d", ErrInvalidResponse, response.StatusCode)
	}

	var envelope rainEnvelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	switch envelope.Code {
	case rainCodeOK:
		// fall through to payload decoding
	case rainCodeBookNotFound:
		return ErrBookNotFound
	case rainCodeChapterNotFound:
		return ErrChapterNotFound
	default:
		return fmt.Errorf("%w: code %d (%s)", ErrInvalidResponse, envelope.Code, envelope.Message)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}

// parseRetryAfter handles the delay-seconds form of the Retry-After header.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
