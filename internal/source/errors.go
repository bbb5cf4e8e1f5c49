// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// # Error Taxonomy
//
// Provider failures collapse into a small set the download engine can act on:
// retryable transport problems, upstream throttling with an advisory delay,
// and permanent conditions (missing book/chapter, listen-only content).

var (
	// ErrInvalidResponse marks a reply the provider adapter could not decode.
	ErrInvalidResponse = errors.New("source: invalid provider response")

	// ErrBookNotFound marks a provider-native book ID that resolves to nothing.
	ErrBookNotFound = errors.New("source: book not found")

	// ErrChapterNotFound marks a chapter item ID that resolves to nothing.
	ErrChapterNotFound = errors.New("source: chapter not found")

	// ErrAudioChapter marks a listen-only chapter with no text body.
	ErrAudioChapter = errors.New("source: chapter is audio-only")
)

// NetworkError wraps a transport-level failure (connect, timeout, 5xx).
type NetworkError struct {
	Provider Provider
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("source: %s network failure: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError reports upstream throttling (HTTP 429).
//
// RetryAfter carries the upstream's advisory delay, zero when the response
// did not include one.
type RateLimitError struct {
	Provider   Provider
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("source: %s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("source: %s rate limited", e.Provider)
}

// IsRetryable reports whether err is worth another attempt.
//
// Transport failures, throttling and malformed replies are transient;
// missing books/chapters and audio-only chapters are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var opErr net.Error
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, ErrInvalidResponse)
}
