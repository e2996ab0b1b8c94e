package llmapi

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/apperr"
)

const (
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
	backoffFactor      = 2.0
)

// httpStatusError carries the status code and body of a non-2xx response
// so retryable() can classify it without re-parsing.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llmapi: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// retrier is embedded by each provider client and owns the transport,
// backoff schedule and jitter source. Attempt counting and sleeping are
// centralized here so every provider variant retries identically.
type retrier struct {
	httpClient  *http.Client
	sleeper     func(time.Duration)
	maxAttempts int
	randFloat   func() float64
}

func newRetrier(opts ...Option) *retrier {
	r := &retrier{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxAttempts: defaultMaxAttempts,
		randFloat:   rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// do runs attempt, retrying on transient failures with full-jitter
// exponential backoff (base 1s, factor 2, cap 30s) up to maxAttempts.
// An *apperr.AuthError from attempt is never retried.
func (r *retrier) do(ctx context.Context, provider string, attempt func() (string, error)) (string, error) {
	var lastErr error
	attempts := 0
	for n := 1; n <= r.maxAttempts; n++ {
		attempts = n
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var authErr *apperr.AuthError
		if errors.As(err, &authErr) {
			return "", err
		}
		if n == r.maxAttempts || !r.retryable(err) {
			break
		}
		if sleepErr := r.sleep(ctx, r.backoffDelay(n)); sleepErr != nil {
			return "", sleepErr
		}
	}
	return "", apperr.NewTransientError(fmt.Sprintf("%s: failed after %d attempts", provider, attempts), lastErr)
}

func (r *retrier) retryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	var transientErr *apperr.TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	return false
}

// backoffDelay returns a full-jitter delay for the Nth attempt: uniform
// in [0, min(cap, base*factor^(attempt-1))].
func (r *retrier) backoffDelay(attempt int) time.Duration {
	ceiling := float64(defaultBaseDelay)
	for i := 1; i < attempt; i++ {
		ceiling *= backoffFactor
		if ceiling >= float64(defaultMaxDelay) {
			ceiling = float64(defaultMaxDelay)
			break
		}
	}
	jitter := r.randFloat()
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return time.Duration(ceiling * jitter)
}

func (r *retrier) sleep(ctx context.Context, delay time.Duration) error {
	if r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyAuthOrStatus(provider string, statusCode int, body string) error {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return &apperr.AuthError{Provider: provider, Cause: &httpStatusError{StatusCode: statusCode, Body: body}}
	}
	return &httpStatusError{StatusCode: statusCode, Body: body}
}
