package shopsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ErrorCategory string

const (
	CategoryTransient   ErrorCategory = "transient"
	CategoryRateLimited ErrorCategory = "rate_limited"
	CategoryValidation  ErrorCategory = "validation"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryAuth        ErrorCategory = "auth"
)

// APIError is the typed error every remote call surfaces. Downstream code
// branches on Category, never on message text; the message is preserved
// verbatim for operator triage.
type APIError struct {
	StatusCode int
	Category   ErrorCategory
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api error %d (%s): %s", e.StatusCode, e.Category, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.Category == CategoryTransient || e.Category == CategoryRateLimited
}

// Retryable reports whether an error from a remote call is worth another
// attempt on a future run.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func classifyStatus(statusCode int) ErrorCategory {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return CategoryRateLimited
	case statusCode == http.StatusNotFound:
		return CategoryNotFound
	case statusCode == http.StatusConflict:
		return CategoryConflict
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return CategoryAuth
	case statusCode >= 500:
		return CategoryTransient
	default:
		return CategoryValidation
	}
}

const transportMaxAttempts = 3

// transport is the shared rate-limited HTTP layer for both remotes. The
// token bucket applies backpressure at this layer: callers block in Wait
// until a token is available instead of receiving budget errors.
type transport struct {
	remote      string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	logger      *logrus.Logger
}

func newTransport(remote string, requestsPerMinute int) *transport {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	perSecond := float64(requestsPerMinute) / 60.0
	return &transport{
		remote:      remote,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(perSecond), requestsPerMinute/6+1),
		maxAttempts: transportMaxAttempts,
		logger:      config.GetLogger(),
	}
}

// do executes one logical request with rate limiting and bounded retry.
// build must return a fresh request each attempt so bodies can be re-read.
func (t *transport) do(ctx context.Context, build func() (*http.Request, error)) (http.Header, []byte, error) {
	var lastErr error

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		req, err := build()
		if err != nil {
			return nil, nil, err
		}
		req = req.WithContext(ctx)

		resp, err := t.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if attempt < t.maxAttempts {
				t.sleepBackoff(ctx, attempt, 0)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < t.maxAttempts {
				t.sleepBackoff(ctx, attempt, 0)
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Header, body, nil
		}

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Category:   classifyStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
		if !apiErr.Retryable() {
			return resp.Header, nil, apiErr
		}

		lastErr = apiErr
		if attempt < t.maxAttempts {
			t.logger.WithFields(logrus.Fields{
				"remote":  t.remote,
				"status":  resp.StatusCode,
				"attempt": attempt,
			}).Warn("transient remote error; backing off")
			t.sleepBackoff(ctx, attempt, retryAfterSeconds(resp.Header))
		}
	}

	if lastErr == nil {
		lastErr = &APIError{Category: CategoryTransient, Message: "retry attempts exhausted"}
	}
	var apiErr *APIError
	if !errors.As(lastErr, &apiErr) {
		lastErr = &APIError{Category: CategoryTransient, Message: lastErr.Error()}
	}
	return nil, nil, lastErr
}

// sleepBackoff waits 1s, 2s, 4s... (capped), or the remote's Retry-After
// when it asked for more.
func (t *transport) sleepBackoff(ctx context.Context, attempt int, retryAfter int) {
	sleep := time.Second * time.Duration(1<<minInt(attempt-1, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	if hinted := time.Duration(retryAfter) * time.Second; hinted > sleep {
		sleep = hinted
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func retryAfterSeconds(header http.Header) int {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func rateLimitFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
