// Package httpretry provides an HTTP client with retry logic, exponential
// backoff, and jitter. Components never retry on their own; callers opt in
// by wrapping the doer they inject.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/placebook/placebook/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes the backoff schedule. Zero values take the defaults.
type Options struct {
	MaxRetries int           // retries after the first attempt (default 3)
	BaseDelay  time.Duration // first backoff step (default 1s)
	MaxDelay   time.Duration // backoff cap (default 30s)
	MinDelay   time.Duration // jitter floor (default 100ms)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MinDelay <= 0 {
		o.MinDelay = 100 * time.Millisecond
	}
	if o.MinDelay > o.MaxDelay {
		o.MinDelay = o.MaxDelay
	}
	return o
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type RetryClient struct {
	client HTTPDoer
	opts   Options
}

// NewRetryClient wraps client. If client is nil, an http.Client with a 30s
// timeout is used.
func NewRetryClient(client HTTPDoer, opts Options) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RetryClient{client: client, opts: opts.withDefaults()}
}

// Do executes the request, retrying on 429/5xx gateway statuses and on
// transport errors. Context cancellation is never retried. The final
// attempt's response is returned as-is so the caller can inspect it.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= rc.opts.MaxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			if wait > delay {
				delay = wait
			}
			logger.Debug("httpretry: backing off",
				"attempt", attempt, "max", rc.opts.MaxRetries,
				"host", req.URL.Host, "path", req.URL.Path, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			wait = 0
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == rc.opts.MaxRetries {
			return resp, nil
		}

		wait = retryAfter(resp, rc.opts.MaxDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay returns full-jitter exponential backoff for attempt (1-based):
// random(0, min(MaxDelay, BaseDelay * 2^(attempt-1))), floored at MinDelay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.opts.MaxDelay) {
		expDelay = float64(rc.opts.MaxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < rc.opts.MinDelay {
		jittered = rc.opts.MinDelay
	}
	return jittered
}

// retryAfter honors a Retry-After header given in seconds, capped at max.
func retryAfter(resp *http.Response, max time.Duration) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
