package httpclient

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// retryableStatus lists the idempotent failure codes worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryTransport retries requests that fail with a retryable status code or
// a transient transport error, with exponential backoff and jitter. It sits
// below the probe: callers observe only the terminal response, with the
// connect phase shifted later by the backoff waits.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Delay      time.Duration // base delay, defaults to 100ms
	MaxDelay   time.Duration // backoff cap, defaults to 5s

	jitterOnce sync.Once
	jitterMu   sync.Mutex
	rnd        *rand.Rand
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		// RoundTrippers must not mutate the caller's request; retries go
		// out on a clone with a rewound body.
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, lastErr = base.RoundTrip(attemptReq)
		if lastErr == nil && !retryableStatus[resp.StatusCode] {
			return resp, nil
		}
		if lastErr != nil && !retryableError(lastErr) {
			return nil, lastErr
		}
		// A consumed body without a rewind function cannot be resent.
		if attempt >= t.MaxRetries || (req.Body != nil && req.GetBody == nil) {
			break
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
		}

		select {
		case <-time.After(t.backoff(attempt + 1)):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

// backoff doubles the base delay per attempt, capped, plus up to 50% jitter.
func (t *RetryTransport) backoff(attempt int) time.Duration {
	delay := t.Delay
	if delay <= 0 {
		delay = baseRetryDelay
	}
	limit := t.MaxDelay
	if limit <= 0 {
		limit = maxRetryDelay
	}

	backoff := time.Duration(1<<uint(attempt-1)) * delay
	if backoff > limit {
		backoff = limit
	}
	return backoff + t.jitter(backoff/2)
}

func (t *RetryTransport) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	t.jitterOnce.Do(func() {
		t.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	})
	t.jitterMu.Lock()
	defer t.jitterMu.Unlock()
	return time.Duration(t.rnd.Int63n(int64(max)))
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return false
	}
	// Connection resets and refused connections are worth another attempt.
	return true
}
