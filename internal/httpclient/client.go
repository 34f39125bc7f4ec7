// Package httpclient provides the tuned HTTP client shared by all workers,
// including the transport-level retry policy for idempotent failures.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewClient builds an HTTP client suitable for sustained concurrent load:
// generous idle pools so workers reuse connections instead of thrashing the
// dialer. The timeout bounds a whole request including the streamed body;
// 0 disables it.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewRetryingClient wraps the tuned client with a RetryTransport performing
// up to retries additional attempts.
func NewRetryingClient(timeout time.Duration, retries int) *http.Client {
	client := NewClient(timeout)
	if retries > 0 {
		client.Transport = &RetryTransport{
			Base:       client.Transport,
			MaxRetries: retries,
		}
	}
	return client
}
