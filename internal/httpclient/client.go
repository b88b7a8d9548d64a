// Package httpclient builds HTTP requests from request descriptors and
// provides pooled clients sized to a ramp-up batch.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// AuthProvider supplies authentication tokens and injects them into HTTP requests.
type AuthProvider interface {
	InjectHeader(ctx context.Context, req *http.Request) error
}

// NewClient creates an HTTP client whose connection pool is sized to hold
// one idle connection per worker in a ramp-up batch. Workers in the same
// batch share the client; its configuration is never mutated after creation.
func NewClient(timeout time.Duration, poolSize int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if poolSize <= 0 {
		poolSize = 1
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// BuildRequest assembles one HTTP request: JSON-encoded params as the body,
// default headers, and the auth header when a provider is present.
func BuildRequest(ctx context.Context, method, target string, params map[string]any, provider AuthProvider) (*http.Request, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(params); err != nil {
		return nil, fmt.Errorf("encode request params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if provider != nil {
		if err := provider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	return req, nil
}
