// Package auth supplies authentication schemes for request dispatch. Workers
// look schemes up by the auth tag on a request descriptor; a tag with no
// registered provider causes the unit of work to be skipped, not attempted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrSchemeUnavailable is returned when a request names an auth tag that has
// no registered provider in this environment.
var ErrSchemeUnavailable = errors.New("authentication scheme unavailable")

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token retrieves a valid authentication token, using cached values
	// when available and valid.
	Token(ctx context.Context) (string, error)

	// InjectHeader injects the authentication token into the Authorization
	// header of the provided HTTP request.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

// Registry maps request auth tags to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to an auth tag, replacing any previous binding.
func (r *Registry) Register(tag string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[tag] = provider
}

// Lookup resolves an auth tag. An empty tag means no authentication and
// yields a nil provider without error.
func (r *Registry) Lookup(tag string) (Provider, error) {
	if tag == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSchemeUnavailable, tag)
	}
	return provider, nil
}

// Close closes every registered provider, keeping the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, provider := range r.providers {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.providers = make(map[string]Provider)
	return firstErr
}
