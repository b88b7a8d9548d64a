package auth

import (
	"context"
	"net/http"
)

// StaticTokenProvider injects a fixed bearer token issued outside the run
// and handed in through the environment at startup. It never refreshes.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token returns the configured token; no network round trip is involved.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

// InjectHeader sets the Authorization header on req.
func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

// Close is a no-op; the provider holds nothing to release.
func (p *StaticTokenProvider) Close() error {
	return nil
}
