package wsclient

import (
	"context"
	"sync"
)

type entry struct {
	client *Client
	once   sync.Once
	err    error
}

// Registry memoizes one connection per target address with an explicit
// lifecycle: opened on first use, closed together at scenario teardown.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Get returns the connection for addr, dialing it on first use. Repeated
// dispatches to the same address reuse the socket. When the dial fails the
// entry is discarded so a later Get retries.
func (r *Registry) Get(ctx context.Context, addr string) (*Client, error) {
	r.mu.Lock()
	e, ok := r.entries[addr]
	if !ok {
		e = &entry{client: NewClient(addr, r.cfg)}
		r.entries[addr] = e
	}
	r.mu.Unlock()

	// Dialed outside the registry lock: a slow handshake to one address
	// must not stall lookups for other addresses.
	e.once.Do(func() {
		e.err = e.client.Connect(ctx)
	})
	if e.err != nil {
		r.mu.Lock()
		if r.entries[addr] == e {
			delete(r.entries, addr)
		}
		r.mu.Unlock()
		_ = e.client.Close()
		return nil, e.err
	}
	return e.client, nil
}

// CloseAll closes every open connection, keeping the first error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
