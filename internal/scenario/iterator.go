package scenario

import (
	"errors"
	"sync"

	"github.com/rampline/rampline/internal/config"
)

// ErrNoRequests is returned when an iterator is constructed over an empty
// descriptor set.
var ErrNoRequests = errors.New("no request descriptors")

// Iterator cycles through a scenario's request descriptors round-robin.
// It is not safe for concurrent use; workers that share one wrap it in a
// SharedIterator.
type Iterator struct {
	requests []*config.Request
	idx      int
	started  bool
}

func NewIterator(requests []*config.Request) (*Iterator, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}
	return &Iterator{requests: requests}, nil
}

// Next returns the next descriptor in rotation, wrapping back to the first
// after the last.
func (it *Iterator) Next() (*config.Request, error) {
	req := it.requests[it.idx]
	it.idx = (it.idx + 1) % len(it.requests)
	it.started = true
	return req, nil
}

// Current returns the descriptor most recently yielded by Next. Before the
// first Next call there is no current descriptor and ok is false.
func (it *Iterator) Current() (*config.Request, bool) {
	if !it.started {
		return nil, false
	}
	prev := it.idx - 1
	if prev < 0 {
		prev = len(it.requests) - 1
	}
	return it.requests[prev], true
}

// SharedIterator synchronizes one rotation across every worker in a
// scenario, so each dispatch advances the shared cursor regardless of which
// worker performs it.
type SharedIterator struct {
	mu sync.Mutex
	it *Iterator
}

func NewSharedIterator(requests []*config.Request) (*SharedIterator, error) {
	it, err := NewIterator(requests)
	if err != nil {
		return nil, err
	}
	return &SharedIterator{it: it}, nil
}

func (s *SharedIterator) Next() (*config.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.it.Next()
}
