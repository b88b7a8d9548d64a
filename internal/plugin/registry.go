// Package plugin lets user code contribute custom request types to a run.
// A registered function is the opaque invocation handle for a custom
// request descriptor; the engine calls it and never inspects it.
package plugin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rampline/rampline/internal/config"
)

type registration struct {
	name            string
	invoke          config.InvokeFunc
	complete        config.CompletionFunc
	url             string
	params          map[string]any
	expectedLatency time.Duration
	auth            string
	kindOverride    string
}

// Option customizes the descriptor built from a registered function.
type Option func(*registration)

// WithURL sets the target address on the generated descriptor. The request
// kind is derived from its scheme unless WithKind overrides it.
func WithURL(url string) Option {
	return func(r *registration) { r.url = url }
}

// WithParams sets the parameter payload on the generated descriptor.
func WithParams(params map[string]any) Option {
	return func(r *registration) { r.params = params }
}

// WithExpectedLatency sets the expected-latency budget.
func WithExpectedLatency(d time.Duration) Option {
	return func(r *registration) { r.expectedLatency = d }
}

// WithAuth sets the authentication tag.
func WithAuth(tag string) Option {
	return func(r *registration) { r.auth = tag }
}

// WithKind overrides the derived request kind ("http", "websocket", "custom").
func WithKind(kind string) Option {
	return func(r *registration) { r.kindOverride = kind }
}

// Registry collects custom request functions and completion callbacks.
type Registry struct {
	mu          sync.Mutex
	functions   map[string]*registration
	completions map[string]config.CompletionFunc
}

func NewRegistry() *Registry {
	return &Registry{
		functions:   make(map[string]*registration),
		completions: make(map[string]config.CompletionFunc),
	}
}

// Register adds a request function under a unique name.
func (r *Registry) Register(name string, fn config.InvokeFunc, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("plugin: request name is required")
	}
	if fn == nil {
		return fmt.Errorf("plugin: request %q: function is required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("plugin: request %q already registered", name)
	}
	reg := &registration{name: name, invoke: fn, expectedLatency: time.Second}
	for _, opt := range opts {
		opt(reg)
	}
	r.functions[name] = reg
	return nil
}

// OnCompletion attaches a completion callback to a registered request name.
// Registration order does not matter; the callback is matched when
// descriptors are built or bound.
func (r *Registry) OnCompletion(name string, fn config.CompletionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions[name] = fn
}

// Descriptors builds request descriptors from every registration, sorted by
// name for deterministic output.
func (r *Registry) Descriptors() ([]*config.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*config.Request, 0, len(names))
	for _, name := range names {
		reg := r.functions[name]
		kind, err := config.ResolveKind(reg.kindOverride, reg.url)
		if err != nil {
			return nil, fmt.Errorf("plugin: request %q: %w", name, err)
		}
		req := &config.Request{
			Name:            name,
			URL:             reg.url,
			Method:          "GET",
			Params:          reg.params,
			ExpectedLatency: reg.expectedLatency,
			Auth:            reg.auth,
			Kind:            kind,
		}
		if kind == config.KindCustom {
			req.Invoke = reg.invoke
			req.OnComplete = r.completions[name]
		}
		out = append(out, req)
	}
	return out, nil
}

// Bind attaches registered invocation and completion handles to loaded
// custom descriptors with matching names. Descriptors without a matching
// registration keep nil handles and fail loudly at dispatch time.
func (r *Registry) Bind(requests []*config.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range requests {
		if req.Kind != config.KindCustom {
			continue
		}
		if reg, ok := r.functions[req.Name]; ok {
			req.Invoke = reg.invoke
		}
		if fn, ok := r.completions[req.Name]; ok {
			req.OnComplete = fn
		}
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by package-level helpers.
func Default() *Registry { return defaultRegistry }

// Register adds a request function to the default registry.
func Register(name string, fn config.InvokeFunc, opts ...Option) error {
	return defaultRegistry.Register(name, fn, opts...)
}

// OnCompletion attaches a completion callback in the default registry.
func OnCompletion(name string, fn config.CompletionFunc) {
	defaultRegistry.OnCompletion(name, fn)
}
