package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the protocol a request descriptor is dispatched over.
type Kind string

const (
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
	KindCustom    Kind = "custom"
)

// InvokeFunc is an opaque invocation handle bound to a custom request by the
// plugin registry. The engine never inspects it; it only calls it.
type InvokeFunc func(ctx context.Context) error

// CompletionFunc runs after a custom request's invocation handle returns.
type CompletionFunc func()

// Expectation is an optional JSON assertion evaluated against an HTTP
// response body. Path is a gjson path; the string form of the located value
// must equal Value.
type Expectation struct {
	Path  string
	Value string
}

// Request describes one unit of work. Built once at load time and shared by
// reference across every worker that uses it; never mutated afterwards.
type Request struct {
	Name            string
	URL             string
	Method          string
	Params          map[string]any
	ExpectedLatency time.Duration
	Auth            string
	Kind            Kind
	Expect          *Expectation

	// Set only for KindCustom, by the plugin registry.
	Invoke     InvokeFunc
	OnComplete CompletionFunc
}

// Scenario describes one named group of workers sharing a ramp-up policy.
type Scenario struct {
	Name                   string
	MinConcurrency         int
	MaxConcurrency         int
	RampUp                 []int
	RampUpWait             []time.Duration
	Multiply               bool
	RunOnce                bool
	IterateThroughRequests bool
	RatePerSecond          int // optional pacing shared by the scenario's workers (0 = unpaced)
	Requests               []*Request
}

// Phase is a time-bounded block of the run containing one or more scenarios.
type Phase struct {
	Name      string
	Runtime   time.Duration
	Scenarios []Scenario
}

// StatsLog configures the default size-rotated stats log adapter.
type StatsLog struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

// Tracing configures the optional OpenTelemetry trace exporter.
type Tracing struct {
	Endpoint    string
	Protocol    string // "grpc" or "http"
	ServiceName string
	Insecure    bool
}

// Run is the fully loaded configuration for one load test run.
type Run struct {
	Name      string
	PhaseWait time.Duration
	Phases    []Phase
	StatsLog  StatsLog
	Tracing   Tracing
}

// Enabled reports whether a trace exporter should be initialized.
func (t Tracing) Enabled() bool {
	return t.Endpoint != ""
}

// KindFromURL derives the request kind from the address scheme.
// An empty or schemeless address yields KindCustom.
func KindFromURL(url string) Kind {
	scheme, _, found := strings.Cut(url, ":")
	if !found {
		return KindCustom
	}
	switch strings.ToLower(scheme) {
	case "ws", "wss":
		return KindWebSocket
	case "http", "https":
		return KindHTTP
	default:
		return KindCustom
	}
}

// ResolveKind applies the kind override rules: an explicit override always
// wins, except that an HTTP override without an address degrades to custom.
func ResolveKind(override string, url string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "":
		return KindFromURL(url), nil
	case string(KindHTTP):
		if url == "" {
			return KindCustom, nil
		}
		return KindHTTP, nil
	case string(KindWebSocket):
		return KindWebSocket, nil
	case string(KindCustom):
		return KindCustom, nil
	default:
		return "", fmt.Errorf("unknown request type %q", override)
	}
}

// Validate checks invariants that must hold before a scenario is run.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: scenario name is required", ErrInvalidConfig)
	}
	if s.MinConcurrency < 0 {
		return fmt.Errorf("%w: scenario %q: min_concurrency must not be negative", ErrInvalidConfig, s.Name)
	}
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: scenario %q: max_concurrency must be positive", ErrInvalidConfig, s.Name)
	}
	if s.MinConcurrency > s.MaxConcurrency {
		return fmt.Errorf("%w: scenario %q: min_concurrency exceeds max_concurrency", ErrInvalidConfig, s.Name)
	}
	if len(s.RampUp) == 0 {
		return fmt.Errorf("%w: scenario %q: ramp-up sequence must not be empty", ErrInvalidConfig, s.Name)
	}
	if len(s.RampUpWait) == 0 {
		return fmt.Errorf("%w: scenario %q: ramp-up wait sequence must not be empty", ErrInvalidConfig, s.Name)
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("%w: scenario %q: request set must not be empty", ErrInvalidConfig, s.Name)
	}
	if s.RatePerSecond < 0 {
		return fmt.Errorf("%w: scenario %q: rate_per_second must not be negative", ErrInvalidConfig, s.Name)
	}
	return nil
}

// Validate checks phase-level invariants.
func (p *Phase) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: phase name is required", ErrInvalidConfig)
	}
	if p.Runtime < 0 {
		return fmt.Errorf("%w: phase %q: run_time must not be negative", ErrInvalidConfig, p.Name)
	}
	if len(p.Scenarios) == 0 {
		return fmt.Errorf("%w: phase %q: at least one scenario is required", ErrInvalidConfig, p.Name)
	}
	for i := range p.Scenarios {
		if err := p.Scenarios[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the whole run configuration.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: run name is required", ErrInvalidConfig)
	}
	if r.PhaseWait < 0 {
		return fmt.Errorf("%w: wait_between_phases must not be negative", ErrInvalidConfig)
	}
	if len(r.Phases) == 0 {
		return fmt.Errorf("%w: at least one phase is required", ErrInvalidConfig)
	}
	for i := range r.Phases {
		if err := r.Phases[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
