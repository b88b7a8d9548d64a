// Package stats moves per-request telemetry off the dispatch hot path and
// fans it out to pluggable adapters.
package stats

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Outcome codes for units of work that fail inside the engine rather than
// with a protocol status. WebSocket send and receive failures carry distinct
// codes so telemetry can tell the failure point apart.
const (
	OutcomeSendFailed    = 503
	OutcomeReceiveFailed = 500
	OutcomeInvokeFailed  = 500
)

// Envelope is one immutable record per completed unit of work. Produced by
// a worker, consumed exactly once by the collector's dispatch loop, then
// handed to every adapter in the submission.
type Envelope struct {
	ID              string         `json:"iid"`
	Request         string         `json:"request_name"`
	Target          string         `json:"url"`
	Scenario        string         `json:"scenario_name"`
	Params          map[string]any `json:"params,omitempty"`
	Outcome         int            `json:"status_code"`
	ResponseTime    time.Duration  `json:"response_time"`
	Start           time.Time      `json:"start_time"`
	End             time.Time      `json:"end_time"`
	ExpectedLatency time.Duration  `json:"expected_response_time"`
	Error           string         `json:"error,omitempty"`
}

// OverBudget reports whether the unit of work exceeded its expected-latency
// budget.
func (e Envelope) OverBudget() bool {
	return e.ExpectedLatency > 0 && e.ResponseTime > e.ExpectedLatency
}

// NewCorrelationID returns a fresh ULID for tagging one unit of work.
func NewCorrelationID() string {
	return ulid.Make().String()
}
