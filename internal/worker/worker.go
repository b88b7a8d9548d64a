// Package worker runs individual request-emitting tasks. A task repeatedly
// draws a descriptor from its iterator, dispatches it via the protocol
// executor, and hands telemetry off to the stats collector without blocking.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/stats"
)

// State of a task's run loop.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Source yields the next request descriptor for a task. A task either owns
// its source exclusively or shares a synchronized one with its siblings.
type Source interface {
	Next() (*config.Request, error)
}

// Options configure a task.
type Options struct {
	Scenario   string
	RunOnce    bool
	Source     Source
	Dispatcher *Dispatcher
	Collector  *stats.Collector
	Adapters   []stats.Adapter
	Limiter    *rate.Limiter // optional pacing shared across the scenario's tasks
	Logger     *zap.Logger
}

// Task is one live worker. Created when a ramp-up step spawns it; it runs
// until stopped, or for exactly one iteration in run-once mode.
type Task struct {
	opt      Options
	stop     atomic.Bool
	st       atomic.Int32
	stopC    chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewTask(opt Options) *Task {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &Task{opt: opt, stopC: make(chan struct{}), done: make(chan struct{})}
}

// Stop requests a cooperative stop. The run loop observes it once per
// iteration, so cancellation latency is bounded by one unit of work; a
// worker parked on the rate limiter wakes immediately.
func (t *Task) Stop() {
	t.stop.Store(true)
	t.stopOnce.Do(func() { close(t.stopC) })
	t.st.CompareAndSwap(int32(StateRunning), int32(StateStopping))
}

// State returns the current run-loop state.
func (t *Task) State() State {
	return State(t.st.Load())
}

// Done is closed when the run loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Run executes the task's loop. Dispatch errors are logged and never fatal;
// only the stop flag, context cancellation, or run-once mode end the loop.
func (t *Task) Run(ctx context.Context) {
	defer func() {
		t.st.Store(int32(StateStopped))
		close(t.done)
	}()

	for {
		if t.stop.Load() || ctx.Err() != nil {
			return
		}
		if t.opt.Limiter != nil && !t.pace(ctx) {
			return
		}

		req, err := t.opt.Source.Next()
		if err != nil {
			t.opt.Logger.Error("request iterator exhausted", zap.String("scenario", t.opt.Scenario), zap.Error(err))
			return
		}

		id := stats.NewCorrelationID()
		params := withCorrelationID(req.Params, id)
		d := t.opt.Dispatcher.Dispatch(ctx, req, params)

		if d.Attempted {
			env := stats.Envelope{
				ID:              id,
				Request:         req.Name,
				Target:          req.URL,
				Scenario:        t.opt.Scenario,
				Params:          params,
				Outcome:         d.Outcome,
				ResponseTime:    d.End.Sub(d.Start),
				Start:           d.Start,
				End:             d.End,
				ExpectedLatency: req.ExpectedLatency,
			}
			if d.Err != nil {
				env.Error = d.Err.Error()
			}
			t.opt.Collector.Submit(env, t.opt.Adapters)
		}
		if d.Err != nil {
			t.opt.Logger.Error("request dispatch failed",
				zap.String("scenario", t.opt.Scenario),
				zap.String("request", req.Name),
				zap.Error(d.Err))
		}

		if t.opt.RunOnce {
			return
		}
	}
}

// pace blocks until the rate limiter grants the next dispatch slot. It
// returns false when the task is stopped or the context is cancelled while
// waiting, with the reservation returned to the limiter.
func (t *Task) pace(ctx context.Context) bool {
	res := t.opt.Limiter.Reserve()
	if !res.OK() {
		return false
	}
	delay := res.Delay()
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stopC:
		res.Cancel()
		return false
	case <-ctx.Done():
		res.Cancel()
		return false
	}
}

// withCorrelationID copies the descriptor's immutable params and tags the
// copy with the correlation id for this unit of work.
func withCorrelationID(params map[string]any, id string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["iid"] = id
	return out
}
