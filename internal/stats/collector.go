package stats

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultQueueSize = 4096

// Adapter consumes one envelope. Implementations may do I/O; failures are
// isolated per adapter by the collector and never reach the producers.
type Adapter interface {
	Process(env Envelope) error
}

type submission struct {
	env      Envelope
	adapters []Adapter
}

// Collector decouples telemetry production on the request hot path from
// consumption in sinks that may block. One collector is owned by one phase:
// Start before the phase's runner begins, Stop after it unwinds.
type Collector struct {
	queue   chan submission
	stop    chan struct{}
	done    chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewCollector creates a collector with the given queue capacity.
// A non-positive size falls back to the default.
func NewCollector(logger *zap.Logger, queueSize int) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Collector{
		queue:  make(chan submission, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the background dispatch worker. Safe to call once per
// collector; further calls are no-ops.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		go c.dispatchLoop()
	})
}

// Submit enqueues an envelope together with the adapters that should
// receive it. Never blocks: when the queue is full the envelope is dropped
// and counted, so a slow sink cannot stall request dispatch.
func (c *Collector) Submit(env Envelope, adapters []Adapter) {
	select {
	case c.queue <- submission{env: env, adapters: adapters}:
	default:
		c.dropped.Add(1)
	}
}

// Stop signals the dispatch worker, waits for it to drain what is already
// queued, and joins it. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

// Dropped returns the number of envelopes discarded because the queue was
// full at submission time.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) dispatchLoop() {
	defer close(c.done)
	for {
		select {
		case sub := <-c.queue:
			c.dispatch(sub)
		case <-c.stop:
			c.drain()
			return
		}
	}
}

// drain processes whatever was enqueued before the stop signal, without
// waiting for new submissions.
func (c *Collector) drain() {
	for {
		select {
		case sub := <-c.queue:
			c.dispatch(sub)
		default:
			return
		}
	}
}

// dispatch hands one envelope to every adapter in its submission. An
// adapter failure or panic is logged with its stack and does not affect the
// other adapters or subsequent envelopes.
func (c *Collector) dispatch(sub submission) {
	for _, adapter := range sub.adapters {
		if adapter == nil {
			continue
		}
		c.processOne(adapter, sub.env)
	}
}

func (c *Collector) processOne(adapter Adapter, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("stats adapter panicked",
				zap.Any("panic", r),
				zap.String("request", env.Request),
				zap.Stack("stack"))
		}
	}()
	if err := adapter.Process(env); err != nil {
		c.logger.Error("stats adapter failed",
			zap.Error(err),
			zap.String("request", env.Request),
			zap.Stack("stack"))
	}
}
