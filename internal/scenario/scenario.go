// Package scenario implements the ramp-up scheduler: it grows a pool of
// request-emitting workers from the configured minimum toward the maximum
// over discrete steps, additively or multiplicatively, and sustains or
// repeats that level according to the run-once mode.
package scenario

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rampline/rampline/internal/auth"
	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/httpclient"
	"github.com/rampline/rampline/internal/stats"
	"github.com/rampline/rampline/internal/worker"
	"github.com/rampline/rampline/internal/wsclient"
)

// Options carry the collaborators a scenario needs at construction.
type Options struct {
	Collector *stats.Collector
	Adapters  []stats.Adapter
	Auth      *auth.Registry
	Sockets   *wsclient.Registry
	Logger    *zap.Logger
}

// Scenario owns one logical group of workers and drives the ramp-up loop.
// Ramp steps are strictly sequential: a step's increment is never computed
// before the previous step's spawn-and-wait has completed.
type Scenario struct {
	desc    *config.Scenario
	opt     Options
	limiter *rate.Limiter
	shared  worker.Source // set when iterate_through_requests

	mu       sync.Mutex
	stopped  bool
	tasks    []*worker.Task
	clients  []*http.Client
	spawnIdx int // round-robin descriptor cursor, persists across ramp steps

	stopOnce sync.Once
	stopC    chan struct{}
	wg       sync.WaitGroup
}

// New validates the descriptor and builds a scenario. Configuration
// violations are the only fatal conditions a scenario raises; everything
// later is handled inside the workers.
func New(desc *config.Scenario, opt Options) (*Scenario, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Sockets == nil {
		opt.Sockets = wsclient.NewRegistry(wsclient.Config{})
	}
	if opt.Auth == nil {
		opt.Auth = auth.NewRegistry()
	}

	s := &Scenario{
		desc:  desc,
		opt:   opt,
		stopC: make(chan struct{}),
	}
	if desc.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(desc.RatePerSecond), desc.RatePerSecond)
	}
	if desc.IterateThroughRequests {
		shared, err := NewSharedIterator(desc.Requests)
		if err != nil {
			return nil, err
		}
		s.shared = shared
	}
	return s, nil
}

// Stop marks the scenario stopped and signals every owned worker. It does
// not wait; Run returns only after all worker run loops have exited.
func (s *Scenario) Stop() {
	s.stopOnce.Do(func() { close(s.stopC) })
	s.mu.Lock()
	s.stopped = true
	tasks := make([]*worker.Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()
	for _, t := range tasks {
		t.Stop()
	}
}

func (s *Scenario) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Run executes the ramp loop until the scenario is stopped or the context
// is cancelled, then joins every worker and tears down protocol resources.
func (s *Scenario) Run(ctx context.Context) error {
	defer s.teardown()

	count := s.spawn(ctx, s.desc.MinConcurrency, s.desc.MinConcurrency)
	batch := s.currentTasks()

	if s.desc.RunOnce {
		s.join(batch)
	} else {
		s.sleep(ctx, s.desc.RampUpWait[0])
	}

	waitIdx, rampIdx := 0, 0
	for !s.isStopped() && ctx.Err() == nil {
		if waitIdx < len(s.desc.RampUpWait)-1 {
			waitIdx++
		}

		step := s.desc.RampUp[rampIdx]
		atCeiling := count >= s.desc.MaxConcurrency
		var spawned int
		switch {
		case s.desc.RunOnce && atCeiling:
			// A batch at max_concurrency is never grown or repeated;
			// the previous generation stays the last one.
		case s.desc.RunOnce && s.desc.Multiply:
			// Sequential batches: the previous generation has finished,
			// so the full next generation is spawned fresh.
			s.discardTasks()
			spawned = s.spawnBatch(ctx, count*step)
			count = spawned
		case s.desc.RunOnce:
			s.discardTasks()
			spawned = s.spawnBatch(ctx, count+step)
			count = spawned
		case s.desc.Multiply:
			spawned = s.spawn(ctx, count*(step-1), count*step)
			count += spawned
		default:
			spawned = s.spawn(ctx, step, count+step)
			count += spawned
		}

		s.opt.Logger.Debug("ramp step complete",
			zap.String("scenario", s.desc.Name),
			zap.Int("spawned", spawned),
			zap.Int("workers", count))

		if s.isStopped() {
			break
		}

		// A saturated run-once scenario has no new generation to join;
		// it waits out the step instead.
		if s.desc.RunOnce && !atCeiling {
			s.join(s.currentTasks())
		} else {
			s.sleep(ctx, s.desc.RampUpWait[waitIdx])
		}

		if rampIdx < len(s.desc.RampUp)-1 {
			rampIdx++
		}
	}

	s.Stop()
	s.wg.Wait()
	return nil
}

// spawn adds up to want workers, never letting the tracked population
// exceed max_concurrency. It returns how many were actually started.
func (s *Scenario) spawn(ctx context.Context, want, target int) int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	live := len(s.tasks)
	s.mu.Unlock()

	if live >= s.desc.MaxConcurrency {
		return 0
	}
	if target > s.desc.MaxConcurrency {
		target = s.desc.MaxConcurrency
	}
	n := target - live
	if n > want {
		n = want
	}
	if n <= 0 {
		return 0
	}

	d := s.newDispatcher(n)
	for i := 0; i < n; i++ {
		src, err := s.nextSource()
		if err != nil {
			s.opt.Logger.Error("cannot assign request descriptor",
				zap.String("scenario", s.desc.Name), zap.Error(err))
			return i
		}
		t := worker.NewTask(worker.Options{
			Scenario:   s.desc.Name,
			RunOnce:    s.desc.RunOnce,
			Source:     src,
			Dispatcher: d,
			Collector:  s.opt.Collector,
			Adapters:   s.opt.Adapters,
			Limiter:    s.limiter,
			Logger:     s.opt.Logger,
		})
		s.mu.Lock()
		s.tasks = append(s.tasks, t)
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t.Run(ctx)
		}()
	}
	return n
}

// spawnBatch starts a fresh run-once generation of up to target workers.
func (s *Scenario) spawnBatch(ctx context.Context, target int) int {
	if target > s.desc.MaxConcurrency {
		target = s.desc.MaxConcurrency
	}
	return s.spawn(ctx, target, target)
}

// nextSource binds a worker to its request source: the shared rotation when
// iterate_through_requests is set, otherwise a private iterator over the
// single descriptor the round-robin cursor assigns. The cursor persists
// across ramp steps so later batches continue the rotation.
func (s *Scenario) nextSource() (worker.Source, error) {
	if s.shared != nil {
		return s.shared, nil
	}
	s.mu.Lock()
	req := s.desc.Requests[s.spawnIdx%len(s.desc.Requests)]
	s.spawnIdx++
	s.mu.Unlock()
	return NewIterator([]*config.Request{req})
}

// newDispatcher builds the protocol executor for one ramp batch, with an
// HTTP pool sized to the batch's concurrency.
func (s *Scenario) newDispatcher(batchSize int) *worker.Dispatcher {
	client := httpclient.NewClient(0, batchSize)
	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	return &worker.Dispatcher{
		HTTPClient: client,
		Auth:       s.opt.Auth,
		Sockets:    s.opt.Sockets,
		Logger:     s.opt.Logger,
	}
}

// WorkerCount returns the number of currently tracked worker tasks.
func (s *Scenario) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scenario) currentTasks() []*worker.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*worker.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// discardTasks drops handles of a completed run-once generation so the next
// batch starts from an empty tracked set.
func (s *Scenario) discardTasks() {
	s.mu.Lock()
	s.tasks = s.tasks[:0]
	s.mu.Unlock()
}

// join blocks until every task in the batch has exited its run loop.
func (s *Scenario) join(batch []*worker.Task) {
	for _, t := range batch {
		<-t.Done()
	}
}

// sleep waits for d, returning early on stop or context cancellation.
func (s *Scenario) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopC:
	case <-ctx.Done():
	}
}

// teardown closes the scenario's protocol resources: memoized WebSocket
// connections and the per-batch HTTP pools.
func (s *Scenario) teardown() {
	if err := s.opt.Sockets.CloseAll(); err != nil {
		s.opt.Logger.Warn("closing websocket connections",
			zap.String("scenario", s.desc.Name), zap.Error(err))
	}
	s.mu.Lock()
	clients := s.clients
	s.clients = nil
	s.mu.Unlock()
	for _, c := range clients {
		c.CloseIdleConnections()
	}
}
