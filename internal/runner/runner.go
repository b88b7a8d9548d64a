// Package runner fans out a phase's scenarios concurrently and joins them.
// Scenarios never share state with one another; the runner's only job is
// fan-out and join.
package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/scenario"
)

type Runner struct {
	scenarios []*scenario.Scenario
	logger    *zap.Logger

	mu  sync.Mutex
	err error
}

// New instantiates one Scenario per descriptor. Construction fails on the
// first invalid descriptor.
func New(descs []config.Scenario, opt scenario.Options) (*Runner, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger}
	for i := range descs {
		sc, err := scenario.New(&descs[i], opt)
		if err != nil {
			return nil, err
		}
		r.scenarios = append(r.scenarios, sc)
	}
	return r, nil
}

// Start runs every scenario concurrently and blocks until all of them have
// unwound, either naturally or after Stop. The first scenario error is
// returned; the rest are logged.
func (r *Runner) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, sc := range r.scenarios {
		wg.Add(1)
		go func(sc *scenario.Scenario) {
			defer wg.Done()
			if err := sc.Run(ctx); err != nil {
				r.logger.Error("scenario failed", zap.Error(err))
				r.mu.Lock()
				if r.err == nil {
					r.err = err
				}
				r.mu.Unlock()
			}
		}(sc)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop marks every scenario stopped. Start returns once all worker tasks
// have exited.
func (r *Runner) Stop() {
	for _, sc := range r.scenarios {
		sc.Stop()
	}
}
