// Package phase bounds one runner execution with a wall-clock timeout and
// owns the telemetry lifecycle around it. A phase is transactional: it
// starts, runs to completion or timeout, and fully tears down its stats
// pipeline before the next phase begins.
package phase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rampline/rampline/internal/auth"
	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/runner"
	"github.com/rampline/rampline/internal/scenario"
	"github.com/rampline/rampline/internal/stats"
)

// Options carry the collaborators shared by every scenario in the phase.
type Options struct {
	Adapters []stats.Adapter
	Auth     *auth.Registry
	Logger   *zap.Logger
}

type Phase struct {
	desc      *config.Phase
	collector *stats.Collector
	runner    *runner.Runner
	logger    *zap.Logger
}

// New validates the descriptor and builds the phase's collector and runner.
func New(desc *config.Phase, opt Options) (*Phase, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := stats.NewCollector(logger, 0)
	r, err := runner.New(desc.Scenarios, scenario.Options{
		Collector: collector,
		Adapters:  opt.Adapters,
		Auth:      opt.Auth,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("phase %q: %w", desc.Name, err)
	}

	return &Phase{
		desc:      desc,
		collector: collector,
		runner:    r,
		logger:    logger,
	}, nil
}

func (p *Phase) Name() string { return p.desc.Name }

// Execute starts the collector's dispatch loop and the runner, waits up to
// the phase runtime, and stops everything on the way out. Hitting the
// runtime limit is the expected termination path for continuous scenarios
// and is not an error; only runner failures and context cancellation are.
func (p *Phase) Execute(ctx context.Context) error {
	p.collector.Start()
	defer p.collector.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.runner.Start(runCtx) }()

	timer := time.NewTimer(p.desc.Runtime)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.runner.Stop()
			return fmt.Errorf("phase %q: %w", p.desc.Name, err)
		}
		return nil
	case <-timer.C:
		p.logger.Info("phase runtime reached, stopping scenarios",
			zap.String("phase", p.desc.Name),
			zap.Duration("runtime", p.desc.Runtime))
		p.runner.Stop()
		if err := <-done; err != nil {
			p.logger.Warn("scenario error during phase unwind",
				zap.String("phase", p.desc.Name), zap.Error(err))
		}
		return nil
	case <-ctx.Done():
		p.runner.Stop()
		<-done
		return ctx.Err()
	}
}
