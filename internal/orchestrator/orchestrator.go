// Package orchestrator drives a run's phases strictly sequentially, waiting
// the configured pause between consecutive phases.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rampline/rampline/internal/auth"
	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/output"
	"github.com/rampline/rampline/internal/phase"
	"github.com/rampline/rampline/internal/stats"
)

// Options carry the run-scoped collaborators: adapters that outlive a
// single phase (the stats log, tracing) and the auth registry.
type Options struct {
	Adapters []stats.Adapter
	Auth     *auth.Registry
	Logger   *zap.Logger
	Out      io.Writer
}

type Orchestrator struct {
	run *config.Run
	opt Options
}

func New(run *config.Run, opt Options) (*Orchestrator, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Out == nil {
		opt.Out = os.Stdout
	}
	if opt.Auth == nil {
		opt.Auth = auth.NewRegistry()
	}
	return &Orchestrator{run: run, opt: opt}, nil
}

// Execute runs every phase in order. Each phase gets a fresh histogram
// adapter so its report reflects only its own traffic; the run-scoped
// adapters see every envelope of the run.
func (o *Orchestrator) Execute(ctx context.Context) error {
	o.opt.Logger.Info("run starting",
		zap.String("run", o.run.Name),
		zap.Int("phases", len(o.run.Phases)))
	start := time.Now()

	for i := range o.run.Phases {
		desc := &o.run.Phases[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		hist := stats.NewHistogramAdapter()
		adapters := make([]stats.Adapter, 0, len(o.opt.Adapters)+1)
		adapters = append(adapters, o.opt.Adapters...)
		adapters = append(adapters, hist)

		p, err := phase.New(desc, phase.Options{
			Adapters: adapters,
			Auth:     o.opt.Auth,
			Logger:   o.opt.Logger,
		})
		if err != nil {
			return err
		}

		o.opt.Logger.Info("phase starting",
			zap.String("phase", desc.Name),
			zap.Duration("runtime", desc.Runtime))
		if err := p.Execute(ctx); err != nil {
			return fmt.Errorf("run %q: %w", o.run.Name, err)
		}
		output.PrintReport(o.opt.Out, desc.Name, hist.Summaries())

		if i < len(o.run.Phases)-1 && o.run.PhaseWait > 0 {
			if err := wait(ctx, o.run.PhaseWait); err != nil {
				return err
			}
		}
	}

	o.opt.Logger.Info("run complete",
		zap.String("run", o.run.Name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
