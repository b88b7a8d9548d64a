package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rampline/rampline/internal/auth"
	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/orchestrator"
	"github.com/rampline/rampline/internal/plugin"
	"github.com/rampline/rampline/internal/stats"
	"github.com/rampline/rampline/internal/tracing"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logger, err := newLogger(logLevelFromArgs(args))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}

	// Attach invocation handles registered by plugin packages to the
	// custom request descriptors named in the configuration.
	for pi := range cfg.Phases {
		for si := range cfg.Phases[pi].Scenarios {
			plugin.Default().Bind(cfg.Phases[pi].Scenarios[si].Requests)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace provider shutdown", zap.Error(err))
		}
	}()

	logAdapter, err := stats.NewLogAdapter(cfg.StatsLog.Dir, cfg.StatsLog.MaxSizeMB, cfg.StatsLog.MaxBackups)
	if err != nil {
		return err
	}
	defer func() { _ = logAdapter.Close() }()

	adapters := []stats.Adapter{logAdapter}
	if provider.Enabled() {
		adapters = append(adapters, tracing.NewAdapter(provider))
	}

	authReg := newAuthRegistry()
	defer func() { _ = authReg.Close() }()

	orch, err := orchestrator.New(cfg, orchestrator.Options{
		Adapters: adapters,
		Auth:     authReg,
		Logger:   logger,
		Out:      os.Stdout,
	})
	if err != nil {
		return err
	}
	return orch.Execute(ctx)
}

// newAuthRegistry registers the auth schemes this environment can provide.
// Requests tagged with a scheme that is absent here are skipped at dispatch
// time rather than failed.
func newAuthRegistry() *auth.Registry {
	reg := auth.NewRegistry()
	if token := os.Getenv("RAMPLINE_AUTH_TOKEN"); token != "" {
		reg.Register("bearer", auth.NewStaticTokenProvider(token))
	}
	tokenURL := os.Getenv("RAMPLINE_OAUTH_TOKEN_URL")
	clientID := os.Getenv("RAMPLINE_OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("RAMPLINE_OAUTH_CLIENT_SECRET")
	if tokenURL != "" && clientID != "" {
		var scopes []string
		if raw := os.Getenv("RAMPLINE_OAUTH_SCOPES"); raw != "" {
			scopes = strings.Fields(raw)
		}
		reg.Register("oauth2", auth.NewOAuth2ClientCredentialsProvider(
			tokenURL, clientID, clientSecret, scopes, 30*time.Second))
	}
	return reg
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// logLevelFromArgs scans for --log-level ahead of full flag parsing, since
// the logger must exist before the configuration loader runs.
func logLevelFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--log-level" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--log-level="); ok {
			return v
		}
	}
	return "info"
}
