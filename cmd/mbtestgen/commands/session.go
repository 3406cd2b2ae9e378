package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/cmd/mbtestgen/config"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/sampling"
)

// Version is reported as the service version of exported spans
var Version = "dev"

// session carries everything one command invocation needs: configuration,
// a logger tagged with the run ID, metrics and the root span
type session struct {
	cfg    *config.Config
	ctx    context.Context
	logger *zap.Logger
	// base has no correlation fields; packages add them from ctx
	base    *zap.Logger
	metrics *observability.Metrics
	out     *config.Outputter
	name    string
	start   time.Time

	tracer *observability.TracerProvider
	span   trace.Span
}

// newSession loads configuration and sets up logging, metrics and tracing.
// Configuration errors are returned before anything touches the filesystem.
func newSession(cmd *cobra.Command, name string) (*session, error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	logger = observability.WithFields(logger, zap.String("version", Version))

	cfg.Tracing.ServiceVersion = Version
	tracer, err := observability.NewTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing unavailable", zap.Error(err))
		tracer = nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithRunID(ctx, observability.GenerateRunID())
	ctx = observability.WithCommand(ctx, name)
	ctx, span := observability.StartSpan(ctx, "mbtestgen."+name,
		attribute.String("run_id", observability.GetRunID(ctx)),
	)

	return &session{
		cfg:     cfg,
		ctx:     ctx,
		logger:  observability.ContextLogger(ctx, logger),
		base:    logger,
		metrics: observability.NewMetrics(),
		out:     config.NewOutputter(cfg.Output, cmd.OutOrStdout()),
		name:    name,
		start:   time.Now(),
		tracer:  tracer,
		span:    span,
	}, nil
}

// rand returns the random source for this run. Without a configured seed a
// fresh one is drawn and logged so the run can be repeated.
func (s *session) rand() *rand.Rand {
	seed := s.cfg.Seed
	if !s.cfg.HasSeed {
		seed = rand.Uint64()
	}
	s.logger.Info("Using random seed", zap.Uint64("seed", seed))
	return sampling.NewRand(seed)
}

// finish records the outcome and flushes metrics and traces. It returns err
// combined with any flush failure.
func (s *session) finish(err error) error {
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.RunsTotal.WithLabelValues(s.name, result).Inc()
	observability.EndSpan(s.span, err)

	if s.cfg.MetricsFile != "" {
		if werr := s.metrics.WriteTextfile(s.cfg.MetricsFile); werr != nil {
			s.logger.Error("Failed to write metrics", zap.Error(werr))
			err = multierr.Append(err, werr)
		}
	}

	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.tracer.Shutdown(ctx); serr != nil {
			s.logger.Warn("Failed to flush traces", zap.Error(serr))
		}
	}

	s.logger.Debug("Command finished",
		zap.String("result", result),
		zap.Duration("took", time.Since(s.start)),
	)
	_ = s.logger.Sync()
	return err
}
