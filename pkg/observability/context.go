package observability

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context keys for correlation
type contextKey string

const (
	// RunIDKey is the context key for the ID of one CLI invocation
	RunIDKey contextKey = "run-id"

	// CommandKey is the context key for the running subcommand name
	CommandKey contextKey = "command"

	// EntityKey is the context key for the entity kind being processed
	EntityKey contextKey = "entity"
)

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCommand adds the subcommand name to the context
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, CommandKey, command)
}

// GetCommand retrieves the subcommand name from the context
func GetCommand(ctx context.Context) string {
	if c, ok := ctx.Value(CommandKey).(string); ok {
		return c
	}
	return ""
}

// WithEntity adds the entity kind name to the context
func WithEntity(ctx context.Context, entity string) context.Context {
	return context.WithValue(ctx, EntityKey, entity)
}

// GetEntity retrieves the entity kind name from the context
func GetEntity(ctx context.Context) string {
	if e, ok := ctx.Value(EntityKey).(string); ok {
		return e
	}
	return ""
}

// GenerateRunID generates a new run ID
func GenerateRunID() string {
	return uuid.New().String()
}

// ContextLogger returns a logger with correlation fields from context
func ContextLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := []zap.Field{}

	if runID := GetRunID(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}

	if command := GetCommand(ctx); command != "" {
		fields = append(fields, zap.String("command", command))
	}

	if entity := GetEntity(ctx); entity != "" {
		fields = append(fields, zap.String("entity", entity))
	}

	// Add trace ID if available
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		fields = append(fields, zap.String("trace_id", span.SpanContext().TraceID().String()))
		fields = append(fields, zap.String("span_id", span.SpanContext().SpanID().String()))
	}

	return logger.With(fields...)
}
