package mocks

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewNoOpLogger creates a logger that discards all output
func NewNoOpLogger() *zap.Logger {
	return zap.New(zapcore.NewNopCore())
}

// NewObservedLogger creates a logger whose entries at or above level can be
// inspected by the test
func NewObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}
