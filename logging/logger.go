// Package logging provides structured, context-aware logging for every
// component of the Intervention Orchestrator. All packages log through a
// *ContextLogger rather than calling logrus directly, so request/tenant/
// fingerprint scoping stays consistent across the Gatekeeper, Workflow
// Runtime, and the detector/audit/retrieval pipelines.
package logging

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is one of the standard logging levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config configures a root logger.
type Config struct {
	Level      Level
	Format     string // "json" or "text"
	Service    string
	Version    string
	AddCaller  bool
	TimeFormat string
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// New creates a root *logrus.Logger from cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: cfg.TimeFormat, FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(os.Stdout)

	return logger
}

// ContextLogger is an immutable, field-scoped wrapper around a
// *logrus.Logger. Each With* call returns a new value; the receiver is
// never mutated, so a base logger can be shared safely across goroutines
// and specialized per request/job without risk of field leakage between
// callers.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger with an initial set of fields.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) clone() logrus.Fields {
	next := make(logrus.Fields, len(cl.fields))
	for k, v := range cl.fields {
		next[k] = v
	}
	return next
}

// WithField returns a copy scoped with an additional field.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	next := cl.clone()
	next[key] = value
	return &ContextLogger{logger: cl.logger, fields: next}
}

// WithFields returns a copy scoped with additional fields.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	next := cl.clone()
	for k, v := range fields {
		next[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: next}
}

// WithError returns a copy scoped with an error field.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// contextKey is unexported: callers set these via context.WithValue using
// the accessor functions in this package, never raw string keys.
type contextKey string

const (
	keyTenantID      contextKey = "tenant_id"
	keySessionID     contextKey = "session_id"
	keyFingerprint   contextKey = "fingerprint"
	keyJobID         contextKey = "job_id"
)

// WithTenant attaches a tenant ID to ctx for later extraction by WithContext.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// WithSession attaches a session ID to ctx.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// WithFingerprint attaches an admission fingerprint to ctx.
func WithFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, keyFingerprint, fingerprint)
}

// WithJobID attaches a job ID to ctx.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, keyJobID, jobID)
}

// WithContext returns a copy scoped with whichever of tenant/session/
// fingerprint/job IDs are present on ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	next := cl.clone()
	if v := ctx.Value(keyTenantID); v != nil {
		next["tenant_id"] = v
	}
	if v := ctx.Value(keySessionID); v != nil {
		next["session_id"] = v
	}
	if v := ctx.Value(keyFingerprint); v != nil {
		next["fingerprint"] = v
	}
	if v := ctx.Value(keyJobID); v != nil {
		next["job_id"] = v
	}
	return &ContextLogger{logger: cl.logger, fields: next}
}

func (cl *ContextLogger) Debug(msg string)                          { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(f string, args ...interface{})      { cl.logger.WithFields(cl.fields).Debugf(f, args...) }
func (cl *ContextLogger) Info(msg string)                           { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(f string, args ...interface{})       { cl.logger.WithFields(cl.fields).Infof(f, args...) }
func (cl *ContextLogger) Warn(msg string)                           { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(f string, args ...interface{})       { cl.logger.WithFields(cl.fields).Warnf(f, args...) }
func (cl *ContextLogger) Error(msg string)                          { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(f string, args ...interface{})      { cl.logger.WithFields(cl.fields).Errorf(f, args...) }
func (cl *ContextLogger) Fatal(msg string)                          { cl.logger.WithFields(cl.fields).Fatal(msg) }

// ServiceLogger creates a logger pre-scoped with service identity.
func ServiceLogger(root *logrus.Logger, serviceName, serviceVersion string) *ContextLogger {
	return NewContextLogger(root, map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
	})
}

// LogOperation times fn, logging its start, completion, and any error.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Info("operation started")

	err := fn()
	duration := time.Since(start)
	entry := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Info("operation completed")
	return nil
}

// LogPanic recovers a panic in a deferred call and logs it with a stack
// trace. It is the one panic/recover helper in the core packages. No
// package in this module defers it: engine.Runtime workers run without
// panic recovery, and the HTTP adapter relies on echo's Recover
// middleware instead.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
