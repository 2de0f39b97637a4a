// Package logging wraps logrus with context-propagated identity fields,
// generalizing infrastructure/logging/logger.go to this domain's caller
// identity (tenant_id, run_id, request_id, user_id) in place of the
// teacher's trace/user/role fields.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	tenantIDKey ctxKey = iota
	runIDKey
	requestIDKey
	userIDKey
)

// Logger wraps *logrus.Logger with domain-specific structured helpers.
type Logger struct {
	base *logrus.Logger
}

// New builds a Logger with the given service name tag, level, and format
// ("json" or "text"), mirroring logger.New's constructor signature.
func New(service, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	l.AddHook(serviceHook{service: service})
	return &Logger{base: l}
}

type serviceHook struct{ service string }

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h serviceHook) Fire(e *logrus.Entry) error {
	e.Data["service"] = h.service
	return nil
}

// NewFromEnv reads LOG_LEVEL / LOG_FORMAT the way the teacher's
// NewFromEnv does.
func NewFromEnv(service string) *Logger {
	level := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	return New(service, level, format)
}

// NewTest builds a Logger that discards output, for unit tests.
func NewTest() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{base: l}
}

// WithTenant returns a context carrying the tenant id for later log calls.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithContext returns a logrus.Entry pre-populated with any identity fields
// stashed in ctx, the way logger.WithContext pulls trace/user/role fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(l.base)
	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		entry = entry.WithField("tenant_id", v)
	}
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		entry = entry.WithField("run_id", v)
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		entry = entry.WithField("request_id", v)
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		entry = entry.WithField("user_id", v)
	}
	return entry
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.base.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base.WithError(err)
}

// LogRunTransition records a Run state machine transition.
func (l *Logger) LogRunTransition(ctx context.Context, runID, runType, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"run_id":   runID,
		"run_type": runType,
		"from":     from,
		"to":       to,
	}).Info("run transition")
}

// LogDispatch records a dispatcher tick picking up a run.
func (l *Logger) LogDispatch(ctx context.Context, runID, runType string, attempt int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"run_id":   runID,
		"run_type": runType,
		"attempt":  attempt,
	}).Info("run dispatched")
}

// LogProviderCall records a provider call outcome.
func (l *Logger) LogProviderCall(ctx context.Context, provider string, durationMS int64, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"provider":    provider,
		"duration_ms": durationMS,
	})
	if err != nil {
		entry.WithError(err).Warn("provider call failed")
		return
	}
	entry.Debug("provider call succeeded")
}

// LogStoreQuery records a repository query for slow-query visibility.
func (l *Logger) LogStoreQuery(ctx context.Context, operation string, durationMS int64) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": durationMS,
	}).Debug("store query")
}

// LogSecurityEvent records a tenant-isolation or auth-relevant event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields logrus.Fields) {
	entry := l.WithContext(ctx).WithField("event", event)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Warn("security event")
}

// LogAudit records an AuditEvent being written.
func (l *Logger) LogAudit(ctx context.Context, action string, metadata map[string]any) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":   action,
		"metadata": metadata,
	}).Info("audit")
}

var defaultLogger *Logger

// InitDefault installs the process-wide default logger.
func InitDefault(l *Logger) { defaultLogger = l }

// Default returns the process-wide default logger, lazily building a
// from-env one if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("exposure-engine")
	}
	return defaultLogger
}
