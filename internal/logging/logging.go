// Package logging provides the structured logger shared by the wallet components.
//
// Loggers are named subsystems on top of ipfs go-log (zap). Private key material
// and signature bytes must never be passed as log fields.
package logging

import (
	"context"
	"strings"

	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is a leveled, key-value structured logger.
type Logger interface {
	// Debug logs a message at debug level.
	// keysAndValues are treated as key-value pairs (e.g., "key1", value1, "key2", value2).
	Debug(msg string, keysAndValues ...interface{})
	// Info logs a message at info level.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs a message at error level.
	Error(msg string, keysAndValues ...interface{})
	// With returns a new logger with the given key-value pair.
	With(key string, value interface{}) Logger
	// NewSystem returns a new logger with the given name.
	NewSystem(name string) Logger
}

const defaultLevel = "info"

// Setup configures the global log backend. Output goes to stderr so that it never
// mixes with the JSON envelopes written to stdout.
func Setup(level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = defaultLevel
	}
	zapLevel, err := golog.Parse(level)
	if err != nil {
		return err
	}
	golog.SetupLogging(golog.Config{
		Format: golog.JSONOutput,
		Level:  zapLevel,
		Stderr: true,
	})
	return nil
}

// New returns a logger for the named subsystem.
func New(name string) Logger {
	return &zapLogger{
		lg:                  golog.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
		commonKeysAndValues: []interface{}{},
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{lg: zap.NewNop().Sugar(), nop: true}
}

// NewFromZap wraps an existing zap logger. Used by tests that capture output.
func NewFromZap(lg *zap.Logger) Logger {
	return &zapLogger{lg: lg.Sugar()}
}

type zapLogger struct {
	lg                  *zap.SugaredLogger
	commonKeysAndValues []interface{}
	nop                 bool
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.lg.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.lg.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.lg.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) With(key string, value interface{}) Logger {
	common := make([]interface{}, 0, len(l.commonKeysAndValues)+2)
	common = append(common, l.commonKeysAndValues...)
	common = append(common, key, value)
	return &zapLogger{
		lg:                  l.lg.With(key, value),
		commonKeysAndValues: common,
		nop:                 l.nop,
	}
}

func (l *zapLogger) NewSystem(name string) Logger {
	if l.nop {
		return NewNop()
	}
	lg := golog.Logger(name)
	return &zapLogger{
		lg:                  lg.SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar().With(l.commonKeysAndValues...),
		commonKeysAndValues: []interface{}{},
	}
}

type loggerContextKey struct{}

// WithLogger attaches the provided logger to the context.
func WithLogger(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// FromContext retrieves the logger stored in the context, or a nop logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return NewNop()
}
