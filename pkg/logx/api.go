package logx

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger(LoadFromEnv()))
}

func std() *Logger { return defaultLogger.Load() }

// SetDefaultLogger sets the default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// GetDefaultLogger returns the default logger
func GetDefaultLogger() *Logger {
	return std()
}

// SetLevel sets the log level for the default logger
func SetLevel(level Level) {
	std().SetLevel(level)
}

// SetOutput sets the output for the default logger
func SetOutput(w io.Writer) {
	std().SetOutput(w)
}

func Trace(msg string) { std().log(LevelTrace, msg, nil, nil, nil) }
func Debug(msg string) { std().log(LevelDebug, msg, nil, nil, nil) }
func Info(msg string)  { std().log(LevelInfo, msg, nil, nil, nil) }
func Warn(msg string)  { std().log(LevelWarn, msg, nil, nil, nil) }
func Error(msg string) { std().log(LevelError, msg, nil, nil, nil) }

// Fatal logs a fatal level message and exits
func Fatal(msg string) {
	std().log(LevelFatal, msg, nil, nil, nil)
	std().exit(1)
}

func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...any) {
	Fatal(fmt.Sprintf(format, args...))
}

// WithFields creates a new logger entry with fields
func WithFields(fields Fields) *Entry {
	return std().WithFields(fields)
}

// WithField creates a new logger entry with a single field
func WithField(key string, value any) *Entry {
	return std().WithField(key, value)
}

// WithContext creates a new logger entry carrying request scoped fields
func WithContext(ctx context.Context) *Entry {
	return newEntry(std()).WithContext(ctx)
}

// WithError creates a new logger entry with an error field
func WithError(err error) *Entry {
	return std().WithError(err)
}
