package util

import (
	"fmt"
	"os"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger LoggerInterface
)

// LogOptions configures the global logger.
type LogOptions struct {
	Level   string
	File    string
	Format  LogFormat
	Console bool // mirror entries to stderr
}

// InitLogger installs the global logger. Calling it again replaces the
// previous logger and closes its outputs.
func InitLogger(opts LogOptions) error {
	if opts.Format == "" {
		opts.Format = FormatText
	}

	logger := NewLogger(opts.Level)
	if opts.Console {
		logger.AddOutput(NewWriterOutput(os.Stderr, opts.Format))
	}
	if opts.File != "" {
		out, err := NewFileOutput(opts.File, opts.Format)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		logger.AddOutput(out)
	}

	SetLogger(logger)
	return nil
}

// SetLogger replaces the global logger.
func SetLogger(logger LoggerInterface) {
	globalMu.Lock()
	old := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if old != nil && old != logger {
		_ = old.Close()
	}
}

// GetLogger returns the global logger, or a logger without outputs.
func GetLogger() LoggerInterface {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return NewLogger("error")
	}
	return globalLogger
}

func LogInfo(msg string, fields ...Field) {
	GetLogger().Info(msg, fields...)
}

func LogInfof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

func LogDebug(msg string, fields ...Field) {
	GetLogger().Debug(msg, fields...)
}

func LogDebugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

func LogWarn(msg string, fields ...Field) {
	GetLogger().Warn(msg, fields...)
}

func LogWarnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

func LogError(msg string, fields ...Field) {
	GetLogger().Error(msg, fields...)
}

func LogErrorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}
