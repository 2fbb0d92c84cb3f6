// Package log provides the structured logger used across bpfv. It keeps a
// small key-value interface so analysis packages do not depend on zap
// directly.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// ParseLevel converts a level name such as "debug" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger interface defines structured logging methods
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// DefaultLogger is the zap-backed implementation of Logger
type DefaultLogger struct {
	mu         sync.Mutex
	level      zap.AtomicLevel
	jsonOutput bool
	out        zapcore.WriteSyncer
	sugar      *zap.SugaredLogger
}

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l := &DefaultLogger{
		level:      zap.NewAtomicLevelAt(cfg.Level.zap()),
		jsonOutput: cfg.JSONOutput,
		out:        zapcore.Lock(zapcore.AddSync(out)),
	}
	l.rebuild()
	return l
}

// rebuild swaps the encoder. Callers hold mu or own l exclusively.
func (l *DefaultLogger) rebuild() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var enc zapcore.Encoder
	if l.jsonOutput {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if colorsEnabled() {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	l.sugar = zap.New(zapcore.NewCore(enc, l.out, l.level)).Sugar()
}

// colorsEnabled honours NO_COLOR.
func colorsEnabled() bool {
	return os.Getenv("NO_COLOR") == ""
}

func (l *DefaultLogger) logger() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.logger().Debugw(msg, args...) }

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) { l.logger().Infow(msg, args...) }

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) { l.logger().Warnw(msg, args...) }

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.logger().Errorw(msg, args...) }

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.level.SetLevel(level.zap())
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonOutput == enabled {
		return
	}
	l.jsonOutput = enabled
	l.rebuild()
}

// Sync flushes buffered entries.
func (l *DefaultLogger) Sync() error {
	return l.logger().Sync()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) SetLevel(Level)               {}
func (nopLogger) SetJSONOutput(bool)           {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }
