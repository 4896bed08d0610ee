package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

// Field represents a key-value pair for structured logging
type Field = zap.Field

// Logger provides structured logging scoped to one component
type Logger struct {
	z         *zap.Logger
	component string
}

// LoggerConfig configures a logger instance
type LoggerConfig struct {
	Level       LogLevel
	Component   string
	Output      io.Writer
	Development bool // console encoder instead of JSON
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config LoggerConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	var encoder zapcore.Encoder
	if config.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(config.Output), zap.NewAtomicLevelAt(config.Level))
	z := zap.New(core)
	if config.Component != "" {
		z = z.Named(config.Component)
	}

	return &Logger{z: z, component: config.Component}
}

// FromZap wraps an existing zap logger (tests use zaptest/observer cores)
func FromZap(z *zap.Logger, component string) *Logger {
	if component != "" {
		z = z.Named(component)
	}
	return &Logger{z: z, component: component}
}

// DefaultLogger creates a logger with sensible defaults
func DefaultLogger(component string) *Logger {
	return NewLogger(LoggerConfig{
		Level:     INFO,
		Component: component,
		Output:    os.Stdout,
	})
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// ParseLevel maps a config string to a level; unknown strings fall back to info
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// With returns a child logger with the given fields appended
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...), component: l.component}
}

// Named returns a child logger for a sub-component
func (l *Logger) Named(component string) *Logger {
	return &Logger{z: l.z.Named(component), component: component}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Helper functions for creating fields
func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Uint64(key string, value uint64) Field          { return zap.Uint64(key, value) }
func Float64(key string, value float64) Field        { return zap.Float64(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Err(err error) Field                            { return zap.Error(err) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
