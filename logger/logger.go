package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Config holds logging configuration
type Config struct {
	// Mode selects the zap preset: "production" or "development"
	Mode string `yaml:"mode"`

	// Level is the minimum level that is emitted (debug, info, warn, error)
	Level string `yaml:"level"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Mode:  "development",
		Level: "info",
	}
}

// Logger is a structured key/value logger backed by zap.
//
// Its method set matches go.temporal.io/sdk/log.Logger, so the same instance is
// handed to the Temporal client and used by the direct runtime.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger from the given configuration
func New(cfg Config) (*Logger, error) {
	var zc zap.Config
	switch strings.ToLower(cfg.Mode) {
	case "prod", "production":
		zc = zap.NewProductionConfig()
	default:
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}

	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// NewObserved returns a logger whose entries are captured for inspection in tests
func NewObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitize(keyvals)...)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitize(keyvals)...)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitize(keyvals)...)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitize(keyvals)...)
}

func (l *Logger) Fatal(msg string, keyvals ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitize(keyvals)...)
}

// With returns a child logger that always carries the given key/value pairs
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitize(keyvals)...)}
}

func sanitize(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.ToLower(fmt.Sprint(kv[i]))
		out = append(out, kv[i], sanitizeValue(key, kv[i+1]))
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	switch {
	case strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "token"):
		return "[REDACTED]"
	case strings.Contains(key, "card"), key == "pan":
		if s, ok := val.(string); ok {
			return MaskPAN(s)
		}
		return "[REDACTED]"
	}
	return val
}

// MaskPAN masks a card number for logging, e.g. 4111111111111111 -> 411111******1111
func MaskPAN(pan string) string {
	if len(pan) <= 10 {
		return pan
	}
	return fmt.Sprintf("%s******%s", pan[:6], pan[len(pan)-4:])
}
