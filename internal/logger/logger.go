package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
	closers       []func()
}

type Options struct {
	// Mode is "production" for JSON output, anything else for console output.
	Mode string
	// Dir enables a daily rotated file next to stdout when non-empty.
	Dir           string
	RetentionDays int
}

func New(mode string) (*Logger, error) {
	return NewWithOptions(Options{Mode: mode})
}

func NewWithOptions(opts Options) (*Logger, error) {
	encoder, level := encoderFor(opts.Mode)
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	var closers []func()
	if strings.TrimSpace(opts.Dir) != "" {
		writer, err := newDailyWriter(opts.Dir, opts.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		sinks = append(sinks, writer)
		closers = append(closers, writer.Close)
	}
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{SugaredLogger: zapLogger.Sugar(), closers: closers}, nil
}

// Nop discards everything; used by tests and as a nil-safe default.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func encoderFor(mode string) (zapcore.Encoder, zap.AtomicLevel) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		return zapcore.NewConsoleEncoder(cfg), zap.NewAtomicLevelAt(zap.DebugLevel)
	}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
	for _, closeFn := range l.closers {
		closeFn()
	}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(fmt.Sprint(kv[i])))
		if isRedactKey(key) {
			out = append(out, kv[i], "[REDACTED]")
			continue
		}
		if s, ok := kv[i+1].(string); ok && looksLikeJWT(s) {
			out = append(out, kv[i], "[REDACTED]")
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "email"),
		strings.Contains(key, "code"),
		strings.Contains(key, "refresh"):
		return true
	default:
		return false
	}
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
