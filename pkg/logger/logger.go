package logger

import (
	"context"
	"io"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

type logrusLogger struct {
	logger *logrus.Logger
}

var loggerPkg = reflect.TypeOf(logrusLogger{}).PkgPath() + "."

// getCallerFunctionName returns the short name of the first function outside
// this package on the stack. Frames are walked with CallersFrames so inlined
// callers keep their own names.
func getCallerFunctionName() string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, loggerPkg) {
			parts := strings.Split(frame.Function, ".")
			return parts[len(parts)-1]
		}
		if !more {
			return "unknown"
		}
	}
}

func (l *logrusLogger) entry(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := l.logger.WithContext(ctx)
	if traceID := getTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if sessionID := getSessionID(ctx); sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	return entry
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, args ...any) {
	args = append([]any{getCallerFunctionName()}, args...)
	l.entry(ctx).Warnf("[%s] "+msg, args...)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, args ...any) {
	args = append([]any{getCallerFunctionName()}, args...)
	l.entry(ctx).Errorf("[%s] "+msg, args...)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, args ...any) {
	args = append([]any{getCallerFunctionName()}, args...)
	l.entry(ctx).Infof("[%s] "+msg, args...)
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, args ...any) {
	args = append([]any{getCallerFunctionName()}, args...)
	l.entry(ctx).Debugf("[%s] "+msg, args...)
}

var (
	mu            sync.RWMutex
	defaultLogger Logger = newLogrusLogger(os.Stderr, logrus.InfoLevel)
)

type LoggerConfig struct {
	Level      string `json:"level,omitempty" toml:"level,omitempty"`
	File       string `json:"file,omitempty" toml:"file,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" toml:"max_size,omitempty"`       // MB, default 100
	MaxBackups int    `json:"max_backups,omitempty" toml:"max_backups,omitempty"` // default 3
	MaxAge     int    `json:"max_age,omitempty" toml:"max_age,omitempty"`         // days, default 7
	Compress   bool   `json:"compress,omitempty" toml:"compress,omitempty"`
}

func newLogrusLogger(out io.Writer, level logrus.Level) *logrusLogger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return &logrusLogger{logger: log}
}

func InitLogger(cfg *LoggerConfig) {
	if cfg == nil {
		cfg = &LoggerConfig{Level: "info"}
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 7
		}

		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		}
	}

	SetDefault(newLogrusLogger(out, level))
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func Warn(ctx context.Context, msg string, args ...any) {
	get().Warn(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	get().Error(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	get().Info(ctx, msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	get().Debug(ctx, msg, args...)
}

func GetDefaultLogger() Logger {
	return get()
}

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	sessionIDKey contextKey = "session_id"
)

// WithTraceID attaches a request trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSessionID attaches an automation session id (the execution log id) to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func getTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return getTraceID(ctx)
}
