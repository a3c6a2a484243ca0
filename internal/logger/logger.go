package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a leveled printf-style logger shared by every redolog component.
type Logger struct {
	mu     sync.Mutex
	level  zap.AtomicLevel
	out    io.Writer
	prefix string
	json   bool
	sugar  *zap.SugaredLogger
}

func New(out io.Writer, level Level, prefix string) *Logger {
	l := &Logger{
		level:  zap.NewAtomicLevelAt(toZapLevel(level)),
		out:    out,
		prefix: prefix,
	}
	l.build()
	return l
}

// NewJSON creates a logger that emits one JSON object per line.
func NewJSON(out io.Writer, level Level, prefix string) *Logger {
	l := &Logger{
		level:  zap.NewAtomicLevelAt(toZapLevel(level)),
		out:    out,
		prefix: prefix,
		json:   true,
	}
	l.build()
	return l
}

func Default() *Logger {
	return New(os.Stderr, LevelInfo, "redolog")
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return New(io.Discard, LevelError, "")
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) build() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	var enc zapcore.Encoder
	if l.json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(l.out), l.level)
	z := zap.New(core)
	if l.prefix != "" {
		z = z.Named(l.prefix)
	}
	l.sugar = z.Sugar()
}

func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(toZapLevel(level))
}

// Named returns a child logger whose prefix is extended with name.
func (l *Logger) Named(name string) *Logger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	l.mu.Lock()
	out := l.out
	l.mu.Unlock()

	child := &Logger{
		level:  l.level,
		out:    out,
		prefix: prefix,
		json:   l.json,
	}
	child.build()
	return child
}

func (l *Logger) current() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.current().Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.current().Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.current().Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.current().Errorf(format, args...)
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.current().Sync()
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
