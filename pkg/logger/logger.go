// Package logger is a thin structured facade over zerolog. Error entries can
// additionally be folded and shipped by a LogCollector.
package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	return f, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child carrying fields on every entry. It shares the
// parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.plain())
	}
	return &Logger{zl: ctx.Logger(), collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { write(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	write(l.zl.Error(), msg, fields)
	if l.collector != nil {
		l.collector.AddLog("error", msg, fieldMap(fields), callerOf(1))
	}
}

// AddCollector starts folding error entries into cfg's publisher,
// replacing any previous collector.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(cfg)
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)
}

// callerOf reports file:line of the frame skip levels above its caller,
// relative to the module root.
func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	for _, root := range []string{"/internal/", "/pkg/", "/cmd/"} {
		if i := strings.LastIndex(file, root); i >= 0 {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func fieldMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.plain()
	}
	return m
}

// Field is one key/value on a log entry.
type Field struct {
	Key   string
	Value any
}

func (f Field) apply(e *zerolog.Event) {
	switch v := f.Value.(type) {
	case nil:
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case int64:
		e.Int64(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case bool:
		e.Bool(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	default:
		e.Interface(f.Key, v)
	}
}

// plain is the JSON-safe form used for context fields and the collector.
func (f Field) plain() any {
	if err, ok := f.Value.(error); ok {
		return err.Error()
	}
	return f.Value
}

func String(key, value string) Field         { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Int64(key string, value int64) Field     { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }
func Any(key string, value any) Field         { return Field{key, value} }

// Error logs err under "error". A nil err adds nothing.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{"error", err}
}

// Duration is logged in milliseconds.
func Duration(key string, d time.Duration) Field {
	return Field{key, d.Milliseconds()}
}

func Strings(key string, values []string) Field {
	return Field{key, strings.Join(values, ", ")}
}
