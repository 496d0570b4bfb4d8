package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// ZeroLogger adapts zerolog to the Logger interface and exposes the
// underlying logger for structured events.
type ZeroLogger struct {
	mu  sync.RWMutex
	log zerolog.Logger
}

func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty)
}

func NewWithWriter(w io.Writer, level string, pretty bool) *ZeroLogger {
	zerolog.TimeFieldFormat = time.RFC3339
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(level))
	return &ZeroLogger{log: l}
}

// ParseLevel accepts the usual names plus WARNING and CRITICAL.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel swaps the level in place; used on config reload.
func (l *ZeroLogger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = l.log.Level(ParseLevel(level))
}

// Zerolog returns a snapshot of the underlying logger for structured events.
func (l *ZeroLogger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log
}

func (l *ZeroLogger) Errorf(format string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *ZeroLogger) Infof(format string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *ZeroLogger) Warnf(format string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *ZeroLogger) Fatalf(format string, args ...interface{}) {
	zl := l.Zerolog()
	zl.Fatal().Msg(fmt.Sprintf(format, args...))
}

// Event writes one structured record. PII fields are redacted first.
func (l *ZeroLogger) Event(level zerolog.Level, msg string, fields map[string]interface{}) {
	zl := l.Zerolog()
	zl.WithLevel(level).Fields(Redact(fields)).Msg(msg)
}
