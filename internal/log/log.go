// ABOUTME: Leveled logging on top of zerolog for library and CLI diagnostics
// ABOUTME: Global level via SetLevel; writes to stderr so it never mixes with rendered output

package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Level constants matching zerolog levels.
const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var (
	level atomic.Int32

	mu     sync.RWMutex
	logger = newLogger(os.Stderr)
)

func init() {
	level.Store(int32(LevelInfo))
}

func newLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// SetLevel sets the global log level.
func SetLevel(l zerolog.Level) {
	level.Store(int32(l))
}

// GetLevel returns the current log level.
func GetLevel() zerolog.Level {
	return zerolog.Level(level.Load())
}

// ParseLevel maps a config string ("debug", "warn", ...) to a level.
// Unknown strings yield LevelInfo.
func ParseLevel(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(s)
	if err != nil || l == zerolog.NoLevel {
		return LevelInfo
	}
	return l
}

// SetOutput redirects log output. Used by tests and by the CLI when a log
// file is configured.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w)
	mu.Unlock()
}

func emit(l zerolog.Level, format string, args []any) {
	if l < GetLevel() {
		return
	}
	mu.RLock()
	lg := logger
	mu.RUnlock()
	lg.WithLevel(l).Msgf(format, args...)
}

// Debug logs a debug message if the level allows it.
func Debug(format string, args ...any) {
	emit(LevelDebug, format, args)
}

// Info logs an info message if the level allows it.
func Info(format string, args ...any) {
	emit(LevelInfo, format, args)
}

// Warn logs a warning message if the level allows it.
func Warn(format string, args ...any) {
	emit(LevelWarn, format, args)
}

// Error logs an error message (always emitted).
func Error(format string, args ...any) {
	mu.RLock()
	lg := logger
	mu.RUnlock()
	lg.WithLevel(LevelError).Msgf(format, args...)
}
