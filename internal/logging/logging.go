// Package logging wraps github.com/rs/zerolog behind a small Logger
// type: a single instance configured once at startup, with methods that
// delegate to zerolog so call sites never import it directly.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	// DefaultLevel is used when Config.LogLevel is empty.
	DefaultLevel = "info"
	// DefaultFormat is used when Config.LogFormat is empty.
	DefaultFormat = "text"
)

// Logger is a thin wrapper around zerolog.Logger. When Options.NodeID is
// set, every record carries it as a structured node_id field instead of
// having it string-interpolated into the message.
type Logger struct {
	zl zerolog.Logger
}

// Options configures a Logger.
type Options struct {
	Level  string // debug|info|warn|error, default "info"
	Format string // "json" or "text", default "text"
	NodeID string // attached to every record as node_id, optional
	Output io.Writer
}

// New builds a Logger from Options. Invalid levels fall back to info and
// log a warning rather than failing startup.
func New(opts Options) *Logger {
	level, err := zerolog.ParseLevel(firstNonEmpty(opts.Level, DefaultLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if firstNonEmpty(opts.Format, DefaultFormat) != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).With().Timestamp().Logger().Level(level)
	if opts.NodeID != "" {
		zl = zl.With().Str("node_id", opts.NodeID).Logger()
	}
	if err != nil {
		zl.Warn().Str("configured_level", opts.Level).Msg("invalid log level, defaulting to info")
	}

	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything; useful for tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(err error, msg string, fields map[string]any) {
	l.log(l.zl.Error().Err(err), msg, fields)
}

// With returns a child Logger with an additional structured field bound
// to every subsequent record, e.g. the "op" of an in-flight RPC.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
