// Package logger provides structured logging for deltakey
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with deltakey-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for terminals
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "deltakey").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns a copy of the underlying logger for packages that take
// a zerolog.Logger directly
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// GrpcLogger returns a logger for one gRPC method
func (l *Logger) GrpcLogger(method string) *Logger {
	return l.component("grpc", "method", method)
}

// HTTPLogger returns a logger for one HTTP API route
func (l *Logger) HTTPLogger(route string) *Logger {
	return l.component("http", "route", route)
}

// DbLogger returns a logger for database operations
func (l *Logger) DbLogger(operation string) *Logger {
	return l.component("database", "operation", operation)
}

// QueryLogger returns a logger for one identification session
func (l *Logger) QueryLogger(sessionID string) *Logger {
	return l.component("query", "session", sessionID)
}

func (l *Logger) component(name, key, value string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", name).
			Str(key, value).
			Logger(),
	}
}

// LogGrpcRequest logs a completed gRPC call. Use it on a GrpcLogger.
func (l *Logger) LogGrpcRequest(duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Dur("duration_ms", duration).
		Msg("gRPC request completed")
}

// LogHTTPRequest logs a completed HTTP request. Use it on an HTTPLogger.
func (l *Logger) LogHTTPRequest(method, path string, status int, duration time.Duration) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	} else if status >= 400 {
		event = l.zlog.Warn()
	}
	event.
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration_ms", duration).
		Msg("HTTP request completed")
}

// LogDbOperation logs a database operation. Use it on a DbLogger.
func (l *Logger) LogDbOperation(duration time.Duration, recordCount int, err error) {
	event := l.zlog.Debug().Int("record_count", recordCount)
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Dur("duration_ms", duration).
		Msg("Database operation completed")
}

// LogQuery logs one engine operation. Use it on a QueryLogger.
func (l *Logger) LogQuery(operation string, clauses, survivors int, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("operation", operation).
		Int("clauses", clauses).
		Int("survivors", survivors).
		Dur("duration_ms", duration).
		Msg("Query completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(kind string, port int, dbPath string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("server", kind).
		Int("port", port).
		Str("database", dbPath).
		Msg("deltakey server starting")
}

// LogServerReady logs when a server is ready
func (l *Logger) LogServerReady(kind string, port int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Str("server", kind).
		Int("port", port).
		Msg("deltakey server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown(kind string) {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Str("server", kind).
		Msg("deltakey server shutting down")
}
