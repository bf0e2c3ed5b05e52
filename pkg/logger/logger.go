// Package logger wraps logrus with immutable field scoping.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger carries a fixed set of fields. The With* methods return a copy, so a
// scoped logger can be handed to a goroutine without further locking.
type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

type Config struct {
	Level      LogLevel `yaml:"level"`
	Format     string   `yaml:"format"` // json, text
	Output     string   `yaml:"output"` // stdout, stderr or a file path
	TimeFormat string   `yaml:"time_format"`
	Caller     bool     `yaml:"caller"`
	Colors     bool     `yaml:"colors"`
	AppName    string   `yaml:"app_name"`
	Version    string   `yaml:"version"`

	// Rotation, only used when Output is a file path.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	SessionIDKey ctxKey = "session_id"
	UserIDKey    ctxKey = "user_id"
)

func NewLogger(config *Config) (*Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&JSONFormatter{
			TimestampFormat: config.TimeFormat,
			AppName:         config.AppName,
			Version:         config.Version,
		})
	} else {
		l.SetFormatter(&TextFormatter{
			TimestampFormat: config.TimeFormat,
			Colors:          config.Colors,
			AppName:         config.AppName,
		})
	}

	switch config.Output {
	case "", "stdout":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		maxSize := config.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 32
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    maxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		})
	}
	l.SetReportCaller(config.Caller)

	return &Logger{logger: l, fields: logrus.Fields{}}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{logger: l, fields: logrus.Fields{}}
}

func (l *Logger) with(extra map[string]interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Logger{logger: l.logger, fields: fields}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(map[string]interface{}{key: value})
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(fields)
}

// WithContext picks up the request, session and user ids stored by the HTTP
// middleware.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make(map[string]interface{}, 3)
	for _, key := range []ctxKey{RequestIDKey, SessionIDKey, UserIDKey} {
		if s, ok := ctx.Value(key).(string); ok && s != "" {
			fields[string(key)] = s
		}
	}
	return l.with(fields)
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) WithUserID(userID string) *Logger       { return l.WithField("user_id", userID) }
func (l *Logger) WithSessionID(sessionID string) *Logger { return l.WithField("session_id", sessionID) }
func (l *Logger) WithComponent(component string) *Logger { return l.WithField("component", component) }

func (l *Logger) entry() *logrus.Entry { return l.logger.WithFields(l.fields) }

func (l *Logger) Debug(msg string) { l.entry().Debug(msg) }
func (l *Logger) Info(msg string)  { l.entry().Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry().Warn(msg) }
func (l *Logger) Error(msg string) { l.entry().Error(msg) }
func (l *Logger) Fatal(msg string) { l.entry().Fatal(msg) }

func (l *Logger) event(kind string, base, details map[string]interface{}) *Logger {
	fields := make(map[string]interface{}, len(base)+len(details)+1)
	for k, v := range details {
		fields[k] = v
	}
	for k, v := range base {
		fields[k] = v
	}
	fields["type"] = kind
	return l.with(fields)
}

// LogSessionEvent records a session lifecycle transition at info level.
func (l *Logger) LogSessionEvent(sessionID, event string, details map[string]interface{}) {
	l.event("session_event", map[string]interface{}{"session_id": sessionID, "event": event}, details).
		Info("SOS session event")
}

// LogStreamEvent records capture stream activity at debug level.
func (l *Logger) LogStreamEvent(stream, event string, details map[string]interface{}) {
	l.event("stream_event", map[string]interface{}{"stream": stream, "event": event}, details).
		Debug("Capture stream event")
}

func (l *Logger) LogAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	l.event("api_request", map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}, nil).Info("API request processed")
}

func (l *Logger) SetOutput(output io.Writer) {
	l.logger.SetOutput(output)
}
