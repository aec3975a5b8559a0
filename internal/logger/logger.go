package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// instanceID is a unique identifier for this agent process.
// Used to correlate logs when several agents report to the same sink.
var instanceID string

func init() {
	instanceID = os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = os.Getenv("HOSTNAME")
	}
	// Generate random ID as fallback
	if instanceID == "" {
		b := make([]byte, 4)
		rand.Read(b)
		instanceID = hex.EncodeToString(b)
	}
}

// GetInstanceID returns the instance ID for this agent.
func GetInstanceID() string {
	return instanceID
}

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
	Output io.Writer
}

// contextKey is used for context values.
type contextKey string

const (
	// ContextKeyRequestID is the key for request ID in the context.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyDeviceID is the key for the device fingerprint in the context.
	ContextKeyDeviceID contextKey = "device_id"
	// ContextKeyMessageID is the key for an inbound push message ID in the context.
	ContextKeyMessageID contextKey = "message_id"
	// ContextKeyOperation is the key for operation name in the context.
	ContextKeyOperation contextKey = "operation"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the given config.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	if config.Format == "json" {
		opts := &slog.HandlerOptions{
			Level:     config.Level,
			AddSource: true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				// Better timestamp format.
				if a.Key == slog.TimeKey {
					return slog.Attr{
						Key:   a.Key,
						Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
					}
				}
				return a
			},
		}
		return &Logger{
			Logger: slog.New(slog.NewJSONHandler(out, opts)).With(slog.String("instance_id", instanceID)),
		}
	}

	opts := &tint.Options{
		Level:      config.Level,
		AddSource:  true,
		TimeFormat: time.Kitchen,
	}

	return &Logger{
		Logger: slog.New(tint.NewHandler(out, opts)).With(slog.String("instance_id", instanceID)),
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// FromConfig creates a logger configuration from the main config.
func FromConfig(logLevel, logFormat string) Config {
	config := Config{
		Level:  slog.LevelDebug,
		Format: "text",
	}

	switch logLevel {
	case "debug":
		config.Level = slog.LevelDebug
	case "info":
		config.Level = slog.LevelInfo
	case "warn":
		config.Level = slog.LevelWarn
	case "error":
		config.Level = slog.LevelError
	}

	if logFormat != "" {
		config.Format = logFormat
	}

	// Use JSON format in production.
	if env := os.Getenv("APP_ENV"); env == "production" {
		config.Format = "json"
	}

	return config
}

// WithContext creates a new logger with context-specific attributes.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		logger = logger.With(slog.String("request_id", requestID))
	}

	if deviceID, ok := ctx.Value(ContextKeyDeviceID).(string); ok && deviceID != "" {
		logger = logger.With(slog.String("device_id", deviceID))
	}

	if messageID, ok := ctx.Value(ContextKeyMessageID).(string); ok && messageID != "" {
		logger = logger.With(slog.String("message_id", messageID))
	}

	if operation, ok := ctx.Value(ContextKeyOperation).(string); ok && operation != "" {
		logger = logger.With(slog.String("operation", operation))
	}

	return &Logger{
		Logger: logger,
	}
}

// WithComponent creates a new logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("component", component)),
	}
}

// LogError logs an error with additional context.
func (l *Logger) LogError(ctx context.Context, err error, msg string, args ...interface{}) {
	logger := l.WithContext(ctx)
	allArgs := append([]interface{}{"error", err}, args...)
	logger.Error(msg, allArgs...)
}

// LogOperation logs the start and end of an operation.
// Useful for timing provider round trips.
func (l *Logger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	logger := l.WithContext(ctx).With(slog.String("operation", operation))

	logger.Debug("operation started")

	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.Error("operation failed",
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Debug("operation completed",
			slog.Duration("duration", duration),
		)
	}

	return err
}
