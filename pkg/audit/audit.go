// Package audit writes lifecycle and security events as structured zap entries.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of audited event
type EventType string

const (
	EventApplicationSubmitted EventType = "application_submitted"
	EventApplicationAccepted  EventType = "application_accepted"
	EventApplicationRejected  EventType = "application_rejected"
	EventApplicationReplaced  EventType = "application_superseded"
	EventAcceptanceConflict   EventType = "acceptance_conflict"
	EventCascadeRejectFailed  EventType = "cascade_reject_failed"
	EventLoginSuccess         EventType = "login_success"
	EventLoginFailed          EventType = "login_failed"
	EventRateLimitTriggered   EventType = "rate_limit_triggered"
	EventForbiddenAccess      EventType = "forbidden_access"
)

// Event is one audited occurrence.
type Event struct {
	Timestamp    time.Time
	Event        EventType
	SubjectType  string // "user_id", "phone", "ip"
	SubjectValue string
	IP           string
	RequestID    string
	Details      map[string]any
}

// Logger writes audit events. A nil *Logger discards everything.
type Logger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
}

// New builds a production zap logger writing to stdout.
func New(serviceName, environment string) *Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return NewWithZap(logger, serviceName, environment)
}

// NewWithZap wraps an existing zap logger; tests pass an observer core.
func NewWithZap(z *zap.Logger, serviceName, environment string) *Logger {
	return &Logger{zapLogger: z, serviceName: serviceName, environment: environment}
}

func levelFor(e EventType) zapcore.Level {
	switch e {
	case EventApplicationSubmitted, EventApplicationAccepted, EventApplicationRejected,
		EventApplicationReplaced, EventLoginSuccess:
		return zapcore.InfoLevel
	case EventCascadeRejectFailed:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// Log writes one event.
func (l *Logger) Log(_ context.Context, event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("service", l.serviceName),
		zap.String("env", l.environment),
		zap.String("event", string(event.Event)),
		zap.Time("at", event.Timestamp),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType))
	}
	if event.SubjectValue != "" {
		fields = append(fields, zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}

	l.zapLogger.Log(levelFor(event.Event), string(event.Event), fields...)
}

// Application logs a status event for one application.
func (l *Logger) Application(ctx context.Context, event EventType, actorID, applicationID, jobID int64, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["application_id"] = applicationID
	details["job_id"] = jobID
	l.Log(ctx, Event{
		Event:        event,
		SubjectType:  "user_id",
		SubjectValue: formatID(actorID),
		Details:      details,
	})
}

// LoginFailed logs a failed login; the phone number is hashed.
func (l *Logger) LoginFailed(ctx context.Context, phone, ip, requestID, reason string) {
	l.Log(ctx, Event{
		Event:        EventLoginFailed,
		SubjectType:  "phone",
		SubjectValue: HashValue(phone),
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]any{"reason": reason},
	})
}

// LoginSucceeded logs a successful login.
func (l *Logger) LoginSucceeded(ctx context.Context, userID int64, ip, requestID string) {
	l.Log(ctx, Event{
		Event:        EventLoginSuccess,
		SubjectType:  "user_id",
		SubjectValue: formatID(userID),
		IP:           ip,
		RequestID:    requestID,
	})
}

// RateLimited logs a rate limit hit.
func (l *Logger) RateLimited(ctx context.Context, ip, requestID, endpoint string) {
	l.Log(ctx, Event{
		Event:        EventRateLimitTriggered,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]any{"endpoint": endpoint},
	})
}

// Forbidden logs an authenticated caller reaching for something that is not theirs.
func (l *Logger) Forbidden(ctx context.Context, userID int64, resource string) {
	l.Log(ctx, Event{
		Event:        EventForbiddenAccess,
		SubjectType:  "user_id",
		SubjectValue: formatID(userID),
		Details:      map[string]any{"resource": resource},
	})
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zapLogger.Sync()
}

// HashValue creates a short SHA256 digest of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8])
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
