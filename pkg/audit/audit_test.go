package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithZap(zap.New(core), "shramsaathi", "test")

	l.Application(context.Background(), EventApplicationAccepted, 7, 11, 3, nil)
	l.Application(context.Background(), EventCascadeRejectFailed, 7, 12, 3, map[string]any{"reason": "timeout"})
	l.LoginFailed(context.Background(), "9876543210", "10.0.0.1", "req-1", "bad password")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "application_accepted", entries[0].Message)
	assert.Equal(t, "7", entries[0].ContextMap()["subject_value"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.NotContains(t, entries[2].ContextMap()["subject_value"], "9876543210")
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Forbidden(context.Background(), 1, "job:2")
		_ = l.Sync()
	})
}
