package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("sync-service", "local", "loud"); err == nil {
		t.Fatalf("expected invalid level to be rejected")
	}
}

func TestNewHonoursLevel(t *testing.T) {
	l, err := New("sync-service", "prod", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}
}
