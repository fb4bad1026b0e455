package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetReturnsNamedLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Initialize(zap.New(core))
	defer Initialize(nil)

	Immunity("detected %d threats", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].LoggerName != string(CategoryImmunity) {
		t.Errorf("expected logger name %q, got %q", CategoryImmunity, entries[0].LoggerName)
	}
	if entries[0].Message != "detected 3 threats" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
}

func TestGetCachesPerCategory(t *testing.T) {
	Initialize(zap.NewNop())
	defer Initialize(nil)

	a := Get(CategorySacred)
	b := Get(CategorySacred)
	if a != b {
		t.Error("expected the same logger instance for repeated Get calls")
	}
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Initialize(zap.New(core))
	defer Initialize(nil)

	timer := StartTimer(CategoryDualMind, "verify")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	if elapsed <= 0 {
		t.Fatal("expected positive elapsed duration")
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("expected warn level for slow operation, got %v", entries[0].Level)
	}
}
