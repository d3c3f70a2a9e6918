package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetBeforeInitIsNoop(t *testing.T) {
	SetLogger(zap.NewNop())
	// Must not panic or write anywhere.
	Store().Debugf("invisible %d", 1)
	Session().Infow("invisible", "k", "v")
}

func TestCategoryNaming(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Store().Infof("hello %s", "world")
	Engine().Debugw("scored", "paths", 3)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].LoggerName != "store" {
		t.Errorf("first entry logger = %q, want store", entries[0].LoggerName)
	}
	if entries[0].Message != "hello world" {
		t.Errorf("first entry message = %q", entries[0].Message)
	}
	if entries[1].LoggerName != "engine" {
		t.Errorf("second entry logger = %q, want engine", entries[1].LoggerName)
	}
}

func TestTimerReportsDuration(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	timer := StartTimer(CategoryStore, "TestOp")
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop()

	if d < 5*time.Millisecond {
		t.Errorf("timer duration %v too short", d)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["op"] != "TestOp" {
		t.Errorf("timer op field = %v", ctx["op"])
	}
	if ms, ok := ctx["duration_ms"].(int64); !ok || ms < 5 {
		t.Errorf("timer duration_ms field = %v", ctx["duration_ms"])
	}
}
