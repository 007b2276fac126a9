package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/agentcore/internal/execloop"
)

func TestVisibilitySignalEmitsForTypingChannel(t *testing.T) {
	var mu sync.Mutex
	var events []execloop.StreamEvent
	emit := execloop.EmitterFunc(func(e execloop.StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	cfg := &HeartbeatConfig{IntervalMs: 5}
	v := NewVisibilitySignal(cfg, "", emit)

	ctx, cancel := context.WithCancel(context.Background())
	v.Start(ctx, "sess-1", "slack")
	time.Sleep(20 * time.Millisecond)
	v.Stop("sess-1")
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected at least one typing event")
	}
	if events[0].Name != "typing" {
		t.Errorf("event name = %q, want typing", events[0].Name)
	}
}

func TestVisibilitySignalNoOpForNoneChannel(t *testing.T) {
	var calls int
	emit := execloop.EmitterFunc(func(execloop.StreamEvent) { calls++ })

	v := NewVisibilitySignal(DefaultConfig(), "", emit)
	v.Start(context.Background(), "sess-2", "api")
	v.Stop("sess-2")

	if calls != 0 {
		t.Errorf("calls = %d, want 0 for an api (VisibilityNone) channel", calls)
	}
}
