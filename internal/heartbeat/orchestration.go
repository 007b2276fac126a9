package heartbeat

import (
	"context"

	"github.com/nexuscore/agentcore/internal/execloop"
)

// VisibilitySignal adapts Scheduler/Runner/ResolveVisibilityMode into
// orchestrator.Heartbeat: one Runner per active session, ticking for as
// long as that session's execution phase runs, translated into StreamEvents
// so a transport (Slack typing indicator, web presence dot, ...) can
// reflect it. Sessions whose channel resolves to VisibilityNone get no
// Runner at all.
type VisibilitySignal struct {
	scheduler *Scheduler
	mode      string
	emit      execloop.Emitter
}

// NewVisibilitySignal builds a VisibilitySignal. configuredMode is the
// operator-configured override (HeartbeatConfig.VisibilityMode, typically
// "", "typing", "presence", or "none"); per-channel defaults apply when
// it's empty. A nil emit discards events.
func NewVisibilitySignal(config *HeartbeatConfig, configuredMode string, emit execloop.Emitter) *VisibilitySignal {
	if emit == nil {
		emit = execloop.NoopEmitter
	}
	return &VisibilitySignal{scheduler: NewScheduler(config), mode: configuredMode, emit: emit}
}

// Start begins a visibility runner for sessionID if channel's resolved mode
// calls for one.
func (v *VisibilitySignal) Start(ctx context.Context, sessionID, channel string) {
	mode := ResolveVisibilityMode(v.mode, channel)
	if mode == VisibilityNone {
		return
	}

	runner := v.scheduler.GetOrCreate(sessionID, nil, func(event *HeartbeatEvent) {
		switch event.Type {
		case "start", "tick":
			v.emit.Emit(execloop.StreamEvent{Name: string(mode), Data: map[string]any{"session_id": sessionID, "active": true}})
		case "stop":
			v.emit.Emit(execloop.StreamEvent{Name: string(mode), Data: map[string]any{"session_id": sessionID, "active": false}})
		}
	})
	runner.Start(ctx, "", sessionID)
}

// Stop halts and releases sessionID's visibility runner, if one is active.
func (v *VisibilitySignal) Stop(sessionID string) {
	v.scheduler.StopSession(sessionID)
}
