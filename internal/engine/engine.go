// Package engine turns applied session writes into their side
// effects: alarm scheduling, history appends and the platform hooks.
// Classification itself is pure (session.Classify); the engine only
// dispatches on its result, so every transition fires exactly once
// per processed write.
package engine

import (
	"time"

	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/notify"
	"github.com/comigor/fastline-go/internal/session"
)

// Hooks receives transition callbacks. Implementations are
// platform-specific (UI refresh, companion nudges); the engine only
// guarantees exactly one callback per processed write.
type Hooks interface {
	OnStarted(cur session.Snapshot)
	OnStopped(cur session.Snapshot)
	OnUpdated(cur session.Snapshot)
}

// NopHooks is the default no-op Hooks implementation.
type NopHooks struct{}

func (NopHooks) OnStarted(session.Snapshot) {}
func (NopHooks) OnStopped(session.Snapshot) {}
func (NopHooks) OnUpdated(session.Snapshot) {}

// HistoryAppender is the slice of the store the engine needs.
type HistoryAppender interface {
	AppendHistory(rec session.HistoryRecord) error
}

// Engine dispatches side effects for session transitions.
type Engine struct {
	history HistoryAppender
	planner *notify.Planner
	hooks   Hooks
	now     func() time.Time
}

// New wires an engine. hooks may be nil; now defaults to time.Now.
func New(history HistoryAppender, planner *notify.Planner, hooks Hooks, now func() time.Time) *Engine {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{history: history, planner: planner, hooks: hooks, now: now}
}

// Process classifies the write from prev to cur and fires its side
// effects. Both the local mutation path and the sync ingress call it
// with the snapshot pair they just applied.
func (e *Engine) Process(prev, cur session.Snapshot) session.Transition {
	t := session.Classify(prev, cur)
	logger.L.Debug("session transition", "transition", t.String(), "goalId", cur.GoalID)

	switch t {
	case session.Started:
		e.planner.ScheduleGoal(cur)
		e.hooks.OnStarted(cur)
	case session.Stopped:
		e.planner.CancelAll()
		rec := session.HistoryRecord{
			StartTimeEpochMillis: prev.StartTimeMillis,
			EndTimeEpochMillis:   e.now().UnixMilli(),
			GoalID:               prev.GoalID,
		}
		if err := e.history.AppendHistory(rec); err != nil {
			logger.L.Error("completed session not recorded", "error", err, "start", rec.StartTimeEpochMillis)
		}
		e.hooks.OnStopped(cur)
	case session.UpdatedActive:
		e.planner.CancelGoal()
		e.planner.ScheduleGoal(cur)
		e.hooks.OnUpdated(cur)
	case session.UpdatedInactive:
		e.hooks.OnUpdated(cur)
	}
	return t
}
