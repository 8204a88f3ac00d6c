package notify

import (
	"time"

	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/session"
)

// GoalResolver maps a goal id to its target fasting duration. Owned
// by configuration; see config.Config.GoalDuration.
type GoalResolver interface {
	GoalDuration(goalID string) (time.Duration, bool)
}

// Planner turns session snapshots into absolute alarm triggers and
// hands them to the delayed-work scheduler.
type Planner struct {
	sched Scheduler
	goals GoalResolver
	now   func() time.Time
}

// NewPlanner wires a planner. now defaults to time.Now when nil.
func NewPlanner(sched Scheduler, goals GoalResolver, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{sched: sched, goals: goals, now: now}
}

// ScheduleGoal schedules the two-alarm schedule for an active session:
// one alarm at goal completion and one an hour before it. Delays are
// clamped to zero so short goals or late starts never produce a
// negative delay.
func (p *Planner) ScheduleGoal(cur session.Snapshot) {
	goalDur, ok := p.goals.GoalDuration(cur.GoalID)
	if !ok {
		logger.L.Warn("unknown goal id, skipping goal alarms", "goalId", cur.GoalID)
		return
	}
	completion := cur.StartTimeMillis + goalDur.Milliseconds()
	oneHourBefore := completion - time.Hour.Milliseconds()

	p.scheduleAt(KindGoalOneHourLeft, oneHourBefore, cur.StartTimeMillis)
	p.scheduleAt(KindGoalComplete, completion, cur.StartTimeMillis)
}

// CancelGoal removes the pending goal alarms, leaving any smart
// reminder untouched.
func (p *Planner) CancelGoal() {
	p.sched.Cancel(KindGoalOneHourLeft)
	p.sched.Cancel(KindGoalComplete)
}

// CancelAll removes every pending alarm unconditionally. Coarse, but
// at most one goal schedule is ever active.
func (p *Planner) CancelAll() {
	p.sched.CancelAll()
}

// ScheduleSmartReminder schedules the daily start reminder at the
// given minute of day, resolved to its next occurrence. The returned
// bool is false when scheduling failed and the periodic caller should
// retry later.
func (p *Planner) ScheduleSmartReminder(minuteOfDay int) bool {
	trigger := NextOccurrence(minuteOfDay, p.now())
	delay := trigger.Sub(p.now())
	if delay < 0 {
		delay = 0
	}
	task := Task{Kind: KindSmartReminder}
	if err := p.sched.Schedule(KindSmartReminder, delay, task); err != nil {
		logger.L.Error("smart reminder scheduling failed", "error", err, "minuteOfDay", minuteOfDay)
		return false
	}
	return true
}

func (p *Planner) scheduleAt(kind Kind, triggerMillis, startMillis int64) {
	delay := time.Duration(triggerMillis-p.now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	task := Task{Kind: kind, FastingStartMillis: startMillis}
	if err := p.sched.Schedule(kind, delay, task); err != nil {
		logger.L.Error("goal alarm scheduling failed", "error", err, "kind", kind)
	}
}

// NextOccurrence resolves a minute of local day to today at that time
// if still in the future, else tomorrow at that time.
func NextOccurrence(minuteOfDay int, now time.Time) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, minuteOfDay/60, minuteOfDay%60, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(y, m, d+1, minuteOfDay/60, minuteOfDay%60, 0, 0, now.Location())
	}
	return at
}
