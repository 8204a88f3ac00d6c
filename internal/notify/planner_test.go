package notify

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/fastline-go/internal/session"
)

type goalTable map[string]time.Duration

func (g goalTable) GoalDuration(id string) (time.Duration, bool) {
	d, ok := g[id]
	return d, ok
}

var testGoals = goalTable{"16:8": 16 * time.Hour, "1:23": time.Hour}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScheduleGoal_TwoAlarmSchedule(t *testing.T) {
	start := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	sched := NewFakeScheduler()
	p := NewPlanner(sched, testGoals, fixedNow(start))

	p.ScheduleGoal(session.Snapshot{IsFasting: true, StartTimeMillis: start.UnixMilli(), GoalID: "16:8"})

	complete, ok := sched.Entry(KindGoalComplete)
	require.True(t, ok)
	require.Equal(t, 16*time.Hour, complete.Delay)
	require.Equal(t, start.UnixMilli(), complete.Task.FastingStartMillis)

	hourLeft, ok := sched.Entry(KindGoalOneHourLeft)
	require.True(t, ok)
	require.Equal(t, 15*time.Hour, hourLeft.Delay)
}

func TestScheduleGoal_ClampsNegativeDelays(t *testing.T) {
	start := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	// Two hours into a one-hour goal: both triggers are in the past.
	now := start.Add(2 * time.Hour)
	sched := NewFakeScheduler()
	p := NewPlanner(sched, testGoals, fixedNow(now))

	p.ScheduleGoal(session.Snapshot{IsFasting: true, StartTimeMillis: start.UnixMilli(), GoalID: "1:23"})

	complete, _ := sched.Entry(KindGoalComplete)
	hourLeft, _ := sched.Entry(KindGoalOneHourLeft)
	require.GreaterOrEqual(t, complete.Delay, time.Duration(0))
	require.GreaterOrEqual(t, hourLeft.Delay, time.Duration(0))
}

func TestScheduleGoal_UnknownGoalSchedulesNothing(t *testing.T) {
	sched := NewFakeScheduler()
	p := NewPlanner(sched, testGoals, fixedNow(time.Now()))

	p.ScheduleGoal(session.Snapshot{IsFasting: true, GoalID: "nope"})
	require.Zero(t, sched.Len())
}

func TestScheduleGoal_RescheduleReplacesByKind(t *testing.T) {
	start := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	sched := NewFakeScheduler()
	p := NewPlanner(sched, testGoals, fixedNow(start))
	snap := session.Snapshot{IsFasting: true, StartTimeMillis: start.UnixMilli(), GoalID: "16:8"}

	p.ScheduleGoal(snap)
	p.ScheduleGoal(snap)
	require.Equal(t, 2, sched.Len())
}

func TestSmartReminder_DistinctKeySpaceFromGoal(t *testing.T) {
	now := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)
	sched := NewFakeScheduler()
	p := NewPlanner(sched, testGoals, fixedNow(now))

	p.ScheduleGoal(session.Snapshot{IsFasting: true, StartTimeMillis: now.UnixMilli(), GoalID: "16:8"})
	require.True(t, p.ScheduleSmartReminder(20*60))
	require.Equal(t, 3, sched.Len())

	p.CancelGoal()
	_, smartStillPending := sched.Entry(KindSmartReminder)
	require.True(t, smartStillPending)
	require.Equal(t, 1, sched.Len())
}

func TestSmartReminder_FailureSignalsRetry(t *testing.T) {
	sched := NewFakeScheduler()
	sched.ScheduleErr = errors.New("enqueue failed")
	p := NewPlanner(sched, testGoals, fixedNow(time.Now()))

	require.False(t, p.ScheduleSmartReminder(20*60))
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 8, 31, 18, 0, 0, 0, time.Local)

	later := NextOccurrence(20*60, now) // 20:00 today
	require.Equal(t, now.Add(2*time.Hour), later)

	earlier := NextOccurrence(8*60, now) // 08:00 → tomorrow
	require.True(t, earlier.After(now))
	require.Equal(t, 8, earlier.Hour())
	require.Equal(t, now.AddDate(0, 0, 1).Day(), earlier.Day())
}

func TestTimerScheduler_ReplaceAndFire(t *testing.T) {
	var mu sync.Mutex
	var fired []Task
	s := NewTimerScheduler(func(task Task) {
		mu.Lock()
		fired = append(fired, task)
		mu.Unlock()
	})
	defer s.CancelAll()

	require.NoError(t, s.Schedule(KindGoalComplete, time.Hour, Task{Kind: KindGoalComplete, FastingStartMillis: 1}))
	require.NoError(t, s.Schedule(KindGoalComplete, 10*time.Millisecond, Task{Kind: KindGoalComplete, FastingStartMillis: 2}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1 && fired[0].FastingStartMillis == 2
	}, time.Second, 5*time.Millisecond)
}

// A kind rescheduled right as its old timer fires must stay
// cancellable: the stale callback may not remove the replacement's
// entry, and the replacement may not outlive CancelAll.
func TestTimerScheduler_ReplacementSurvivesStaleCallback(t *testing.T) {
	var replacedFired atomic.Int32
	s := NewTimerScheduler(func(task Task) {
		if task.FastingStartMillis == 2 {
			replacedFired.Add(1)
		}
	})
	defer s.CancelAll()

	for i := 0; i < 25; i++ {
		require.NoError(t, s.Schedule(KindGoalComplete, time.Millisecond, Task{Kind: KindGoalComplete, FastingStartMillis: 1}))
		// Align with the first timer firing, so its callback races
		// the replacement below.
		time.Sleep(time.Millisecond)
		require.NoError(t, s.Schedule(KindGoalComplete, 20*time.Millisecond, Task{Kind: KindGoalComplete, FastingStartMillis: 2}))
		s.CancelAll()
	}

	// The replacement alarms were all cancelled within microseconds
	// of scheduling; none may ever deliver.
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, replacedFired.Load())
}

func TestTimerScheduler_CancelAll(t *testing.T) {
	fired := make(chan Task, 4)
	s := NewTimerScheduler(func(task Task) { fired <- task })

	require.NoError(t, s.Schedule(KindGoalComplete, 20*time.Millisecond, Task{Kind: KindGoalComplete}))
	require.NoError(t, s.Schedule(KindSmartReminder, 20*time.Millisecond, Task{Kind: KindSmartReminder}))
	s.CancelAll()

	select {
	case task := <-fired:
		t.Fatalf("alarm fired after CancelAll: %+v", task)
	case <-time.After(100 * time.Millisecond):
	}
}
