// Package notify computes and schedules the delayed notifications that
// follow session transitions: the fixed two-alarm goal schedule and
// the daily smart start reminder.
package notify

import (
	"sync"
	"time"
)

// Kind is the unique scheduling key for a pending alarm. Scheduling
// the same kind again replaces the pending alarm instead of
// duplicating it. Goal kinds and the smart-reminder kind are distinct
// key-spaces, so the two schedules never collide.
type Kind string

const (
	KindGoalComplete    Kind = "goal_complete"
	KindGoalOneHourLeft Kind = "goal_one_hour_left"
	KindSmartReminder   Kind = "smart_reminder"
)

// Task is the delayed-work input: which notification to post and the
// start time of the fasting session it belongs to.
type Task struct {
	Kind               Kind
	FastingStartMillis int64
}

// Scheduler is the delayed-work primitive. It knows nothing about
// fasting; it runs tasks after a delay with replace-by-key semantics.
type Scheduler interface {
	Schedule(kind Kind, delay time.Duration, task Task) error
	Cancel(kind Kind)
	CancelAll()
}

// TimerScheduler runs tasks on in-process timers.
type TimerScheduler struct {
	deliver func(Task)

	mu     sync.Mutex
	timers map[Kind]*time.Timer
}

// NewTimerScheduler creates a scheduler that hands due tasks to
// deliver. deliver runs on the timer goroutine.
func NewTimerScheduler(deliver func(Task)) *TimerScheduler {
	return &TimerScheduler{
		deliver: deliver,
		timers:  make(map[Kind]*time.Timer),
	}
}

func (s *TimerScheduler) Schedule(kind Kind, delay time.Duration, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[kind]; ok {
		t.Stop()
	}
	// The callback may run after this kind has been rescheduled or
	// cancelled: it only owns the entry while the map still holds its
	// own timer, otherwise it must neither remove the replacement nor
	// deliver a replaced task.
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		live := s.timers[kind] == timer
		if live {
			delete(s.timers, kind)
		}
		s.mu.Unlock()
		if live {
			s.deliver(task)
		}
	})
	s.timers[kind] = timer
	return nil
}

func (s *TimerScheduler) Cancel(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[kind]; ok {
		t.Stop()
		delete(s.timers, kind)
	}
}

func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
}
