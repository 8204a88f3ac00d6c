package notify

import (
	"sync"
	"time"
)

// FakeScheduler records scheduling calls for tests. Pending entries
// mirror the replace-by-key semantics of the real scheduler.
type FakeScheduler struct {
	mu      sync.Mutex
	Pending map[Kind]FakeEntry
	// ScheduleErr, when set, is returned by Schedule without
	// recording, to exercise the retry-signal path.
	ScheduleErr error

	ScheduleCalls  int
	CancelAllCalls int
}

// FakeEntry is one recorded pending alarm.
type FakeEntry struct {
	Delay time.Duration
	Task  Task
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{Pending: make(map[Kind]FakeEntry)}
}

func (f *FakeScheduler) Schedule(kind Kind, delay time.Duration, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScheduleErr != nil {
		return f.ScheduleErr
	}
	f.ScheduleCalls++
	f.Pending[kind] = FakeEntry{Delay: delay, Task: task}
	return nil
}

func (f *FakeScheduler) Cancel(kind Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Pending, kind)
}

func (f *FakeScheduler) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelAllCalls++
	for k := range f.Pending {
		delete(f.Pending, k)
	}
}

// Entry returns the pending entry for kind, if any.
func (f *FakeScheduler) Entry(kind Kind) (FakeEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Pending[kind]
	return e, ok
}

// Len returns the number of pending alarms.
func (f *FakeScheduler) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pending)
}
