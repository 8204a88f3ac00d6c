// Package mutate is the local write path for the fasting session:
// precondition checks, the store write, the best-effort publish to the
// paired device, and the transition side effects.
package mutate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/fastline-go/internal/channel"
	"github.com/comigor/fastline-go/internal/engine"
	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/session"
	"github.com/comigor/fastline-go/internal/store"
)

// Illegal-state violations, surfaced to the caller as user-facing
// failures. Transient I/O never reaches callers through these.
var (
	ErrAlreadyFasting = errors.New("fasting session already active")
	ErrNotFasting     = errors.New("no active fasting session")
	ErrNoOpUpdate     = errors.New("update carries no changes")
)

// FSM states and triggers. The machine's state is not stored here: it
// is derived from the session snapshot, so the legality check always
// reflects what the store holds, including remotely synced writes.
var (
	stateIdle    stateless.State = "Idle"
	stateFasting stateless.State = "Fasting"

	triggerStart  stateless.Trigger = "StartFasting"
	triggerStop   stateless.Trigger = "StopFasting"
	triggerUpdate stateless.Trigger = "UpdateConfig"
)

// Service serializes local mutations with a single-flight mutex, so
// two near-simultaneous calls from different UI entry points cannot
// both pass the precondition check.
type Service struct {
	store        *store.Store
	ch           channel.Channel
	engine       *engine.Engine
	deviceID     string
	now          func() time.Time
	onLocalWrite func(cur session.Snapshot)

	mu      sync.Mutex
	machine *stateless.StateMachine
}

// New wires the service. onLocalWrite, when set, is told about every
// committed local write (the sync ingress uses it to advance its
// high-water mark past our own snapshots). now defaults to time.Now.
func New(st *store.Store, ch channel.Channel, eng *engine.Engine, deviceID string, now func() time.Time, onLocalWrite func(session.Snapshot)) *Service {
	if now == nil {
		now = time.Now
	}
	s := &Service{
		store:        st,
		ch:           ch,
		engine:       eng,
		deviceID:     deviceID,
		now:          now,
		onLocalWrite: onLocalWrite,
	}

	s.machine = stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			if s.store.Read().IsFasting {
				return stateFasting, nil
			}
			return stateIdle, nil
		},
		func(_ context.Context, _ stateless.State) error {
			// State is the store's snapshot; commit writes it.
			return nil
		},
		stateless.FiringImmediate,
	)
	s.machine.Configure(stateIdle).
		Permit(triggerStart, stateFasting).
		PermitReentry(triggerUpdate)
	s.machine.Configure(stateFasting).
		Permit(triggerStop, stateIdle).
		PermitReentry(triggerUpdate)
	s.machine.OnUnhandledTrigger(func(_ context.Context, state stateless.State, _ stateless.Trigger, _ []string) error {
		if state == stateFasting {
			return ErrAlreadyFasting
		}
		return ErrNotFasting
	})

	return s
}

// StartFasting begins a session now against the given goal.
func (s *Service) StartFasting(ctx context.Context, goalID string) (session.Snapshot, error) {
	return s.StartFastingAt(ctx, goalID, 0)
}

// StartFastingAt begins a session with an explicit start time in epoch
// millis; zero means now. Fails with ErrAlreadyFasting when a session
// is active, leaving store, alarms and history untouched.
func (s *Service) StartFastingAt(ctx context.Context, goalID string, startMillis int64) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.Read()
	if err := s.machine.FireCtx(ctx, triggerStart); err != nil {
		return prev, err
	}
	stamp := s.stamp(prev)
	if startMillis <= 0 {
		startMillis = stamp
	}
	cur := session.Snapshot{
		IsFasting:             true,
		StartTimeMillis:       startMillis,
		GoalID:                goalID,
		UpdateTimestampMillis: stamp,
	}
	s.commit(prev, cur)
	return cur, nil
}

// StopFasting ends the active session. Fails with ErrNotFasting when
// none is active.
func (s *Service) StopFasting(ctx context.Context) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.Read()
	if err := s.machine.FireCtx(ctx, triggerStop); err != nil {
		return prev, err
	}
	cur := session.Snapshot{
		IsFasting:             false,
		GoalID:                prev.GoalID,
		UpdateTimestampMillis: s.stamp(prev),
	}
	s.commit(prev, cur)
	return cur, nil
}

// UpdateConfig merges the provided fields onto the current snapshot.
// Fails with ErrNoOpUpdate when both are absent.
func (s *Service) UpdateConfig(ctx context.Context, startMillis *int64, goalID *string) (session.Snapshot, error) {
	if startMillis == nil && goalID == nil {
		return session.Snapshot{}, ErrNoOpUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.Read()
	if err := s.machine.FireCtx(ctx, triggerUpdate); err != nil {
		return prev, err
	}
	cur := prev
	if startMillis != nil {
		cur.StartTimeMillis = *startMillis
	}
	if goalID != nil {
		cur.GoalID = *goalID
	}
	cur.UpdateTimestampMillis = s.stamp(prev)
	s.commit(prev, cur)
	return cur, nil
}

// SyncCurrentState re-publishes the current snapshot with a bumped
// timestamp. Manual recovery for a suspected missed sync; publishes
// are otherwise never retried.
func (s *Service) SyncCurrentState(ctx context.Context) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.Read()
	cur := prev
	cur.UpdateTimestampMillis = s.stamp(prev)
	s.commit(prev, cur)
	return cur, nil
}

// stamp returns a write timestamp strictly greater than the previous
// snapshot's, even within the same millisecond.
func (s *Service) stamp(prev session.Snapshot) int64 {
	ts := s.now().UnixMilli()
	if ts <= prev.UpdateTimestampMillis {
		ts = prev.UpdateTimestampMillis + 1
	}
	return ts
}

// commit writes, publishes and processes one mutation. Store and
// publish failures are logged best-effort; the transition still
// fires so local side effects stay consistent with local intent.
func (s *Service) commit(prev, cur session.Snapshot) {
	if err := s.store.Write(cur); err != nil {
		logger.L.Error("local session write not persisted", "error", err)
	}
	if s.onLocalWrite != nil {
		s.onLocalWrite(cur)
	}
	if err := s.ch.PublishState(channel.StateMessage{OriginDeviceID: s.deviceID, Snapshot: cur}); err != nil {
		logger.L.Warn("state publish failed; force sync will recover", "error", err)
	}
	s.engine.Process(prev, cur)
}
