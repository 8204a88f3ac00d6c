// Package ingress applies remote session change events to the local
// store. It is the only writer besides the local mutation service and
// is invoked serially, one batch at a time.
package ingress

import (
	"sync"

	"github.com/comigor/fastline-go/internal/channel"
	"github.com/comigor/fastline-go/internal/engine"
	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/session"
	"github.com/comigor/fastline-go/internal/store"
)

// Ingress filters remote change batches down to at most one
// applicable write: own echoes are discarded, the newest surviving
// event wins, and anything at or below the high-water mark is
// rejected as stale.
type Ingress struct {
	store    *store.Store
	engine   *engine.Engine
	localID  string
	onSynced func()

	mu          sync.Mutex
	lastApplied int64
	prev        session.Snapshot
}

// New seeds the high-water mark from the store so replays of
// already-applied state are rejected from the first batch on.
// localID may be empty; the ingress then treats every event as remote
// (fail open) rather than risk dropping legitimate updates.
func New(st *store.Store, eng *engine.Engine, localID string, onSynced func()) *Ingress {
	snap := st.Read()
	if onSynced == nil {
		onSynced = func() {}
	}
	return &Ingress{
		store:       st,
		engine:      eng,
		localID:     localID,
		onSynced:    onSynced,
		lastApplied: snap.UpdateTimestampMillis,
		prev:        snap,
	}
}

// Apply processes one batch of remote change events and reports
// whether a write was applied. Last-write-wins by the writing
// device's clock; no clock agreement between devices is needed.
func (in *Ingress) Apply(batch []channel.StateMessage) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	var winner *channel.StateMessage
	for i := range batch {
		msg := &batch[i]
		if in.localID != "" && msg.OriginDeviceID == in.localID {
			logger.L.Debug("own echo discarded", "updateTimestamp", msg.UpdateTimestampMillis)
			continue
		}
		if winner == nil || msg.UpdateTimestampMillis > winner.UpdateTimestampMillis {
			winner = msg
		}
	}
	if winner == nil {
		return false
	}
	if winner.UpdateTimestampMillis <= in.lastApplied {
		logger.L.Debug("stale remote state rejected",
			"updateTimestamp", winner.UpdateTimestampMillis, "highWaterMark", in.lastApplied)
		return false
	}

	in.lastApplied = winner.UpdateTimestampMillis
	if err := in.store.Write(winner.Snapshot); err != nil {
		logger.L.Error("remote snapshot not persisted; applying in memory", "error", err)
	}
	in.onSynced()
	in.engine.Process(in.prev, winner.Snapshot)
	in.prev = winner.Snapshot
	return true
}

// NoteLocalWrite advances the high-water mark past a snapshot this
// device just wrote, so a reflected echo that survives the origin
// check (e.g. before the device id was resolvable) still reads as
// stale.
func (in *Ingress) NoteLocalWrite(cur session.Snapshot) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if cur.UpdateTimestampMillis > in.lastApplied {
		in.lastApplied = cur.UpdateTimestampMillis
		in.prev = cur
	}
}
