package ingress

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/fastline-go/internal/channel"
	"github.com/comigor/fastline-go/internal/engine"
	"github.com/comigor/fastline-go/internal/notify"
	"github.com/comigor/fastline-go/internal/session"
	"github.com/comigor/fastline-go/internal/store"
)

type goalTable map[string]time.Duration

func (g goalTable) GoalDuration(id string) (time.Duration, bool) {
	d, ok := g[id]
	return d, ok
}

type fixture struct {
	store  *store.Store
	sched  *notify.FakeScheduler
	in     *Ingress
	synced int
}

func newFixture(t *testing.T, localID string) *fixture {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "fastline.db"))
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, sched: notify.NewFakeScheduler()}
	planner := notify.NewPlanner(f.sched, goalTable{"16:8": 16 * time.Hour}, nil)
	eng := engine.New(st, planner, nil, nil)
	f.in = New(st, eng, localID, func() { f.synced++ })
	return f
}

func remoteMsg(origin string, ts int64, fasting bool) channel.StateMessage {
	return channel.StateMessage{
		OriginDeviceID: origin,
		Snapshot: session.Snapshot{
			IsFasting:             fasting,
			StartTimeMillis:       ts,
			GoalID:                "16:8",
			UpdateTimestampMillis: ts,
		},
	}
}

func TestApply_NewestEventWins(t *testing.T) {
	f := newFixture(t, "phone")

	applied := f.in.Apply([]channel.StateMessage{
		remoteMsg("watch", 5, true),
		remoteMsg("watch", 3, false),
		remoteMsg("watch", 8, true),
	})
	require.True(t, applied)
	require.Equal(t, int64(8), f.store.Read().UpdateTimestampMillis)
	require.Equal(t, 1, f.synced)
}

func TestApply_OutOfOrderArrivalKeepsNewest(t *testing.T) {
	f := newFixture(t, "phone")

	require.True(t, f.in.Apply([]channel.StateMessage{remoteMsg("watch", 5, true)}))
	require.False(t, f.in.Apply([]channel.StateMessage{remoteMsg("watch", 3, false)}))
	require.True(t, f.in.Apply([]channel.StateMessage{remoteMsg("watch", 8, true)}))

	require.Equal(t, int64(8), f.store.Read().UpdateTimestampMillis)
	require.Equal(t, 2, f.synced)
}

func TestApply_EchoSuppressed(t *testing.T) {
	f := newFixture(t, "phone")

	// Own echo, even with the newest timestamp, must never apply.
	applied := f.in.Apply([]channel.StateMessage{
		remoteMsg("watch", 5, true),
		remoteMsg("phone", 99, false),
	})
	require.True(t, applied)
	require.Equal(t, int64(5), f.store.Read().UpdateTimestampMillis)

	require.False(t, f.in.Apply([]channel.StateMessage{remoteMsg("phone", 100, false)}))
	require.Equal(t, int64(5), f.store.Read().UpdateTimestampMillis)
}

func TestApply_FailOpenWithoutLocalID(t *testing.T) {
	f := newFixture(t, "")

	// Unknown local id: everything is treated as remote.
	require.True(t, f.in.Apply([]channel.StateMessage{remoteMsg("phone", 5, true)}))
	require.Equal(t, int64(5), f.store.Read().UpdateTimestampMillis)
}

func TestApply_HighWaterMarkSeededFromStore(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "fastline.db"))
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Write(session.Snapshot{IsFasting: true, StartTimeMillis: 50, GoalID: "16:8", UpdateTimestampMillis: 50}))

	sched := notify.NewFakeScheduler()
	planner := notify.NewPlanner(sched, goalTable{"16:8": 16 * time.Hour}, nil)
	in := New(st, engine.New(st, planner, nil, nil), "phone", nil)

	require.False(t, in.Apply([]channel.StateMessage{remoteMsg("watch", 50, false)}))
	require.False(t, in.Apply([]channel.StateMessage{remoteMsg("watch", 20, false)}))
	require.True(t, st.Read().IsFasting)
}

func TestApply_EmptyBatch(t *testing.T) {
	f := newFixture(t, "phone")
	require.False(t, f.in.Apply(nil))
	require.Zero(t, f.synced)
}

func TestApply_RemoteStartFiresTransitionSideEffects(t *testing.T) {
	f := newFixture(t, "phone")

	require.True(t, f.in.Apply([]channel.StateMessage{remoteMsg("watch", time.Now().UnixMilli(), true)}))
	require.Equal(t, 2, f.sched.Len())

	stop := remoteMsg("watch", time.Now().UnixMilli()+1000, false)
	require.True(t, f.in.Apply([]channel.StateMessage{stop}))
	require.Zero(t, f.sched.Len())
	require.Len(t, f.store.History(0), 1)
}

func TestNoteLocalWrite_AdvancesMark(t *testing.T) {
	f := newFixture(t, "")

	f.in.NoteLocalWrite(session.Snapshot{IsFasting: true, StartTimeMillis: 10, GoalID: "16:8", UpdateTimestampMillis: 10})
	// A reflected echo of that write must now read as stale even
	// though the empty local id lets it past the origin check.
	require.False(t, f.in.Apply([]channel.StateMessage{remoteMsg("", 10, true)}))
}
