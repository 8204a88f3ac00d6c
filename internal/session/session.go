// Package session holds the fasting-session data model shared by the
// store, the sync pipeline and the local mutation path.
package session

// Snapshot is the single current-session record on a device. Every
// write stamps UpdateTimestampMillis with the writing device's clock;
// it is the only tie-breaker used during sync.
type Snapshot struct {
	IsFasting             bool   `json:"isFasting"`
	StartTimeMillis       int64  `json:"startTime"`
	GoalID                string `json:"goalId"`
	UpdateTimestampMillis int64  `json:"updateTimestamp"`
}

// Default returns the snapshot an empty store reads as.
func Default() Snapshot {
	return Snapshot{}
}

// HistoryRecord is one completed fasting session. Records are
// append-only and keyed by their start time.
type HistoryRecord struct {
	StartTimeEpochMillis int64  `json:"startTimeEpochMillis"`
	EndTimeEpochMillis   int64  `json:"endTimeEpochMillis"`
	GoalID               string `json:"goalId"`
}

// Transition classifies what a snapshot write meant for the session
// lifecycle. Exactly one transition is produced per applied write,
// whether it originated locally or arrived over sync.
type Transition int

const (
	Started Transition = iota
	Stopped
	UpdatedActive
	UpdatedInactive
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case UpdatedActive:
		return "updated_active"
	case UpdatedInactive:
		return "updated_inactive"
	}
	return "unknown"
}

// Classify diffs two snapshots into a Transition. It is a pure
// function; side effects belong to the engine consuming its result.
func Classify(prev, cur Snapshot) Transition {
	switch {
	case !prev.IsFasting && cur.IsFasting:
		return Started
	case prev.IsFasting && !cur.IsFasting:
		return Stopped
	case prev.IsFasting && cur.IsFasting:
		return UpdatedActive
	default:
		return UpdatedInactive
	}
}
