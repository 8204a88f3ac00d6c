// Package suggest recommends the next fasting start time from the
// session history, a configured bedtime, or a fixed time of day.
package suggest

import (
	"fmt"
	"math"
	"time"

	"github.com/comigor/fastline-go/internal/config"
	"github.com/comigor/fastline-go/internal/notify"
	"github.com/comigor/fastline-go/internal/session"
)

const minutesPerDay = 24 * 60

// Source identifies which strategy produced a suggestion.
type Source string

const (
	SourceMovingAverage Source = "MovingAverage"
	SourceBedtimeBased  Source = "BedtimeBased"
	SourceFixedTime     Source = "FixedTime"
)

// Modes of the suggestion engine, from config.
const (
	ModeAuto              = "auto"
	ModeBedtimeOnly       = "bedtime"
	ModeMovingAverageOnly = "moving_average"
	ModeFixedTime         = "fixed"
)

// SuggestedTime is a derived, ephemeral recommendation.
type SuggestedTime struct {
	SuggestedTimeMillis  int64  `json:"suggestedTimeMillis"`
	SuggestedMinuteOfDay int    `json:"suggestedTimeMinutesOfDay"`
	Reasoning            string `json:"reasoning"`
	Source               Source `json:"source"`
}

// HistorySource yields completed sessions starting at or after the
// given epoch millis. The store satisfies it.
type HistorySource interface {
	History(sinceMillis int64) []session.HistoryRecord
}

// Engine evaluates the prioritized strategy chain under the
// configured mode.
type Engine struct {
	history HistorySource
	cfg     config.RemindersConfig
	now     func() time.Time
}

// New wires a suggestion engine. now defaults to time.Now.
func New(history HistorySource, cfg config.RemindersConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{history: history, cfg: cfg, now: now}
}

// ComputeSuggestedStart returns the recommended next start time.
func (e *Engine) ComputeSuggestedStart() SuggestedTime {
	switch e.cfg.SmartReminderMode {
	case ModeFixedTime:
		return e.fixedTime()
	case ModeBedtimeOnly:
		return e.bedtime("")
	case ModeMovingAverageOnly:
		if s, ok := e.movingAverage(); ok {
			return s
		}
		return e.bedtime("not enough recent history for a moving average; ")
	default: // ModeAuto
		if s, ok := e.movingAverage(); ok {
			return s
		}
		return e.bedtime("")
	}
}

// movingAverage averages the start times of recent completed sessions
// as a circular mean over the day, so sessions straddling midnight
// average correctly (23:30 and 00:30 yield ~00:00, not noon).
func (e *Engine) movingAverage() (SuggestedTime, bool) {
	windowStart := e.now().AddDate(0, 0, -e.cfg.MovingAverageWindowDays)
	recs := e.history.History(windowStart.UnixMilli())
	// At least one sample even when the configured minimum is zero or
	// negative, so the circular mean never runs on an empty set.
	minSamples := e.cfg.MovingAverageMinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if len(recs) < minSamples {
		return SuggestedTime{}, false
	}

	minutes := make([]int, 0, len(recs))
	for _, r := range recs {
		t := time.UnixMilli(r.StartTimeEpochMillis).In(e.now().Location())
		minutes = append(minutes, t.Hour()*60+t.Minute())
	}
	minute := circularMeanMinutes(minutes)
	return e.resolve(minute, SourceMovingAverage,
		fmt.Sprintf("circular mean of %d session starts in the last %d days", len(recs), e.cfg.MovingAverageWindowDays)), true
}

// bedtime suggests the configured bedtime minus the configured offset,
// wrapping around midnight. prefix annotates fallback reasoning.
func (e *Engine) bedtime(prefix string) SuggestedTime {
	if e.cfg.BedtimeMinutes < 0 {
		return e.fixedTimeAnnotated(prefix + "no bedtime configured; ")
	}
	minute := (e.cfg.BedtimeMinutes - e.cfg.BedtimeOffsetHours*60) % minutesPerDay
	if minute < 0 {
		minute += minutesPerDay
	}
	return e.resolve(minute, SourceBedtimeBased,
		fmt.Sprintf("%s%d hours before bedtime", prefix, e.cfg.BedtimeOffsetHours))
}

func (e *Engine) fixedTime() SuggestedTime {
	return e.fixedTimeAnnotated("")
}

func (e *Engine) fixedTimeAnnotated(prefix string) SuggestedTime {
	minute := e.cfg.FixedStartMinutes % minutesPerDay
	return e.resolve(minute, SourceFixedTime, prefix+"user-configured fixed start time")
}

// resolve converts a minute of day to its next absolute occurrence.
func (e *Engine) resolve(minute int, src Source, reasoning string) SuggestedTime {
	at := notify.NextOccurrence(minute, e.now())
	return SuggestedTime{
		SuggestedTimeMillis:  at.UnixMilli(),
		SuggestedMinuteOfDay: minute,
		Reasoning:            reasoning,
		Source:               src,
	}
}

// circularMeanMinutes maps each minute of day onto the unit circle,
// averages the vectors and maps the mean angle back to minutes.
func circularMeanMinutes(minutes []int) int {
	var sinSum, cosSum float64
	for _, m := range minutes {
		theta := 2 * math.Pi * float64(m) / minutesPerDay
		sinSum += math.Sin(theta)
		cosSum += math.Cos(theta)
	}
	n := float64(len(minutes))
	mean := math.Atan2(sinSum/n, cosSum/n)
	if mean < 0 {
		mean += 2 * math.Pi
	}
	return int(math.Round(mean*minutesPerDay/(2*math.Pi))) % minutesPerDay
}
