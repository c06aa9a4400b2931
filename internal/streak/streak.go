// Package streak derives consecutive-day streak summaries from observation
// timestamps. The computation is pure: it owns no state, reads no clock, and
// is re-derived from the full history on every call.
package streak

import (
	"sort"
	"time"
)

const (
	// MaxDailies caps how many same-day observations count toward scoring.
	MaxDailies = 8
	// GracePeriod is how long after the most recent observation the streak
	// survives without a new entry.
	GracePeriod = 36 * time.Hour
	// maxGapDays bounds the gap between adjacent walked days, expressed in
	// fractional days. 1.5 days equals the 36 hour grace period.
	maxGapDays = 1.5
)

// Summary is the derived streak state for one observation history.
type Summary struct {
	// DailiesCount is today's observation count, falling back to the most
	// recent active day while the grace period holds. Capped at MaxDailies.
	DailiesCount int
	// DayCount is the length of the current consecutive-day streak.
	DayCount int
	// WeekCount, MonthCount and YearCount are nested integer divisions of
	// DayCount by 7, then 4, then 12. They are not calendar-aligned.
	WeekCount  int
	MonthCount int
	YearCount  int
	// CurrentTier is the minimum capped per-day count sustained across the
	// whole streak, never below 1.
	CurrentTier int
	// LastLogAt is the instant of the latest observation, nil when the
	// history is empty. It is kept even when the streak is broken.
	LastLogAt *time.Time
	// StreakStartDay is the local calendar day (YYYY-MM-DD) the streak
	// began on, empty when DayCount is zero.
	StreakStartDay string
}

// Neutral returns the summary for an empty or broken history.
func Neutral() Summary {
	return Summary{CurrentTier: 1}
}

// day aggregates the observations of one local calendar day. The latest
// instant of the day stands in for the day during the walk.
type day struct {
	key    string
	latest time.Time
	count  int
}

// Compute derives a Summary from the full observation history.
//
// The input may be unordered and may be empty. now is the evaluation
// instant; its location decides which local calendar day an observation
// belongs to. Compute never fails: degenerate input yields Neutral().
func Compute(recorded []time.Time, now time.Time) Summary {
	if len(recorded) == 0 {
		return Neutral()
	}

	loc := now.Location()
	buckets := make(map[string]*day)
	latest := recorded[0]
	for _, ts := range recorded {
		key := ts.In(loc).Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &day{key: key, latest: ts}
			buckets[key] = b
		}
		b.count++
		if ts.After(b.latest) {
			b.latest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}

	days := make([]*day, 0, len(buckets))
	for _, b := range buckets {
		days = append(days, b)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].key > days[j].key })

	summary := Neutral()
	last := latest
	summary.LastLogAt = &last

	head := days[0]
	todayKey := now.Format(time.DateOnly)
	if head.key != todayKey && now.Sub(head.latest) > GracePeriod {
		// Streak broken: counts reset, only the last log instant survives.
		return summary
	}

	dailies := head.count
	if today, ok := buckets[todayKey]; ok {
		dailies = today.count
	}
	summary.DailiesCount = capCount(dailies)

	// Walk backward from the most recent day. Each step compares adjacent
	// day representatives, not the distance to day zero, so a long streak
	// may drift up to the gap budget per day.
	tier := capCount(head.count)
	summary.DayCount = 1
	summary.StreakStartDay = head.key
	prev := head
	for _, d := range days[1:] {
		gap := prev.latest.Sub(d.latest).Hours() / 24
		if gap > maxGapDays {
			break
		}
		summary.DayCount++
		summary.StreakStartDay = d.key
		if c := capCount(d.count); c < tier {
			tier = c
		}
		prev = d
	}

	summary.WeekCount = summary.DayCount / 7
	summary.MonthCount = summary.WeekCount / 4
	summary.YearCount = summary.MonthCount / 12
	if tier < 1 {
		tier = 1
	}
	summary.CurrentTier = tier
	return summary
}

func capCount(n int) int {
	if n > MaxDailies {
		return MaxDailies
	}
	return n
}
