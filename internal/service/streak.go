package service

import (
	"sort"
	"time"
)

// Streak counts consecutive calendar days ending at the most recent active day.
// Each value contributes its own year, month and day, so callers pass dates already
// expressed in the calendar they mean. Same-day duplicates count once.
func Streak(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}

	seen := make(map[time.Time]bool, len(days))
	distinct := make([]time.Time, 0, len(days))
	for _, d := range days {
		key := civil(d)
		if !seen[key] {
			seen[key] = true
			distinct = append(distinct, key)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i].After(distinct[j]) })

	streak := 1
	for i := 1; i < len(distinct); i++ {
		if !distinct[i].Equal(distinct[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
