package queue

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// StatsRange selects the aggregation window for doctor productivity.
type StatsRange string

const (
	RangeDaily   StatsRange = "daily"
	RangeWeekly  StatsRange = "weekly"
	RangeMonthly StatsRange = "monthly"
)

// DoctorCount is one doctor's completed-visit count within a range.
type DoctorCount struct {
	DoctorID  string `json:"doctor_id"`
	Completed int    `json:"completed"`
}

// RangeStart returns the inclusive lower boundary for a stats range:
// daily is midnight of asOf's day, weekly is 7x24h before asOf, monthly is
// the first of asOf's month.
func RangeStart(r StatsRange, asOf time.Time) (time.Time, error) {
	switch r {
	case RangeDaily:
		y, m, d := asOf.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, asOf.Location()), nil
	case RangeWeekly:
		return asOf.Add(-7 * 24 * time.Hour), nil
	case RangeMonthly:
		y, m, _ := asOf.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, asOf.Location()), nil
	default:
		return time.Time{}, &ValidationError{Field: "range", Reason: fmt.Sprintf("unknown range %q", r)}
	}
}

// DoctorStatsSource is the read surface needed for productivity aggregation.
type DoctorStatsSource interface {
	CompletedByDoctorSince(ctx context.Context, since time.Time) ([]DoctorCount, error)
}

// DoctorStats filters done entries with a doctor reference whose service end
// falls on or after the range boundary and returns per-doctor counts.
// Pure read, no mutation.
func DoctorStats(ctx context.Context, source DoctorStatsSource, r StatsRange, asOf time.Time) ([]DoctorCount, error) {
	since, err := RangeStart(r, asOf)
	if err != nil {
		return nil, err
	}
	return source.CompletedByDoctorSince(ctx, since)
}

func sortedDoctorCounts(counts map[string]int) []DoctorCount {
	out := make([]DoctorCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, DoctorCount{DoctorID: id, Completed: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].DoctorID < out[j].DoctorID
	})
	return out
}
