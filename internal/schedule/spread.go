package schedule

import (
	"fmt"
	"time"

	"dayline/internal/domain"
)

// Interval is an inclusive civil-date span.
type Interval struct {
	First time.Time
	End   time.Time
}

// Spread splits [first, end] into n sub-intervals per the habit's repeat
// strategy.
func Spread(strategy domain.RepeatsStrategy, first, end time.Time, n int) ([]Interval, error) {
	switch strategy {
	case domain.RepeatsAllSame:
		return AllSame(first, end, n), nil
	case domain.RepeatsSpreadOutNoOverlap:
		return SpreadOutNoOverlap(first, end, n)
	}
	return nil, fmt.Errorf("repeats strategy %q: %w", strategy, domain.ErrInvalidInput)
}

// AllSame returns n identical copies of the whole interval.
func AllSame(first, end time.Time, n int) []Interval {
	out := make([]Interval, n)
	for i := range out {
		out[i] = Interval{First: first, End: end}
	}
	return out
}

// SpreadOutNoOverlap partitions the days of [first, end] into n contiguous
// non-overlapping runs whose lengths differ by at most one, longer runs
// first. Fails when the interval holds fewer than n days.
func SpreadOutNoOverlap(first, end time.Time, n int) ([]Interval, error) {
	days := int(end.Sub(first).Hours()/24) + 1
	if n < 1 {
		return nil, fmt.Errorf("repeat count %d: %w", n, domain.ErrInvalidInput)
	}
	if days < n {
		return nil, fmt.Errorf("cannot spread %d repeats over %d days: %w", n, days, domain.ErrInvalidInput)
	}
	base := days / n
	extra := days % n
	out := make([]Interval, 0, n)
	cur := first
	for i := 0; i < n; i++ {
		length := base
		if i < extra {
			length++
		}
		next := cur.AddDate(0, 0, length)
		out = append(out, Interval{First: cur, End: next.AddDate(0, 0, -1)})
		cur = next
	}
	return out, nil
}
