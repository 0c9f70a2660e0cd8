// Package schedule turns a recurrence period and an instant into a fully
// determined schedule: interval bounds, due/actionable anchors, a timeline
// key and a display name. All computation is pure.
package schedule

import (
	"fmt"
	"time"

	"dayline/internal/domain"
)

// Params are the inputs to Compute. Anchors are optional and must already
// be valid for the period (see CheckGenParams).
type Params struct {
	Period              domain.Period
	Name                string
	RightNow            time.Time
	Location            *time.Location
	SkipRule            *string
	ActionableFromDay   *int
	ActionableFromMonth *int
	DueAtTime           *string
	DueAtDay            *int
	DueAtMonth          *int
}

// Schedule is one fully determined recurrence interval.
type Schedule struct {
	FirstDay       time.Time
	EndDay         time.Time
	ActionableDate *time.Time
	DueDate        time.Time
	DueTime        *time.Time
	Timeline       string
	FullName       string
	Period         domain.Period
	ShouldSkip     bool
}

// Compute derives the schedule for the interval containing RightNow.
// Two instants inside the same interval produce the same Timeline.
func Compute(p Params) (Schedule, error) {
	if !p.Period.Valid() {
		return Schedule{}, fmt.Errorf("period %q: %w", p.Period, domain.ErrInvalidInput)
	}
	if err := CheckDayAnchor(p.Period, p.ActionableFromDay); err != nil {
		return Schedule{}, err
	}
	if err := CheckMonthAnchor(p.Period, p.ActionableFromMonth); err != nil {
		return Schedule{}, err
	}
	if err := CheckDayAnchor(p.Period, p.DueAtDay); err != nil {
		return Schedule{}, err
	}
	if err := CheckMonthAnchor(p.Period, p.DueAtMonth); err != nil {
		return Schedule{}, err
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := p.RightNow.In(loc)
	today := civil(local.Year(), local.Month(), local.Day())

	var s Schedule
	s.Period = p.Period
	s.FirstDay = startOf(p.Period, today)
	s.EndDay = endOf(p.Period, today)
	s.Timeline = timelineKey(p.Period, s.FirstDay)
	s.FullName = fullName(p.Period, p.Name, s.FirstDay)
	s.DueDate = dueDate(p.Period, s.FirstDay, s.EndDay, p.DueAtDay, p.DueAtMonth)
	s.ActionableDate = actionableDate(p.Period, s.FirstDay, s.DueDate, p.ActionableFromDay, p.ActionableFromMonth)

	if p.DueAtTime != nil {
		offset, err := parseDueAtTime(*p.DueAtTime)
		if err != nil {
			return Schedule{}, err
		}
		due := time.Date(s.DueDate.Year(), s.DueDate.Month(), s.DueDate.Day(), 0, 0, 0, 0, loc).Add(offset)
		s.DueTime = &due
	}
	if p.SkipRule != nil {
		rule, err := ParseSkipRule(*p.SkipRule)
		if err != nil {
			return Schedule{}, err
		}
		s.ShouldSkip = rule.ShouldSkip(skipNumber(p.Period, s.FirstDay))
	}
	return s, nil
}

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isoWeekday maps Sunday to 7 so Monday is 1.
func isoWeekday(d time.Time) int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func quarterOf(m time.Month) int {
	return (int(m)-1)/3 + 1
}

func quarterStartMonth(m time.Month) time.Month {
	return time.Month((quarterOf(m)-1)*3 + 1)
}

func startOf(period domain.Period, day time.Time) time.Time {
	switch period {
	case domain.PeriodDaily:
		return day
	case domain.PeriodWeekly:
		return day.AddDate(0, 0, -(isoWeekday(day) - 1))
	case domain.PeriodMonthly:
		return civil(day.Year(), day.Month(), 1)
	case domain.PeriodQuarterly:
		return civil(day.Year(), quarterStartMonth(day.Month()), 1)
	case domain.PeriodYearly:
		return civil(day.Year(), time.January, 1)
	}
	return day
}

func endOf(period domain.Period, day time.Time) time.Time {
	switch period {
	case domain.PeriodDaily:
		return day
	case domain.PeriodWeekly:
		return startOf(period, day).AddDate(0, 0, 6)
	case domain.PeriodMonthly:
		return civil(day.Year(), day.Month(), 1).AddDate(0, 1, -1)
	case domain.PeriodQuarterly:
		return civil(day.Year(), quarterStartMonth(day.Month()), 1).AddDate(0, 3, -1)
	case domain.PeriodYearly:
		return civil(day.Year(), time.December, 31)
	}
	return day
}

// dueDate resolves the due anchor inside [first, end], defaulting to the
// interval end. Month anchors select an interior month; day anchors offset
// from the selected month (or the interval start). Out-of-range anchors
// clamp to the interval end, keeping due inside the interval for short
// months and quarters.
func dueDate(period domain.Period, first, end time.Time, dueAtDay, dueAtMonth *int) time.Time {
	base := first
	monthPicked := false
	if dueAtMonth != nil {
		base = civil(first.Year(), first.Month()+time.Month(*dueAtMonth-1), 1)
		monthPicked = true
	}
	var due time.Time
	switch {
	case dueAtDay != nil:
		due = base.AddDate(0, 0, *dueAtDay-1)
		if monthPicked {
			// stay inside the selected month
			if eom := base.AddDate(0, 1, -1); due.After(eom) {
				due = eom
			}
		}
	case monthPicked:
		due = base.AddDate(0, 1, -1)
	default:
		due = end
	}
	if due.After(end) {
		due = end
	}
	if due.Before(first) {
		due = first
	}
	return due
}

func actionableDate(period domain.Period, first, due time.Time, fromDay, fromMonth *int) *time.Time {
	if fromDay == nil && fromMonth == nil {
		return nil
	}
	base := first
	if fromMonth != nil {
		base = civil(first.Year(), first.Month()+time.Month(*fromMonth-1), 1)
	}
	actionable := base
	if fromDay != nil {
		actionable = base.AddDate(0, 0, *fromDay-1)
	}
	if actionable.Before(first) {
		actionable = first
	}
	if actionable.After(due) {
		actionable = due
	}
	return &actionable
}

// timelineKey builds the hierarchical dedup key, one component per level
// of granularity down to the period: year, quarter, month, ISO week,
// weekday.
func timelineKey(period domain.Period, first time.Time) string {
	year := fmt.Sprintf("%d", first.Year())
	if period == domain.PeriodYearly {
		return year
	}
	quarter := fmt.Sprintf("%s,Q%d", year, quarterOf(first.Month()))
	if period == domain.PeriodQuarterly {
		return quarter
	}
	month := fmt.Sprintf("%s,%s", quarter, first.Month().String()[:3])
	if period == domain.PeriodMonthly {
		return month
	}
	_, isoWeek := first.ISOWeek()
	week := fmt.Sprintf("%s,W%d", month, isoWeek)
	if period == domain.PeriodWeekly {
		return week
	}
	return fmt.Sprintf("%s,%s", week, first.Weekday().String()[:3])
}

func fullName(period domain.Period, name string, first time.Time) string {
	switch period {
	case domain.PeriodDaily:
		return fmt.Sprintf("%s %s%d", name, first.Month().String()[:3], first.Day())
	case domain.PeriodWeekly:
		_, isoWeek := first.ISOWeek()
		return fmt.Sprintf("%s W%d", name, isoWeek)
	case domain.PeriodMonthly:
		return fmt.Sprintf("%s %s", name, first.Month().String()[:3])
	case domain.PeriodQuarterly:
		return fmt.Sprintf("%s Q%d", name, quarterOf(first.Month()))
	case domain.PeriodYearly:
		return fmt.Sprintf("%s %d", name, first.Year())
	}
	return name
}

// skipNumber is the interval ordinal a skip rule applies to.
func skipNumber(period domain.Period, first time.Time) int {
	switch period {
	case domain.PeriodDaily:
		return isoWeekday(first)
	case domain.PeriodWeekly:
		_, isoWeek := first.ISOWeek()
		return isoWeek
	case domain.PeriodMonthly:
		return int(first.Month())
	case domain.PeriodQuarterly:
		return quarterOf(first.Month())
	case domain.PeriodYearly:
		return first.Year()
	}
	return 0
}
