package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dayline/internal/domain"
)

const DateLayout = "2006-01-02"

// ParseDate parses a civil date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, domain.ErrInvalidInput)
	}
	return d, nil
}

// FormatDate renders a civil date in YYYY-MM-DD form.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// LoadTimezone resolves an IANA zone name, defaulting to UTC.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, domain.ErrInvalidInput)
	}
	return loc, nil
}

// dueAtDayBounds returns the inclusive day-of-interval range for a period.
// Daily has no interior anchor.
func dueAtDayBounds(period domain.Period) (int, int, bool) {
	switch period {
	case domain.PeriodWeekly:
		return 1, 7, true
	case domain.PeriodMonthly:
		return 1, 31, true
	case domain.PeriodQuarterly:
		return 1, 92, true
	case domain.PeriodYearly:
		return 1, 366, true
	}
	return 0, 0, false
}

func dueAtMonthBounds(period domain.Period) (int, int, bool) {
	switch period {
	case domain.PeriodQuarterly:
		return 1, 3, true
	case domain.PeriodYearly:
		return 1, 12, true
	}
	return 0, 0, false
}

// CheckDayAnchor validates a day-of-interval anchor against a period.
func CheckDayAnchor(period domain.Period, day *int) error {
	if day == nil {
		return nil
	}
	lo, hi, ok := dueAtDayBounds(period)
	if !ok {
		return fmt.Errorf("day anchor not allowed for period %s: %w", period, domain.ErrInvalidInput)
	}
	if *day < lo || *day > hi {
		return fmt.Errorf("day anchor %d outside [%d,%d] for period %s: %w", *day, lo, hi, period, domain.ErrInvalidInput)
	}
	return nil
}

// CheckMonthAnchor validates a month-of-interval anchor against a period.
func CheckMonthAnchor(period domain.Period, month *int) error {
	if month == nil {
		return nil
	}
	lo, hi, ok := dueAtMonthBounds(period)
	if !ok {
		return fmt.Errorf("month anchor not allowed for period %s: %w", period, domain.ErrInvalidInput)
	}
	if *month < lo || *month > hi {
		return fmt.Errorf("month anchor %d outside [%d,%d] for period %s: %w", *month, lo, hi, period, domain.ErrInvalidInput)
	}
	return nil
}

// CheckGenParams validates a full anchor set, including the
// actionable-before-due ordering invariant.
func CheckGenParams(p domain.GenParams) error {
	if !p.Period.Valid() {
		return fmt.Errorf("period %q: %w", p.Period, domain.ErrInvalidInput)
	}
	if p.Eisen != "" && !p.Eisen.Valid() {
		return fmt.Errorf("eisen %q: %w", p.Eisen, domain.ErrInvalidInput)
	}
	if p.Difficulty != nil && !p.Difficulty.Valid() {
		return fmt.Errorf("difficulty %q: %w", *p.Difficulty, domain.ErrInvalidInput)
	}
	if err := CheckDayAnchor(p.Period, p.ActionableFromDay); err != nil {
		return err
	}
	if err := CheckMonthAnchor(p.Period, p.ActionableFromMonth); err != nil {
		return err
	}
	if err := CheckDayAnchor(p.Period, p.DueAtDay); err != nil {
		return err
	}
	if err := CheckMonthAnchor(p.Period, p.DueAtMonth); err != nil {
		return err
	}
	if p.DueAtTime != nil {
		if _, err := parseDueAtTime(*p.DueAtTime); err != nil {
			return err
		}
	}
	if p.SkipRule != nil {
		if _, err := ParseSkipRule(*p.SkipRule); err != nil {
			return err
		}
	}
	// actionable must not land after due within the same interval
	am, dm := p.ActionableFromMonth, p.DueAtMonth
	ad, dd := p.ActionableFromDay, p.DueAtDay
	if am != nil && dm != nil && *am > *dm {
		return fmt.Errorf("actionable month %d after due month %d: %w", *am, *dm, domain.ErrInvalidInput)
	}
	sameMonth := am == nil && dm == nil || (am != nil && dm != nil && *am == *dm)
	if sameMonth && ad != nil && dd != nil && *ad > *dd {
		return fmt.Errorf("actionable day %d after due day %d: %w", *ad, *dd, domain.ErrInvalidInput)
	}
	return nil
}

// parseDueAtTime parses an HH:MM wall-clock anchor.
func parseDueAtTime(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("due time %q: %w", s, domain.ErrInvalidInput)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("due time %q: %w", s, domain.ErrInvalidInput)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// SkipRule suppresses generation for selected interval numbers: "even",
// "odd", or an explicit set like "1 3 12".
type SkipRule struct {
	Even bool
	Odd  bool
	Set  map[int]bool
}

func ParseSkipRule(s string) (SkipRule, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "":
		return SkipRule{}, fmt.Errorf("empty skip rule: %w", domain.ErrInvalidInput)
	case "even":
		return SkipRule{Even: true}, nil
	case "odd":
		return SkipRule{Odd: true}, nil
	}
	set := map[int]bool{}
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' }) {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return SkipRule{}, fmt.Errorf("skip rule token %q: %w", tok, domain.ErrInvalidInput)
		}
		set[n] = true
	}
	return SkipRule{Set: set}, nil
}

// ShouldSkip decides whether the interval numbered n is suppressed.
func (r SkipRule) ShouldSkip(n int) bool {
	switch {
	case r.Even:
		return n%2 == 0
	case r.Odd:
		return n%2 == 1
	case r.Set != nil:
		return r.Set[n]
	}
	return false
}
