package schedule

import (
	"testing"
	"time"

	"dayline/internal/domain"
)

func mustCompute(t *testing.T, p Params) Schedule {
	t.Helper()
	s, err := Compute(p)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return s
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestWeeklyScheduleAnchors(t *testing.T) {
	s := mustCompute(t, Params{
		Period:   domain.PeriodWeekly,
		Name:     "Exercise",
		RightNow: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		DueAtDay: intPtr(5),
		SkipRule: strPtr("even"),
	})
	if FormatDate(s.FirstDay) != "2024-01-01" || FormatDate(s.EndDay) != "2024-01-07" {
		t.Fatalf("bounds %s..%s", FormatDate(s.FirstDay), FormatDate(s.EndDay))
	}
	if FormatDate(s.DueDate) != "2024-01-05" {
		t.Fatalf("due %s", FormatDate(s.DueDate))
	}
	if s.Timeline != "2024,Q1,Jan,W1" {
		t.Fatalf("timeline %s", s.Timeline)
	}
	if s.FullName != "Exercise W1" {
		t.Fatalf("full name %s", s.FullName)
	}
	if s.ShouldSkip {
		t.Fatalf("week 1 is odd, should not skip")
	}
}

func TestWeeklySkipRuleOnEvenWeek(t *testing.T) {
	s := mustCompute(t, Params{
		Period:   domain.PeriodWeekly,
		Name:     "Exercise",
		RightNow: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		DueAtDay: intPtr(5),
		SkipRule: strPtr("even"),
	})
	if s.Timeline != "2024,Q1,Jan,W2" {
		t.Fatalf("timeline %s", s.Timeline)
	}
	if !s.ShouldSkip {
		t.Fatalf("week 2 is even, should skip")
	}
}

func TestTimelineStableWithinInterval(t *testing.T) {
	for _, period := range domain.AllPeriods {
		a := mustCompute(t, Params{Period: period, Name: "N", RightNow: time.Date(2024, 5, 14, 1, 0, 0, 0, time.UTC)})
		b := mustCompute(t, Params{Period: period, Name: "N", RightNow: time.Date(2024, 5, 14, 23, 0, 0, 0, time.UTC)})
		if a.Timeline != b.Timeline {
			t.Fatalf("%s: %s != %s", period, a.Timeline, b.Timeline)
		}
	}
}

func TestTimelineDiffersAcrossIntervals(t *testing.T) {
	for _, period := range domain.AllPeriods {
		a := mustCompute(t, Params{Period: period, Name: "N", RightNow: time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)})
		b := mustCompute(t, Params{Period: period, Name: "N", RightNow: time.Date(2025, 6, 24, 0, 0, 0, 0, time.UTC)})
		if a.Timeline == b.Timeline {
			t.Fatalf("%s: same timeline %s for different intervals", period, a.Timeline)
		}
	}
}

func TestIntervalContainsRightNowAndDue(t *testing.T) {
	instants := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2023, 7, 4, 9, 30, 0, 0, time.UTC),
	}
	for _, period := range domain.AllPeriods {
		for _, now := range instants {
			s := mustCompute(t, Params{Period: period, Name: "N", RightNow: now})
			day := civil(now.Year(), now.Month(), now.Day())
			if day.Before(s.FirstDay) || day.After(s.EndDay) {
				t.Fatalf("%s@%s: day outside [%s,%s]", period, now, FormatDate(s.FirstDay), FormatDate(s.EndDay))
			}
			if s.DueDate.Before(s.FirstDay) || s.DueDate.After(s.EndDay) {
				t.Fatalf("%s@%s: due %s outside interval", period, now, FormatDate(s.DueDate))
			}
		}
	}
}

func TestScheduleRoundTripOnFirstDay(t *testing.T) {
	for _, period := range domain.AllPeriods {
		s := mustCompute(t, Params{Period: period, Name: "N", RightNow: time.Date(2024, 8, 19, 15, 0, 0, 0, time.UTC)})
		again := mustCompute(t, Params{Period: period, Name: "N", RightNow: s.FirstDay})
		if again.Timeline != s.Timeline || !again.FirstDay.Equal(s.FirstDay) {
			t.Fatalf("%s: round trip drifted %s -> %s", period, s.Timeline, again.Timeline)
		}
	}
}

func TestMonthlyDefaultsToLastDay(t *testing.T) {
	s := mustCompute(t, Params{Period: domain.PeriodMonthly, Name: "Bills", RightNow: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)})
	if FormatDate(s.DueDate) != "2024-02-29" {
		t.Fatalf("due %s", FormatDate(s.DueDate))
	}
	if s.Timeline != "2024,Q1,Feb" {
		t.Fatalf("timeline %s", s.Timeline)
	}
	if s.FullName != "Bills Feb" {
		t.Fatalf("full name %s", s.FullName)
	}
}

func TestQuarterlyInteriorMonthAnchor(t *testing.T) {
	s := mustCompute(t, Params{
		Period:     domain.PeriodQuarterly,
		Name:       "Review",
		RightNow:   time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		DueAtMonth: intPtr(2),
		DueAtDay:   intPtr(15),
	})
	if FormatDate(s.FirstDay) != "2024-04-01" || FormatDate(s.EndDay) != "2024-06-30" {
		t.Fatalf("bounds %s..%s", FormatDate(s.FirstDay), FormatDate(s.EndDay))
	}
	if FormatDate(s.DueDate) != "2024-05-15" {
		t.Fatalf("due %s", FormatDate(s.DueDate))
	}
	if s.Timeline != "2024,Q2" || s.FullName != "Review Q2" {
		t.Fatalf("timeline %s name %s", s.Timeline, s.FullName)
	}
}

func TestYearlyAnchorsAndDueTime(t *testing.T) {
	s := mustCompute(t, Params{
		Period:     domain.PeriodYearly,
		Name:       "Taxes",
		RightNow:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DueAtMonth: intPtr(4),
		DueAtDay:   intPtr(15),
		DueAtTime:  strPtr("17:30"),
	})
	if FormatDate(s.DueDate) != "2024-04-15" {
		t.Fatalf("due %s", FormatDate(s.DueDate))
	}
	if s.DueTime == nil || !s.DueTime.Equal(time.Date(2024, 4, 15, 17, 30, 0, 0, time.UTC)) {
		t.Fatalf("due time %v", s.DueTime)
	}
	if s.Timeline != "2024" || s.FullName != "Taxes 2024" {
		t.Fatalf("timeline %s name %s", s.Timeline, s.FullName)
	}
}

func TestDailyNameAndTimeline(t *testing.T) {
	s := mustCompute(t, Params{Period: domain.PeriodDaily, Name: "Stretch", RightNow: time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)})
	if s.Timeline != "2024,Q1,Jan,W1,Wed" {
		t.Fatalf("timeline %s", s.Timeline)
	}
	if s.FullName != "Stretch Jan3" {
		t.Fatalf("full name %s", s.FullName)
	}
	if !s.FirstDay.Equal(s.EndDay) {
		t.Fatalf("daily interval should be one day")
	}
}

func TestActionableDateFromAnchor(t *testing.T) {
	s := mustCompute(t, Params{
		Period:            domain.PeriodMonthly,
		Name:              "Report",
		RightNow:          time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		ActionableFromDay: intPtr(5),
		DueAtDay:          intPtr(20),
	})
	if s.ActionableDate == nil || FormatDate(*s.ActionableDate) != "2024-03-05" {
		t.Fatalf("actionable %v", s.ActionableDate)
	}
	noAnchor := mustCompute(t, Params{Period: domain.PeriodMonthly, Name: "Report", RightNow: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)})
	if noAnchor.ActionableDate != nil {
		t.Fatalf("expected nil actionable without anchors")
	}
}

func TestAnchorBoundsRejected(t *testing.T) {
	cases := []Params{
		{Period: domain.PeriodWeekly, Name: "N", DueAtDay: intPtr(8)},
		{Period: domain.PeriodMonthly, Name: "N", DueAtDay: intPtr(32)},
		{Period: domain.PeriodQuarterly, Name: "N", DueAtMonth: intPtr(4)},
		{Period: domain.PeriodYearly, Name: "N", DueAtMonth: intPtr(13)},
		{Period: domain.PeriodDaily, Name: "N", DueAtDay: intPtr(1)},
		{Period: domain.PeriodMonthly, Name: "N", DueAtMonth: intPtr(1)},
	}
	for i, p := range cases {
		p.RightNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if _, err := Compute(p); err == nil {
			t.Fatalf("case %d: expected invalid input", i)
		}
	}
}

func TestSkipRuleParsing(t *testing.T) {
	rule, err := ParseSkipRule("1, 3 12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !rule.ShouldSkip(3) || rule.ShouldSkip(2) {
		t.Fatalf("explicit set misbehaves")
	}
	if _, err := ParseSkipRule("sometimes"); err == nil {
		t.Fatalf("expected invalid rule")
	}
	odd, _ := ParseSkipRule("odd")
	if !odd.ShouldSkip(1) || odd.ShouldSkip(2) {
		t.Fatalf("odd rule misbehaves")
	}
}

func TestSpreadOutNoOverlap(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	parts, err := SpreadOutNoOverlap(first, end, 3)
	if err != nil {
		t.Fatalf("spread: %v", err)
	}
	want := [][2]string{
		{"2024-01-01", "2024-01-03"},
		{"2024-01-04", "2024-01-05"},
		{"2024-01-06", "2024-01-07"},
	}
	if len(parts) != len(want) {
		t.Fatalf("got %d parts", len(parts))
	}
	for i, w := range want {
		if FormatDate(parts[i].First) != w[0] || FormatDate(parts[i].End) != w[1] {
			t.Fatalf("part %d: %s..%s", i, FormatDate(parts[i].First), FormatDate(parts[i].End))
		}
	}
	// contiguity and coverage
	if !parts[0].First.Equal(first) || !parts[len(parts)-1].End.Equal(end) {
		t.Fatalf("parts do not cover interval")
	}
	for i := 1; i < len(parts); i++ {
		if !parts[i].First.Equal(parts[i-1].End.AddDate(0, 0, 1)) {
			t.Fatalf("gap between part %d and %d", i-1, i)
		}
	}
	if _, err := SpreadOutNoOverlap(first, first.AddDate(0, 0, 1), 3); err == nil {
		t.Fatalf("expected failure when days < n")
	}
}

func TestAllSame(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	parts := AllSame(first, end, 4)
	if len(parts) != 4 {
		t.Fatalf("got %d parts", len(parts))
	}
	for _, p := range parts {
		if !p.First.Equal(first) || !p.End.Equal(end) {
			t.Fatalf("copy differs from interval")
		}
	}
}

func TestGenParamsOrderingInvariant(t *testing.T) {
	bad := domain.GenParams{Period: domain.PeriodMonthly, ActionableFromDay: intPtr(20), DueAtDay: intPtr(5)}
	if err := CheckGenParams(bad); err == nil {
		t.Fatalf("expected actionable>due rejection")
	}
	good := domain.GenParams{Period: domain.PeriodMonthly, ActionableFromDay: intPtr(5), DueAtDay: intPtr(20)}
	if err := CheckGenParams(good); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestTimezoneAnchorsSchedule(t *testing.T) {
	loc, err := LoadTimezone("America/New_York")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	// 02:00 UTC on Jan 2 is still Jan 1 in New York.
	s := mustCompute(t, Params{Period: domain.PeriodDaily, Name: "N", RightNow: time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC), Location: loc})
	if FormatDate(s.FirstDay) != "2024-01-01" {
		t.Fatalf("first day %s", FormatDate(s.FirstDay))
	}
	if _, err := LoadTimezone("Mars/Olympus"); err == nil {
		t.Fatalf("expected invalid timezone")
	}
}
