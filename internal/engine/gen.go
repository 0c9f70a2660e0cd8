package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/repo"
	"dayline/internal/schedule"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// GenArgs are parameters for a generation run. Zero RightNow means now;
// nil Targets means every enabled target.
type GenArgs struct {
	RightNow          time.Time
	Targets           []domain.Target
	PeriodFilter      []domain.Period
	SourceRefIDs      []string
	EvenIfNotModified bool
}

// GenReportEntry records what happened to one (source, timeline) pair.
type GenReportEntry struct {
	Target      domain.Target `json:"target"`
	SourceRefID string        `json:"source_ref_id"`
	SourceName  string        `json:"source_name"`
	Timeline    string        `json:"timeline,omitempty"`
	Action      string        `json:"action"`
	TaskRefID   string        `json:"task_ref_id,omitempty"`
	Detail      string        `json:"detail,omitempty"`
}

type GenReport struct {
	LogRefID  string           `json:"log_ref_id"`
	RightNow  string           `json:"right_now" format:"date-time"`
	Entries   []GenReportEntry `json:"entries"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Skipped   int              `json:"skipped"`
}

func (r *GenReport) add(e GenReportEntry) {
	r.Entries = append(r.Entries, e)
	switch e.Action {
	case "created":
		r.Created++
	case "updated":
		r.Updated++
	case "unchanged":
		r.Unchanged++
	default:
		r.Skipped++
	}
}

// genSpec is everything needed to materialize one generated inbox task.
type genSpec struct {
	Source             domain.InboxTaskSource
	SourceRefID        string
	Name               string
	ProjectRefID       string
	Eisen              domain.Eisen
	Difficulty         *domain.Difficulty
	Timeline           string
	Period             string
	ActionableDate     *string
	DueDate            *string
	DueTime            *string
	SourceLastModified string
}

// Generate runs the generation service over the enabled targets and
// writes the run log, entity rows and events in one transaction.
func (e Engine) Generate(ctx context.Context, args GenArgs) (GenReport, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return GenReport{}, err
	}
	loc, err := schedule.LoadTimezone(w.Timezone)
	if err != nil {
		return GenReport{}, err
	}
	rightNow := args.RightNow
	if rightNow.IsZero() {
		rightNow = e.now()
	}
	targets := args.Targets
	if targets == nil {
		targets = []domain.Target{
			domain.TargetHabits, domain.TargetChores, domain.TargetMetrics,
			domain.TargetPersons, domain.TargetBigPlans,
			domain.TargetSlackTasks, domain.TargetEmailTasks,
		}
	}
	targets = w.InferTargets(targets)
	evenIf := args.EvenIfNotModified || e.Config.Generation.EvenIfNotModified

	vacations, err := e.Repo.ListVacations(ctx, w.RefID, false)
	if err != nil {
		return GenReport{}, err
	}

	// The transaction runs on a detached context so an interrupted run
	// can still close its log as incomplete and commit the partial,
	// idempotent work.
	dbCtx := context.WithoutCancel(ctx)
	tx, err := e.DB.BeginTx(dbCtx, nil)
	if err != nil {
		return GenReport{}, err
	}
	defer tx.Rollback()

	report := GenReport{
		LogRefID: newID(),
		RightNow: rightNow.UTC().Format(time.RFC3339),
	}
	targetNames := make([]string, len(targets))
	for i, t := range targets {
		targetNames[i] = string(t)
	}
	if err := e.Repo.InsertGenLog(dbCtx, tx, domain.GenLogEntry{
		RefID:                report.LogRefID,
		WorkspaceID:          w.RefID,
		GenEvenIfNotModified: evenIf,
		Targets:              targetNames,
		RightNow:             report.RightNow,
		OpenedTime:           e.stamp(),
		EntriesJSON:          "[]",
	}); err != nil {
		return GenReport{}, err
	}

	run := genRun{
		engine:    e,
		tx:        tx,
		repo:      e.Repo.InTx(tx),
		caller:    ctx,
		workspace: w,
		loc:       loc,
		rightNow:  rightNow,
		vacations: vacations,
		args:      args,
		evenIf:    evenIf,
		report:    &report,
	}
	complete := true
	for _, target := range targets {
		err := run.target(dbCtx, target)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			complete = false
			break
		}
		if err != nil {
			return GenReport{}, err
		}
	}

	entries, err := json.Marshal(report.Entries)
	if err != nil {
		return GenReport{}, err
	}
	if err := e.Repo.CloseGenLog(dbCtx, tx, report.LogRefID, e.stamp(), string(entries), complete); err != nil {
		return GenReport{}, err
	}
	if err := e.Events.Append(dbCtx, tx, "gen.run", w.RefID, "gen-log", report.LogRefID, 1, "gen", events.Frame{
		"created": report.Created, "updated": report.Updated,
		"unchanged": report.Unchanged, "skipped": report.Skipped,
	}); err != nil {
		return GenReport{}, err
	}
	return report, tx.Commit()
}

type genRun struct {
	engine    Engine
	tx        *sql.Tx
	repo      repo.Repo
	caller    context.Context
	workspace domain.Workspace
	loc       *time.Location
	rightNow  time.Time
	vacations []domain.Vacation
	args      GenArgs
	evenIf    bool
	report    *GenReport
}

func (g *genRun) target(ctx context.Context, target domain.Target) error {
	done := g.engine.reporter().Section("generate " + string(target))
	defer done()
	switch target {
	case domain.TargetHabits:
		return g.habits(ctx)
	case domain.TargetChores:
		return g.chores(ctx)
	case domain.TargetMetrics:
		return g.metrics(ctx)
	case domain.TargetPersons:
		return g.persons(ctx)
	case domain.TargetBigPlans:
		return g.bigPlans(ctx)
	case domain.TargetSlackTasks:
		return g.pushTasks(ctx, domain.SourceSlackTask)
	case domain.TargetEmailTasks:
		return g.pushTasks(ctx, domain.SourceEmailTask)
	}
	return nil
}

func (g *genRun) wantSource(refID string) bool {
	if len(g.args.SourceRefIDs) == 0 {
		return true
	}
	for _, id := range g.args.SourceRefIDs {
		if id == refID {
			return true
		}
	}
	return false
}

func (g *genRun) wantPeriod(p domain.Period) bool {
	if len(g.args.PeriodFilter) == 0 {
		return true
	}
	for _, f := range g.args.PeriodFilter {
		if f == p {
			return true
		}
	}
	return false
}

// onVacation reports whether the whole schedule window falls inside one
// vacation.
func (g *genRun) onVacation(s schedule.Schedule) bool {
	first := schedule.FormatDate(s.FirstDay)
	end := schedule.FormatDate(s.EndDay)
	for _, v := range g.vacations {
		if v.StartDate <= first && end <= v.EndDate {
			return true
		}
	}
	return false
}

// outsideActiveInterval reports whether the window misses the source's
// [start_at_date, end_at_date] entirely.
func outsideActiveInterval(s schedule.Schedule, start, end *string) bool {
	first := schedule.FormatDate(s.FirstDay)
	last := schedule.FormatDate(s.EndDay)
	if start != nil && last < *start {
		return true
	}
	if end != nil && first > *end {
		return true
	}
	return false
}

func (g *genRun) skip(target domain.Target, refID, name, detail string) {
	g.engine.reporter().MarkSkipped(string(target), refID, name, detail)
	g.report.add(GenReportEntry{Target: target, SourceRefID: refID, SourceName: name, Action: "skipped", Detail: detail})
}

// upsert enforces the (source, timeline) idempotency contract: at most
// one non-archived task per pair; existing tasks are link-updated only
// when the source moved past them.
func (g *genRun) upsert(ctx context.Context, target domain.Target, spec genSpec) error {
	e := g.engine
	existing, err := g.repo.GetInboxTaskBySourceAndTimeline(ctx, spec.SourceRefID, spec.Timeline)
	if err == nil {
		if !g.evenIf && existing.LastModifiedTime >= spec.SourceLastModified {
			g.report.add(GenReportEntry{Target: target, SourceRefID: spec.SourceRefID, SourceName: spec.Name, Timeline: spec.Timeline, Action: "unchanged", TaskRefID: existing.RefID})
			return nil
		}
		existing.Version++
		existing.Name = spec.Name
		existing.Eisen = spec.Eisen
		existing.Difficulty = spec.Difficulty
		existing.ActionableDate = spec.ActionableDate
		existing.DueDate = spec.DueDate
		existing.DueTime = spec.DueTime
		existing.RecurringType = strPtr(spec.Period)
		existing.LastModifiedTime = e.stamp()
		if err := e.Repo.SaveInboxTask(ctx, g.tx, existing); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, g.tx, "inbox-task.update-link", g.workspace.RefID, "inbox-task", existing.RefID, existing.Version, "gen", events.Frame{"timeline": spec.Timeline}); err != nil {
			return err
		}
		e.reporter().MarkUpdated("inbox-task", existing.RefID, existing.Name)
		g.report.add(GenReportEntry{Target: target, SourceRefID: spec.SourceRefID, SourceName: spec.Name, Timeline: spec.Timeline, Action: "updated", TaskRefID: existing.RefID})
		return nil
	} else if err != nil && !isNotFound(err) {
		return err
	}

	now := e.stamp()
	t := domain.InboxTask{
		RefID:             newID(),
		WorkspaceID:       g.workspace.RefID,
		Version:           1,
		Name:              spec.Name,
		Source:            spec.Source,
		SourceEntityRefID: strPtr(spec.SourceRefID),
		ProjectRefID:      spec.ProjectRefID,
		Status:            domain.StatusNotStarted,
		Eisen:             spec.Eisen,
		Difficulty:        spec.Difficulty,
		ActionableDate:    spec.ActionableDate,
		DueDate:           spec.DueDate,
		DueTime:           spec.DueTime,
		RecurringTimeline: strPtr(spec.Timeline),
		RecurringGenAt:    strPtr(g.rightNow.UTC().Format(time.RFC3339)),
		RecurringType:     strPtr(spec.Period),
		CreatedTime:       now,
		LastModifiedTime:  now,
	}
	if err := e.Repo.InsertInboxTask(ctx, g.tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, g.tx, "inbox-task.generated", g.workspace.RefID, "inbox-task", t.RefID, t.Version, "gen", events.Frame{"timeline": spec.Timeline, "source": string(spec.Source)}); err != nil {
		return err
	}
	e.reporter().MarkCreated("inbox-task", t.RefID, t.Name)
	g.report.add(GenReportEntry{Target: target, SourceRefID: spec.SourceRefID, SourceName: spec.Name, Timeline: spec.Timeline, Action: "created", TaskRefID: t.RefID})
	return nil
}

func datePtr(d time.Time) *string {
	s := schedule.FormatDate(d)
	return &s
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func (g *genRun) habits(ctx context.Context) error {
	habits, err := g.repo.ListHabits(ctx, g.workspace.RefID, false)
	if err != nil {
		return err
	}
	for _, h := range habits {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(h.RefID) {
			continue
		}
		if h.Suspended {
			g.skip(domain.TargetHabits, h.RefID, h.Name, "suspended")
			continue
		}
		if !g.wantPeriod(h.Gen.Period) {
			continue
		}
		s, err := schedule.Compute(schedule.Params{
			Period:              h.Gen.Period,
			Name:                h.Name,
			RightNow:            g.rightNow,
			Location:            g.loc,
			SkipRule:            h.Gen.SkipRule,
			ActionableFromDay:   h.Gen.ActionableFromDay,
			ActionableFromMonth: h.Gen.ActionableFromMonth,
			DueAtTime:           h.Gen.DueAtTime,
			DueAtDay:            h.Gen.DueAtDay,
			DueAtMonth:          h.Gen.DueAtMonth,
		})
		if err != nil {
			return fmt.Errorf("habit %s: %w", h.RefID, err)
		}
		if !h.MustDo && g.onVacation(s) {
			g.skip(domain.TargetHabits, h.RefID, h.Name, "on vacation")
			continue
		}
		if outsideActiveInterval(s, h.StartAtDate, h.EndAtDate) {
			g.skip(domain.TargetHabits, h.RefID, h.Name, "outside active interval")
			continue
		}
		if s.ShouldSkip {
			g.skip(domain.TargetHabits, h.RefID, h.Name, "skip rule")
			continue
		}
		specs, err := g.habitSpecs(h, s)
		if err != nil {
			return fmt.Errorf("habit %s: %w", h.RefID, err)
		}
		for _, spec := range specs {
			if err := g.upsert(ctx, domain.TargetHabits, spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// habitSpecs expands a habit schedule into one spec per repeat.
func (g *genRun) habitSpecs(h domain.Habit, s schedule.Schedule) ([]genSpec, error) {
	base := genSpec{
		Source:             domain.SourceHabit,
		SourceRefID:        h.RefID,
		Name:               s.FullName,
		ProjectRefID:       h.ProjectRefID,
		Eisen:              genEisen(h.Gen, g.engine),
		Difficulty:         h.Gen.Difficulty,
		Timeline:           s.Timeline,
		Period:             string(h.Gen.Period),
		ActionableDate:     timeDatePtr(s.ActionableDate),
		DueDate:            datePtr(s.DueDate),
		DueTime:            timePtr(s.DueTime),
		SourceLastModified: h.LastModifiedTime,
	}
	if h.RepeatsInPeriod == nil || *h.RepeatsInPeriod <= 1 {
		return []genSpec{base}, nil
	}
	n := *h.RepeatsInPeriod
	intervals, err := schedule.Spread(h.RepeatsStrategy, s.FirstDay, s.EndDay, n)
	if err != nil {
		return nil, err
	}
	out := make([]genSpec, 0, n)
	for i, iv := range intervals {
		spec := base
		spec.Name = fmt.Sprintf("%s %d/%d", s.FullName, i+1, n)
		spec.Timeline = fmt.Sprintf("%s,%d", s.Timeline, i+1)
		spec.ActionableDate = datePtr(iv.First)
		spec.DueDate = datePtr(iv.End)
		spec.DueTime = nil
		out = append(out, spec)
	}
	return out, nil
}

func timeDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return datePtr(*t)
}

func genEisen(p domain.GenParams, e Engine) domain.Eisen {
	if p.Eisen != "" {
		return p.Eisen
	}
	return e.Config.DefaultEisen()
}

func (g *genRun) chores(ctx context.Context) error {
	chores, err := g.repo.ListChores(ctx, g.workspace.RefID, false)
	if err != nil {
		return err
	}
	for _, c := range chores {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(c.RefID) {
			continue
		}
		if c.Suspended {
			g.skip(domain.TargetChores, c.RefID, c.Name, "suspended")
			continue
		}
		if !g.wantPeriod(c.Gen.Period) {
			continue
		}
		s, err := schedule.Compute(schedule.Params{
			Period:              c.Gen.Period,
			Name:                c.Name,
			RightNow:            g.rightNow,
			Location:            g.loc,
			SkipRule:            c.Gen.SkipRule,
			ActionableFromDay:   c.Gen.ActionableFromDay,
			ActionableFromMonth: c.Gen.ActionableFromMonth,
			DueAtTime:           c.Gen.DueAtTime,
			DueAtDay:            c.Gen.DueAtDay,
			DueAtMonth:          c.Gen.DueAtMonth,
		})
		if err != nil {
			return fmt.Errorf("chore %s: %w", c.RefID, err)
		}
		if !c.MustDo && g.onVacation(s) {
			g.skip(domain.TargetChores, c.RefID, c.Name, "on vacation")
			continue
		}
		if outsideActiveInterval(s, c.StartAtDate, c.EndAtDate) {
			g.skip(domain.TargetChores, c.RefID, c.Name, "outside active interval")
			continue
		}
		if s.ShouldSkip {
			g.skip(domain.TargetChores, c.RefID, c.Name, "skip rule")
			continue
		}
		if err := g.upsert(ctx, domain.TargetChores, genSpec{
			Source:             domain.SourceChore,
			SourceRefID:        c.RefID,
			Name:               s.FullName,
			ProjectRefID:       c.ProjectRefID,
			Eisen:              genEisen(c.Gen, g.engine),
			Difficulty:         c.Gen.Difficulty,
			Timeline:           s.Timeline,
			Period:             string(c.Gen.Period),
			ActionableDate:     timeDatePtr(s.ActionableDate),
			DueDate:            datePtr(s.DueDate),
			DueTime:            timePtr(s.DueTime),
			SourceLastModified: c.LastModifiedTime,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *genRun) metrics(ctx context.Context) error {
	metrics, err := g.repo.ListMetrics(ctx, g.workspace.RefID, false)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(m.RefID) {
			continue
		}
		if m.Collection == nil {
			continue
		}
		if !g.wantPeriod(m.Collection.Period) {
			continue
		}
		s, err := schedule.Compute(schedule.Params{
			Period:              m.Collection.Period,
			Name:                "Collect " + m.Name,
			RightNow:            g.rightNow,
			Location:            g.loc,
			SkipRule:            m.Collection.SkipRule,
			ActionableFromDay:   m.Collection.ActionableFromDay,
			ActionableFromMonth: m.Collection.ActionableFromMonth,
			DueAtTime:           m.Collection.DueAtTime,
			DueAtDay:            m.Collection.DueAtDay,
			DueAtMonth:          m.Collection.DueAtMonth,
		})
		if err != nil {
			return fmt.Errorf("metric %s: %w", m.RefID, err)
		}
		if s.ShouldSkip {
			g.skip(domain.TargetMetrics, m.RefID, m.Name, "skip rule")
			continue
		}
		if err := g.upsert(ctx, domain.TargetMetrics, genSpec{
			Source:             domain.SourceMetric,
			SourceRefID:        m.RefID,
			Name:               s.FullName,
			ProjectRefID:       g.workspace.DefaultProjectID,
			Eisen:              genEisen(*m.Collection, g.engine),
			Difficulty:         m.Collection.Difficulty,
			Timeline:           s.Timeline,
			Period:             string(m.Collection.Period),
			ActionableDate:     timeDatePtr(s.ActionableDate),
			DueDate:            datePtr(s.DueDate),
			DueTime:            timePtr(s.DueTime),
			SourceLastModified: m.LastModifiedTime,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *genRun) persons(ctx context.Context) error {
	persons, err := g.repo.ListPersons(ctx, g.workspace.RefID, false)
	if err != nil {
		return err
	}
	for _, p := range persons {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(p.RefID) {
			continue
		}
		if p.CatchUp != nil && g.wantPeriod(p.CatchUp.Period) {
			s, err := schedule.Compute(schedule.Params{
				Period:              p.CatchUp.Period,
				Name:                "Catch up with " + p.Name,
				RightNow:            g.rightNow,
				Location:            g.loc,
				SkipRule:            p.CatchUp.SkipRule,
				ActionableFromDay:   p.CatchUp.ActionableFromDay,
				ActionableFromMonth: p.CatchUp.ActionableFromMonth,
				DueAtTime:           p.CatchUp.DueAtTime,
				DueAtDay:            p.CatchUp.DueAtDay,
				DueAtMonth:          p.CatchUp.DueAtMonth,
			})
			if err != nil {
				return fmt.Errorf("person %s catch-up: %w", p.RefID, err)
			}
			if s.ShouldSkip {
				g.skip(domain.TargetPersons, p.RefID, p.Name, "skip rule")
			} else if err := g.upsert(ctx, domain.TargetPersons, genSpec{
				Source:             domain.SourcePersonCatchUp,
				SourceRefID:        p.RefID,
				Name:               s.FullName,
				ProjectRefID:       g.workspace.DefaultProjectID,
				Eisen:              genEisen(*p.CatchUp, g.engine),
				Difficulty:         p.CatchUp.Difficulty,
				Timeline:           s.Timeline,
				Period:             string(p.CatchUp.Period),
				ActionableDate:     timeDatePtr(s.ActionableDate),
				DueDate:            datePtr(s.DueDate),
				DueTime:            timePtr(s.DueTime),
				SourceLastModified: p.LastModifiedTime,
			}); err != nil {
				return err
			}
		}
		if p.BirthdayMonth != nil && p.BirthdayDay != nil && g.wantPeriod(domain.PeriodYearly) {
			// day-of-year anchor for the yearly schedule
			year := g.rightNow.In(g.loc).Year()
			bday := time.Date(year, time.Month(*p.BirthdayMonth), *p.BirthdayDay, 0, 0, 0, 0, time.UTC)
			dayOfYear := bday.YearDay()
			s, err := schedule.Compute(schedule.Params{
				Period:   domain.PeriodYearly,
				Name:     "Wish " + p.Name + " a happy birthday",
				RightNow: g.rightNow,
				Location: g.loc,
				DueAtDay: &dayOfYear,
			})
			if err != nil {
				return fmt.Errorf("person %s birthday: %w", p.RefID, err)
			}
			s.Timeline += ",birthday"
			if err := g.upsert(ctx, domain.TargetPersons, genSpec{
				Source:             domain.SourcePersonBirthday,
				SourceRefID:        p.RefID,
				Name:               s.FullName,
				ProjectRefID:       g.workspace.DefaultProjectID,
				Eisen:              domain.EisenImportant,
				Timeline:           s.Timeline,
				Period:             string(domain.PeriodYearly),
				DueDate:            datePtr(s.DueDate),
				SourceLastModified: p.LastModifiedTime,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// bigPlans refreshes the link of tasks already attached to a plan:
// names and dates follow the plan when it changed after the task.
func (g *genRun) bigPlans(ctx context.Context) error {
	plans, err := g.repo.ListBigPlans(ctx, g.workspace.RefID, false)
	if err != nil {
		return err
	}
	for _, b := range plans {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(b.RefID) {
			continue
		}
		tasks, err := g.repo.FindInboxTasks(ctx, repo.InboxTaskFilter{
			WorkspaceID:       g.workspace.RefID,
			SourceEntityRefID: b.RefID,
		})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if !g.evenIf && t.LastModifiedTime >= b.LastModifiedTime {
				g.report.add(GenReportEntry{Target: domain.TargetBigPlans, SourceRefID: b.RefID, SourceName: b.Name, Action: "unchanged", TaskRefID: t.RefID})
				continue
			}
			t.Version++
			if t.ActionableDate == nil {
				t.ActionableDate = b.ActionableDate
			}
			if t.DueDate == nil {
				t.DueDate = b.DueDate
			}
			t.LastModifiedTime = g.engine.stamp()
			if err := g.engine.Repo.SaveInboxTask(ctx, g.tx, t); err != nil {
				return err
			}
			if err := g.engine.Events.Append(ctx, g.tx, "inbox-task.update-link", g.workspace.RefID, "inbox-task", t.RefID, t.Version, "gen", events.Frame{"big_plan": b.RefID}); err != nil {
				return err
			}
			g.engine.reporter().MarkUpdated("inbox-task", t.RefID, t.Name)
			g.report.add(GenReportEntry{Target: domain.TargetBigPlans, SourceRefID: b.RefID, SourceName: b.Name, Action: "updated", TaskRefID: t.RefID})
		}
	}
	return nil
}

// pushTasks materializes one inbox task per push task; the push task's
// ref id doubles as the timeline so the pair is one-shot.
func (g *genRun) pushTasks(ctx context.Context, kind domain.InboxTaskSource) error {
	target := domain.TargetSlackTasks
	if kind == domain.SourceEmailTask {
		target = domain.TargetEmailTasks
	}
	pushes, err := g.repo.ListPushTasks(ctx, g.workspace.RefID, kind, false)
	if err != nil {
		return err
	}
	for _, p := range pushes {
		if err := g.caller.Err(); err != nil {
			return err
		}
		if !g.wantSource(p.RefID) {
			continue
		}
		name := p.Name
		if p.Channel != "" {
			name = fmt.Sprintf("Respond to %s on %s", p.Name, p.Channel)
		}
		if err := g.upsert(ctx, target, genSpec{
			Source:             kind,
			SourceRefID:        p.RefID,
			Name:               name,
			ProjectRefID:       g.workspace.DefaultProjectID,
			Eisen:              p.Eisen,
			Difficulty:         p.Difficulty,
			Timeline:           p.RefID,
			Period:             "one-shot",
			SourceLastModified: p.LastModifiedTime,
		}); err != nil {
			return err
		}
	}
	return nil
}
