package engine

import (
	"context"
	"database/sql"
	"fmt"

	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/repo"
	"dayline/internal/schedule"
)

func strPtr(s string) *string { return &s }

func archivalReason(r domain.ArchivalReason) *string {
	s := string(r)
	return &s
}

// archiveDerivedTasks cascades a source archival onto its non-archived
// generated inbox tasks, inside the caller's transaction.
func (e Engine) archiveDerivedTasks(ctx context.Context, tx *sql.Tx, workspaceID, sourceRefID string) (int, error) {
	tasks, err := e.Repo.InTx(tx).FindInboxTasks(ctx, repo.InboxTaskFilter{
		WorkspaceID:       workspaceID,
		SourceEntityRefID: sourceRefID,
	})
	if err != nil {
		return 0, err
	}
	now := e.stamp()
	for _, t := range tasks {
		t.Version++
		t.Archived = true
		t.ArchivalReason = archivalReason(domain.ArchivalReasonParentArchived)
		t.ArchivedTime = strPtr(now)
		t.LastModifiedTime = now
		if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
			return 0, err
		}
		if err := e.Events.Append(ctx, tx, "inbox-task.archived", workspaceID, "inbox-task", t.RefID, t.Version, "cascade", events.Frame{"reason": string(domain.ArchivalReasonParentArchived)}); err != nil {
			return 0, err
		}
	}
	return len(tasks), nil
}

// validActiveInterval enforces start strictly before end; dates sort
// lexically in YYYY-MM-DD form.
func validActiveInterval(start, end *string) error {
	if start != nil {
		if _, err := schedule.ParseDate(*start); err != nil {
			return err
		}
	}
	if end != nil {
		if _, err := schedule.ParseDate(*end); err != nil {
			return err
		}
	}
	if start != nil && end != nil && *start >= *end {
		return fmt.Errorf("start date %s not before end date %s: %w", *start, *end, domain.ErrInvalidInput)
	}
	return nil
}

// validDatePair allows actionable == due, unlike an active interval.
func validDatePair(actionable, due *string) error {
	if actionable != nil {
		if _, err := schedule.ParseDate(*actionable); err != nil {
			return err
		}
	}
	if due != nil {
		if _, err := schedule.ParseDate(*due); err != nil {
			return err
		}
	}
	if actionable != nil && due != nil && *actionable > *due {
		return fmt.Errorf("actionable date %s after due date %s: %w", *actionable, *due, domain.ErrInvalidInput)
	}
	return nil
}

func (e Engine) resolveProject(ctx context.Context, w domain.Workspace, projectRefID string) (string, error) {
	if projectRefID == "" {
		return w.DefaultProjectID, nil
	}
	p, err := e.Repo.GetProject(ctx, projectRefID)
	if err != nil {
		return "", err
	}
	if p.Archived {
		return "", fmt.Errorf("project %s is archived: %w", projectRefID, domain.ErrInvalidInput)
	}
	return p.RefID, nil
}

// --- projects ---

func (e Engine) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if err := requireFeature(w, domain.FeatureProjects); err != nil {
		return domain.Project{}, err
	}
	if name == "" {
		return domain.Project{}, fmt.Errorf("project name is required: %w", domain.ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p := domain.Project{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             name,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", w.RefID, "project", p.RefID, p.Version, "user", events.Frame{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

func (e Engine) ArchiveProject(ctx context.Context, refID string) (domain.Project, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, refID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.IsRoot {
		return domain.Project{}, fmt.Errorf("root project cannot be archived: %w", domain.ErrInvalidInput)
	}
	if p.Archived {
		return p, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p.Version++
	p.Archived = true
	p.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	p.ArchivedTime = strPtr(now)
	p.LastModifiedTime = now
	if err := e.Repo.SaveProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	// tasks and big plans in the project lose their home
	tasks, err := e.Repo.InTx(tx).FindInboxTasks(ctx, repo.InboxTaskFilter{WorkspaceID: w.RefID, ProjectRefID: p.RefID})
	if err != nil {
		return domain.Project{}, err
	}
	for _, t := range tasks {
		t.Version++
		t.Archived = true
		t.ArchivalReason = archivalReason(domain.ArchivalReasonParentArchived)
		t.ArchivedTime = strPtr(now)
		t.LastModifiedTime = now
		if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
			return domain.Project{}, err
		}
	}
	plans, err := e.Repo.InTx(tx).ListBigPlans(ctx, w.RefID, false)
	if err != nil {
		return domain.Project{}, err
	}
	for _, b := range plans {
		if b.ProjectRefID != p.RefID {
			continue
		}
		b.Version++
		b.Archived = true
		b.ArchivalReason = archivalReason(domain.ArchivalReasonParentArchived)
		b.ArchivedTime = strPtr(now)
		b.LastModifiedTime = now
		if err := e.Repo.SaveBigPlan(ctx, tx, b); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "project.archived", w.RefID, "project", p.RefID, p.Version, "user", events.Frame{"cascaded_tasks": len(tasks)}); err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

// --- inbox tasks ---

// InboxTaskCreateOptions are parameters for a user-created task.
type InboxTaskCreateOptions struct {
	Name           string
	ProjectRefID   string
	Eisen          domain.Eisen
	Difficulty     *domain.Difficulty
	ActionableDate *string
	DueDate        *string
	BigPlanRefID   string
}

func (e Engine) CreateInboxTask(ctx context.Context, opts InboxTaskCreateOptions) (domain.InboxTask, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.InboxTask{}, err
	}
	if err := requireFeature(w, domain.FeatureInboxTasks); err != nil {
		return domain.InboxTask{}, err
	}
	if opts.Name == "" {
		return domain.InboxTask{}, fmt.Errorf("task name is required: %w", domain.ErrInvalidInput)
	}
	if opts.Eisen == "" {
		opts.Eisen = e.Config.DefaultEisen()
	}
	if !opts.Eisen.Valid() {
		return domain.InboxTask{}, fmt.Errorf("eisen %q: %w", opts.Eisen, domain.ErrInvalidInput)
	}
	if opts.Difficulty != nil && !opts.Difficulty.Valid() {
		return domain.InboxTask{}, fmt.Errorf("difficulty %q: %w", *opts.Difficulty, domain.ErrInvalidInput)
	}
	if err := validDatePair(opts.ActionableDate, opts.DueDate); err != nil {
		return domain.InboxTask{}, err
	}
	projectID, err := e.resolveProject(ctx, w, opts.ProjectRefID)
	if err != nil {
		return domain.InboxTask{}, err
	}
	source := domain.SourceUser
	var sourceRef *string
	if opts.BigPlanRefID != "" {
		if err := requireFeature(w, domain.FeatureBigPlans); err != nil {
			return domain.InboxTask{}, err
		}
		bp, err := e.Repo.GetBigPlan(ctx, opts.BigPlanRefID)
		if err != nil {
			return domain.InboxTask{}, err
		}
		source = domain.SourceBigPlan
		sourceRef = strPtr(bp.RefID)
		projectID = bp.ProjectRefID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InboxTask{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	t := domain.InboxTask{
		RefID:             newID(),
		WorkspaceID:       w.RefID,
		Version:           1,
		Name:              opts.Name,
		Source:            source,
		SourceEntityRefID: sourceRef,
		ProjectRefID:      projectID,
		Status:            domain.StatusNotStarted,
		Eisen:             opts.Eisen,
		Difficulty:        opts.Difficulty,
		ActionableDate:    opts.ActionableDate,
		DueDate:           opts.DueDate,
		CreatedTime:       now,
		LastModifiedTime:  now,
	}
	if source == domain.SourceBigPlan {
		// big-plan children dedup on their own ref id
		t.RecurringTimeline = strPtr(t.RefID)
	}
	if err := e.Repo.InsertInboxTask(ctx, tx, t); err != nil {
		return domain.InboxTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "inbox-task.created", w.RefID, "inbox-task", t.RefID, t.Version, "user", events.Frame{"name": t.Name, "source": string(t.Source)}); err != nil {
		return domain.InboxTask{}, err
	}
	return t, tx.Commit()
}

// InboxTaskUpdate is a partial update; unset fields keep their value.
type InboxTaskUpdate struct {
	Name           domain.UpdateVal[string]
	Status         domain.UpdateVal[domain.InboxTaskStatus]
	Eisen          domain.UpdateVal[domain.Eisen]
	Difficulty     domain.UpdateVal[*domain.Difficulty]
	ActionableDate domain.UpdateVal[*string]
	DueDate        domain.UpdateVal[*string]
}

func (e Engine) UpdateInboxTask(ctx context.Context, refID string, upd InboxTaskUpdate) (domain.InboxTask, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.InboxTask{}, err
	}
	t, err := e.Repo.GetInboxTask(ctx, refID)
	if err != nil {
		return domain.InboxTask{}, err
	}
	if t.Archived {
		return domain.InboxTask{}, fmt.Errorf("task %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	now := e.stamp()
	t.Name = upd.Name.OrElse(t.Name)
	if t.Name == "" {
		return domain.InboxTask{}, fmt.Errorf("task name is required: %w", domain.ErrInvalidInput)
	}
	if upd.Status.Set {
		next := upd.Status.Value
		if !next.Valid() {
			return domain.InboxTask{}, fmt.Errorf("status %q: %w", next, domain.ErrInvalidInput)
		}
		if next != t.Status {
			switch next {
			case domain.StatusAccepted:
				t.AcceptedTime = strPtr(now)
			case domain.StatusInProgress, domain.StatusBlocked:
				t.WorkingTime = strPtr(now)
			case domain.StatusDone, domain.StatusNotDone:
				t.CompletedTime = strPtr(now)
			}
			t.Status = next
		}
	}
	t.Eisen = upd.Eisen.OrElse(t.Eisen)
	if !t.Eisen.Valid() {
		return domain.InboxTask{}, fmt.Errorf("eisen %q: %w", t.Eisen, domain.ErrInvalidInput)
	}
	t.Difficulty = upd.Difficulty.OrElse(t.Difficulty)
	if t.Difficulty != nil && !t.Difficulty.Valid() {
		return domain.InboxTask{}, fmt.Errorf("difficulty %q: %w", *t.Difficulty, domain.ErrInvalidInput)
	}
	t.ActionableDate = upd.ActionableDate.OrElse(t.ActionableDate)
	t.DueDate = upd.DueDate.OrElse(t.DueDate)
	if err := validDatePair(t.ActionableDate, t.DueDate); err != nil {
		return domain.InboxTask{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InboxTask{}, err
	}
	defer tx.Rollback()

	t.Version++
	t.LastModifiedTime = now
	if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
		return domain.InboxTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "inbox-task.updated", w.RefID, "inbox-task", t.RefID, t.Version, "user", events.Frame{"status": string(t.Status)}); err != nil {
		return domain.InboxTask{}, err
	}
	return t, tx.Commit()
}

func (e Engine) ArchiveInboxTask(ctx context.Context, refID string) (domain.InboxTask, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.InboxTask{}, err
	}
	t, err := e.Repo.GetInboxTask(ctx, refID)
	if err != nil {
		return domain.InboxTask{}, err
	}
	if t.Archived {
		return t, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InboxTask{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	t.Version++
	t.Archived = true
	t.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	t.ArchivedTime = strPtr(now)
	t.LastModifiedTime = now
	if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
		return domain.InboxTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "inbox-task.archived", w.RefID, "inbox-task", t.RefID, t.Version, "user", nil); err != nil {
		return domain.InboxTask{}, err
	}
	return t, tx.Commit()
}

func (e Engine) RemoveInboxTask(ctx context.Context, refID string) error {
	w, err := e.workspace(ctx)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteInboxTask(ctx, tx, refID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "inbox-task.removed", w.RefID, "inbox-task", refID, 0, "user", nil); err != nil {
		return err
	}
	return tx.Commit()
}

// --- habits ---

// HabitCreateOptions are parameters for creating a habit.
type HabitCreateOptions struct {
	Name            string
	ProjectRefID    string
	Gen             domain.GenParams
	MustDo          bool
	StartAtDate     *string
	EndAtDate       *string
	RepeatsInPeriod *int
	RepeatsStrategy domain.RepeatsStrategy
}

func (e Engine) CreateHabit(ctx context.Context, opts HabitCreateOptions) (domain.Habit, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Habit{}, err
	}
	if err := requireFeature(w, domain.FeatureHabits); err != nil {
		return domain.Habit{}, err
	}
	if opts.Name == "" {
		return domain.Habit{}, fmt.Errorf("habit name is required: %w", domain.ErrInvalidInput)
	}
	if err := schedule.CheckGenParams(opts.Gen); err != nil {
		return domain.Habit{}, err
	}
	if err := validActiveInterval(opts.StartAtDate, opts.EndAtDate); err != nil {
		return domain.Habit{}, err
	}
	if opts.RepeatsInPeriod != nil {
		if *opts.RepeatsInPeriod < 1 {
			return domain.Habit{}, fmt.Errorf("repeats count %d: %w", *opts.RepeatsInPeriod, domain.ErrInvalidInput)
		}
		if !opts.RepeatsStrategy.Valid() {
			return domain.Habit{}, fmt.Errorf("repeats strategy %q: %w", opts.RepeatsStrategy, domain.ErrInvalidInput)
		}
	}
	projectID, err := e.resolveProject(ctx, w, opts.ProjectRefID)
	if err != nil {
		return domain.Habit{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Habit{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	h := domain.Habit{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             opts.Name,
		ProjectRefID:     projectID,
		Gen:              opts.Gen,
		MustDo:           opts.MustDo,
		StartAtDate:      opts.StartAtDate,
		EndAtDate:        opts.EndAtDate,
		RepeatsInPeriod:  opts.RepeatsInPeriod,
		RepeatsStrategy:  opts.RepeatsStrategy,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertHabit(ctx, tx, h); err != nil {
		return domain.Habit{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.created", w.RefID, "habit", h.RefID, h.Version, "user", events.Frame{"name": h.Name, "period": string(h.Gen.Period)}); err != nil {
		return domain.Habit{}, err
	}
	return h, tx.Commit()
}

// HabitUpdate is a partial update; anchors are revalidated against the
// possibly-changing period.
type HabitUpdate struct {
	Name            domain.UpdateVal[string]
	Gen             domain.UpdateVal[domain.GenParams]
	Suspended       domain.UpdateVal[bool]
	MustDo          domain.UpdateVal[bool]
	StartAtDate     domain.UpdateVal[*string]
	EndAtDate       domain.UpdateVal[*string]
	RepeatsInPeriod domain.UpdateVal[*int]
	RepeatsStrategy domain.UpdateVal[domain.RepeatsStrategy]
}

func (e Engine) UpdateHabit(ctx context.Context, refID string, upd HabitUpdate) (domain.Habit, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Habit{}, err
	}
	h, err := e.Repo.GetHabit(ctx, refID)
	if err != nil {
		return domain.Habit{}, err
	}
	if h.Archived {
		return domain.Habit{}, fmt.Errorf("habit %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	h.Name = upd.Name.OrElse(h.Name)
	if h.Name == "" {
		return domain.Habit{}, fmt.Errorf("habit name is required: %w", domain.ErrInvalidInput)
	}
	h.Gen = upd.Gen.OrElse(h.Gen)
	if err := schedule.CheckGenParams(h.Gen); err != nil {
		return domain.Habit{}, err
	}
	h.Suspended = upd.Suspended.OrElse(h.Suspended)
	h.MustDo = upd.MustDo.OrElse(h.MustDo)
	h.StartAtDate = upd.StartAtDate.OrElse(h.StartAtDate)
	h.EndAtDate = upd.EndAtDate.OrElse(h.EndAtDate)
	if err := validActiveInterval(h.StartAtDate, h.EndAtDate); err != nil {
		return domain.Habit{}, err
	}
	h.RepeatsInPeriod = upd.RepeatsInPeriod.OrElse(h.RepeatsInPeriod)
	h.RepeatsStrategy = upd.RepeatsStrategy.OrElse(h.RepeatsStrategy)
	if h.RepeatsInPeriod != nil {
		if *h.RepeatsInPeriod < 1 {
			return domain.Habit{}, fmt.Errorf("repeats count %d: %w", *h.RepeatsInPeriod, domain.ErrInvalidInput)
		}
		if !h.RepeatsStrategy.Valid() {
			return domain.Habit{}, fmt.Errorf("repeats strategy %q: %w", h.RepeatsStrategy, domain.ErrInvalidInput)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Habit{}, err
	}
	defer tx.Rollback()

	h.Version++
	h.LastModifiedTime = e.stamp()
	if err := e.Repo.SaveHabit(ctx, tx, h); err != nil {
		return domain.Habit{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.updated", w.RefID, "habit", h.RefID, h.Version, "user", events.Frame{"period": string(h.Gen.Period)}); err != nil {
		return domain.Habit{}, err
	}
	return h, tx.Commit()
}

func (e Engine) ArchiveHabit(ctx context.Context, refID string) (domain.Habit, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Habit{}, err
	}
	h, err := e.Repo.GetHabit(ctx, refID)
	if err != nil {
		return domain.Habit{}, err
	}
	if h.Archived {
		return h, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Habit{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	h.Version++
	h.Archived = true
	h.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	h.ArchivedTime = strPtr(now)
	h.LastModifiedTime = now
	if err := e.Repo.SaveHabit(ctx, tx, h); err != nil {
		return domain.Habit{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, h.RefID)
	if err != nil {
		return domain.Habit{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.archived", w.RefID, "habit", h.RefID, h.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.Habit{}, err
	}
	return h, tx.Commit()
}

// --- chores ---

type ChoreCreateOptions struct {
	Name         string
	ProjectRefID string
	Gen          domain.GenParams
	MustDo       bool
	StartAtDate  *string
	EndAtDate    *string
}

func (e Engine) CreateChore(ctx context.Context, opts ChoreCreateOptions) (domain.Chore, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Chore{}, err
	}
	if err := requireFeature(w, domain.FeatureChores); err != nil {
		return domain.Chore{}, err
	}
	if opts.Name == "" {
		return domain.Chore{}, fmt.Errorf("chore name is required: %w", domain.ErrInvalidInput)
	}
	if err := schedule.CheckGenParams(opts.Gen); err != nil {
		return domain.Chore{}, err
	}
	if err := validActiveInterval(opts.StartAtDate, opts.EndAtDate); err != nil {
		return domain.Chore{}, err
	}
	projectID, err := e.resolveProject(ctx, w, opts.ProjectRefID)
	if err != nil {
		return domain.Chore{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Chore{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	c := domain.Chore{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             opts.Name,
		ProjectRefID:     projectID,
		Gen:              opts.Gen,
		MustDo:           opts.MustDo,
		StartAtDate:      opts.StartAtDate,
		EndAtDate:        opts.EndAtDate,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertChore(ctx, tx, c); err != nil {
		return domain.Chore{}, err
	}
	if err := e.Events.Append(ctx, tx, "chore.created", w.RefID, "chore", c.RefID, c.Version, "user", events.Frame{"name": c.Name, "period": string(c.Gen.Period)}); err != nil {
		return domain.Chore{}, err
	}
	return c, tx.Commit()
}

type ChoreUpdate struct {
	Name        domain.UpdateVal[string]
	Gen         domain.UpdateVal[domain.GenParams]
	Suspended   domain.UpdateVal[bool]
	MustDo      domain.UpdateVal[bool]
	StartAtDate domain.UpdateVal[*string]
	EndAtDate   domain.UpdateVal[*string]
}

func (e Engine) UpdateChore(ctx context.Context, refID string, upd ChoreUpdate) (domain.Chore, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Chore{}, err
	}
	c, err := e.Repo.GetChore(ctx, refID)
	if err != nil {
		return domain.Chore{}, err
	}
	if c.Archived {
		return domain.Chore{}, fmt.Errorf("chore %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	c.Name = upd.Name.OrElse(c.Name)
	if c.Name == "" {
		return domain.Chore{}, fmt.Errorf("chore name is required: %w", domain.ErrInvalidInput)
	}
	c.Gen = upd.Gen.OrElse(c.Gen)
	if err := schedule.CheckGenParams(c.Gen); err != nil {
		return domain.Chore{}, err
	}
	c.Suspended = upd.Suspended.OrElse(c.Suspended)
	c.MustDo = upd.MustDo.OrElse(c.MustDo)
	c.StartAtDate = upd.StartAtDate.OrElse(c.StartAtDate)
	c.EndAtDate = upd.EndAtDate.OrElse(c.EndAtDate)
	if err := validActiveInterval(c.StartAtDate, c.EndAtDate); err != nil {
		return domain.Chore{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Chore{}, err
	}
	defer tx.Rollback()

	c.Version++
	c.LastModifiedTime = e.stamp()
	if err := e.Repo.SaveChore(ctx, tx, c); err != nil {
		return domain.Chore{}, err
	}
	if err := e.Events.Append(ctx, tx, "chore.updated", w.RefID, "chore", c.RefID, c.Version, "user", events.Frame{"period": string(c.Gen.Period)}); err != nil {
		return domain.Chore{}, err
	}
	return c, tx.Commit()
}

func (e Engine) ArchiveChore(ctx context.Context, refID string) (domain.Chore, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Chore{}, err
	}
	c, err := e.Repo.GetChore(ctx, refID)
	if err != nil {
		return domain.Chore{}, err
	}
	if c.Archived {
		return c, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Chore{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	c.Version++
	c.Archived = true
	c.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	c.ArchivedTime = strPtr(now)
	c.LastModifiedTime = now
	if err := e.Repo.SaveChore(ctx, tx, c); err != nil {
		return domain.Chore{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, c.RefID)
	if err != nil {
		return domain.Chore{}, err
	}
	if err := e.Events.Append(ctx, tx, "chore.archived", w.RefID, "chore", c.RefID, c.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.Chore{}, err
	}
	return c, tx.Commit()
}

// --- metrics ---

func (e Engine) CreateMetric(ctx context.Context, name string, collection *domain.GenParams) (domain.Metric, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Metric{}, err
	}
	if err := requireFeature(w, domain.FeatureMetrics); err != nil {
		return domain.Metric{}, err
	}
	if name == "" {
		return domain.Metric{}, fmt.Errorf("metric name is required: %w", domain.ErrInvalidInput)
	}
	if collection != nil {
		if err := schedule.CheckGenParams(*collection); err != nil {
			return domain.Metric{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Metric{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	m := domain.Metric{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             name,
		Collection:       collection,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertMetric(ctx, tx, m); err != nil {
		return domain.Metric{}, err
	}
	if err := e.Events.Append(ctx, tx, "metric.created", w.RefID, "metric", m.RefID, m.Version, "user", events.Frame{"name": m.Name}); err != nil {
		return domain.Metric{}, err
	}
	return m, tx.Commit()
}

type MetricUpdate struct {
	Name       domain.UpdateVal[string]
	Collection domain.UpdateVal[*domain.GenParams]
}

func (e Engine) UpdateMetric(ctx context.Context, refID string, upd MetricUpdate) (domain.Metric, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Metric{}, err
	}
	m, err := e.Repo.GetMetric(ctx, refID)
	if err != nil {
		return domain.Metric{}, err
	}
	if m.Archived {
		return domain.Metric{}, fmt.Errorf("metric %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	m.Name = upd.Name.OrElse(m.Name)
	if m.Name == "" {
		return domain.Metric{}, fmt.Errorf("metric name is required: %w", domain.ErrInvalidInput)
	}
	m.Collection = upd.Collection.OrElse(m.Collection)
	if m.Collection != nil {
		if err := schedule.CheckGenParams(*m.Collection); err != nil {
			return domain.Metric{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Metric{}, err
	}
	defer tx.Rollback()

	m.Version++
	m.LastModifiedTime = e.stamp()
	if err := e.Repo.SaveMetric(ctx, tx, m); err != nil {
		return domain.Metric{}, err
	}
	if err := e.Events.Append(ctx, tx, "metric.updated", w.RefID, "metric", m.RefID, m.Version, "user", nil); err != nil {
		return domain.Metric{}, err
	}
	return m, tx.Commit()
}

func (e Engine) ArchiveMetric(ctx context.Context, refID string) (domain.Metric, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Metric{}, err
	}
	m, err := e.Repo.GetMetric(ctx, refID)
	if err != nil {
		return domain.Metric{}, err
	}
	if m.Archived {
		return m, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Metric{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	m.Version++
	m.Archived = true
	m.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	m.ArchivedTime = strPtr(now)
	m.LastModifiedTime = now
	if err := e.Repo.SaveMetric(ctx, tx, m); err != nil {
		return domain.Metric{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, m.RefID)
	if err != nil {
		return domain.Metric{}, err
	}
	if err := e.Events.Append(ctx, tx, "metric.archived", w.RefID, "metric", m.RefID, m.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.Metric{}, err
	}
	return m, tx.Commit()
}

// --- persons ---

type PersonCreateOptions struct {
	Name          string
	Relationship  string
	CatchUp       *domain.GenParams
	BirthdayMonth *int
	BirthdayDay   *int
}

func validBirthday(month, day *int) error {
	if (month == nil) != (day == nil) {
		return fmt.Errorf("birthday needs both month and day: %w", domain.ErrInvalidInput)
	}
	if month == nil {
		return nil
	}
	if *month < 1 || *month > 12 {
		return fmt.Errorf("birthday month %d: %w", *month, domain.ErrInvalidInput)
	}
	if *day < 1 || *day > 31 {
		return fmt.Errorf("birthday day %d: %w", *day, domain.ErrInvalidInput)
	}
	return nil
}

func (e Engine) CreatePerson(ctx context.Context, opts PersonCreateOptions) (domain.Person, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Person{}, err
	}
	if err := requireFeature(w, domain.FeaturePersons); err != nil {
		return domain.Person{}, err
	}
	if opts.Name == "" {
		return domain.Person{}, fmt.Errorf("person name is required: %w", domain.ErrInvalidInput)
	}
	if opts.CatchUp != nil {
		if err := schedule.CheckGenParams(*opts.CatchUp); err != nil {
			return domain.Person{}, err
		}
	}
	if err := validBirthday(opts.BirthdayMonth, opts.BirthdayDay); err != nil {
		return domain.Person{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Person{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p := domain.Person{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             opts.Name,
		Relationship:     opts.Relationship,
		CatchUp:          opts.CatchUp,
		BirthdayMonth:    opts.BirthdayMonth,
		BirthdayDay:      opts.BirthdayDay,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertPerson(ctx, tx, p); err != nil {
		return domain.Person{}, err
	}
	if err := e.Events.Append(ctx, tx, "person.created", w.RefID, "person", p.RefID, p.Version, "user", events.Frame{"name": p.Name}); err != nil {
		return domain.Person{}, err
	}
	return p, tx.Commit()
}

type PersonUpdate struct {
	Name          domain.UpdateVal[string]
	Relationship  domain.UpdateVal[string]
	CatchUp       domain.UpdateVal[*domain.GenParams]
	BirthdayMonth domain.UpdateVal[*int]
	BirthdayDay   domain.UpdateVal[*int]
}

func (e Engine) UpdatePerson(ctx context.Context, refID string, upd PersonUpdate) (domain.Person, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Person{}, err
	}
	p, err := e.Repo.GetPerson(ctx, refID)
	if err != nil {
		return domain.Person{}, err
	}
	if p.Archived {
		return domain.Person{}, fmt.Errorf("person %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	p.Name = upd.Name.OrElse(p.Name)
	if p.Name == "" {
		return domain.Person{}, fmt.Errorf("person name is required: %w", domain.ErrInvalidInput)
	}
	p.Relationship = upd.Relationship.OrElse(p.Relationship)
	p.CatchUp = upd.CatchUp.OrElse(p.CatchUp)
	if p.CatchUp != nil {
		if err := schedule.CheckGenParams(*p.CatchUp); err != nil {
			return domain.Person{}, err
		}
	}
	p.BirthdayMonth = upd.BirthdayMonth.OrElse(p.BirthdayMonth)
	p.BirthdayDay = upd.BirthdayDay.OrElse(p.BirthdayDay)
	if err := validBirthday(p.BirthdayMonth, p.BirthdayDay); err != nil {
		return domain.Person{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Person{}, err
	}
	defer tx.Rollback()

	p.Version++
	p.LastModifiedTime = e.stamp()
	if err := e.Repo.SavePerson(ctx, tx, p); err != nil {
		return domain.Person{}, err
	}
	if err := e.Events.Append(ctx, tx, "person.updated", w.RefID, "person", p.RefID, p.Version, "user", nil); err != nil {
		return domain.Person{}, err
	}
	return p, tx.Commit()
}

func (e Engine) ArchivePerson(ctx context.Context, refID string) (domain.Person, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Person{}, err
	}
	p, err := e.Repo.GetPerson(ctx, refID)
	if err != nil {
		return domain.Person{}, err
	}
	if p.Archived {
		return p, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Person{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p.Version++
	p.Archived = true
	p.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	p.ArchivedTime = strPtr(now)
	p.LastModifiedTime = now
	if err := e.Repo.SavePerson(ctx, tx, p); err != nil {
		return domain.Person{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, p.RefID)
	if err != nil {
		return domain.Person{}, err
	}
	if err := e.Events.Append(ctx, tx, "person.archived", w.RefID, "person", p.RefID, p.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.Person{}, err
	}
	return p, tx.Commit()
}

// --- big plans ---

type BigPlanCreateOptions struct {
	Name           string
	ProjectRefID   string
	ActionableDate *string
	DueDate        *string
}

func (e Engine) CreateBigPlan(ctx context.Context, opts BigPlanCreateOptions) (domain.BigPlan, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.BigPlan{}, err
	}
	if err := requireFeature(w, domain.FeatureBigPlans); err != nil {
		return domain.BigPlan{}, err
	}
	if opts.Name == "" {
		return domain.BigPlan{}, fmt.Errorf("big plan name is required: %w", domain.ErrInvalidInput)
	}
	if err := validDatePair(opts.ActionableDate, opts.DueDate); err != nil {
		return domain.BigPlan{}, err
	}
	projectID, err := e.resolveProject(ctx, w, opts.ProjectRefID)
	if err != nil {
		return domain.BigPlan{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BigPlan{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	b := domain.BigPlan{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             opts.Name,
		ProjectRefID:     projectID,
		Status:           domain.BigPlanNotStarted,
		ActionableDate:   opts.ActionableDate,
		DueDate:          opts.DueDate,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertBigPlan(ctx, tx, b); err != nil {
		return domain.BigPlan{}, err
	}
	if err := e.Events.Append(ctx, tx, "big-plan.created", w.RefID, "big-plan", b.RefID, b.Version, "user", events.Frame{"name": b.Name}); err != nil {
		return domain.BigPlan{}, err
	}
	return b, tx.Commit()
}

type BigPlanUpdate struct {
	Name           domain.UpdateVal[string]
	Status         domain.UpdateVal[domain.BigPlanStatus]
	ActionableDate domain.UpdateVal[*string]
	DueDate        domain.UpdateVal[*string]
}

func (e Engine) UpdateBigPlan(ctx context.Context, refID string, upd BigPlanUpdate) (domain.BigPlan, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.BigPlan{}, err
	}
	b, err := e.Repo.GetBigPlan(ctx, refID)
	if err != nil {
		return domain.BigPlan{}, err
	}
	if b.Archived {
		return domain.BigPlan{}, fmt.Errorf("big plan %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	b.Name = upd.Name.OrElse(b.Name)
	if b.Name == "" {
		return domain.BigPlan{}, fmt.Errorf("big plan name is required: %w", domain.ErrInvalidInput)
	}
	if upd.Status.Set && !upd.Status.Value.Valid() {
		return domain.BigPlan{}, fmt.Errorf("status %q: %w", upd.Status.Value, domain.ErrInvalidInput)
	}
	b.Status = upd.Status.OrElse(b.Status)
	b.ActionableDate = upd.ActionableDate.OrElse(b.ActionableDate)
	b.DueDate = upd.DueDate.OrElse(b.DueDate)
	if err := validDatePair(b.ActionableDate, b.DueDate); err != nil {
		return domain.BigPlan{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BigPlan{}, err
	}
	defer tx.Rollback()

	b.Version++
	b.LastModifiedTime = e.stamp()
	if err := e.Repo.SaveBigPlan(ctx, tx, b); err != nil {
		return domain.BigPlan{}, err
	}
	if err := e.Events.Append(ctx, tx, "big-plan.updated", w.RefID, "big-plan", b.RefID, b.Version, "user", events.Frame{"status": string(b.Status)}); err != nil {
		return domain.BigPlan{}, err
	}
	return b, tx.Commit()
}

func (e Engine) ArchiveBigPlan(ctx context.Context, refID string) (domain.BigPlan, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.BigPlan{}, err
	}
	b, err := e.Repo.GetBigPlan(ctx, refID)
	if err != nil {
		return domain.BigPlan{}, err
	}
	if b.Archived {
		return b, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BigPlan{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	b.Version++
	b.Archived = true
	b.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	b.ArchivedTime = strPtr(now)
	b.LastModifiedTime = now
	if err := e.Repo.SaveBigPlan(ctx, tx, b); err != nil {
		return domain.BigPlan{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, b.RefID)
	if err != nil {
		return domain.BigPlan{}, err
	}
	if err := e.Events.Append(ctx, tx, "big-plan.archived", w.RefID, "big-plan", b.RefID, b.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.BigPlan{}, err
	}
	return b, tx.Commit()
}

// --- vacations ---

func (e Engine) CreateVacation(ctx context.Context, name, startDate, endDate string) (domain.Vacation, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Vacation{}, err
	}
	if err := requireFeature(w, domain.FeatureVacations); err != nil {
		return domain.Vacation{}, err
	}
	if name == "" {
		return domain.Vacation{}, fmt.Errorf("vacation name is required: %w", domain.ErrInvalidInput)
	}
	if err := validActiveInterval(&startDate, &endDate); err != nil {
		return domain.Vacation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vacation{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	v := domain.Vacation{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Name:             name,
		StartDate:        startDate,
		EndDate:          endDate,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertVacation(ctx, tx, v); err != nil {
		return domain.Vacation{}, err
	}
	if err := e.Events.Append(ctx, tx, "vacation.created", w.RefID, "vacation", v.RefID, v.Version, "user", events.Frame{"start": v.StartDate, "end": v.EndDate}); err != nil {
		return domain.Vacation{}, err
	}
	return v, tx.Commit()
}

type VacationUpdate struct {
	Name      domain.UpdateVal[string]
	StartDate domain.UpdateVal[string]
	EndDate   domain.UpdateVal[string]
}

func (e Engine) UpdateVacation(ctx context.Context, refID string, upd VacationUpdate) (domain.Vacation, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Vacation{}, err
	}
	v, err := e.Repo.GetVacation(ctx, refID)
	if err != nil {
		return domain.Vacation{}, err
	}
	if v.Archived {
		return domain.Vacation{}, fmt.Errorf("vacation %s is archived: %w", refID, domain.ErrInvalidInput)
	}
	v.Name = upd.Name.OrElse(v.Name)
	if v.Name == "" {
		return domain.Vacation{}, fmt.Errorf("vacation name is required: %w", domain.ErrInvalidInput)
	}
	v.StartDate = upd.StartDate.OrElse(v.StartDate)
	v.EndDate = upd.EndDate.OrElse(v.EndDate)
	if err := validActiveInterval(&v.StartDate, &v.EndDate); err != nil {
		return domain.Vacation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vacation{}, err
	}
	defer tx.Rollback()

	v.Version++
	v.LastModifiedTime = e.stamp()
	if err := e.Repo.SaveVacation(ctx, tx, v); err != nil {
		return domain.Vacation{}, err
	}
	if err := e.Events.Append(ctx, tx, "vacation.updated", w.RefID, "vacation", v.RefID, v.Version, "user", nil); err != nil {
		return domain.Vacation{}, err
	}
	return v, tx.Commit()
}

func (e Engine) ArchiveVacation(ctx context.Context, refID string) (domain.Vacation, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.Vacation{}, err
	}
	v, err := e.Repo.GetVacation(ctx, refID)
	if err != nil {
		return domain.Vacation{}, err
	}
	if v.Archived {
		return v, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vacation{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	v.Version++
	v.Archived = true
	v.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	v.ArchivedTime = strPtr(now)
	v.LastModifiedTime = now
	if err := e.Repo.SaveVacation(ctx, tx, v); err != nil {
		return domain.Vacation{}, err
	}
	if err := e.Events.Append(ctx, tx, "vacation.archived", w.RefID, "vacation", v.RefID, v.Version, "user", nil); err != nil {
		return domain.Vacation{}, err
	}
	return v, tx.Commit()
}

// --- push tasks (slack, email) ---

type PushTaskCreateOptions struct {
	Kind       domain.InboxTaskSource
	Name       string
	Channel    string
	Eisen      domain.Eisen
	Difficulty *domain.Difficulty
}

func pushTaskFeature(kind domain.InboxTaskSource) (domain.Feature, error) {
	switch kind {
	case domain.SourceSlackTask:
		return domain.FeatureSlackTasks, nil
	case domain.SourceEmailTask:
		return domain.FeatureEmailTasks, nil
	}
	return "", fmt.Errorf("push task kind %q: %w", kind, domain.ErrInvalidInput)
}

func (e Engine) CreatePushTask(ctx context.Context, opts PushTaskCreateOptions) (domain.PushTask, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.PushTask{}, err
	}
	feature, err := pushTaskFeature(opts.Kind)
	if err != nil {
		return domain.PushTask{}, err
	}
	if err := requireFeature(w, feature); err != nil {
		return domain.PushTask{}, err
	}
	if opts.Name == "" {
		return domain.PushTask{}, fmt.Errorf("push task name is required: %w", domain.ErrInvalidInput)
	}
	if opts.Eisen == "" {
		opts.Eisen = e.Config.DefaultEisen()
	}
	if !opts.Eisen.Valid() {
		return domain.PushTask{}, fmt.Errorf("eisen %q: %w", opts.Eisen, domain.ErrInvalidInput)
	}
	if opts.Difficulty != nil && !opts.Difficulty.Valid() {
		return domain.PushTask{}, fmt.Errorf("difficulty %q: %w", *opts.Difficulty, domain.ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PushTask{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p := domain.PushTask{
		RefID:            newID(),
		WorkspaceID:      w.RefID,
		Version:          1,
		Kind:             opts.Kind,
		Name:             opts.Name,
		Channel:          opts.Channel,
		Eisen:            opts.Eisen,
		Difficulty:       opts.Difficulty,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := e.Repo.InsertPushTask(ctx, tx, p); err != nil {
		return domain.PushTask{}, err
	}
	if err := e.Events.Append(ctx, tx, string(p.Kind)+".created", w.RefID, string(p.Kind), p.RefID, p.Version, "user", events.Frame{"name": p.Name}); err != nil {
		return domain.PushTask{}, err
	}
	return p, tx.Commit()
}

func (e Engine) ArchivePushTask(ctx context.Context, refID string) (domain.PushTask, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return domain.PushTask{}, err
	}
	p, err := e.Repo.GetPushTask(ctx, refID)
	if err != nil {
		return domain.PushTask{}, err
	}
	if p.Archived {
		return p, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PushTask{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	p.Version++
	p.Archived = true
	p.ArchivalReason = archivalReason(domain.ArchivalReasonUser)
	p.ArchivedTime = strPtr(now)
	p.LastModifiedTime = now
	if err := e.Repo.SavePushTask(ctx, tx, p); err != nil {
		return domain.PushTask{}, err
	}
	cascaded, err := e.archiveDerivedTasks(ctx, tx, w.RefID, p.RefID)
	if err != nil {
		return domain.PushTask{}, err
	}
	if err := e.Events.Append(ctx, tx, string(p.Kind)+".archived", w.RefID, string(p.Kind), p.RefID, p.Version, "user", events.Frame{"cascaded_tasks": cascaded}); err != nil {
		return domain.PushTask{}, err
	}
	return p, tx.Commit()
}
