package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/migrate"
	"dayline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// frozen reference instant: Wednesday, ISO week 10
var testNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if _, err := eng.InitWorkspace(ctx, engine.InitOptions{
		WorkspaceName: "Test",
		Timezone:      "UTC",
		UserEmail:     "tester@example.com",
		UserName:      "Tester",
	}); err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func dailyHabit(t *testing.T, env testEnv, name string, opts engine.HabitCreateOptions) domain.Habit {
	t.Helper()
	opts.Name = name
	if opts.Gen.Period == "" {
		opts.Gen.Period = domain.PeriodDaily
	}
	h, err := env.Engine.CreateHabit(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return h
}

func tasksOf(t *testing.T, env testEnv, sourceRefID string) []domain.InboxTask {
	t.Helper()
	w, err := env.Engine.Repo.GetWorkspace(env.Ctx)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	tasks, err := env.Engine.Repo.FindInboxTasks(env.Ctx, repo.InboxTaskFilter{
		WorkspaceID:       w.RefID,
		AllowArchived:     true,
		SourceEntityRefID: sourceRefID,
	})
	if err != nil {
		t.Fatalf("find tasks: %v", err)
	}
	return tasks
}

func TestInitWorkspace(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.InitWorkspace(env.Ctx, engine.InitOptions{
		WorkspaceName: "Second",
		UserEmail:     "other@example.com",
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}
	w, err := env.Engine.Repo.GetWorkspace(env.Ctx)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if w.Name != "Test" || w.DefaultProjectID == "" {
		t.Fatalf("unexpected workspace %+v", w)
	}
	root, err := env.Engine.Repo.GetProject(env.Ctx, w.DefaultProjectID)
	if err != nil || !root.IsRoot {
		t.Fatalf("expected root project: %v", err)
	}
}

func TestInitMintsTokens(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	res, err := eng.InitWorkspace(context.Background(), engine.InitOptions{
		WorkspaceName: "Tokens",
		UserEmail:     "tester@example.com",
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if res.AuthToken == "" || res.RecoveryToken == "" {
		t.Fatalf("expected minted tokens, got %+v", res)
	}
}

func TestGenerateDailyHabitIdempotent(t *testing.T) {
	env := newTestEnv(t)
	h := dailyHabit(t, env, "Stretch", engine.HabitCreateOptions{})

	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("expected 1 created, got %+v", report)
	}
	report, err = env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if report.Created != 0 || report.Updated != 0 || report.Unchanged != 1 {
		t.Fatalf("expected second run unchanged, got %+v", report)
	}
	if got := tasksOf(t, env, h.RefID); len(got) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(got))
	}
}

func TestGenerateSeveralSourcesOneRun(t *testing.T) {
	env := newTestEnv(t)
	a := dailyHabit(t, env, "Stretch", engine.HabitCreateOptions{})
	b := dailyHabit(t, env, "Journal", engine.HabitCreateOptions{})
	c := dailyHabit(t, env, "Walk", engine.HabitCreateOptions{})

	// every source after the first is deduped while the run already
	// holds its own inserts
	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 3 {
		t.Fatalf("expected 3 created, got %+v", report)
	}
	report, err = env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if report.Created != 0 || report.Unchanged != 3 {
		t.Fatalf("expected second run unchanged, got %+v", report)
	}
	for _, h := range []domain.Habit{a, b, c} {
		if got := tasksOf(t, env, h.RefID); len(got) != 1 {
			t.Fatalf("expected one task for %s, got %d", h.RefID, len(got))
		}
	}
}

func TestGenerateHabitRepeats(t *testing.T) {
	env := newTestEnv(t)
	h := dailyHabit(t, env, "Run", engine.HabitCreateOptions{
		Gen:             domain.GenParams{Period: domain.PeriodWeekly},
		RepeatsInPeriod: intPtr(3),
		RepeatsStrategy: domain.RepeatsSpreadOutNoOverlap,
	})
	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 3 {
		t.Fatalf("expected 3 created, got %+v", report)
	}
	// week of Mar 4-10 split 3-2-2 with the longer run first
	want := map[string]string{
		"2024-03-04": "2024-03-06",
		"2024-03-07": "2024-03-08",
		"2024-03-09": "2024-03-10",
	}
	tasks := tasksOf(t, env, h.RefID)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for _, tk := range tasks {
		if tk.ActionableDate == nil || tk.DueDate == nil {
			t.Fatalf("task %s missing dates", tk.Name)
		}
		end, ok := want[*tk.ActionableDate]
		if !ok || end != *tk.DueDate {
			t.Fatalf("unexpected interval [%s, %s] for %s", *tk.ActionableDate, *tk.DueDate, tk.Name)
		}
		delete(want, *tk.ActionableDate)
	}
}

func TestGenerateVacationSkip(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateVacation(env.Ctx, "March off", "2024-03-01", "2024-03-31"); err != nil {
		t.Fatalf("create vacation: %v", err)
	}
	regular := dailyHabit(t, env, "Optional", engine.HabitCreateOptions{})
	mustDo := dailyHabit(t, env, "Meds", engine.HabitCreateOptions{MustDo: true})

	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Fatalf("expected 1 created and 1 skipped, got %+v", report)
	}
	if got := tasksOf(t, env, regular.RefID); len(got) != 0 {
		t.Fatalf("expected vacation to suppress habit, got %d tasks", len(got))
	}
	if got := tasksOf(t, env, mustDo.RefID); len(got) != 1 {
		t.Fatalf("expected must-do habit to generate, got %d tasks", len(got))
	}
}

func TestGenerateActiveInterval(t *testing.T) {
	env := newTestEnv(t)
	expired := dailyHabit(t, env, "Old", engine.HabitCreateOptions{EndAtDate: strPtr("2024-02-01")})
	future := dailyHabit(t, env, "Later", engine.HabitCreateOptions{StartAtDate: strPtr("2024-06-01")})

	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 0 || report.Skipped != 2 {
		t.Fatalf("expected both outside active interval, got %+v", report)
	}
	if len(tasksOf(t, env, expired.RefID))+len(tasksOf(t, env, future.RefID)) != 0 {
		t.Fatalf("expected no tasks")
	}
}

func TestGenerateSkipRule(t *testing.T) {
	env := newTestEnv(t)
	// the pinned instant is a Wednesday, weekday number 3
	h := dailyHabit(t, env, "Gym", engine.HabitCreateOptions{
		Gen: domain.GenParams{Period: domain.PeriodDaily, SkipRule: strPtr("3")},
	})
	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Skipped != 1 || report.Created != 0 {
		t.Fatalf("expected skip rule to fire, got %+v", report)
	}
	if len(tasksOf(t, env, h.RefID)) != 0 {
		t.Fatalf("expected no tasks")
	}
}

func TestGenerateSuspendedHabit(t *testing.T) {
	env := newTestEnv(t)
	h := dailyHabit(t, env, "Paused", engine.HabitCreateOptions{})
	if _, err := env.Engine.UpdateHabit(env.Ctx, h.RefID, engine.HabitUpdate{Suspended: domain.ChangeTo(true)}); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Fatalf("expected suspended skip, got %+v", report)
	}
}

func TestGenerateWritesRunLog(t *testing.T) {
	env := newTestEnv(t)
	dailyHabit(t, env, "Logged", engine.HabitCreateOptions{})
	report, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	log, err := env.Engine.Repo.GetGenLog(env.Ctx, report.LogRefID)
	if err != nil {
		t.Fatalf("get gen log: %v", err)
	}
	if !log.Complete || log.ClosedTime == nil {
		t.Fatalf("expected closed complete log, got %+v", log)
	}
}

func TestGenerateCanceledRunLoggedIncomplete(t *testing.T) {
	env := newTestEnv(t)
	dailyHabit(t, env, "Cut short", engine.HabitCreateOptions{})
	ctx, cancel := context.WithCancel(env.Ctx)
	eng := env.Engine
	var calls int
	// fires once the run log row has been opened, before any target runs
	eng.Now = func() time.Time {
		calls++
		if calls == 1 {
			cancel()
		}
		return testNow
	}
	report, err := eng.Generate(ctx, engine.GenArgs{
		RightNow: testNow,
		Targets:  []domain.Target{domain.TargetHabits},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Created != 0 {
		t.Fatalf("expected canceled run to create nothing, got %+v", report)
	}
	log, err := env.Engine.Repo.GetGenLog(env.Ctx, report.LogRefID)
	if err != nil {
		t.Fatalf("get gen log: %v", err)
	}
	if log.Complete || log.ClosedTime == nil {
		t.Fatalf("expected closed incomplete log, got %+v", log)
	}
}

func TestGCArchivesFinishedTasks(t *testing.T) {
	env := newTestEnv(t)
	done, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "done soon"})
	if err != nil {
		t.Fatal(err)
	}
	open, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "still open"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateInboxTask(env.Ctx, done.RefID, engine.InboxTaskUpdate{Status: domain.ChangeTo(domain.StatusDone)}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	report, err := env.Engine.GC(env.Ctx, nil)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if report.Archived != 1 {
		t.Fatalf("expected 1 archived, got %+v", report)
	}
	got, err := env.Engine.Repo.GetInboxTask(env.Ctx, done.RefID)
	if err != nil || !got.Archived {
		t.Fatalf("expected done task archived: %v %+v", err, got)
	}
	got, err = env.Engine.Repo.GetInboxTask(env.Ctx, open.RefID)
	if err != nil || got.Archived {
		t.Fatalf("expected open task untouched: %v %+v", err, got)
	}
}

func TestGCBigPlanCascade(t *testing.T) {
	env := newTestEnv(t)
	plan, err := env.Engine.CreateBigPlan(env.Ctx, engine.BigPlanCreateOptions{Name: "Move house"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "Pack boxes", BigPlanRefID: plan.RefID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateBigPlan(env.Ctx, plan.RefID, engine.BigPlanUpdate{Status: domain.ChangeTo(domain.BigPlanDone)}); err != nil {
		t.Fatalf("complete plan: %v", err)
	}
	if _, err := env.Engine.GC(env.Ctx, []domain.Target{domain.TargetBigPlans}); err != nil {
		t.Fatalf("gc: %v", err)
	}
	gotPlan, err := env.Engine.Repo.GetBigPlan(env.Ctx, plan.RefID)
	if err != nil || !gotPlan.Archived {
		t.Fatalf("expected plan archived: %v %+v", err, gotPlan)
	}
	gotChild, err := env.Engine.Repo.GetInboxTask(env.Ctx, child.RefID)
	if err != nil || !gotChild.Archived {
		t.Fatalf("expected derived task archived: %v %+v", err, gotChild)
	}
}

func TestGCDefaultTargetsSweep(t *testing.T) {
	env := newTestEnv(t)
	plan, err := env.Engine.CreateBigPlan(env.Ctx, engine.BigPlanCreateOptions{Name: "Ship release"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "Write changelog", BigPlanRefID: plan.RefID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateInboxTask(env.Ctx, child.RefID, engine.InboxTaskUpdate{Status: domain.ChangeTo(domain.StatusDone)}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, err := env.Engine.UpdateBigPlan(env.Ctx, plan.RefID, engine.BigPlanUpdate{Status: domain.ChangeTo(domain.BigPlanDone)}); err != nil {
		t.Fatalf("complete plan: %v", err)
	}
	// a single sweep archives the finished task and then the plan in
	// the same transaction
	report, err := env.Engine.GC(env.Ctx, nil)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if report.Archived != 2 {
		t.Fatalf("expected 2 archived, got %+v", report)
	}
	gotPlan, err := env.Engine.Repo.GetBigPlan(env.Ctx, plan.RefID)
	if err != nil || !gotPlan.Archived {
		t.Fatalf("expected plan archived: %v %+v", err, gotPlan)
	}
	gotChild, err := env.Engine.Repo.GetInboxTask(env.Ctx, child.RefID)
	if err != nil || !gotChild.Archived {
		t.Fatalf("expected finished task archived: %v %+v", err, gotChild)
	}
}

func TestArchiveHabitCascades(t *testing.T) {
	env := newTestEnv(t)
	h := dailyHabit(t, env, "Fleeting", engine.HabitCreateOptions{})
	if _, err := env.Engine.Generate(env.Ctx, engine.GenArgs{Targets: []domain.Target{domain.TargetHabits}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := env.Engine.ArchiveHabit(env.Ctx, h.RefID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	for _, tk := range tasksOf(t, env, h.RefID) {
		if !tk.Archived {
			t.Fatalf("expected derived task %s archived", tk.RefID)
		}
	}
}

func TestInboxTaskStatusTimestamps(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "Timed"})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.UpdateInboxTask(env.Ctx, task.RefID, engine.InboxTaskUpdate{Status: domain.ChangeTo(domain.StatusInProgress)})
	if err != nil {
		t.Fatalf("to in-progress: %v", err)
	}
	if task.WorkingTime == nil {
		t.Fatalf("expected working time set")
	}
	task, err = env.Engine.UpdateInboxTask(env.Ctx, task.RefID, engine.InboxTaskUpdate{Status: domain.ChangeTo(domain.StatusDone)})
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if task.CompletedTime == nil {
		t.Fatalf("expected completed time set")
	}
}

func TestInvalidDatePairRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{
		Name:           "Backwards",
		ActionableDate: strPtr("2024-03-10"),
		DueDate:        strPtr("2024-03-05"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	// equal dates are allowed
	if _, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{
		Name:           "Same day",
		ActionableDate: strPtr("2024-03-05"),
		DueDate:        strPtr("2024-03-05"),
	}); err != nil {
		t.Fatalf("equal dates should pass: %v", err)
	}
}

func TestVacationIntervalStrict(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateVacation(env.Ctx, "Zero days", "2024-03-05", "2024-03-05"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for start==end, got %v", err)
	}
	if _, err := env.Engine.CreateVacation(env.Ctx, "Real", "2024-03-05", "2024-03-06"); err != nil {
		t.Fatalf("valid interval rejected: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t)
	dailyHabit(t, env, "Doomed", engine.HabitCreateOptions{})
	if _, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "Doomed too"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateVacation(env.Ctx, "Doomed trip", "2024-07-01", "2024-07-14"); err != nil {
		t.Fatal(err)
	}
	report, err := env.Engine.ClearAll(env.Ctx)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if report.Removed["habits"] != 1 || report.Removed["inbox tasks"] != 1 || report.Removed["vacations"] != 1 {
		t.Fatalf("unexpected removal counts %+v", report.Removed)
	}
	w, err := env.Engine.Repo.GetWorkspace(env.Ctx)
	if err != nil {
		t.Fatalf("workspace must survive: %v", err)
	}
	habits, err := env.Engine.Repo.ListHabits(env.Ctx, w.RefID, true)
	if err != nil || len(habits) != 0 {
		t.Fatalf("expected no habits, got %d (%v)", len(habits), err)
	}
	if _, err := env.Engine.Repo.GetProject(env.Ctx, w.DefaultProjectID); err != nil {
		t.Fatalf("root project must survive: %v", err)
	}
}

func TestEventJournal(t *testing.T) {
	env := newTestEnv(t)
	dailyHabit(t, env, "Evented", engine.HabitCreateOptions{})
	events, err := env.Engine.ListEvents(env.Ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected init and create events, got %d", len(events))
	}
	// newest first
	if events[0].Kind != "habit.created" {
		t.Fatalf("expected habit.created on top, got %s", events[0].Kind)
	}
}

func TestFeatureGate(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if _, err := eng.InitWorkspace(ctx, engine.InitOptions{
		WorkspaceName: "Gated",
		UserEmail:     "tester@example.com",
		Features:      map[string]bool{"habits": false},
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	_, err = eng.CreateHabit(ctx, engine.HabitCreateOptions{Name: "Nope", Gen: domain.GenParams{Period: domain.PeriodDaily}})
	if !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Fatalf("expected FEATURE_DISABLED, got %v", err)
	}
}
