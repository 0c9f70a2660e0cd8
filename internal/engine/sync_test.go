package engine_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/mirror"
)

func newSyncEnv(t *testing.T) (testEnv, *mirror.Memory) {
	t.Helper()
	env := newTestEnv(t)
	mem := mirror.NewMemory()
	mem.Now = func() time.Time { return testNow }
	env.Engine.Mirror = mem
	return env, mem
}

func remoteItems(t *testing.T, mem *mirror.Memory, env testEnv, collection string) []mirror.Item {
	t.Helper()
	items, err := mem.ListItems(env.Ctx, collection)
	if err != nil {
		t.Fatalf("list remote items: %v", err)
	}
	return items
}

func TestSyncPushesLocalToRemote(t *testing.T) {
	env, mem := newSyncEnv(t)
	h := dailyHabit(t, env, "Journal", engine.HabitCreateOptions{})

	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.CreatedRemote != 1 {
		t.Fatalf("expected 1 created remote, got %+v", report)
	}
	items := remoteItems(t, mem, env, "habits")
	if len(items) != 1 || items[0].RefID != h.RefID || items[0].Name != "Journal" {
		t.Fatalf("unexpected remote state %+v", items)
	}
	link, err := env.Engine.Repo.GetMirrorLink(env.Ctx, "habits", h.RefID)
	if err != nil || link != items[0].RemoteID {
		t.Fatalf("expected stored link: %v %q", err, link)
	}

	report, err = env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Unchanged != 1 || report.CreatedRemote != 0 {
		t.Fatalf("expected second sync unchanged, got %+v", report)
	}
}

func TestSyncAdoptsRemoteBornItems(t *testing.T) {
	env, mem := newSyncEnv(t)
	seeded := mem.Seed("habits", mirror.Item{
		Name: "Water plants",
		Fields: map[string]string{
			"gen_params": `{"period":"weekly"}`,
			"suspended":  "false",
			"must_do":    "false",
		},
	})
	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.CreatedLocal != 1 {
		t.Fatalf("expected 1 created local, got %+v", report)
	}
	w, err := env.Engine.Repo.GetWorkspace(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	habits, err := env.Engine.Repo.ListHabits(env.Ctx, w.RefID, true)
	if err != nil || len(habits) != 1 {
		t.Fatalf("expected adopted habit: %v %d", err, len(habits))
	}
	if habits[0].Name != "Water plants" || habits[0].Gen.Period != domain.PeriodWeekly {
		t.Fatalf("unexpected adopted habit %+v", habits[0])
	}
	if habits[0].ProjectRefID != w.DefaultProjectID {
		t.Fatalf("expected default project, got %s", habits[0].ProjectRefID)
	}
	items := remoteItems(t, mem, env, "habits")
	if len(items) != 1 || items[0].RemoteID != seeded.RemoteID || items[0].RefID != habits[0].RefID {
		t.Fatalf("expected remote item linked back, got %+v", items)
	}
}

func TestSyncPreferNotionUpdatesLocal(t *testing.T) {
	env, mem := newSyncEnv(t)
	h := dailyHabit(t, env, "Read", engine.HabitCreateOptions{})
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}}); err != nil {
		t.Fatalf("push sync: %v", err)
	}
	remote := remoteItems(t, mem, env, "habits")[0]
	remote.Name = "Read more"
	remote.LastEditedTime = "2024-03-06T13:00:00Z"
	mem.Seed("habits", remote)

	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{
		Targets: []domain.Target{domain.TargetHabits},
		Prefer:  domain.SyncPreferNotion,
	})
	if err != nil {
		t.Fatalf("pull sync: %v", err)
	}
	if report.UpdatedLocal != 1 {
		t.Fatalf("expected 1 updated local, got %+v", report)
	}
	got, err := env.Engine.Repo.GetHabit(env.Ctx, h.RefID)
	if err != nil || got.Name != "Read more" {
		t.Fatalf("expected renamed habit: %v %+v", err, got)
	}
	if got.Version != h.Version+1 {
		t.Fatalf("expected version bump, got %d", got.Version)
	}
}

func TestSyncBigPlanArchiveCascade(t *testing.T) {
	env, mem := newSyncEnv(t)
	plan, err := env.Engine.CreateBigPlan(env.Ctx, engine.BigPlanCreateOptions{Name: "Write book"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Engine.CreateInboxTask(env.Ctx, engine.InboxTaskCreateOptions{Name: "Chapter one", BigPlanRefID: plan.RefID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetBigPlans}}); err != nil {
		t.Fatalf("push sync: %v", err)
	}
	remote := remoteItems(t, mem, env, "big-plans")[0]
	remote.Archived = true
	remote.LastEditedTime = "2024-03-06T13:00:00Z"
	mem.Seed("big-plans", remote)

	if _, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{
		Targets: []domain.Target{domain.TargetBigPlans},
		Prefer:  domain.SyncPreferNotion,
	}); err != nil {
		t.Fatalf("pull sync: %v", err)
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

func TestSyncRemovesStrayRemotes(t *testing.T) {
	env, mem := newSyncEnv(t)
	mem.Seed("habits", mirror.Item{
		RefID: "never-existed",
		Name:  "Ghost",
		Fields: map[string]string{
			"gen_params": `{"period":"daily"}`,
		},
	})
	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.RemovedRemote != 1 {
		t.Fatalf("expected 1 removed remote, got %+v", report)
	}
	if items := remoteItems(t, mem, env, "habits"); len(items) != 0 {
		t.Fatalf("expected stray removed, got %+v", items)
	}
}

func TestSyncInvalidRemoteDataAborts(t *testing.T) {
	env, mem := newSyncEnv(t)
	mem.Seed("habits", mirror.Item{
		Name: "Broken",
		Fields: map[string]string{
			"gen_params": `{"period":"fortnightly"}`,
		},
	})
	_, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected INVALID_INPUT abort, got %v", err)
	}
}

func TestSyncConsecutiveFailureLimit(t *testing.T) {
	env, mem := newSyncEnv(t)
	for i := 0; i < 3; i++ {
		dailyHabit(t, env, fmt.Sprintf("Habit %d", i), engine.HabitCreateOptions{})
	}
	mem.Fail = func(op string) error {
		if op == "save-item" {
			return fmt.Errorf("save-item: %w", domain.ErrMirrorUnavailable)
		}
		return nil
	}
	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}})
	if !errors.Is(err, domain.ErrMirrorUnavailable) {
		t.Fatalf("expected MIRROR_UNAVAILABLE abort, got %v", err)
	}
	if report.Warnings != 2 {
		t.Fatalf("expected two warnings before the fatal failure, got %+v", report)
	}
}

func TestSyncWithoutMirrorFails(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{})
	if !errors.Is(err, domain.ErrMirrorUnavailable) {
		t.Fatalf("expected MIRROR_UNAVAILABLE, got %v", err)
	}
}

func TestSyncDropAllRemote(t *testing.T) {
	env, mem := newSyncEnv(t)
	dailyHabit(t, env, "Survivor", engine.HabitCreateOptions{})
	if _, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{Targets: []domain.Target{domain.TargetHabits}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	report, err := env.Engine.Sync(env.Ctx, engine.SyncArgs{
		Targets:       []domain.Target{domain.TargetHabits},
		DropAllRemote: true,
	})
	if err != nil {
		t.Fatalf("drop-all sync: %v", err)
	}
	// the wipe is followed by a full re-push
	if report.CreatedRemote != 1 {
		t.Fatalf("expected re-push after drop, got %+v", report)
	}
	if items := remoteItems(t, mem, env, "habits"); len(items) != 1 {
		t.Fatalf("expected one re-pushed item, got %d", len(items))
	}
}
