package engine

import (
	"context"
	"database/sql"
	"encoding/json"

	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/repo"
)

// GCReportEntry records one archived entity.
type GCReportEntry struct {
	Target     domain.Target `json:"target"`
	EntityKind string        `json:"entity_kind"`
	RefID      string        `json:"ref_id"`
	Name       string        `json:"name"`
}

type GCReport struct {
	LogRefID string          `json:"log_ref_id"`
	Entries  []GCReportEntry `json:"entries"`
	Archived int             `json:"archived"`
}

func (r *GCReport) add(e GCReportEntry) {
	r.Entries = append(r.Entries, e)
	r.Archived++
}

// GC archives finished work: completed inbox tasks, completed big plans
// with their generated tasks, and push tasks whose derived task is done.
func (e Engine) GC(ctx context.Context, targets []domain.Target) (GCReport, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return GCReport{}, err
	}
	if targets == nil {
		targets = []domain.Target{
			domain.TargetInboxTasks, domain.TargetBigPlans,
			domain.TargetSlackTasks, domain.TargetEmailTasks,
		}
	}
	targets = w.InferTargets(targets)

	// Same transaction discipline as Generate: detached context so an
	// interrupted run still records an incomplete log.
	dbCtx := context.WithoutCancel(ctx)
	tx, err := e.DB.BeginTx(dbCtx, nil)
	if err != nil {
		return GCReport{}, err
	}
	defer tx.Rollback()

	report := GCReport{LogRefID: newID()}
	targetNames := make([]string, len(targets))
	for i, t := range targets {
		targetNames[i] = string(t)
	}
	if err := e.Repo.InsertGCLog(dbCtx, tx, domain.GCLogEntry{
		RefID:       report.LogRefID,
		WorkspaceID: w.RefID,
		Targets:     targetNames,
		OpenedTime:  e.stamp(),
		EntriesJSON: "[]",
	}); err != nil {
		return GCReport{}, err
	}

	complete := true
	for _, target := range targets {
		if ctx.Err() != nil {
			complete = false
			break
		}
		done := e.reporter().Section("gc " + string(target))
		switch target {
		case domain.TargetInboxTasks:
			err = e.gcInboxTasks(dbCtx, tx, w, &report)
		case domain.TargetBigPlans:
			err = e.gcBigPlans(dbCtx, tx, w, &report)
		case domain.TargetSlackTasks:
			err = e.gcPushTasks(dbCtx, tx, w, domain.SourceSlackTask, &report)
		case domain.TargetEmailTasks:
			err = e.gcPushTasks(dbCtx, tx, w, domain.SourceEmailTask, &report)
		}
		done()
		if err != nil {
			return GCReport{}, err
		}
	}

	entries, err := json.Marshal(report.Entries)
	if err != nil {
		return GCReport{}, err
	}
	if err := e.Repo.CloseGCLog(dbCtx, tx, report.LogRefID, e.stamp(), string(entries), complete); err != nil {
		return GCReport{}, err
	}
	if err := e.Events.Append(dbCtx, tx, "gc.run", w.RefID, "gc-log", report.LogRefID, 1, "gc", events.Frame{"archived": report.Archived}); err != nil {
		return GCReport{}, err
	}
	return report, tx.Commit()
}

func (e Engine) gcArchiveTask(ctx context.Context, tx *sql.Tx, w domain.Workspace, t domain.InboxTask, reason domain.ArchivalReason, target domain.Target, report *GCReport) error {
	now := e.stamp()
	t.Version++
	t.Archived = true
	t.ArchivalReason = archivalReason(reason)
	t.ArchivedTime = strPtr(now)
	t.LastModifiedTime = now
	if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "inbox-task.archived", w.RefID, "inbox-task", t.RefID, t.Version, "gc", events.Frame{"reason": string(reason)}); err != nil {
		return err
	}
	e.reporter().MarkRemoved("inbox-task", t.RefID, t.Name)
	report.add(GCReportEntry{Target: target, EntityKind: "inbox-task", RefID: t.RefID, Name: t.Name})
	return nil
}

func (e Engine) gcInboxTasks(ctx context.Context, tx *sql.Tx, w domain.Workspace, report *GCReport) error {
	tasks, err := e.Repo.InTx(tx).FindInboxTasks(ctx, repo.InboxTaskFilter{
		WorkspaceID: w.RefID,
		Statuses:    []domain.InboxTaskStatus{domain.StatusDone, domain.StatusNotDone},
	})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := e.gcArchiveTask(ctx, tx, w, t, domain.ArchivalReasonGC, domain.TargetInboxTasks, report); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) gcBigPlans(ctx context.Context, tx *sql.Tx, w domain.Workspace, report *GCReport) error {
	rp := e.Repo.InTx(tx)
	plans, err := rp.ListBigPlans(ctx, w.RefID, false)
	if err != nil {
		return err
	}
	for _, b := range plans {
		if !b.Status.Completed() {
			continue
		}
		now := e.stamp()
		b.Version++
		b.Archived = true
		b.ArchivalReason = archivalReason(domain.ArchivalReasonGC)
		b.ArchivedTime = strPtr(now)
		b.LastModifiedTime = now
		if err := e.Repo.SaveBigPlan(ctx, tx, b); err != nil {
			return err
		}
		e.reporter().MarkRemoved("big-plan", b.RefID, b.Name)
		report.add(GCReportEntry{Target: domain.TargetBigPlans, EntityKind: "big-plan", RefID: b.RefID, Name: b.Name})

		tasks, err := rp.FindInboxTasks(ctx, repo.InboxTaskFilter{
			WorkspaceID:       w.RefID,
			SourceEntityRefID: b.RefID,
		})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := e.gcArchiveTask(ctx, tx, w, t, domain.ArchivalReasonParentArchived, domain.TargetBigPlans, report); err != nil {
				return err
			}
		}
		if err := e.Events.Append(ctx, tx, "big-plan.archived", w.RefID, "big-plan", b.RefID, b.Version, "gc", events.Frame{"cascaded_tasks": len(tasks)}); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) gcPushTasks(ctx context.Context, tx *sql.Tx, w domain.Workspace, kind domain.InboxTaskSource, report *GCReport) error {
	target := domain.TargetSlackTasks
	if kind == domain.SourceEmailTask {
		target = domain.TargetEmailTasks
	}
	rp := e.Repo.InTx(tx)
	pushes, err := rp.ListPushTasks(ctx, w.RefID, kind, false)
	if err != nil {
		return err
	}
	for _, p := range pushes {
		derived, err := rp.FindInboxTasks(ctx, repo.InboxTaskFilter{
			WorkspaceID:       w.RefID,
			AllowArchived:     true,
			SourceEntityRefID: p.RefID,
		})
		if err != nil {
			return err
		}
		if len(derived) == 0 {
			continue
		}
		finished := true
		for _, t := range derived {
			if !t.Archived && !t.Status.Completed() {
				finished = false
				break
			}
		}
		if !finished {
			continue
		}
		now := e.stamp()
		p.Version++
		p.Archived = true
		p.ArchivalReason = archivalReason(domain.ArchivalReasonGC)
		p.ArchivedTime = strPtr(now)
		p.LastModifiedTime = now
		if err := e.Repo.SavePushTask(ctx, tx, p); err != nil {
			return err
		}
		e.reporter().MarkRemoved(string(kind), p.RefID, p.Name)
		report.add(GCReportEntry{Target: target, EntityKind: string(kind), RefID: p.RefID, Name: p.Name})
		for _, t := range derived {
			if t.Archived {
				continue
			}
			if err := e.gcArchiveTask(ctx, tx, w, t, domain.ArchivalReasonParentArchived, target, report); err != nil {
				return err
			}
		}
		if err := e.Events.Append(ctx, tx, string(kind)+".archived", w.RefID, string(kind), p.RefID, p.Version, "gc", nil); err != nil {
			return err
		}
	}
	return nil
}
