package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dayline/internal/domain"
)

const inboxTaskColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,source,source_entity_ref_id,project_ref_id,status,eisen,difficulty,actionable_date,due_date,due_time,recurring_timeline,recurring_gen_right_now,recurring_type,accepted_time,working_time,completed_time,created_time,last_modified_time,archived_time`

func (r Repo) InsertInboxTask(ctx context.Context, tx *sql.Tx, t domain.InboxTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO inbox_tasks(`+inboxTaskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.RefID, t.WorkspaceID, t.Version, boolInt(t.Archived), nullableStrPtr(t.ArchivalReason), t.Name,
		string(t.Source), nullableStrPtr(t.SourceEntityRefID), t.ProjectRefID, string(t.Status), string(t.Eisen),
		difficultyPtr(t.Difficulty), nullableStrPtr(t.ActionableDate), nullableStrPtr(t.DueDate), nullableStrPtr(t.DueTime),
		nullableStrPtr(t.RecurringTimeline), nullableStrPtr(t.RecurringGenAt), nullableStrPtr(t.RecurringType),
		nullableStrPtr(t.AcceptedTime), nullableStrPtr(t.WorkingTime), nullableStrPtr(t.CompletedTime),
		t.CreatedTime, t.LastModifiedTime, nullableStrPtr(t.ArchivedTime))
	return err
}

func difficultyPtr(d *domain.Difficulty) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInboxTask(row rowScanner) (domain.InboxTask, error) {
	var t domain.InboxTask
	var archived int
	var reason, sourceEntity, difficulty, actionable, dueDate, dueTime sql.NullString
	var timeline, genAt, recurringType, accepted, working, completed, archivedTime sql.NullString
	var source, status, eisen string
	err := row.Scan(&t.RefID, &t.WorkspaceID, &t.Version, &archived, &reason, &t.Name, &source, &sourceEntity,
		&t.ProjectRefID, &status, &eisen, &difficulty, &actionable, &dueDate, &dueTime, &timeline, &genAt,
		&recurringType, &accepted, &working, &completed, &t.CreatedTime, &t.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("inbox task: %w", ErrNotFound)
	}
	if err != nil {
		return t, err
	}
	t.Archived = archived != 0
	t.ArchivalReason = strPtrOf(reason)
	t.Source = domain.InboxTaskSource(source)
	t.SourceEntityRefID = strPtrOf(sourceEntity)
	t.Status = domain.InboxTaskStatus(status)
	t.Eisen = domain.Eisen(eisen)
	if difficulty.Valid {
		d := domain.Difficulty(difficulty.String)
		t.Difficulty = &d
	}
	t.ActionableDate = strPtrOf(actionable)
	t.DueDate = strPtrOf(dueDate)
	t.DueTime = strPtrOf(dueTime)
	t.RecurringTimeline = strPtrOf(timeline)
	t.RecurringGenAt = strPtrOf(genAt)
	t.RecurringType = strPtrOf(recurringType)
	t.AcceptedTime = strPtrOf(accepted)
	t.WorkingTime = strPtrOf(working)
	t.CompletedTime = strPtrOf(completed)
	t.ArchivedTime = strPtrOf(archivedTime)
	return t, nil
}

func (r Repo) GetInboxTask(ctx context.Context, refID string) (domain.InboxTask, error) {
	row := r.q().QueryRowContext(ctx, `SELECT `+inboxTaskColumns+` FROM inbox_tasks WHERE ref_id=?`, refID)
	return scanInboxTask(row)
}

// GetInboxTaskBySourceAndTimeline resolves the dedup key of generated
// tasks: at most one non-archived task per (source, timeline).
func (r Repo) GetInboxTaskBySourceAndTimeline(ctx context.Context, sourceRefID, timeline string) (domain.InboxTask, error) {
	row := r.q().QueryRowContext(ctx, `SELECT `+inboxTaskColumns+` FROM inbox_tasks WHERE source_entity_ref_id=? AND recurring_timeline=? AND archived=0`, sourceRefID, timeline)
	return scanInboxTask(row)
}

// InboxTaskFilter is a declarative predicate set for FindInboxTasks.
type InboxTaskFilter struct {
	WorkspaceID       string
	AllowArchived     bool
	Sources           []domain.InboxTaskSource
	Statuses          []domain.InboxTaskStatus
	ProjectRefID      string
	SourceEntityRefID string
	Limit             int
	Cursor            string
}

func (r Repo) FindInboxTasks(ctx context.Context, f InboxTaskFilter) ([]domain.InboxTask, error) {
	clauses := []string{"workspace_ref_id=?"}
	args := []any{f.WorkspaceID}
	if !f.AllowArchived {
		clauses = append(clauses, "archived=0")
	}
	if len(f.Sources) > 0 {
		clauses = append(clauses, "source IN ("+placeholders(len(f.Sources))+")")
		for _, s := range f.Sources {
			args = append(args, string(s))
		}
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.ProjectRefID != "" {
		clauses = append(clauses, "project_ref_id=?")
		args = append(args, f.ProjectRefID)
	}
	if f.SourceEntityRefID != "" {
		clauses = append(clauses, "source_entity_ref_id=?")
		args = append(args, f.SourceEntityRefID)
	}
	if f.Cursor != "" {
		clauses = append(clauses, "ref_id > ?")
		args = append(args, f.Cursor)
	}
	query := `SELECT ` + inboxTaskColumns + ` FROM inbox_tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY ref_id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.InboxTask
	for rows.Next() {
		t, err := scanInboxTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (r Repo) SaveInboxTask(ctx context.Context, tx *sql.Tx, t domain.InboxTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE inbox_tasks SET version=?,archived=?,archival_reason=?,name=?,source=?,source_entity_ref_id=?,project_ref_id=?,status=?,eisen=?,difficulty=?,actionable_date=?,due_date=?,due_time=?,recurring_timeline=?,recurring_gen_right_now=?,recurring_type=?,accepted_time=?,working_time=?,completed_time=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		t.Version, boolInt(t.Archived), nullableStrPtr(t.ArchivalReason), t.Name, string(t.Source),
		nullableStrPtr(t.SourceEntityRefID), t.ProjectRefID, string(t.Status), string(t.Eisen), difficultyPtr(t.Difficulty),
		nullableStrPtr(t.ActionableDate), nullableStrPtr(t.DueDate), nullableStrPtr(t.DueTime),
		nullableStrPtr(t.RecurringTimeline), nullableStrPtr(t.RecurringGenAt), nullableStrPtr(t.RecurringType),
		nullableStrPtr(t.AcceptedTime), nullableStrPtr(t.WorkingTime), nullableStrPtr(t.CompletedTime),
		t.LastModifiedTime, nullableStrPtr(t.ArchivedTime), t.RefID, t.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "inbox_tasks", t.RefID)
}

func (r Repo) DeleteInboxTask(ctx context.Context, tx *sql.Tx, refID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM inbox_tasks WHERE ref_id=?`, refID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inbox task %s: %w", refID, ErrNotFound)
	}
	return nil
}

func (r Repo) DeleteAllInboxTasks(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM inbox_tasks WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
