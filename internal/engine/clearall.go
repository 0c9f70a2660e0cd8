package engine

import (
	"context"
	"database/sql"
)

// ClearReport maps each cleared table to the number of rows removed.
type ClearReport struct {
	Removed map[string]int64 `json:"removed"`
}

// ClearAll hard-deletes every entity in the workspace, leaves first so
// foreign keys never dangle. The workspace row, root project and users
// survive.
func (e Engine) ClearAll(ctx context.Context) (ClearReport, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return ClearReport{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ClearReport{}, err
	}
	defer tx.Rollback()

	report := ClearReport{Removed: map[string]int64{}}
	type phase struct {
		label string
		wipe  func(context.Context, *sql.Tx, string) (int64, error)
	}
	phases := []phase{
		{"gen logs", e.Repo.DeleteAllGenLogs},
		{"gc logs", e.Repo.DeleteAllGCLogs},
		{"inbox tasks", e.Repo.DeleteAllInboxTasks},
		{"habits", e.Repo.DeleteAllHabits},
		{"chores", e.Repo.DeleteAllChores},
		{"big plans", e.Repo.DeleteAllBigPlans},
		{"vacations", e.Repo.DeleteAllVacations},
		{"metrics", e.Repo.DeleteAllMetrics},
		{"persons", e.Repo.DeleteAllPersons},
		{"slack tasks", func(ctx context.Context, tx *sql.Tx, wid string) (int64, error) {
			return e.Repo.DeleteAllPushTasks(ctx, tx, wid, "slack-task")
		}},
		{"email tasks", func(ctx context.Context, tx *sql.Tx, wid string) (int64, error) {
			return e.Repo.DeleteAllPushTasks(ctx, tx, wid, "email-task")
		}},
		{"projects", e.Repo.DeleteNonRootProjects},
		{"mirror links", e.Repo.DeleteAllMirrorLinks},
		{"events", e.Repo.DeleteAllEvents},
	}
	for _, p := range phases {
		done := e.reporter().Section("clear " + p.label)
		n, err := p.wipe(ctx, tx, w.RefID)
		done()
		if err != nil {
			return ClearReport{}, err
		}
		report.Removed[p.label] = n
		if n > 0 {
			e.reporter().MarkRemoved(p.label, "", "")
		}
	}
	if err := e.Events.Append(ctx, tx, "workspace.cleared", w.RefID, "workspace", w.RefID, w.Version, "user", nil); err != nil {
		return ClearReport{}, err
	}
	return report, tx.Commit()
}
