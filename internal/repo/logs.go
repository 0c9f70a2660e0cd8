package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dayline/internal/domain"
)

// --- events ---

func (r Repo) ListEvents(ctx context.Context, workspaceID string, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,kind,COALESCE(workspace_ref_id,''),entity_kind,COALESCE(entity_id,''),version,source,frame_json FROM events WHERE workspace_ref_id=? ORDER BY id DESC`
	args := []any{workspaceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Kind, &e.WorkspaceID, &e.EntityKind, &e.EntityID, &e.Version, &e.Source, &e.Frame); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r Repo) DeleteAllEvents(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- generation log ---

func (r Repo) InsertGenLog(ctx context.Context, tx *sql.Tx, e domain.GenLogEntry) error {
	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO gen_log_entries(ref_id,workspace_ref_id,gen_even_if_not_modified,targets_json,right_now,opened_time,closed_time,complete,entries_json)
VALUES (?,?,?,?,?,?,?,?,?)`,
		e.RefID, e.WorkspaceID, boolInt(e.GenEvenIfNotModified), string(targets), e.RightNow, e.OpenedTime,
		nullableStrPtr(e.ClosedTime), boolInt(e.Complete), e.EntriesJSON)
	return err
}

func (r Repo) CloseGenLog(ctx context.Context, tx *sql.Tx, refID, closedTime, entriesJSON string, complete bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE gen_log_entries SET closed_time=?,entries_json=?,complete=? WHERE ref_id=?`,
		closedTime, entriesJSON, boolInt(complete), refID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("gen log %s: %w", refID, ErrNotFound)
	}
	return nil
}

func (r Repo) GetGenLog(ctx context.Context, refID string) (domain.GenLogEntry, error) {
	var e domain.GenLogEntry
	var evenIf, complete int
	var targets string
	var closed sql.NullString
	err := r.q().QueryRowContext(ctx, `SELECT ref_id,workspace_ref_id,gen_even_if_not_modified,targets_json,right_now,opened_time,closed_time,complete,entries_json FROM gen_log_entries WHERE ref_id=?`, refID).
		Scan(&e.RefID, &e.WorkspaceID, &evenIf, &targets, &e.RightNow, &e.OpenedTime, &closed, &complete, &e.EntriesJSON)
	if err == sql.ErrNoRows {
		return e, fmt.Errorf("gen log %s: %w", refID, ErrNotFound)
	}
	if err != nil {
		return e, err
	}
	e.GenEvenIfNotModified = evenIf != 0
	e.Complete = complete != 0
	e.ClosedTime = strPtrOf(closed)
	err = json.Unmarshal([]byte(targets), &e.Targets)
	return e, err
}

func (r Repo) DeleteAllGenLogs(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM gen_log_entries WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- gc log ---

func (r Repo) InsertGCLog(ctx context.Context, tx *sql.Tx, e domain.GCLogEntry) error {
	targets, err := json.Marshal(e.Targets)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO gc_log_entries(ref_id,workspace_ref_id,targets_json,opened_time,closed_time,complete,entries_json)
VALUES (?,?,?,?,?,?,?)`,
		e.RefID, e.WorkspaceID, string(targets), e.OpenedTime, nullableStrPtr(e.ClosedTime), boolInt(e.Complete), e.EntriesJSON)
	return err
}

func (r Repo) CloseGCLog(ctx context.Context, tx *sql.Tx, refID, closedTime, entriesJSON string, complete bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE gc_log_entries SET closed_time=?,entries_json=?,complete=? WHERE ref_id=?`,
		closedTime, entriesJSON, boolInt(complete), refID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("gc log %s: %w", refID, ErrNotFound)
	}
	return nil
}

func (r Repo) DeleteAllGCLogs(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM gc_log_entries WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
