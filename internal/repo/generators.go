package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dayline/internal/domain"
)

func marshalGenParams(p domain.GenParams) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal gen params: %w", err)
	}
	return string(b), nil
}

func unmarshalGenParams(raw string) (domain.GenParams, error) {
	var p domain.GenParams
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("unmarshal gen params: %w", err)
	}
	return p, nil
}

// --- habits ---

const habitColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,project_ref_id,gen_params_json,suspended,must_do,start_at_date,end_at_date,repeats_in_period,repeats_strategy,created_time,last_modified_time,archived_time`

func (r Repo) InsertHabit(ctx context.Context, tx *sql.Tx, h domain.Habit) error {
	gen, err := marshalGenParams(h.Gen)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO habits(`+habitColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.RefID, h.WorkspaceID, h.Version, boolInt(h.Archived), nullableStrPtr(h.ArchivalReason), h.Name, h.ProjectRefID,
		gen, boolInt(h.Suspended), boolInt(h.MustDo), nullableStrPtr(h.StartAtDate), nullableStrPtr(h.EndAtDate),
		nullableIntPtr(h.RepeatsInPeriod), nullable(string(h.RepeatsStrategy)), h.CreatedTime, h.LastModifiedTime, nullableStrPtr(h.ArchivedTime))
	return err
}

func scanHabit(row rowScanner) (domain.Habit, error) {
	var h domain.Habit
	var archived, suspended, mustDo int
	var reason, startAt, endAt, strategy, archivedTime sql.NullString
	var repeats sql.NullInt64
	var gen string
	err := row.Scan(&h.RefID, &h.WorkspaceID, &h.Version, &archived, &reason, &h.Name, &h.ProjectRefID, &gen,
		&suspended, &mustDo, &startAt, &endAt, &repeats, &strategy, &h.CreatedTime, &h.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return h, fmt.Errorf("habit: %w", ErrNotFound)
	}
	if err != nil {
		return h, err
	}
	h.Archived = archived != 0
	h.Suspended = suspended != 0
	h.MustDo = mustDo != 0
	h.ArchivalReason = strPtrOf(reason)
	h.StartAtDate = strPtrOf(startAt)
	h.EndAtDate = strPtrOf(endAt)
	h.RepeatsInPeriod = intPtrOf(repeats)
	if strategy.Valid {
		h.RepeatsStrategy = domain.RepeatsStrategy(strategy.String)
	}
	h.ArchivedTime = strPtrOf(archivedTime)
	h.Gen, err = unmarshalGenParams(gen)
	return h, err
}

func (r Repo) GetHabit(ctx context.Context, refID string) (domain.Habit, error) {
	return scanHabit(r.q().QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE ref_id=?`, refID))
}

func (r Repo) ListHabits(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r Repo) SaveHabit(ctx context.Context, tx *sql.Tx, h domain.Habit) error {
	gen, err := marshalGenParams(h.Gen)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE habits SET version=?,archived=?,archival_reason=?,name=?,project_ref_id=?,gen_params_json=?,suspended=?,must_do=?,start_at_date=?,end_at_date=?,repeats_in_period=?,repeats_strategy=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		h.Version, boolInt(h.Archived), nullableStrPtr(h.ArchivalReason), h.Name, h.ProjectRefID, gen,
		boolInt(h.Suspended), boolInt(h.MustDo), nullableStrPtr(h.StartAtDate), nullableStrPtr(h.EndAtDate),
		nullableIntPtr(h.RepeatsInPeriod), nullable(string(h.RepeatsStrategy)), h.LastModifiedTime, nullableStrPtr(h.ArchivedTime),
		h.RefID, h.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "habits", h.RefID)
}

func (r Repo) DeleteAllHabits(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM habits WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- chores ---

const choreColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,project_ref_id,gen_params_json,suspended,must_do,start_at_date,end_at_date,created_time,last_modified_time,archived_time`

func (r Repo) InsertChore(ctx context.Context, tx *sql.Tx, c domain.Chore) error {
	gen, err := marshalGenParams(c.Gen)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO chores(`+choreColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.RefID, c.WorkspaceID, c.Version, boolInt(c.Archived), nullableStrPtr(c.ArchivalReason), c.Name, c.ProjectRefID,
		gen, boolInt(c.Suspended), boolInt(c.MustDo), nullableStrPtr(c.StartAtDate), nullableStrPtr(c.EndAtDate),
		c.CreatedTime, c.LastModifiedTime, nullableStrPtr(c.ArchivedTime))
	return err
}

func scanChore(row rowScanner) (domain.Chore, error) {
	var c domain.Chore
	var archived, suspended, mustDo int
	var reason, startAt, endAt, archivedTime sql.NullString
	var gen string
	err := row.Scan(&c.RefID, &c.WorkspaceID, &c.Version, &archived, &reason, &c.Name, &c.ProjectRefID, &gen,
		&suspended, &mustDo, &startAt, &endAt, &c.CreatedTime, &c.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("chore: %w", ErrNotFound)
	}
	if err != nil {
		return c, err
	}
	c.Archived = archived != 0
	c.Suspended = suspended != 0
	c.MustDo = mustDo != 0
	c.ArchivalReason = strPtrOf(reason)
	c.StartAtDate = strPtrOf(startAt)
	c.EndAtDate = strPtrOf(endAt)
	c.ArchivedTime = strPtrOf(archivedTime)
	c.Gen, err = unmarshalGenParams(gen)
	return c, err
}

func (r Repo) GetChore(ctx context.Context, refID string) (domain.Chore, error) {
	return scanChore(r.q().QueryRowContext(ctx, `SELECT `+choreColumns+` FROM chores WHERE ref_id=?`, refID))
}

func (r Repo) ListChores(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Chore, error) {
	query := `SELECT ` + choreColumns + ` FROM chores WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r Repo) SaveChore(ctx context.Context, tx *sql.Tx, c domain.Chore) error {
	gen, err := marshalGenParams(c.Gen)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE chores SET version=?,archived=?,archival_reason=?,name=?,project_ref_id=?,gen_params_json=?,suspended=?,must_do=?,start_at_date=?,end_at_date=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		c.Version, boolInt(c.Archived), nullableStrPtr(c.ArchivalReason), c.Name, c.ProjectRefID, gen,
		boolInt(c.Suspended), boolInt(c.MustDo), nullableStrPtr(c.StartAtDate), nullableStrPtr(c.EndAtDate),
		c.LastModifiedTime, nullableStrPtr(c.ArchivedTime), c.RefID, c.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "chores", c.RefID)
}

func (r Repo) DeleteAllChores(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM chores WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
