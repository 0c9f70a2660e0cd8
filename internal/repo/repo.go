// Package repo is the persistence layer. Mutations take the caller's
// transaction so an engine operation commits entity rows and event rows
// together; reads go through the pool unless the caller pins them to an
// open transaction with InTx.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dayline/internal/domain"
)

// querier is the read surface shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB

	tx *sql.Tx
}

// InTx returns a view of the repository whose reads run on tx. Any read
// issued while a write transaction is open must go through it: a pooled
// connection would wait on the table locks the transaction itself holds.
func (r Repo) InTx(tx *sql.Tx) Repo {
	r.tx = tx
	return r
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

var ErrNotFound = domain.ErrNotFound

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStrPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func strPtrOf(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtrOf(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// checkSave maps a zero-row UPDATE to the right error kind: the row is
// either gone or was saved concurrently at another version. The
// existence check reads through tx so it sees the transaction's own
// writes.
func (r Repo) checkSave(ctx context.Context, tx *sql.Tx, res sql.Result, table, refID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE ref_id=?`, table), refID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", table, refID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s %s: %w", table, refID, domain.ErrConcurrentModification)
}

// DeleteByRefID hard-deletes one row. Table names come from call-site
// constants, never user input. Used by the remove services only.
func (r Repo) DeleteByRefID(ctx context.Context, tx *sql.Tx, table, refID string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ref_id=?`, table), refID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table, refID, ErrNotFound)
	}
	return nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- workspace ---

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	features, err := marshalJSON(w.Features)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO workspaces(ref_id,version,name,timezone,features_json,default_project_ref_id,created_time,last_modified_time)
VALUES (?,?,?,?,?,?,?,?)`,
		w.RefID, w.Version, w.Name, w.Timezone, features, nullable(w.DefaultProjectID), w.CreatedTime, w.LastModifiedTime)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context) (domain.Workspace, error) {
	var w domain.Workspace
	var features string
	var defaultProject sql.NullString
	err := r.q().QueryRowContext(ctx, `SELECT ref_id,version,name,timezone,features_json,default_project_ref_id,created_time,last_modified_time FROM workspaces LIMIT 1`).
		Scan(&w.RefID, &w.Version, &w.Name, &w.Timezone, &features, &defaultProject, &w.CreatedTime, &w.LastModifiedTime)
	if err == sql.ErrNoRows {
		return w, fmt.Errorf("workspace: %w", ErrNotFound)
	}
	if err != nil {
		return w, err
	}
	if defaultProject.Valid {
		w.DefaultProjectID = defaultProject.String
	}
	if err := json.Unmarshal([]byte(features), &w.Features); err != nil {
		return w, fmt.Errorf("workspace features: %w", err)
	}
	return w, nil
}

func (r Repo) SaveWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	features, err := marshalJSON(w.Features)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET version=?,name=?,timezone=?,features_json=?,default_project_ref_id=?,last_modified_time=? WHERE ref_id=? AND version=?`,
		w.Version, w.Name, w.Timezone, features, nullable(w.DefaultProjectID), w.LastModifiedTime, w.RefID, w.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "workspaces", w.RefID)
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(ref_id,workspace_ref_id,email,name,created_time) VALUES (?,?,?,?,?)`,
		u.RefID, u.WorkspaceID, u.Email, u.Name, u.CreatedTime)
	return err
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.q().QueryRowContext(ctx, `SELECT ref_id,workspace_ref_id,email,name,created_time FROM users WHERE email=?`, email).
		Scan(&u.RefID, &u.WorkspaceID, &u.Email, &u.Name, &u.CreatedTime)
	if err == sql.ErrNoRows {
		return u, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return u, err
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(ref_id,workspace_ref_id,version,archived,archival_reason,name,is_root,created_time,last_modified_time,archived_time)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.RefID, p.WorkspaceID, p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), p.Name, boolInt(p.IsRoot), p.CreatedTime, p.LastModifiedTime, nullableStrPtr(p.ArchivedTime))
	return err
}

func (r Repo) GetProject(ctx context.Context, refID string) (domain.Project, error) {
	row := r.q().QueryRowContext(ctx, `SELECT ref_id,workspace_ref_id,version,archived,archival_reason,name,is_root,created_time,last_modified_time,archived_time FROM projects WHERE ref_id=?`, refID)
	return scanProject(row)
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var archived, isRoot int
	var reason, archivedTime sql.NullString
	err := row.Scan(&p.RefID, &p.WorkspaceID, &p.Version, &archived, &reason, &p.Name, &isRoot, &p.CreatedTime, &p.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return p, err
	}
	p.Archived = archived != 0
	p.IsRoot = isRoot != 0
	p.ArchivalReason = strPtrOf(reason)
	p.ArchivedTime = strPtrOf(archivedTime)
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Project, error) {
	query := `SELECT ref_id,workspace_ref_id,version,archived,archival_reason,name,is_root,created_time,last_modified_time,archived_time FROM projects WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY created_time, ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		var archived, isRoot int
		var reason, archivedTime sql.NullString
		if err := rows.Scan(&p.RefID, &p.WorkspaceID, &p.Version, &archived, &reason, &p.Name, &isRoot, &p.CreatedTime, &p.LastModifiedTime, &archivedTime); err != nil {
			return nil, err
		}
		p.Archived = archived != 0
		p.IsRoot = isRoot != 0
		p.ArchivalReason = strPtrOf(reason)
		p.ArchivedTime = strPtrOf(archivedTime)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) SaveProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET version=?,archived=?,archival_reason=?,name=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), p.Name, p.LastModifiedTime, nullableStrPtr(p.ArchivedTime), p.RefID, p.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "projects", p.RefID)
}

func (r Repo) DeleteNonRootProjects(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE workspace_ref_id=? AND is_root=0`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
