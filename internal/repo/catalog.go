package repo

import (
	"context"
	"database/sql"
	"fmt"

	"dayline/internal/domain"
)

// Metrics, persons, big plans, vacations and push tasks share the same
// scan/insert/save shape; they only differ in their payload columns.

// --- metrics ---

const metricColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,collection_json,created_time,last_modified_time,archived_time`

func marshalOptionalGenParams(p *domain.GenParams) (any, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := marshalGenParams(*p)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func unmarshalOptionalGenParams(raw sql.NullString) (*domain.GenParams, error) {
	if !raw.Valid {
		return nil, nil
	}
	p, err := unmarshalGenParams(raw.String)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r Repo) InsertMetric(ctx context.Context, tx *sql.Tx, m domain.Metric) error {
	collection, err := marshalOptionalGenParams(m.Collection)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO metrics(`+metricColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.RefID, m.WorkspaceID, m.Version, boolInt(m.Archived), nullableStrPtr(m.ArchivalReason), m.Name,
		collection, m.CreatedTime, m.LastModifiedTime, nullableStrPtr(m.ArchivedTime))
	return err
}

func scanMetric(row rowScanner) (domain.Metric, error) {
	var m domain.Metric
	var archived int
	var reason, collection, archivedTime sql.NullString
	err := row.Scan(&m.RefID, &m.WorkspaceID, &m.Version, &archived, &reason, &m.Name, &collection, &m.CreatedTime, &m.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return m, fmt.Errorf("metric: %w", ErrNotFound)
	}
	if err != nil {
		return m, err
	}
	m.Archived = archived != 0
	m.ArchivalReason = strPtrOf(reason)
	m.ArchivedTime = strPtrOf(archivedTime)
	m.Collection, err = unmarshalOptionalGenParams(collection)
	return m, err
}

func (r Repo) GetMetric(ctx context.Context, refID string) (domain.Metric, error) {
	return scanMetric(r.q().QueryRowContext(ctx, `SELECT `+metricColumns+` FROM metrics WHERE ref_id=?`, refID))
}

func (r Repo) ListMetrics(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Metric, error) {
	query := `SELECT ` + metricColumns + ` FROM metrics WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r Repo) SaveMetric(ctx context.Context, tx *sql.Tx, m domain.Metric) error {
	collection, err := marshalOptionalGenParams(m.Collection)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE metrics SET version=?,archived=?,archival_reason=?,name=?,collection_json=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		m.Version, boolInt(m.Archived), nullableStrPtr(m.ArchivalReason), m.Name, collection,
		m.LastModifiedTime, nullableStrPtr(m.ArchivedTime), m.RefID, m.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "metrics", m.RefID)
}

func (r Repo) DeleteAllMetrics(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- persons ---

const personColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,relationship,catch_up_json,birthday_month,birthday_day,created_time,last_modified_time,archived_time`

func (r Repo) InsertPerson(ctx context.Context, tx *sql.Tx, p domain.Person) error {
	catchUp, err := marshalOptionalGenParams(p.CatchUp)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO persons(`+personColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.RefID, p.WorkspaceID, p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), p.Name,
		nullable(p.Relationship), catchUp, nullableIntPtr(p.BirthdayMonth), nullableIntPtr(p.BirthdayDay),
		p.CreatedTime, p.LastModifiedTime, nullableStrPtr(p.ArchivedTime))
	return err
}

func scanPerson(row rowScanner) (domain.Person, error) {
	var p domain.Person
	var archived int
	var reason, relationship, catchUp, archivedTime sql.NullString
	var bMonth, bDay sql.NullInt64
	err := row.Scan(&p.RefID, &p.WorkspaceID, &p.Version, &archived, &reason, &p.Name, &relationship, &catchUp,
		&bMonth, &bDay, &p.CreatedTime, &p.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("person: %w", ErrNotFound)
	}
	if err != nil {
		return p, err
	}
	p.Archived = archived != 0
	p.ArchivalReason = strPtrOf(reason)
	if relationship.Valid {
		p.Relationship = relationship.String
	}
	p.BirthdayMonth = intPtrOf(bMonth)
	p.BirthdayDay = intPtrOf(bDay)
	p.ArchivedTime = strPtrOf(archivedTime)
	p.CatchUp, err = unmarshalOptionalGenParams(catchUp)
	return p, err
}

func (r Repo) GetPerson(ctx context.Context, refID string) (domain.Person, error) {
	return scanPerson(r.q().QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE ref_id=?`, refID))
}

func (r Repo) ListPersons(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) SavePerson(ctx context.Context, tx *sql.Tx, p domain.Person) error {
	catchUp, err := marshalOptionalGenParams(p.CatchUp)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE persons SET version=?,archived=?,archival_reason=?,name=?,relationship=?,catch_up_json=?,birthday_month=?,birthday_day=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), p.Name, nullable(p.Relationship), catchUp,
		nullableIntPtr(p.BirthdayMonth), nullableIntPtr(p.BirthdayDay), p.LastModifiedTime, nullableStrPtr(p.ArchivedTime),
		p.RefID, p.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "persons", p.RefID)
}

func (r Repo) DeleteAllPersons(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- big plans ---

const bigPlanColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,project_ref_id,status,actionable_date,due_date,created_time,last_modified_time,archived_time`

func (r Repo) InsertBigPlan(ctx context.Context, tx *sql.Tx, b domain.BigPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO big_plans(`+bigPlanColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.RefID, b.WorkspaceID, b.Version, boolInt(b.Archived), nullableStrPtr(b.ArchivalReason), b.Name, b.ProjectRefID,
		string(b.Status), nullableStrPtr(b.ActionableDate), nullableStrPtr(b.DueDate), b.CreatedTime, b.LastModifiedTime, nullableStrPtr(b.ArchivedTime))
	return err
}

func scanBigPlan(row rowScanner) (domain.BigPlan, error) {
	var b domain.BigPlan
	var archived int
	var reason, actionable, due, archivedTime sql.NullString
	var status string
	err := row.Scan(&b.RefID, &b.WorkspaceID, &b.Version, &archived, &reason, &b.Name, &b.ProjectRefID, &status,
		&actionable, &due, &b.CreatedTime, &b.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return b, fmt.Errorf("big plan: %w", ErrNotFound)
	}
	if err != nil {
		return b, err
	}
	b.Archived = archived != 0
	b.ArchivalReason = strPtrOf(reason)
	b.Status = domain.BigPlanStatus(status)
	b.ActionableDate = strPtrOf(actionable)
	b.DueDate = strPtrOf(due)
	b.ArchivedTime = strPtrOf(archivedTime)
	return b, nil
}

func (r Repo) GetBigPlan(ctx context.Context, refID string) (domain.BigPlan, error) {
	return scanBigPlan(r.q().QueryRowContext(ctx, `SELECT `+bigPlanColumns+` FROM big_plans WHERE ref_id=?`, refID))
}

func (r Repo) ListBigPlans(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.BigPlan, error) {
	query := `SELECT ` + bigPlanColumns + ` FROM big_plans WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BigPlan
	for rows.Next() {
		b, err := scanBigPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r Repo) SaveBigPlan(ctx context.Context, tx *sql.Tx, b domain.BigPlan) error {
	res, err := tx.ExecContext(ctx, `UPDATE big_plans SET version=?,archived=?,archival_reason=?,name=?,project_ref_id=?,status=?,actionable_date=?,due_date=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		b.Version, boolInt(b.Archived), nullableStrPtr(b.ArchivalReason), b.Name, b.ProjectRefID, string(b.Status),
		nullableStrPtr(b.ActionableDate), nullableStrPtr(b.DueDate), b.LastModifiedTime, nullableStrPtr(b.ArchivedTime),
		b.RefID, b.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "big_plans", b.RefID)
}

func (r Repo) DeleteAllBigPlans(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM big_plans WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- vacations ---

const vacationColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,name,start_date,end_date,created_time,last_modified_time,archived_time`

func (r Repo) InsertVacation(ctx context.Context, tx *sql.Tx, v domain.Vacation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vacations(`+vacationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		v.RefID, v.WorkspaceID, v.Version, boolInt(v.Archived), nullableStrPtr(v.ArchivalReason), v.Name,
		v.StartDate, v.EndDate, v.CreatedTime, v.LastModifiedTime, nullableStrPtr(v.ArchivedTime))
	return err
}

func scanVacation(row rowScanner) (domain.Vacation, error) {
	var v domain.Vacation
	var archived int
	var reason, archivedTime sql.NullString
	err := row.Scan(&v.RefID, &v.WorkspaceID, &v.Version, &archived, &reason, &v.Name, &v.StartDate, &v.EndDate,
		&v.CreatedTime, &v.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return v, fmt.Errorf("vacation: %w", ErrNotFound)
	}
	if err != nil {
		return v, err
	}
	v.Archived = archived != 0
	v.ArchivalReason = strPtrOf(reason)
	v.ArchivedTime = strPtrOf(archivedTime)
	return v, nil
}

func (r Repo) GetVacation(ctx context.Context, refID string) (domain.Vacation, error) {
	return scanVacation(r.q().QueryRowContext(ctx, `SELECT `+vacationColumns+` FROM vacations WHERE ref_id=?`, refID))
}

func (r Repo) ListVacations(ctx context.Context, workspaceID string, allowArchived bool) ([]domain.Vacation, error) {
	query := `SELECT ` + vacationColumns + ` FROM vacations WHERE workspace_ref_id=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY start_date, ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Vacation
	for rows.Next() {
		v, err := scanVacation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r Repo) SaveVacation(ctx context.Context, tx *sql.Tx, v domain.Vacation) error {
	res, err := tx.ExecContext(ctx, `UPDATE vacations SET version=?,archived=?,archival_reason=?,name=?,start_date=?,end_date=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		v.Version, boolInt(v.Archived), nullableStrPtr(v.ArchivalReason), v.Name, v.StartDate, v.EndDate,
		v.LastModifiedTime, nullableStrPtr(v.ArchivedTime), v.RefID, v.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "vacations", v.RefID)
}

func (r Repo) DeleteAllVacations(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM vacations WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- push tasks ---

const pushTaskColumns = `ref_id,workspace_ref_id,version,archived,archival_reason,kind,name,channel,eisen,difficulty,created_time,last_modified_time,archived_time`

func (r Repo) InsertPushTask(ctx context.Context, tx *sql.Tx, p domain.PushTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO push_tasks(`+pushTaskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.RefID, p.WorkspaceID, p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), string(p.Kind),
		p.Name, nullable(p.Channel), string(p.Eisen), difficultyPtr(p.Difficulty), p.CreatedTime, p.LastModifiedTime, nullableStrPtr(p.ArchivedTime))
	return err
}

func scanPushTask(row rowScanner) (domain.PushTask, error) {
	var p domain.PushTask
	var archived int
	var reason, channel, difficulty, archivedTime sql.NullString
	var kind, eisen string
	err := row.Scan(&p.RefID, &p.WorkspaceID, &p.Version, &archived, &reason, &kind, &p.Name, &channel, &eisen,
		&difficulty, &p.CreatedTime, &p.LastModifiedTime, &archivedTime)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("push task: %w", ErrNotFound)
	}
	if err != nil {
		return p, err
	}
	p.Archived = archived != 0
	p.ArchivalReason = strPtrOf(reason)
	p.Kind = domain.InboxTaskSource(kind)
	if channel.Valid {
		p.Channel = channel.String
	}
	p.Eisen = domain.Eisen(eisen)
	if difficulty.Valid {
		d := domain.Difficulty(difficulty.String)
		p.Difficulty = &d
	}
	p.ArchivedTime = strPtrOf(archivedTime)
	return p, nil
}

func (r Repo) GetPushTask(ctx context.Context, refID string) (domain.PushTask, error) {
	return scanPushTask(r.q().QueryRowContext(ctx, `SELECT `+pushTaskColumns+` FROM push_tasks WHERE ref_id=?`, refID))
}

func (r Repo) ListPushTasks(ctx context.Context, workspaceID string, kind domain.InboxTaskSource, allowArchived bool) ([]domain.PushTask, error) {
	query := `SELECT ` + pushTaskColumns + ` FROM push_tasks WHERE workspace_ref_id=? AND kind=?`
	if !allowArchived {
		query += ` AND archived=0`
	}
	query += ` ORDER BY ref_id`
	rows, err := r.q().QueryContext(ctx, query, workspaceID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PushTask
	for rows.Next() {
		p, err := scanPushTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) SavePushTask(ctx context.Context, tx *sql.Tx, p domain.PushTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE push_tasks SET version=?,archived=?,archival_reason=?,name=?,channel=?,eisen=?,difficulty=?,last_modified_time=?,archived_time=? WHERE ref_id=? AND version=?`,
		p.Version, boolInt(p.Archived), nullableStrPtr(p.ArchivalReason), p.Name, nullable(p.Channel), string(p.Eisen),
		difficultyPtr(p.Difficulty), p.LastModifiedTime, nullableStrPtr(p.ArchivedTime), p.RefID, p.Version-1)
	if err != nil {
		return err
	}
	return r.checkSave(ctx, tx, res, "push_tasks", p.RefID)
}

func (r Repo) DeleteAllPushTasks(ctx context.Context, tx *sql.Tx, workspaceID string, kind domain.InboxTaskSource) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM push_tasks WHERE workspace_ref_id=? AND kind=?`, workspaceID, string(kind))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
