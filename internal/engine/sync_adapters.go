package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/mirror"
	"dayline/internal/repo"
	"dayline/internal/schedule"
)

func boolField(b bool) string {
	return strconv.FormatBool(b)
}

func parseBoolField(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func optField(f map[string]string, key string) *string {
	if f == nil {
		return nil
	}
	v, ok := f[key]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func requireField(f map[string]string, key, what string) (string, error) {
	if f != nil {
		if v, ok := f[key]; ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s record is missing %s: %w", what, key, domain.ErrInvalidInput)
}

func requireName(it mirror.Item, what string) error {
	if it.Name == "" {
		return fmt.Errorf("%s record is missing a name: %w", what, domain.ErrInvalidInput)
	}
	return nil
}

func genParamsField(f map[string]string, key, what string, required bool) (*domain.GenParams, error) {
	raw := optField(f, key)
	if raw == nil {
		if required {
			return nil, fmt.Errorf("%s record is missing %s: %w", what, key, domain.ErrInvalidInput)
		}
		return nil, nil
	}
	var gen domain.GenParams
	if err := json.Unmarshal([]byte(*raw), &gen); err != nil {
		return nil, fmt.Errorf("%s record has bad %s: %w", what, key, domain.ErrInvalidInput)
	}
	if err := schedule.CheckGenParams(gen); err != nil {
		return nil, err
	}
	return &gen, nil
}

func genParamsJSON(p domain.GenParams) string {
	b, _ := json.Marshal(p)
	return string(b)
}

// applyArchival applies a remote-side archived flag onto the local
// entity, filling the reason and timestamp when it flips.
func applyArchival(archived *bool, reason **string, archivedTime **string, it mirror.Item, now string) {
	if it.Archived && !*archived {
		*archived = true
		*reason = archivalReason(domain.ArchivalReasonUser)
		*archivedTime = strPtr(now)
	}
}

// --- habits ---

type habitSync struct {
	e Engine
	w domain.Workspace
}

func (habitSync) target() domain.Target { return domain.TargetHabits }
func (habitSync) collection() string    { return "habits" }
func (habitSync) schema() []string {
	return []string{"project_ref_id", "gen_params", "suspended", "must_do", "start_at_date", "end_at_date", "repeats_in_period", "repeats_strategy"}
}

func habitItem(h domain.Habit) mirror.Item {
	f := map[string]string{
		"project_ref_id": h.ProjectRefID,
		"gen_params":     genParamsJSON(h.Gen),
		"suspended":      boolField(h.Suspended),
		"must_do":        boolField(h.MustDo),
	}
	if h.StartAtDate != nil {
		f["start_at_date"] = *h.StartAtDate
	}
	if h.EndAtDate != nil {
		f["end_at_date"] = *h.EndAtDate
	}
	if h.RepeatsInPeriod != nil {
		f["repeats_in_period"] = strconv.Itoa(*h.RepeatsInPeriod)
		f["repeats_strategy"] = string(h.RepeatsStrategy)
	}
	return mirror.Item{Name: h.Name, Archived: h.Archived, Fields: f}
}

func (s habitSync) locals(ctx context.Context) ([]syncLocal, error) {
	habits, err := s.e.Repo.ListHabits(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(habits))
	for _, h := range habits {
		out = append(out, syncLocal{RefID: h.RefID, Name: h.Name, Archived: h.Archived, LastModified: h.LastModifiedTime, Item: habitItem(h)})
	}
	return out, nil
}

func (s habitSync) habitFields(h *domain.Habit, it mirror.Item) error {
	if err := requireName(it, "habit"); err != nil {
		return err
	}
	gen, err := genParamsField(it.Fields, "gen_params", "habit", true)
	if err != nil {
		return err
	}
	h.Name = it.Name
	h.Gen = *gen
	h.Suspended = parseBoolField(it.Fields["suspended"])
	h.MustDo = parseBoolField(it.Fields["must_do"])
	h.StartAtDate = optField(it.Fields, "start_at_date")
	h.EndAtDate = optField(it.Fields, "end_at_date")
	if err := validActiveInterval(h.StartAtDate, h.EndAtDate); err != nil {
		return err
	}
	if raw := optField(it.Fields, "repeats_in_period"); raw != nil {
		n, err := strconv.Atoi(*raw)
		if err != nil || n < 1 {
			return fmt.Errorf("habit record has bad repeats_in_period: %w", domain.ErrInvalidInput)
		}
		strategy := domain.RepeatsStrategy(it.Fields["repeats_strategy"])
		if !strategy.Valid() {
			return fmt.Errorf("habit record has bad repeats_strategy: %w", domain.ErrInvalidInput)
		}
		h.RepeatsInPeriod = &n
		h.RepeatsStrategy = strategy
	} else {
		h.RepeatsInPeriod = nil
		h.RepeatsStrategy = ""
	}
	if p := optField(it.Fields, "project_ref_id"); p != nil {
		h.ProjectRefID = *p
	} else if h.ProjectRefID == "" {
		h.ProjectRefID = s.w.DefaultProjectID
	}
	return nil
}

func (s habitSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	h := domain.Habit{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := s.habitFields(&h, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&h.Archived, &h.ArchivalReason, &h.ArchivedTime, it, now)
	if err := s.e.Repo.InsertHabit(ctx, tx, h); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "habit.created", s.w.RefID, "habit", h.RefID, h.Version, "sync", events.Frame{"name": h.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: h.RefID, Name: h.Name, Archived: h.Archived, LastModified: h.LastModifiedTime, Item: habitItem(h)}, nil
}

func (s habitSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	h, err := s.e.Repo.InTx(tx).GetHabit(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := s.habitFields(&h, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := h.Archived
	applyArchival(&h.Archived, &h.ArchivalReason, &h.ArchivedTime, it, now)
	h.Version++
	h.LastModifiedTime = now
	if err := s.e.Repo.SaveHabit(ctx, tx, h); err != nil {
		return syncLocal{}, err
	}
	if h.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, h.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, "habit.updated", s.w.RefID, "habit", h.RefID, h.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: h.RefID, Name: h.Name, Archived: h.Archived, LastModified: h.LastModifiedTime, Item: habitItem(h)}, nil
}

func (s habitSync) cascade(ctx context.Context, tx *sql.Tx, changed []string) error {
	for _, refID := range changed {
		h, err := s.e.Repo.InTx(tx).GetHabit(ctx, refID)
		if err != nil {
			return err
		}
		if h.Archived {
			continue
		}
		if err := s.e.refreshDerivedTaskLinks(ctx, tx, s.w.RefID, h.RefID, h.Gen.Eisen, h.Gen.Difficulty); err != nil {
			return err
		}
	}
	return nil
}

// --- chores ---

type choreSync struct {
	e Engine
	w domain.Workspace
}

func (choreSync) target() domain.Target { return domain.TargetChores }
func (choreSync) collection() string    { return "chores" }
func (choreSync) schema() []string {
	return []string{"project_ref_id", "gen_params", "suspended", "must_do", "start_at_date", "end_at_date"}
}

func choreItem(c domain.Chore) mirror.Item {
	f := map[string]string{
		"project_ref_id": c.ProjectRefID,
		"gen_params":     genParamsJSON(c.Gen),
		"suspended":      boolField(c.Suspended),
		"must_do":        boolField(c.MustDo),
	}
	if c.StartAtDate != nil {
		f["start_at_date"] = *c.StartAtDate
	}
	if c.EndAtDate != nil {
		f["end_at_date"] = *c.EndAtDate
	}
	return mirror.Item{Name: c.Name, Archived: c.Archived, Fields: f}
}

func (s choreSync) locals(ctx context.Context) ([]syncLocal, error) {
	chores, err := s.e.Repo.ListChores(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(chores))
	for _, c := range chores {
		out = append(out, syncLocal{RefID: c.RefID, Name: c.Name, Archived: c.Archived, LastModified: c.LastModifiedTime, Item: choreItem(c)})
	}
	return out, nil
}

func (s choreSync) choreFields(c *domain.Chore, it mirror.Item) error {
	if err := requireName(it, "chore"); err != nil {
		return err
	}
	gen, err := genParamsField(it.Fields, "gen_params", "chore", true)
	if err != nil {
		return err
	}
	c.Name = it.Name
	c.Gen = *gen
	c.Suspended = parseBoolField(it.Fields["suspended"])
	c.MustDo = parseBoolField(it.Fields["must_do"])
	c.StartAtDate = optField(it.Fields, "start_at_date")
	c.EndAtDate = optField(it.Fields, "end_at_date")
	if err := validActiveInterval(c.StartAtDate, c.EndAtDate); err != nil {
		return err
	}
	if p := optField(it.Fields, "project_ref_id"); p != nil {
		c.ProjectRefID = *p
	} else if c.ProjectRefID == "" {
		c.ProjectRefID = s.w.DefaultProjectID
	}
	return nil
}

func (s choreSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	c := domain.Chore{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := s.choreFields(&c, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&c.Archived, &c.ArchivalReason, &c.ArchivedTime, it, now)
	if err := s.e.Repo.InsertChore(ctx, tx, c); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "chore.created", s.w.RefID, "chore", c.RefID, c.Version, "sync", events.Frame{"name": c.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: c.RefID, Name: c.Name, Archived: c.Archived, LastModified: c.LastModifiedTime, Item: choreItem(c)}, nil
}

func (s choreSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	c, err := s.e.Repo.InTx(tx).GetChore(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := s.choreFields(&c, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := c.Archived
	applyArchival(&c.Archived, &c.ArchivalReason, &c.ArchivedTime, it, now)
	c.Version++
	c.LastModifiedTime = now
	if err := s.e.Repo.SaveChore(ctx, tx, c); err != nil {
		return syncLocal{}, err
	}
	if c.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, c.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, "chore.updated", s.w.RefID, "chore", c.RefID, c.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: c.RefID, Name: c.Name, Archived: c.Archived, LastModified: c.LastModifiedTime, Item: choreItem(c)}, nil
}

func (s choreSync) cascade(ctx context.Context, tx *sql.Tx, changed []string) error {
	for _, refID := range changed {
		c, err := s.e.Repo.InTx(tx).GetChore(ctx, refID)
		if err != nil {
			return err
		}
		if c.Archived {
			continue
		}
		if err := s.e.refreshDerivedTaskLinks(ctx, tx, s.w.RefID, c.RefID, c.Gen.Eisen, c.Gen.Difficulty); err != nil {
			return err
		}
	}
	return nil
}

// --- metrics ---

type metricSync struct {
	e Engine
	w domain.Workspace
}

func (metricSync) target() domain.Target { return domain.TargetMetrics }
func (metricSync) collection() string    { return "metrics" }
func (metricSync) schema() []string      { return []string{"collection_params"} }

func metricItem(m domain.Metric) mirror.Item {
	f := map[string]string{}
	if m.Collection != nil {
		f["collection_params"] = genParamsJSON(*m.Collection)
	}
	return mirror.Item{Name: m.Name, Archived: m.Archived, Fields: f}
}

func (s metricSync) locals(ctx context.Context) ([]syncLocal, error) {
	metrics, err := s.e.Repo.ListMetrics(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, syncLocal{RefID: m.RefID, Name: m.Name, Archived: m.Archived, LastModified: m.LastModifiedTime, Item: metricItem(m)})
	}
	return out, nil
}

func (s metricSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	if err := requireName(it, "metric"); err != nil {
		return syncLocal{}, err
	}
	collection, err := genParamsField(it.Fields, "collection_params", "metric", false)
	if err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	m := domain.Metric{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		Name:             it.Name,
		Collection:       collection,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	applyArchival(&m.Archived, &m.ArchivalReason, &m.ArchivedTime, it, now)
	if err := s.e.Repo.InsertMetric(ctx, tx, m); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "metric.created", s.w.RefID, "metric", m.RefID, m.Version, "sync", events.Frame{"name": m.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: m.RefID, Name: m.Name, Archived: m.Archived, LastModified: m.LastModifiedTime, Item: metricItem(m)}, nil
}

func (s metricSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	m, err := s.e.Repo.InTx(tx).GetMetric(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := requireName(it, "metric"); err != nil {
		return syncLocal{}, err
	}
	collection, err := genParamsField(it.Fields, "collection_params", "metric", false)
	if err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := m.Archived
	m.Name = it.Name
	m.Collection = collection
	applyArchival(&m.Archived, &m.ArchivalReason, &m.ArchivedTime, it, now)
	m.Version++
	m.LastModifiedTime = now
	if err := s.e.Repo.SaveMetric(ctx, tx, m); err != nil {
		return syncLocal{}, err
	}
	if m.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, m.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, "metric.updated", s.w.RefID, "metric", m.RefID, m.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: m.RefID, Name: m.Name, Archived: m.Archived, LastModified: m.LastModifiedTime, Item: metricItem(m)}, nil
}

// --- persons ---

type personSync struct {
	e Engine
	w domain.Workspace
}

func (personSync) target() domain.Target { return domain.TargetPersons }
func (personSync) collection() string    { return "persons" }
func (personSync) schema() []string {
	return []string{"relationship", "catch_up_params", "birthday_month", "birthday_day"}
}

func personItem(p domain.Person) mirror.Item {
	f := map[string]string{}
	if p.Relationship != "" {
		f["relationship"] = p.Relationship
	}
	if p.CatchUp != nil {
		f["catch_up_params"] = genParamsJSON(*p.CatchUp)
	}
	if p.BirthdayMonth != nil {
		f["birthday_month"] = strconv.Itoa(*p.BirthdayMonth)
		f["birthday_day"] = strconv.Itoa(*p.BirthdayDay)
	}
	return mirror.Item{Name: p.Name, Archived: p.Archived, Fields: f}
}

func (s personSync) locals(ctx context.Context) ([]syncLocal, error) {
	persons, err := s.e.Repo.ListPersons(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(persons))
	for _, p := range persons {
		out = append(out, syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: personItem(p)})
	}
	return out, nil
}

func (s personSync) personFields(p *domain.Person, it mirror.Item) error {
	if err := requireName(it, "person"); err != nil {
		return err
	}
	catchUp, err := genParamsField(it.Fields, "catch_up_params", "person", false)
	if err != nil {
		return err
	}
	p.Name = it.Name
	p.Relationship = it.Fields["relationship"]
	p.CatchUp = catchUp
	p.BirthdayMonth = nil
	p.BirthdayDay = nil
	if raw := optField(it.Fields, "birthday_month"); raw != nil {
		month, err1 := strconv.Atoi(*raw)
		day, err2 := 0, error(nil)
		if d := optField(it.Fields, "birthday_day"); d != nil {
			day, err2 = strconv.Atoi(*d)
		}
		if err1 != nil || err2 != nil {
			return fmt.Errorf("person record has bad birthday: %w", domain.ErrInvalidInput)
		}
		if err := validBirthday(&month, &day); err != nil {
			return err
		}
		p.BirthdayMonth = &month
		p.BirthdayDay = &day
	}
	return nil
}

func (s personSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	p := domain.Person{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := s.personFields(&p, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&p.Archived, &p.ArchivalReason, &p.ArchivedTime, it, now)
	if err := s.e.Repo.InsertPerson(ctx, tx, p); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "person.created", s.w.RefID, "person", p.RefID, p.Version, "sync", events.Frame{"name": p.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: personItem(p)}, nil
}

func (s personSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	p, err := s.e.Repo.InTx(tx).GetPerson(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := s.personFields(&p, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := p.Archived
	applyArchival(&p.Archived, &p.ArchivalReason, &p.ArchivedTime, it, now)
	p.Version++
	p.LastModifiedTime = now
	if err := s.e.Repo.SavePerson(ctx, tx, p); err != nil {
		return syncLocal{}, err
	}
	if p.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, p.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, "person.updated", s.w.RefID, "person", p.RefID, p.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: personItem(p)}, nil
}

func (s personSync) cascade(ctx context.Context, tx *sql.Tx, changed []string) error {
	for _, refID := range changed {
		p, err := s.e.Repo.InTx(tx).GetPerson(ctx, refID)
		if err != nil {
			return err
		}
		if p.Archived || p.CatchUp == nil {
			continue
		}
		if err := s.e.refreshDerivedTaskLinks(ctx, tx, s.w.RefID, p.RefID, p.CatchUp.Eisen, p.CatchUp.Difficulty); err != nil {
			return err
		}
	}
	return nil
}

// --- big plans ---

type bigPlanSync struct {
	e Engine
	w domain.Workspace
}

func (bigPlanSync) target() domain.Target { return domain.TargetBigPlans }
func (bigPlanSync) collection() string    { return "big-plans" }
func (bigPlanSync) schema() []string {
	return []string{"project_ref_id", "status", "actionable_date", "due_date"}
}

func bigPlanItem(b domain.BigPlan) mirror.Item {
	f := map[string]string{
		"project_ref_id": b.ProjectRefID,
		"status":         string(b.Status),
	}
	if b.ActionableDate != nil {
		f["actionable_date"] = *b.ActionableDate
	}
	if b.DueDate != nil {
		f["due_date"] = *b.DueDate
	}
	return mirror.Item{Name: b.Name, Archived: b.Archived, Fields: f}
}

func (s bigPlanSync) locals(ctx context.Context) ([]syncLocal, error) {
	plans, err := s.e.Repo.ListBigPlans(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(plans))
	for _, b := range plans {
		out = append(out, syncLocal{RefID: b.RefID, Name: b.Name, Archived: b.Archived, LastModified: b.LastModifiedTime, Item: bigPlanItem(b)})
	}
	return out, nil
}

func (s bigPlanSync) bigPlanFields(b *domain.BigPlan, it mirror.Item) error {
	if err := requireName(it, "big plan"); err != nil {
		return err
	}
	status := domain.BigPlanStatus(it.Fields["status"])
	if status == "" {
		status = domain.BigPlanNotStarted
	}
	if !status.Valid() {
		return fmt.Errorf("big plan record has bad status: %w", domain.ErrInvalidInput)
	}
	b.Name = it.Name
	b.Status = status
	b.ActionableDate = optField(it.Fields, "actionable_date")
	b.DueDate = optField(it.Fields, "due_date")
	if err := validDatePair(b.ActionableDate, b.DueDate); err != nil {
		return err
	}
	if p := optField(it.Fields, "project_ref_id"); p != nil {
		b.ProjectRefID = *p
	} else if b.ProjectRefID == "" {
		b.ProjectRefID = s.w.DefaultProjectID
	}
	return nil
}

func (s bigPlanSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	b := domain.BigPlan{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := s.bigPlanFields(&b, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&b.Archived, &b.ArchivalReason, &b.ArchivedTime, it, now)
	if err := s.e.Repo.InsertBigPlan(ctx, tx, b); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "big-plan.created", s.w.RefID, "big-plan", b.RefID, b.Version, "sync", events.Frame{"name": b.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: b.RefID, Name: b.Name, Archived: b.Archived, LastModified: b.LastModifiedTime, Item: bigPlanItem(b)}, nil
}

func (s bigPlanSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	b, err := s.e.Repo.InTx(tx).GetBigPlan(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := s.bigPlanFields(&b, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := b.Archived
	applyArchival(&b.Archived, &b.ArchivalReason, &b.ArchivedTime, it, now)
	b.Version++
	b.LastModifiedTime = now
	if err := s.e.Repo.SaveBigPlan(ctx, tx, b); err != nil {
		return syncLocal{}, err
	}
	if b.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, b.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, "big-plan.updated", s.w.RefID, "big-plan", b.RefID, b.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: b.RefID, Name: b.Name, Archived: b.Archived, LastModified: b.LastModifiedTime, Item: bigPlanItem(b)}, nil
}

// cascade archives stragglers under archived plans, regardless of which
// side drove the archival.
func (s bigPlanSync) cascade(ctx context.Context, tx *sql.Tx, changed []string) error {
	plans, err := s.e.Repo.InTx(tx).ListBigPlans(ctx, s.w.RefID, true)
	if err != nil {
		return err
	}
	for _, b := range plans {
		if !b.Archived {
			continue
		}
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, b.RefID); err != nil {
			return err
		}
	}
	return nil
}

// --- vacations ---

type vacationSync struct {
	e Engine
	w domain.Workspace
}

func (vacationSync) target() domain.Target { return domain.TargetVacations }
func (vacationSync) collection() string    { return "vacations" }
func (vacationSync) schema() []string      { return []string{"start_date", "end_date"} }

func vacationItem(v domain.Vacation) mirror.Item {
	return mirror.Item{Name: v.Name, Archived: v.Archived, Fields: map[string]string{
		"start_date": v.StartDate,
		"end_date":   v.EndDate,
	}}
}

func (s vacationSync) locals(ctx context.Context) ([]syncLocal, error) {
	vacations, err := s.e.Repo.ListVacations(ctx, s.w.RefID, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(vacations))
	for _, v := range vacations {
		out = append(out, syncLocal{RefID: v.RefID, Name: v.Name, Archived: v.Archived, LastModified: v.LastModifiedTime, Item: vacationItem(v)})
	}
	return out, nil
}

func vacationFields(v *domain.Vacation, it mirror.Item) error {
	if err := requireName(it, "vacation"); err != nil {
		return err
	}
	start, err := requireField(it.Fields, "start_date", "vacation")
	if err != nil {
		return err
	}
	end, err := requireField(it.Fields, "end_date", "vacation")
	if err != nil {
		return err
	}
	if err := validActiveInterval(&start, &end); err != nil {
		return err
	}
	v.Name = it.Name
	v.StartDate = start
	v.EndDate = end
	return nil
}

func (s vacationSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	v := domain.Vacation{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := vacationFields(&v, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&v.Archived, &v.ArchivalReason, &v.ArchivedTime, it, now)
	if err := s.e.Repo.InsertVacation(ctx, tx, v); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "vacation.created", s.w.RefID, "vacation", v.RefID, v.Version, "sync", events.Frame{"name": v.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: v.RefID, Name: v.Name, Archived: v.Archived, LastModified: v.LastModifiedTime, Item: vacationItem(v)}, nil
}

func (s vacationSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	v, err := s.e.Repo.InTx(tx).GetVacation(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := vacationFields(&v, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	applyArchival(&v.Archived, &v.ArchivalReason, &v.ArchivedTime, it, now)
	v.Version++
	v.LastModifiedTime = now
	if err := s.e.Repo.SaveVacation(ctx, tx, v); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "vacation.updated", s.w.RefID, "vacation", v.RefID, v.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: v.RefID, Name: v.Name, Archived: v.Archived, LastModified: v.LastModifiedTime, Item: vacationItem(v)}, nil
}

// --- inbox tasks ---

type inboxTaskSync struct {
	e Engine
	w domain.Workspace
}

func (inboxTaskSync) target() domain.Target { return domain.TargetInboxTasks }
func (inboxTaskSync) collection() string    { return "inbox-tasks" }
func (inboxTaskSync) schema() []string {
	return []string{"project_ref_id", "source", "source_entity_ref_id", "status", "eisen", "difficulty", "actionable_date", "due_date", "recurring_timeline", "recurring_type"}
}

func inboxTaskItem(t domain.InboxTask) mirror.Item {
	f := map[string]string{
		"project_ref_id": t.ProjectRefID,
		"source":         string(t.Source),
		"status":         string(t.Status),
		"eisen":          string(t.Eisen),
	}
	if t.SourceEntityRefID != nil {
		f["source_entity_ref_id"] = *t.SourceEntityRefID
	}
	if t.Difficulty != nil {
		f["difficulty"] = string(*t.Difficulty)
	}
	if t.ActionableDate != nil {
		f["actionable_date"] = *t.ActionableDate
	}
	if t.DueDate != nil {
		f["due_date"] = *t.DueDate
	}
	if t.RecurringTimeline != nil {
		f["recurring_timeline"] = *t.RecurringTimeline
	}
	if t.RecurringType != nil {
		f["recurring_type"] = *t.RecurringType
	}
	return mirror.Item{Name: t.Name, Archived: t.Archived, Fields: f}
}

func (s inboxTaskSync) locals(ctx context.Context) ([]syncLocal, error) {
	tasks, err := s.e.Repo.FindInboxTasks(ctx, repo.InboxTaskFilter{WorkspaceID: s.w.RefID, AllowArchived: true})
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, syncLocal{RefID: t.RefID, Name: t.Name, Archived: t.Archived, LastModified: t.LastModifiedTime, Item: inboxTaskItem(t)})
	}
	return out, nil
}

func (s inboxTaskSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	if err := requireName(it, "inbox task"); err != nil {
		return syncLocal{}, err
	}
	status := domain.InboxTaskStatus(it.Fields["status"])
	if status == "" {
		status = domain.StatusNotStarted
	}
	if !status.Valid() {
		return syncLocal{}, fmt.Errorf("inbox task record has bad status: %w", domain.ErrInvalidInput)
	}
	eisen := domain.Eisen(it.Fields["eisen"])
	if eisen == "" {
		eisen = s.e.Config.DefaultEisen()
	}
	if !eisen.Valid() {
		return syncLocal{}, fmt.Errorf("inbox task record has bad eisen: %w", domain.ErrInvalidInput)
	}
	var difficulty *domain.Difficulty
	if raw := optField(it.Fields, "difficulty"); raw != nil {
		d := domain.Difficulty(*raw)
		if !d.Valid() {
			return syncLocal{}, fmt.Errorf("inbox task record has bad difficulty: %w", domain.ErrInvalidInput)
		}
		difficulty = &d
	}
	projectID := it.Fields["project_ref_id"]
	if projectID == "" {
		projectID = s.w.DefaultProjectID
	}
	now := s.e.stamp()
	t := domain.InboxTask{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		Name:             it.Name,
		Source:           domain.SourceUser,
		ProjectRefID:     projectID,
		Status:           status,
		Eisen:            eisen,
		Difficulty:       difficulty,
		ActionableDate:   optField(it.Fields, "actionable_date"),
		DueDate:          optField(it.Fields, "due_date"),
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := validDatePair(t.ActionableDate, t.DueDate); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&t.Archived, &t.ArchivalReason, &t.ArchivedTime, it, now)
	if err := s.e.Repo.InsertInboxTask(ctx, tx, t); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "inbox-task.created", s.w.RefID, "inbox-task", t.RefID, t.Version, "sync", events.Frame{"name": t.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: t.RefID, Name: t.Name, Archived: t.Archived, LastModified: t.LastModifiedTime, Item: inboxTaskItem(t)}, nil
}

func (s inboxTaskSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	t, err := s.e.Repo.InTx(tx).GetInboxTask(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := requireName(it, "inbox task"); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	t.Name = it.Name
	if raw := optField(it.Fields, "status"); raw != nil {
		status := domain.InboxTaskStatus(*raw)
		if !status.Valid() {
			return syncLocal{}, fmt.Errorf("inbox task record has bad status: %w", domain.ErrInvalidInput)
		}
		if status != t.Status && status.Completed() {
			t.CompletedTime = strPtr(now)
		}
		t.Status = status
	}
	if raw := optField(it.Fields, "eisen"); raw != nil {
		eisen := domain.Eisen(*raw)
		if !eisen.Valid() {
			return syncLocal{}, fmt.Errorf("inbox task record has bad eisen: %w", domain.ErrInvalidInput)
		}
		t.Eisen = eisen
	}
	if raw := optField(it.Fields, "difficulty"); raw != nil {
		d := domain.Difficulty(*raw)
		if !d.Valid() {
			return syncLocal{}, fmt.Errorf("inbox task record has bad difficulty: %w", domain.ErrInvalidInput)
		}
		t.Difficulty = &d
	}
	t.ActionableDate = optField(it.Fields, "actionable_date")
	t.DueDate = optField(it.Fields, "due_date")
	if err := validDatePair(t.ActionableDate, t.DueDate); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&t.Archived, &t.ArchivalReason, &t.ArchivedTime, it, now)
	t.Version++
	t.LastModifiedTime = now
	if err := s.e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, "inbox-task.updated", s.w.RefID, "inbox-task", t.RefID, t.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: t.RefID, Name: t.Name, Archived: t.Archived, LastModified: t.LastModifiedTime, Item: inboxTaskItem(t)}, nil
}

// --- push tasks ---

type pushTaskSync struct {
	e    Engine
	w    domain.Workspace
	kind domain.InboxTaskSource
}

func (s pushTaskSync) target() domain.Target {
	if s.kind == domain.SourceEmailTask {
		return domain.TargetEmailTasks
	}
	return domain.TargetSlackTasks
}

func (s pushTaskSync) collection() string { return string(s.kind) + "s" }
func (pushTaskSync) schema() []string     { return []string{"channel", "eisen", "difficulty"} }

func pushTaskItem(p domain.PushTask) mirror.Item {
	f := map[string]string{"eisen": string(p.Eisen)}
	if p.Channel != "" {
		f["channel"] = p.Channel
	}
	if p.Difficulty != nil {
		f["difficulty"] = string(*p.Difficulty)
	}
	return mirror.Item{Name: p.Name, Archived: p.Archived, Fields: f}
}

func (s pushTaskSync) locals(ctx context.Context) ([]syncLocal, error) {
	pushes, err := s.e.Repo.ListPushTasks(ctx, s.w.RefID, s.kind, true)
	if err != nil {
		return nil, err
	}
	out := make([]syncLocal, 0, len(pushes))
	for _, p := range pushes {
		out = append(out, syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: pushTaskItem(p)})
	}
	return out, nil
}

func (s pushTaskSync) pushFields(p *domain.PushTask, it mirror.Item) error {
	if err := requireName(it, string(s.kind)); err != nil {
		return err
	}
	eisen := domain.Eisen(it.Fields["eisen"])
	if eisen == "" {
		eisen = s.e.Config.DefaultEisen()
	}
	if !eisen.Valid() {
		return fmt.Errorf("%s record has bad eisen: %w", s.kind, domain.ErrInvalidInput)
	}
	p.Name = it.Name
	p.Channel = it.Fields["channel"]
	p.Eisen = eisen
	p.Difficulty = nil
	if raw := optField(it.Fields, "difficulty"); raw != nil {
		d := domain.Difficulty(*raw)
		if !d.Valid() {
			return fmt.Errorf("%s record has bad difficulty: %w", s.kind, domain.ErrInvalidInput)
		}
		p.Difficulty = &d
	}
	return nil
}

func (s pushTaskSync) createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error) {
	now := s.e.stamp()
	p := domain.PushTask{
		RefID:            newID(),
		WorkspaceID:      s.w.RefID,
		Version:          1,
		Kind:             s.kind,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	if err := s.pushFields(&p, it); err != nil {
		return syncLocal{}, err
	}
	applyArchival(&p.Archived, &p.ArchivalReason, &p.ArchivedTime, it, now)
	if err := s.e.Repo.InsertPushTask(ctx, tx, p); err != nil {
		return syncLocal{}, err
	}
	if err := s.e.Events.Append(ctx, tx, string(s.kind)+".created", s.w.RefID, string(s.kind), p.RefID, p.Version, "sync", events.Frame{"name": p.Name}); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: pushTaskItem(p)}, nil
}

func (s pushTaskSync) applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error) {
	p, err := s.e.Repo.InTx(tx).GetPushTask(ctx, local.RefID)
	if err != nil {
		return syncLocal{}, err
	}
	if err := s.pushFields(&p, it); err != nil {
		return syncLocal{}, err
	}
	now := s.e.stamp()
	wasArchived := p.Archived
	applyArchival(&p.Archived, &p.ArchivalReason, &p.ArchivedTime, it, now)
	p.Version++
	p.LastModifiedTime = now
	if err := s.e.Repo.SavePushTask(ctx, tx, p); err != nil {
		return syncLocal{}, err
	}
	if p.Archived && !wasArchived {
		if _, err := s.e.archiveDerivedTasks(ctx, tx, s.w.RefID, p.RefID); err != nil {
			return syncLocal{}, err
		}
	}
	if err := s.e.Events.Append(ctx, tx, string(s.kind)+".updated", s.w.RefID, string(s.kind), p.RefID, p.Version, "sync", nil); err != nil {
		return syncLocal{}, err
	}
	return syncLocal{RefID: p.RefID, Name: p.Name, Archived: p.Archived, LastModified: p.LastModifiedTime, Item: pushTaskItem(p)}, nil
}
