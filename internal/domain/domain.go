package domain

// Period is the recurrence granularity of a generator.
type Period string

const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// AllPeriods in ascending granularity order.
var AllPeriods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly}

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

type InboxTaskSource string

const (
	SourceUser           InboxTaskSource = "user"
	SourceHabit          InboxTaskSource = "habit"
	SourceChore          InboxTaskSource = "chore"
	SourceBigPlan        InboxTaskSource = "big-plan"
	SourceMetric         InboxTaskSource = "metric"
	SourcePersonBirthday InboxTaskSource = "person-birthday"
	SourcePersonCatchUp  InboxTaskSource = "person-catch-up"
	SourceSlackTask      InboxTaskSource = "slack-task"
	SourceEmailTask      InboxTaskSource = "email-task"
)

// Derived reports whether tasks with this source are generator-owned.
func (s InboxTaskSource) Derived() bool {
	return s != SourceUser
}

type InboxTaskStatus string

const (
	StatusNotStarted InboxTaskStatus = "not-started"
	StatusAccepted   InboxTaskStatus = "accepted"
	StatusInProgress InboxTaskStatus = "in-progress"
	StatusBlocked    InboxTaskStatus = "blocked"
	StatusNotDone    InboxTaskStatus = "not-done"
	StatusDone       InboxTaskStatus = "done"
)

// Completed means the task needs no further work.
func (s InboxTaskStatus) Completed() bool {
	return s == StatusDone || s == StatusNotDone
}

func (s InboxTaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusAccepted, StatusInProgress, StatusBlocked, StatusNotDone, StatusDone:
		return true
	}
	return false
}

type Eisen string

const (
	EisenRegular            Eisen = "regular"
	EisenImportant          Eisen = "important"
	EisenUrgent             Eisen = "urgent"
	EisenImportantAndUrgent Eisen = "important-and-urgent"
)

func (e Eisen) Valid() bool {
	switch e {
	case EisenRegular, EisenImportant, EisenUrgent, EisenImportantAndUrgent:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type ArchivalReason string

const (
	ArchivalReasonUser           ArchivalReason = "user"
	ArchivalReasonParentArchived ArchivalReason = "parent-archived"
	ArchivalReasonCompleted      ArchivalReason = "completed"
	ArchivalReasonGC             ArchivalReason = "gc"
)

type RepeatsStrategy string

const (
	RepeatsAllSame            RepeatsStrategy = "all-same"
	RepeatsSpreadOutNoOverlap RepeatsStrategy = "spread-out-no-overlap"
)

func (s RepeatsStrategy) Valid() bool {
	return s == RepeatsAllSame || s == RepeatsSpreadOutNoOverlap
}

// Target names an entity class operated on by gen/gc/sync runs.
type Target string

const (
	TargetInboxTasks Target = "inbox-tasks"
	TargetHabits     Target = "habits"
	TargetChores     Target = "chores"
	TargetMetrics    Target = "metrics"
	TargetPersons    Target = "persons"
	TargetBigPlans   Target = "big-plans"
	TargetVacations  Target = "vacations"
	TargetSlackTasks Target = "slack-tasks"
	TargetEmailTasks Target = "email-tasks"
)

var AllTargets = []Target{
	TargetInboxTasks, TargetHabits, TargetChores, TargetMetrics,
	TargetPersons, TargetBigPlans, TargetVacations, TargetSlackTasks, TargetEmailTasks,
}

type SyncPrefer string

const (
	SyncPreferLocal  SyncPrefer = "local"
	SyncPreferNotion SyncPrefer = "notion"
)

type BigPlanStatus string

const (
	BigPlanNotStarted BigPlanStatus = "not-started"
	BigPlanAccepted   BigPlanStatus = "accepted"
	BigPlanInProgress BigPlanStatus = "in-progress"
	BigPlanBlocked    BigPlanStatus = "blocked"
	BigPlanNotDone    BigPlanStatus = "not-done"
	BigPlanDone       BigPlanStatus = "done"
)

func (s BigPlanStatus) Completed() bool {
	return s == BigPlanDone || s == BigPlanNotDone
}

func (s BigPlanStatus) Valid() bool {
	switch s {
	case BigPlanNotStarted, BigPlanAccepted, BigPlanInProgress, BigPlanBlocked, BigPlanNotDone, BigPlanDone:
		return true
	}
	return false
}

// Feature flags gate entity kinds per workspace.
type Feature string

const (
	FeatureInboxTasks Feature = "inbox-tasks"
	FeatureHabits     Feature = "habits"
	FeatureChores     Feature = "chores"
	FeatureMetrics    Feature = "metrics"
	FeaturePersons    Feature = "persons"
	FeatureBigPlans   Feature = "big-plans"
	FeatureVacations  Feature = "vacations"
	FeatureSlackTasks Feature = "slack-tasks"
	FeatureEmailTasks Feature = "email-tasks"
	FeatureProjects   Feature = "projects"
)

var AllFeatures = []Feature{
	FeatureInboxTasks, FeatureHabits, FeatureChores, FeatureMetrics, FeaturePersons,
	FeatureBigPlans, FeatureVacations, FeatureSlackTasks, FeatureEmailTasks, FeatureProjects,
}

// FeatureForTarget maps a run target to the feature flag that gates it.
func FeatureForTarget(t Target) Feature {
	switch t {
	case TargetInboxTasks:
		return FeatureInboxTasks
	case TargetHabits:
		return FeatureHabits
	case TargetChores:
		return FeatureChores
	case TargetMetrics:
		return FeatureMetrics
	case TargetPersons:
		return FeaturePersons
	case TargetBigPlans:
		return FeatureBigPlans
	case TargetVacations:
		return FeatureVacations
	case TargetSlackTasks:
		return FeatureSlackTasks
	case TargetEmailTasks:
		return FeatureEmailTasks
	}
	return ""
}

// Workspace is the root entity; every other entity hangs off it.
type Workspace struct {
	RefID            string          `json:"ref_id"`
	Version          int             `json:"version"`
	Name             string          `json:"name"`
	Timezone         string          `json:"timezone"`
	Features         map[string]bool `json:"features"`
	DefaultProjectID string          `json:"default_project_ref_id"`
	CreatedTime      string          `json:"created_time" format:"date-time"`
	LastModifiedTime string          `json:"last_modified_time" format:"date-time"`
}

// FeatureEnabled treats an absent flag as enabled.
func (w Workspace) FeatureEnabled(f Feature) bool {
	if w.Features == nil {
		return true
	}
	on, ok := w.Features[string(f)]
	if !ok {
		return true
	}
	return on
}

// InferTargets filters a target set down to the enabled features.
func (w Workspace) InferTargets(targets []Target) []Target {
	var out []Target
	for _, t := range targets {
		if w.FeatureEnabled(FeatureForTarget(t)) {
			out = append(out, t)
		}
	}
	return out
}

type User struct {
	RefID       string `json:"ref_id"`
	WorkspaceID string `json:"workspace_ref_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	CreatedTime string `json:"created_time" format:"date-time"`
}

// Project is the branch level grouping inbox tasks and big plans.
type Project struct {
	RefID            string  `json:"ref_id"`
	WorkspaceID      string  `json:"workspace_ref_id"`
	Version          int     `json:"version"`
	Archived         bool    `json:"archived"`
	ArchivalReason   *string `json:"archival_reason,omitempty"`
	Name             string  `json:"name"`
	IsRoot           bool    `json:"is_root"`
	CreatedTime      string  `json:"created_time" format:"date-time"`
	LastModifiedTime string  `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string `json:"archived_time,omitempty" format:"date-time"`
}

// InboxTask is the atomic unit of work, user-created or generator-derived.
type InboxTask struct {
	RefID             string          `json:"ref_id"`
	WorkspaceID       string          `json:"workspace_ref_id"`
	Version           int             `json:"version"`
	Archived          bool            `json:"archived"`
	ArchivalReason    *string         `json:"archival_reason,omitempty"`
	Name              string          `json:"name"`
	Source            InboxTaskSource `json:"source"`
	SourceEntityRefID *string         `json:"source_entity_ref_id,omitempty"`
	ProjectRefID      string          `json:"project_ref_id"`
	Status            InboxTaskStatus `json:"status"`
	Eisen             Eisen           `json:"eisen"`
	Difficulty        *Difficulty     `json:"difficulty,omitempty"`
	ActionableDate    *string         `json:"actionable_date,omitempty" format:"date"`
	DueDate           *string         `json:"due_date,omitempty" format:"date"`
	DueTime           *string         `json:"due_time,omitempty" format:"date-time"`
	RecurringTimeline *string         `json:"recurring_timeline,omitempty"`
	RecurringGenAt    *string         `json:"recurring_gen_right_now,omitempty" format:"date-time"`
	RecurringType     *string         `json:"recurring_type,omitempty"`
	AcceptedTime      *string         `json:"accepted_time,omitempty" format:"date-time"`
	WorkingTime       *string         `json:"working_time,omitempty" format:"date-time"`
	CompletedTime     *string         `json:"completed_time,omitempty" format:"date-time"`
	CreatedTime       string          `json:"created_time" format:"date-time"`
	LastModifiedTime  string          `json:"last_modified_time" format:"date-time"`
	ArchivedTime      *string         `json:"archived_time,omitempty" format:"date-time"`
}

// GenParams are the optional recurrence anchors shared by every generator
// kind (habits, chores, metric collection, person catch-ups).
type GenParams struct {
	Period              Period      `json:"period"`
	Eisen               Eisen       `json:"eisen,omitempty"`
	Difficulty          *Difficulty `json:"difficulty,omitempty"`
	ActionableFromDay   *int        `json:"actionable_from_day,omitempty"`
	ActionableFromMonth *int        `json:"actionable_from_month,omitempty"`
	DueAtTime           *string     `json:"due_at_time,omitempty"`
	DueAtDay            *int        `json:"due_at_day,omitempty"`
	DueAtMonth          *int        `json:"due_at_month,omitempty"`
	SkipRule            *string     `json:"skip_rule,omitempty"`
}

type Habit struct {
	RefID            string          `json:"ref_id"`
	WorkspaceID      string          `json:"workspace_ref_id"`
	Version          int             `json:"version"`
	Archived         bool            `json:"archived"`
	ArchivalReason   *string         `json:"archival_reason,omitempty"`
	Name             string          `json:"name"`
	ProjectRefID     string          `json:"project_ref_id"`
	Gen              GenParams       `json:"gen_params"`
	Suspended        bool            `json:"suspended"`
	MustDo           bool            `json:"must_do"`
	StartAtDate      *string         `json:"start_at_date,omitempty" format:"date"`
	EndAtDate        *string         `json:"end_at_date,omitempty" format:"date"`
	RepeatsInPeriod  *int            `json:"repeats_in_period_count,omitempty"`
	RepeatsStrategy  RepeatsStrategy `json:"repeats_strategy,omitempty"`
	CreatedTime      string          `json:"created_time" format:"date-time"`
	LastModifiedTime string          `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string         `json:"archived_time,omitempty" format:"date-time"`
}

type Chore struct {
	RefID            string    `json:"ref_id"`
	WorkspaceID      string    `json:"workspace_ref_id"`
	Version          int       `json:"version"`
	Archived         bool      `json:"archived"`
	ArchivalReason   *string   `json:"archival_reason,omitempty"`
	Name             string    `json:"name"`
	ProjectRefID     string    `json:"project_ref_id"`
	Gen              GenParams `json:"gen_params"`
	Suspended        bool      `json:"suspended"`
	MustDo           bool      `json:"must_do"`
	StartAtDate      *string   `json:"start_at_date,omitempty" format:"date"`
	EndAtDate        *string   `json:"end_at_date,omitempty" format:"date"`
	CreatedTime      string    `json:"created_time" format:"date-time"`
	LastModifiedTime string    `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string   `json:"archived_time,omitempty" format:"date-time"`
}

type Metric struct {
	RefID            string     `json:"ref_id"`
	WorkspaceID      string     `json:"workspace_ref_id"`
	Version          int        `json:"version"`
	Archived         bool       `json:"archived"`
	ArchivalReason   *string    `json:"archival_reason,omitempty"`
	Name             string     `json:"name"`
	Collection       *GenParams `json:"collection_params,omitempty"`
	CreatedTime      string     `json:"created_time" format:"date-time"`
	LastModifiedTime string     `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string    `json:"archived_time,omitempty" format:"date-time"`
}

type Person struct {
	RefID            string     `json:"ref_id"`
	WorkspaceID      string     `json:"workspace_ref_id"`
	Version          int        `json:"version"`
	Archived         bool       `json:"archived"`
	ArchivalReason   *string    `json:"archival_reason,omitempty"`
	Name             string     `json:"name"`
	Relationship     string     `json:"relationship,omitempty"`
	CatchUp          *GenParams `json:"catch_up_params,omitempty"`
	BirthdayMonth    *int       `json:"birthday_month,omitempty"`
	BirthdayDay      *int       `json:"birthday_day,omitempty"`
	CreatedTime      string     `json:"created_time" format:"date-time"`
	LastModifiedTime string     `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string    `json:"archived_time,omitempty" format:"date-time"`
}

type BigPlan struct {
	RefID            string        `json:"ref_id"`
	WorkspaceID      string        `json:"workspace_ref_id"`
	Version          int           `json:"version"`
	Archived         bool          `json:"archived"`
	ArchivalReason   *string       `json:"archival_reason,omitempty"`
	Name             string        `json:"name"`
	ProjectRefID     string        `json:"project_ref_id"`
	Status           BigPlanStatus `json:"status"`
	ActionableDate   *string       `json:"actionable_date,omitempty" format:"date"`
	DueDate          *string       `json:"due_date,omitempty" format:"date"`
	CreatedTime      string        `json:"created_time" format:"date-time"`
	LastModifiedTime string        `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string       `json:"archived_time,omitempty" format:"date-time"`
}

// Vacation is an inclusive [start, end] civil-date window.
type Vacation struct {
	RefID            string  `json:"ref_id"`
	WorkspaceID      string  `json:"workspace_ref_id"`
	Version          int     `json:"version"`
	Archived         bool    `json:"archived"`
	ArchivalReason   *string `json:"archival_reason,omitempty"`
	Name             string  `json:"name"`
	StartDate        string  `json:"start_date" format:"date"`
	EndDate          string  `json:"end_date" format:"date"`
	CreatedTime      string  `json:"created_time" format:"date-time"`
	LastModifiedTime string  `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string `json:"archived_time,omitempty" format:"date-time"`
}

// PushTask is a Slack or email message captured as a one-shot generator.
type PushTask struct {
	RefID            string          `json:"ref_id"`
	WorkspaceID      string          `json:"workspace_ref_id"`
	Version          int             `json:"version"`
	Archived         bool            `json:"archived"`
	ArchivalReason   *string         `json:"archival_reason,omitempty"`
	Kind             InboxTaskSource `json:"kind"`
	Name             string          `json:"name"`
	Channel          string          `json:"channel,omitempty"`
	Eisen            Eisen           `json:"eisen"`
	Difficulty       *Difficulty     `json:"difficulty,omitempty"`
	CreatedTime      string          `json:"created_time" format:"date-time"`
	LastModifiedTime string          `json:"last_modified_time" format:"date-time"`
	ArchivedTime     *string         `json:"archived_time,omitempty" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Kind        string `json:"kind"`
	WorkspaceID string `json:"workspace_ref_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	Version     int    `json:"version"`
	Source      string `json:"source"`
	Frame       string `json:"frame_json"`
}

type GenLogEntry struct {
	RefID                string   `json:"ref_id"`
	WorkspaceID          string   `json:"workspace_ref_id"`
	GenEvenIfNotModified bool     `json:"gen_even_if_not_modified"`
	Targets              []string `json:"targets"`
	RightNow             string   `json:"right_now" format:"date-time"`
	OpenedTime           string   `json:"opened_time" format:"date-time"`
	ClosedTime           *string  `json:"closed_time,omitempty" format:"date-time"`
	Complete             bool     `json:"complete"`
	EntriesJSON          string   `json:"entries_json"`
}

type GCLogEntry struct {
	RefID       string   `json:"ref_id"`
	WorkspaceID string   `json:"workspace_ref_id"`
	Targets     []string `json:"targets"`
	OpenedTime  string   `json:"opened_time" format:"date-time"`
	ClosedTime  *string  `json:"closed_time,omitempty" format:"date-time"`
	Complete    bool     `json:"complete"`
	EntriesJSON string   `json:"entries_json"`
}
