package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dayline/internal/domain"
	"dayline/internal/mirror"
	"dayline/internal/repo"
)

// SyncArgs are parameters for a mirror sync run.
type SyncArgs struct {
	Targets           []domain.Target
	DropAllRemote     bool
	EvenIfNotModified bool
	Prefer            domain.SyncPrefer
	SourceRefIDs      []string
}

// SyncReportEntry records one reconciliation decision.
type SyncReportEntry struct {
	Target   domain.Target `json:"target"`
	RefID    string        `json:"ref_id,omitempty"`
	RemoteID string        `json:"remote_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Action   string        `json:"action"`
	Detail   string        `json:"detail,omitempty"`
}

type SyncReport struct {
	Entries       []SyncReportEntry `json:"entries"`
	CreatedLocal  int               `json:"created_local"`
	UpdatedLocal  int               `json:"updated_local"`
	CreatedRemote int               `json:"created_remote"`
	UpdatedRemote int               `json:"updated_remote"`
	RemovedRemote int               `json:"removed_remote"`
	Unchanged     int               `json:"unchanged"`
	Warnings      int               `json:"warnings"`
}

func (r *SyncReport) add(e SyncReportEntry) {
	r.Entries = append(r.Entries, e)
	switch e.Action {
	case "created-local":
		r.CreatedLocal++
	case "updated-local":
		r.UpdatedLocal++
	case "created-remote":
		r.CreatedRemote++
	case "updated-remote":
		r.UpdatedRemote++
	case "removed-remote":
		r.RemovedRemote++
	case "warning":
		r.Warnings++
	default:
		r.Unchanged++
	}
}

// syncLocal is an entity viewed through the mirror schema.
type syncLocal struct {
	RefID        string
	Name         string
	Archived     bool
	LastModified string
	Item         mirror.Item
}

// syncAdapter projects one entity class onto a mirror collection.
type syncAdapter interface {
	target() domain.Target
	collection() string
	schema() []string
	locals(ctx context.Context) ([]syncLocal, error)
	createLocal(ctx context.Context, tx *sql.Tx, it mirror.Item) (syncLocal, error)
	applyRemote(ctx context.Context, tx *sql.Tx, local syncLocal, it mirror.Item) (syncLocal, error)
}

// syncCascader is implemented by adapters whose reconciliation must be
// followed by structural repair of dependent entities.
type syncCascader interface {
	cascade(ctx context.Context, tx *sql.Tx, changed []string) error
}

// mirrorSession tracks consecutive transient failures across mirror
// calls; exceeding the limit turns the next failure fatal.
type mirrorSession struct {
	e           Engine
	consecutive int
}

// call runs one mirror operation under the per-call deadline. The
// boolean reports whether a failure must abort the run.
func (s *mirrorSession) call(ctx context.Context, fn func(context.Context) error) (bool, error) {
	cctx := ctx
	if s.e.MirrorTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.e.MirrorTimeout)
		defer cancel()
	}
	err := fn(cctx)
	if err == nil {
		s.consecutive = 0
		return false, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("mirror call: %w", domain.ErrMirrorTimeout)
	}
	if errors.Is(err, domain.ErrMirrorTimeout) || errors.Is(err, domain.ErrMirrorUnavailable) || errors.Is(err, domain.ErrNotFound) {
		s.consecutive++
		if s.consecutive >= s.e.MirrorFailLimit {
			return true, fmt.Errorf("aborting after %d consecutive mirror failures: %w", s.consecutive, err)
		}
		return false, err
	}
	return true, err
}

func (e Engine) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) syncAdapterFor(w domain.Workspace, target domain.Target) syncAdapter {
	switch target {
	case domain.TargetInboxTasks:
		return inboxTaskSync{e: e, w: w}
	case domain.TargetHabits:
		return habitSync{e: e, w: w}
	case domain.TargetChores:
		return choreSync{e: e, w: w}
	case domain.TargetMetrics:
		return metricSync{e: e, w: w}
	case domain.TargetPersons:
		return personSync{e: e, w: w}
	case domain.TargetBigPlans:
		return bigPlanSync{e: e, w: w}
	case domain.TargetVacations:
		return vacationSync{e: e, w: w}
	case domain.TargetSlackTasks:
		return pushTaskSync{e: e, w: w, kind: domain.SourceSlackTask}
	case domain.TargetEmailTasks:
		return pushTaskSync{e: e, w: w, kind: domain.SourceEmailTask}
	}
	return nil
}

// Sync reconciles local entities with the notebook mirror, collection
// by collection. Local truth wins on structural divergence; field
// conflicts resolve by prefer policy and modification timestamps.
func (e Engine) Sync(ctx context.Context, args SyncArgs) (SyncReport, error) {
	if e.Mirror == nil {
		return SyncReport{}, fmt.Errorf("mirror is not configured: %w", domain.ErrMirrorUnavailable)
	}
	w, err := e.workspace(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	targets := args.Targets
	if targets == nil {
		targets = []domain.Target{
			domain.TargetVacations, domain.TargetHabits, domain.TargetChores,
			domain.TargetMetrics, domain.TargetPersons, domain.TargetBigPlans,
			domain.TargetInboxTasks, domain.TargetSlackTasks, domain.TargetEmailTasks,
		}
	}
	targets = w.InferTargets(targets)
	prefer := args.Prefer
	if prefer == "" {
		prefer = e.Config.SyncPrefer()
	}

	session := &mirrorSession{e: e}
	if _, err := session.call(ctx, func(c context.Context) error {
		_, err := e.Mirror.UpsertPage(c, w.Name)
		return err
	}); err != nil {
		return SyncReport{}, err
	}
	if args.DropAllRemote {
		if _, err := session.call(ctx, func(c context.Context) error {
			return e.Mirror.DropAll(c)
		}); err != nil {
			return SyncReport{}, err
		}
	}

	var report SyncReport
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		ad := e.syncAdapterFor(w, target)
		if ad == nil {
			continue
		}
		if err := e.syncCollection(ctx, w, ad, prefer, args, session, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e Engine) syncCollection(ctx context.Context, w domain.Workspace, ad syncAdapter, prefer domain.SyncPrefer, args SyncArgs, session *mirrorSession, report *SyncReport) error {
	rep := e.reporter()
	target := ad.target()
	done := rep.Section("sync " + ad.collection())
	defer done()

	// structural repair is idempotent and must succeed
	if _, err := session.call(ctx, func(c context.Context) error {
		_, err := e.Mirror.UpsertCollection(c, ad.collection(), ad.schema())
		return err
	}); err != nil {
		return err
	}

	locals, err := ad.locals(ctx)
	if err != nil {
		return err
	}
	byRef := make(map[string]syncLocal, len(locals))
	for _, l := range locals {
		byRef[l.RefID] = l
	}

	var remotes []mirror.Item
	if _, err := session.call(ctx, func(c context.Context) error {
		var lerr error
		remotes, lerr = e.Mirror.ListItems(c, ad.collection())
		return lerr
	}); err != nil {
		return err
	}

	want := func(refID string) bool {
		if len(args.SourceRefIDs) == 0 {
			return true
		}
		for _, id := range args.SourceRefIDs {
			if id == refID {
				return true
			}
		}
		return false
	}
	warn := func(remoteID, detail string) {
		rep.Warn(ad.collection(), remoteID, detail)
		report.add(SyncReportEntry{Target: target, RemoteID: remoteID, Action: "warning", Detail: detail})
	}
	removeStray := func(r mirror.Item, detail string) error {
		fatal, err := session.call(ctx, func(c context.Context) error {
			return e.Mirror.RemoveItem(c, ad.collection(), r.RemoteID)
		})
		if fatal {
			return err
		}
		if err != nil {
			warn(r.RemoteID, err.Error())
			return nil
		}
		rep.MarkRemoved(ad.collection(), r.RemoteID, r.Name)
		report.add(SyncReportEntry{Target: target, RefID: r.RefID, RemoteID: r.RemoteID, Name: r.Name, Action: "removed-remote", Detail: detail})
		return nil
	}

	seen := map[string]bool{}
	var changed []string
	for _, r := range remotes {
		if ctx.Err() != nil {
			break
		}
		if r.RefID == "" {
			// born on the remote side: adopt it locally and link back
			var nl syncLocal
			if err := e.withTx(ctx, func(tx *sql.Tx) error {
				var cerr error
				nl, cerr = ad.createLocal(ctx, tx, r)
				if cerr != nil {
					return cerr
				}
				return e.Repo.SaveMirrorLink(ctx, tx, ad.collection(), nl.RefID, w.RefID, r.RemoteID, e.stamp())
			}); err != nil {
				return err
			}
			if fatal, err := session.call(ctx, func(c context.Context) error {
				return e.Mirror.LinkItem(c, ad.collection(), r.RemoteID, nl.RefID)
			}); fatal {
				return err
			} else if err != nil {
				warn(r.RemoteID, err.Error())
			}
			seen[nl.RefID] = true
			rep.MarkCreated(ad.collection(), nl.RefID, nl.Name)
			report.add(SyncReportEntry{Target: target, RefID: nl.RefID, RemoteID: r.RemoteID, Name: nl.Name, Action: "created-local"})
			continue
		}
		if !want(r.RefID) {
			continue
		}
		l, ok := byRef[r.RefID]
		if !ok || seen[r.RefID] {
			if err := removeStray(r, "ref id unknown locally"); err != nil {
				return err
			}
			continue
		}
		link, lerr := e.Repo.GetMirrorLink(ctx, ad.collection(), r.RefID)
		switch {
		case lerr == nil && link != r.RemoteID:
			// diverged claim on the same ref id
			if err := removeStray(r, fmt.Errorf("link mismatch: %w", domain.ErrMirrorConflict).Error()); err != nil {
				return err
			}
			continue
		case isNotFound(lerr):
			if err := e.withTx(ctx, func(tx *sql.Tx) error {
				return e.Repo.SaveMirrorLink(ctx, tx, ad.collection(), r.RefID, w.RefID, r.RemoteID, e.stamp())
			}); err != nil {
				return err
			}
		case lerr != nil:
			return lerr
		}
		seen[r.RefID] = true

		switch {
		case prefer == domain.SyncPreferNotion && (args.EvenIfNotModified || r.LastEditedTime > l.LastModified):
			var nl syncLocal
			if err := e.withTx(ctx, func(tx *sql.Tx) error {
				var aerr error
				nl, aerr = ad.applyRemote(ctx, tx, l, r)
				return aerr
			}); err != nil {
				return err
			}
			changed = append(changed, nl.RefID)
			rep.MarkUpdated(ad.collection(), nl.RefID, nl.Name)
			report.add(SyncReportEntry{Target: target, RefID: nl.RefID, RemoteID: r.RemoteID, Name: nl.Name, Action: "updated-local"})
		case prefer == domain.SyncPreferLocal && (args.EvenIfNotModified || l.LastModified > r.LastEditedTime):
			push := l.Item
			push.RemoteID = r.RemoteID
			push.RefID = l.RefID
			push.Name = l.Name
			push.Archived = l.Archived
			if fatal, err := session.call(ctx, func(c context.Context) error {
				_, serr := e.Mirror.SaveItem(c, ad.collection(), push)
				return serr
			}); fatal {
				return err
			} else if err != nil {
				warn(r.RemoteID, err.Error())
				continue
			}
			rep.MarkUpdated(ad.collection(), l.RefID, l.Name)
			report.add(SyncReportEntry{Target: target, RefID: l.RefID, RemoteID: r.RemoteID, Name: l.Name, Action: "updated-remote"})
		default:
			report.add(SyncReportEntry{Target: target, RefID: l.RefID, RemoteID: r.RemoteID, Name: l.Name, Action: "unchanged"})
		}
	}

	// locals never observed remotely
	for _, l := range locals {
		if ctx.Err() != nil {
			break
		}
		if seen[l.RefID] || l.Archived || !want(l.RefID) {
			continue
		}
		push := l.Item
		push.RefID = l.RefID
		push.Name = l.Name
		var saved mirror.Item
		if fatal, err := session.call(ctx, func(c context.Context) error {
			var serr error
			saved, serr = e.Mirror.SaveItem(c, ad.collection(), push)
			return serr
		}); fatal {
			return err
		} else if err != nil {
			warn(l.RefID, err.Error())
			continue
		}
		if err := e.withTx(ctx, func(tx *sql.Tx) error {
			return e.Repo.SaveMirrorLink(ctx, tx, ad.collection(), l.RefID, w.RefID, saved.RemoteID, e.stamp())
		}); err != nil {
			return err
		}
		rep.MarkCreated(ad.collection(), l.RefID, l.Name)
		report.add(SyncReportEntry{Target: target, RefID: l.RefID, RemoteID: saved.RemoteID, Name: l.Name, Action: "created-remote"})
	}

	if c, ok := ad.(syncCascader); ok {
		if err := e.withTx(ctx, func(tx *sql.Tx) error {
			return c.cascade(ctx, tx, changed)
		}); err != nil {
			return err
		}
	}
	return nil
}

// refreshDerivedTaskLinks pushes a generator's current eisen and
// difficulty onto its non-archived generated tasks.
func (e Engine) refreshDerivedTaskLinks(ctx context.Context, tx *sql.Tx, workspaceID, sourceRefID string, eisen domain.Eisen, difficulty *domain.Difficulty) error {
	tasks, err := e.Repo.InTx(tx).FindInboxTasks(ctx, repo.InboxTaskFilter{
		WorkspaceID:       workspaceID,
		SourceEntityRefID: sourceRefID,
	})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if eisen != "" {
			t.Eisen = eisen
		}
		t.Difficulty = difficulty
		t.Version++
		t.LastModifiedTime = e.stamp()
		if err := e.Repo.SaveInboxTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "inbox-task.update-link", workspaceID, "inbox-task", t.RefID, t.Version, "sync", nil); err != nil {
			return err
		}
	}
	return nil
}
