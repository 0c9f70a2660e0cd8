// Package engine holds the service layer: workspace init, entity CRUD,
// generation, garbage collection, clear-all and mirror sync. Every
// operation opens one transaction, writes entity rows and event rows
// together and commits or rolls back whole.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/mirror"
	"dayline/internal/progress"
	"dayline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Mirror   mirror.Mirror
	Progress progress.Reporter
	Now      func() time.Time

	// MirrorTimeout bounds each notebook call during sync.
	MirrorTimeout time.Duration
	// MirrorFailLimit aborts a sync run after this many consecutive
	// transient mirror failures.
	MirrorFailLimit int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:              db,
		Repo:            repo.Repo{DB: db},
		Events:          events.Writer{DB: db},
		Config:          cfg,
		Progress:        progress.Noop{},
		Now:             time.Now,
		MirrorTimeout:   10 * time.Second,
		MirrorFailLimit: 3,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) reporter() progress.Reporter {
	if e.Progress != nil {
		return e.Progress
	}
	return progress.Noop{}
}

func newID() string {
	return uuid.NewString()
}

func (e Engine) workspace(ctx context.Context) (domain.Workspace, error) {
	return e.Repo.GetWorkspace(ctx)
}

func requireFeature(w domain.Workspace, f domain.Feature) error {
	if !w.FeatureEnabled(f) {
		return fmt.Errorf("feature %s: %w", f, domain.ErrFeatureDisabled)
	}
	return nil
}

// InitOptions are parameters for initializing a workspace.
type InitOptions struct {
	WorkspaceName string
	Timezone      string
	UserEmail     string
	UserName      string
	Features      map[string]bool
}

// InitResult carries everything a fresh client needs to talk to the
// workspace afterwards.
type InitResult struct {
	Workspace     domain.Workspace `json:"workspace"`
	User          domain.User      `json:"user"`
	RootProject   domain.Project   `json:"root_project"`
	AuthToken     string           `json:"auth_token"`
	RecoveryToken string           `json:"recovery_token"`
}

// InitWorkspace creates the single workspace, its root project, the
// owning user and the tokens for API access. Fails with ALREADY_EXISTS
// when a workspace is present.
func (e Engine) InitWorkspace(ctx context.Context, opts InitOptions) (InitResult, error) {
	if opts.WorkspaceName == "" {
		return InitResult{}, fmt.Errorf("workspace name is required: %w", domain.ErrInvalidInput)
	}
	if opts.UserEmail == "" {
		return InitResult{}, fmt.Errorf("user email is required: %w", domain.ErrInvalidInput)
	}
	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return InitResult{}, fmt.Errorf("timezone %q: %w", tz, domain.ErrInvalidInput)
	}
	for name := range opts.Features {
		known := false
		for _, f := range domain.AllFeatures {
			if name == string(f) {
				known = true
				break
			}
		}
		if !known {
			return InitResult{}, fmt.Errorf("unknown feature %q: %w", name, domain.ErrInvalidInput)
		}
	}
	if _, err := e.Repo.GetWorkspace(ctx); err == nil {
		return InitResult{}, fmt.Errorf("workspace: %w", domain.ErrAlreadyExists)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return InitResult{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	root := domain.Project{
		RefID:            newID(),
		Version:          1,
		Name:             "Life",
		IsRoot:           true,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	w := domain.Workspace{
		RefID:            newID(),
		Version:          1,
		Name:             opts.WorkspaceName,
		Timezone:         tz,
		Features:         opts.Features,
		DefaultProjectID: root.RefID,
		CreatedTime:      now,
		LastModifiedTime: now,
	}
	root.WorkspaceID = w.RefID
	u := domain.User{
		RefID:       newID(),
		WorkspaceID: w.RefID,
		Email:       opts.UserEmail,
		Name:        opts.UserName,
		CreatedTime: now,
	}
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return InitResult{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Repo.InsertProject(ctx, tx, root); err != nil {
		return InitResult{}, fmt.Errorf("insert root project: %w", err)
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return InitResult{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "workspace.init", w.RefID, "workspace", w.RefID, w.Version, "cli", events.Frame{"name": w.Name, "timezone": w.Timezone}); err != nil {
		return InitResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return InitResult{}, err
	}

	token, err := e.mintAuthToken(u.Email)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{
		Workspace:     w,
		User:          u,
		RootProject:   root,
		AuthToken:     token,
		RecoveryToken: newID(),
	}, nil
}

func (e Engine) mintAuthToken(subject string) (string, error) {
	secret := ""
	if e.Config != nil {
		secret = e.Config.Auth.JWTSecret
	}
	if secret == "" {
		return "", fmt.Errorf("auth.jwt_secret is not configured: %w", domain.ErrInvalidInput)
	}
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(e.now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ListEvents exposes the journal tail.
func (e Engine) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	w, err := e.workspace(ctx)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListEvents(ctx, w.RefID, limit)
}
