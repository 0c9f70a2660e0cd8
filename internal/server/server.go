// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/repo"
)

type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"habit abc not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Dayline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Dayline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerInit(group, cfg.Engine)
	registerOps(group, cfg.Engine)
	registerInboxTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyExists):
		return newAPIError(http.StatusConflict, "already_exists", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentModification):
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(), nil)
	case errors.Is(err, domain.ErrMirrorConflict):
		return newAPIError(http.StatusConflict, "mirror_conflict", err.Error(), nil)
	case errors.Is(err, domain.ErrFeatureDisabled):
		return newAPIError(http.StatusForbidden, "feature_disabled", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, domain.ErrMirrorTimeout):
		return newAPIError(http.StatusGatewayTimeout, "mirror_timeout", err.Error(), nil)
	case errors.Is(err, domain.ErrMirrorUnavailable):
		return newAPIError(http.StatusBadGateway, "mirror_unavailable", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func parseTargets(names []string) ([]domain.Target, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := map[domain.Target]bool{}
	for _, t := range domain.AllTargets {
		known[t] = true
	}
	targets := make([]domain.Target, 0, len(names))
	for _, n := range names {
		t := domain.Target(n)
		if !known[t] {
			return nil, fmt.Errorf("unknown target %q: %w", n, domain.ErrInvalidInput)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerInit(api huma.API, e engine.Engine) {
	type initRequest struct {
		WorkspaceName string          `json:"workspace_name"`
		Timezone      string          `json:"timezone,omitempty"`
		UserEmail     string          `json:"user_email"`
		UserName      string          `json:"user_name,omitempty"`
		Features      map[string]bool `json:"features,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "init-workspace",
		Method:      http.MethodPost,
		Path:        "/init",
		Summary:     "Initialize the workspace",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body initRequest `json:"body"`
	}) (*struct {
		Body engine.InitResult `json:"body"`
	}, error) {
		res, err := e.InitWorkspace(ctx, engine.InitOptions{
			WorkspaceName: input.Body.WorkspaceName,
			Timezone:      input.Body.Timezone,
			UserEmail:     input.Body.UserEmail,
			UserName:      input.Body.UserName,
			Features:      input.Body.Features,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.InitResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerOps(api huma.API, e engine.Engine) {
	type genRequest struct {
		RightNow          string   `json:"right_now,omitempty" format:"date-time"`
		Targets           []string `json:"targets,omitempty"`
		Periods           []string `json:"periods,omitempty"`
		SourceRefIDs      []string `json:"source_ref_ids,omitempty"`
		EvenIfNotModified bool     `json:"even_if_not_modified,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        "/generate",
		Summary:     "Generate inbox tasks from recurring sources",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body genRequest `json:"body"`
	}) (*struct {
		Body engine.GenReport `json:"body"`
	}, error) {
		targets, err := parseTargets(input.Body.Targets)
		if err != nil {
			return nil, handleError(err)
		}
		args := engine.GenArgs{
			Targets:           targets,
			SourceRefIDs:      input.Body.SourceRefIDs,
			EvenIfNotModified: input.Body.EvenIfNotModified,
		}
		for _, p := range input.Body.Periods {
			period := domain.Period(p)
			if !period.Valid() {
				return nil, handleError(fmt.Errorf("unknown period %q: %w", p, domain.ErrInvalidInput))
			}
			args.PeriodFilter = append(args.PeriodFilter, period)
		}
		if input.Body.RightNow != "" {
			rightNow, err := time.Parse(time.RFC3339, input.Body.RightNow)
			if err != nil {
				return nil, handleError(fmt.Errorf("right_now must be RFC3339: %w", domain.ErrInvalidInput))
			}
			args.RightNow = rightNow
		}
		report, err := e.Generate(ctx, args)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GenReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "gc",
		Method:      http.MethodPost,
		Path:        "/gc",
		Summary:     "Archive finished work",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Targets []string `json:"targets,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body engine.GCReport `json:"body"`
	}, error) {
		targets, err := parseTargets(input.Body.Targets)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.GC(ctx, targets)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GCReport `json:"body"`
		}{Body: report}, nil
	})

	type syncRequest struct {
		Targets           []string `json:"targets,omitempty"`
		Prefer            string   `json:"prefer,omitempty"`
		DropAllRemote     bool     `json:"drop_all_remote,omitempty"`
		EvenIfNotModified bool     `json:"even_if_not_modified,omitempty"`
		SourceRefIDs      []string `json:"source_ref_ids,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "sync",
		Method:      http.MethodPost,
		Path:        "/sync",
		Summary:     "Reconcile the workspace with the notebook mirror",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusBadGateway, http.StatusGatewayTimeout},
	}, func(ctx context.Context, input *struct {
		Body syncRequest `json:"body"`
	}) (*struct {
		Body engine.SyncReport `json:"body"`
	}, error) {
		targets, err := parseTargets(input.Body.Targets)
		if err != nil {
			return nil, handleError(err)
		}
		if p := input.Body.Prefer; p != "" && p != string(domain.SyncPreferLocal) && p != string(domain.SyncPreferNotion) {
			return nil, handleError(fmt.Errorf("prefer must be local or notion: %w", domain.ErrInvalidInput))
		}
		report, err := e.Sync(ctx, engine.SyncArgs{
			Targets:           targets,
			Prefer:            domain.SyncPrefer(input.Body.Prefer),
			DropAllRemote:     input.Body.DropAllRemote,
			EvenIfNotModified: input.Body.EvenIfNotModified,
			SourceRefIDs:      input.Body.SourceRefIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SyncReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-all",
		Method:      http.MethodPost,
		Path:        "/clear-all",
		Summary:     "Hard-delete every entity in the workspace",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ClearReport `json:"body"`
	}, error) {
		report, err := e.ClearAll(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ClearReport `json:"body"`
		}{Body: report}, nil
	})
}

type paginatedInboxTasks struct {
	Items      []domain.InboxTask `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func registerInboxTasks(api huma.API, e engine.Engine) {
	type createRequest struct {
		Name           string  `json:"name"`
		ProjectRefID   string  `json:"project_ref_id,omitempty"`
		Eisen          string  `json:"eisen,omitempty"`
		Difficulty     *string `json:"difficulty,omitempty"`
		ActionableDate *string `json:"actionable_date,omitempty" format:"date"`
		DueDate        *string `json:"due_date,omitempty" format:"date"`
		BigPlanRefID   string  `json:"big_plan_ref_id,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "create-inbox-task",
		Method:      http.MethodPost,
		Path:        "/inbox-tasks",
		Summary:     "Create inbox task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body createRequest `json:"body"`
	}) (*struct {
		Body domain.InboxTask `json:"body"`
	}, error) {
		opts := engine.InboxTaskCreateOptions{
			Name:           input.Body.Name,
			ProjectRefID:   input.Body.ProjectRefID,
			Eisen:          domain.Eisen(input.Body.Eisen),
			ActionableDate: input.Body.ActionableDate,
			DueDate:        input.Body.DueDate,
			BigPlanRefID:   input.Body.BigPlanRefID,
		}
		if input.Body.Difficulty != nil {
			d := domain.Difficulty(*input.Body.Difficulty)
			opts.Difficulty = &d
		}
		t, err := e.CreateInboxTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InboxTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inbox-tasks",
		Method:      http.MethodGet,
		Path:        "/inbox-tasks",
		Summary:     "List inbox tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Limit         int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Cursor        string `query:"cursor"`
		Status        string `query:"status"`
		Source        string `query:"source"`
		ProjectRefID  string `query:"project_ref_id"`
		AllowArchived bool   `query:"allow_archived"`
	}) (*struct {
		Body paginatedInboxTasks `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorkspace(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		filter := repo.InboxTaskFilter{
			WorkspaceID:   w.RefID,
			AllowArchived: input.AllowArchived,
			ProjectRefID:  input.ProjectRefID,
			Limit:         limit + 1,
			Cursor:        input.Cursor,
		}
		if input.Status != "" {
			status := domain.InboxTaskStatus(input.Status)
			if !status.Valid() {
				return nil, handleError(fmt.Errorf("unknown status %q: %w", input.Status, domain.ErrInvalidInput))
			}
			filter.Statuses = []domain.InboxTaskStatus{status}
		}
		if input.Source != "" {
			filter.Sources = []domain.InboxTaskSource{domain.InboxTaskSource(input.Source)}
		}
		tasks, err := e.Repo.FindInboxTasks(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedInboxTasks{Items: []domain.InboxTask{}}
		if len(tasks) > limit {
			resp.NextCursor = tasks[limit-1].RefID
			tasks = tasks[:limit]
		}
		resp.Items = tasks
		return &struct {
			Body paginatedInboxTasks `json:"body"`
		}{Body: resp}, nil
	})

	type taskPath struct {
		RefID string `path:"ref_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-inbox-task",
		Method:      http.MethodGet,
		Path:        "/inbox-tasks/{ref_id}",
		Summary:     "Get inbox task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.InboxTask `json:"body"`
	}, error) {
		t, err := e.Repo.GetInboxTask(ctx, input.RefID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InboxTask `json:"body"`
		}{Body: t}, nil
	})

	type updateRequest struct {
		Name           *string `json:"name,omitempty"`
		Status         *string `json:"status,omitempty"`
		Eisen          *string `json:"eisen,omitempty"`
		Difficulty     *string `json:"difficulty,omitempty"`
		ActionableDate *string `json:"actionable_date,omitempty" format:"date"`
		DueDate        *string `json:"due_date,omitempty" format:"date"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "update-inbox-task",
		Method:      http.MethodPatch,
		Path:        "/inbox-tasks/{ref_id}",
		Summary:     "Update inbox task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RefID string        `path:"ref_id"`
		Body  updateRequest `json:"body"`
	}) (*struct {
		Body domain.InboxTask `json:"body"`
	}, error) {
		var upd engine.InboxTaskUpdate
		if input.Body.Name != nil {
			upd.Name = domain.ChangeTo(*input.Body.Name)
		}
		if input.Body.Status != nil {
			upd.Status = domain.ChangeTo(domain.InboxTaskStatus(*input.Body.Status))
		}
		if input.Body.Eisen != nil {
			upd.Eisen = domain.ChangeTo(domain.Eisen(*input.Body.Eisen))
		}
		if input.Body.Difficulty != nil {
			// empty string clears the difficulty
			if *input.Body.Difficulty == "" {
				upd.Difficulty = domain.ChangeTo[*domain.Difficulty](nil)
			} else {
				d := domain.Difficulty(*input.Body.Difficulty)
				upd.Difficulty = domain.ChangeTo(&d)
			}
		}
		if input.Body.ActionableDate != nil {
			upd.ActionableDate = domain.ChangeTo(input.Body.ActionableDate)
		}
		if input.Body.DueDate != nil {
			upd.DueDate = domain.ChangeTo(input.Body.DueDate)
		}
		t, err := e.UpdateInboxTask(ctx, input.RefID, upd)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InboxTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-inbox-task",
		Method:      http.MethodPost,
		Path:        "/inbox-tasks/{ref_id}/archive",
		Summary:     "Archive inbox task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.InboxTask `json:"body"`
	}, error) {
		t, err := e.ArchiveInboxTask(ctx, input.RefID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.InboxTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-inbox-task",
		Method:      http.MethodDelete,
		Path:        "/inbox-tasks/{ref_id}",
		Summary:     "Remove inbox task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := e.RemoveInboxTask(ctx, input.RefID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "removed"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event journal, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		events, err := e.ListEvents(ctx, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: events}, nil
	})
}
