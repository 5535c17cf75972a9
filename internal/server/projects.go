package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"curabot/internal/automation"
	"curabot/internal/domain"
	"curabot/internal/ingest"
	"curabot/internal/repo"
)

func registerProjects(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := cfg.Repo.ForUser(userID).ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body ProjectsResponse `json:"body"`
		}{Body: ProjectsResponse{Projects: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-project",
		Method:      http.MethodPost,
		Path:        "/projects/new",
		Summary:     "Create project",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" || input.Body.URL == "" || input.Body.Objective == "" {
			return nil, newAPIError(http.StatusBadRequest, "name, url and objective are required")
		}
		p := domain.Project{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      input.Body.Name,
			URL:       input.Body.URL,
			Objective: input.Body.Objective,
			Status:    "pending",
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Analyses:  []domain.Analysis{},
		}
		if err := cfg.Repo.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-step",
		Method:      http.MethodPost,
		Path:        "/projects/saveStep",
		Summary:     "Persist an automation step",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProjectID string    `json:"projectId" minLength:"1"`
			Step      StepInput `json:"step"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Saved bool `json:"saved"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Ingest.SaveStep(ctx, userID, input.Body.ProjectID, input.Body.Step.patch()); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Saved bool `json:"saved"`
			} `json:"body"`
		}{}
		out.Body.Saved = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-result",
		Method:      http.MethodPost,
		Path:        "/projects/updateResult",
		Summary:     "Apply an automation run result",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		APIKey string `header:"x-api-key"`
		Body   struct {
			ProjectID      string      `json:"projectId" minLength:"1"`
			Summary        string      `json:"summary,omitempty"`
			ProjectStatus  string      `json:"projectStatus,omitempty" enum:",pending,running,completed,failed"`
			AnalysisStatus string      `json:"analysisStatus,omitempty" enum:",pending,completed,failed"`
			AnalysisID     string      `json:"analysisId,omitempty"`
			Steps          []StepInput `json:"steps,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Updated bool `json:"updated"`
		} `json:"body"`
	}, error) {
		if authErr := requireServiceKey(input.APIKey, cfg.Auth); authErr != nil {
			return nil, authErr
		}
		update := ingest.ResultUpdate{
			ProjectID:      input.Body.ProjectID,
			Summary:        input.Body.Summary,
			ProjectStatus:  input.Body.ProjectStatus,
			AnalysisStatus: input.Body.AnalysisStatus,
			AnalysisID:     input.Body.AnalysisID,
		}
		for _, s := range input.Body.Steps {
			update.Steps = append(update.Steps, s.patch())
		}
		if err := cfg.Ingest.ApplyResult(ctx, update); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Updated bool `json:"updated"`
			} `json:"body"`
		}{}
		out.Body.Updated = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status",
		Method:      http.MethodPost,
		Path:        "/projects/updateStatus",
		Summary:     "Update project status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ProjectID string `json:"projectId" minLength:"1"`
			Status    string `json:"status" enum:"pending,running,completed,failed"`
		} `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scoped := cfg.Repo.ForUser(userID)
		if err := scoped.UpdateProjectStatus(ctx, input.Body.ProjectID, input.Body.Status); err != nil {
			return nil, handleError(err)
		}
		p, err := scoped.GetProject(ctx, input.Body.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project snapshot",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := cfg.Repo.ForUser(userID).GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Analyses == nil {
			p.Analyses = []domain.Analysis{}
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}",
		Summary:     "Start automation for a project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scoped := cfg.Repo.ForUser(userID)
		p, err := scoped.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		running := "running"
		if err := cfg.Repo.UpdateProjectResultFields(ctx, p.ID, repo.ProjectResultFields{Status: &running}); err != nil {
			return nil, handleError(err)
		}
		runErr := cfg.Automation.Run(ctx, automation.RunRequest{
			ProjectID:   p.ID,
			ProjectName: p.Name,
			URL:         p.URL,
			Objective:   p.Objective,
		})
		if runErr != nil {
			// The run never started. Record the failure as project state
			// and hand the degraded snapshot back.
			cfg.Log.WithError(runErr).WithField("project", p.ID).Error("automation trigger failed")
			if err := cfg.Ingest.MarkFailed(ctx, p.ID, "Automation failed to start: "+runErr.Error()); err != nil {
				return nil, handleError(err)
			}
		} else {
			w := &automation.Watcher{Client: cfg.Automation, Ingest: cfg.Ingest, Log: cfg.Log}
			go w.Watch(cfg.WatchCtx, p.ID, userID)
		}
		p, err = scoped.GetProject(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Analyses == nil {
			p.Analyses = []domain.Analysis{}
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: ProjectResponse{Project: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body struct {
			Deleted bool `json:"deleted"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Repo.ForUser(userID).DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Deleted bool `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Deleted = true
		return out, nil
	})
}
