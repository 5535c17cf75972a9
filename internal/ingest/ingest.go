// Package ingest applies observations from the automation service to the
// store. It is the single write path for steps and analysis results, shared
// by the HTTP ingestion endpoints and the server-side stream watcher.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"curabot/internal/repo"
)

type Service struct {
	Repo repo.Repo
	Log  *logrus.Logger
}

// SaveStep is the step gateway: it checks the project belongs to the caller,
// lazily creates the analysis row, then folds the patch into the steps table.
// Calling it twice with the same patch leaves one row.
func (s Service) SaveStep(ctx context.Context, userID, projectID string, patch repo.StepPatch) error {
	if patch.ID == "" {
		return fmt.Errorf("%w: step id is required", repo.ErrValidation)
	}
	if patch.AnalysisID == "" {
		return fmt.Errorf("%w: step analysisId is required", repo.ErrValidation)
	}
	p, err := s.Repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if userID != "" && p.UserID != userID {
		return repo.ErrNotFound
	}
	if patch.Timestamp == "" {
		patch.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.Repo.EnsureAnalysis(ctx, patch.AnalysisID, projectID, patch.Timestamp); err != nil {
		return err
	}
	if err := s.Repo.UpsertStep(ctx, patch); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{
		"project":  projectID,
		"analysis": patch.AnalysisID,
		"step":     patch.ID,
	}).Debug("step persisted")
	return nil
}

// ResultUpdate carries the automation service's final (or interim) verdict
// for a project run.
type ResultUpdate struct {
	ProjectID      string
	Summary        string
	ProjectStatus  string
	AnalysisStatus string
	AnalysisID     string
	Steps          []repo.StepPatch
}

// ApplyResult updates the project's denormalized outcome columns and, when
// an analysis id is supplied and resolves, the analysis row itself. A
// summary that arrives as `{"completionSummary": ...}` is unwrapped before
// storage; anything else is stored verbatim.
func (s Service) ApplyResult(ctx context.Context, u ResultUpdate) error {
	if u.ProjectID == "" {
		return fmt.Errorf("%w: projectId is required", repo.ErrValidation)
	}
	if _, err := s.Repo.GetProjectByID(ctx, u.ProjectID); err != nil {
		return err
	}

	summary := u.Summary
	if summary != "" {
		summary = unwrapCompletionSummary(summary)
	}

	var pf repo.ProjectResultFields
	if u.ProjectStatus != "" {
		pf.Status = &u.ProjectStatus
	}
	if u.AnalysisStatus != "" {
		pf.LatestAnalysisStatus = &u.AnalysisStatus
	}
	if summary != "" {
		pf.LatestAnalysisSummary = &summary
	}
	if err := s.Repo.UpdateProjectResultFields(ctx, u.ProjectID, pf); err != nil {
		return err
	}

	for _, patch := range u.Steps {
		if err := s.SaveStep(ctx, "", u.ProjectID, patch); err != nil {
			return err
		}
	}

	if u.AnalysisID == "" {
		return nil
	}
	if _, err := s.Repo.GetAnalysis(ctx, u.AnalysisID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// The analysis the service named does not exist here. Keep
			// the project-level result and move on.
			s.Log.WithFields(logrus.Fields{
				"project":  u.ProjectID,
				"analysis": u.AnalysisID,
			}).Warn("result names unknown analysis; skipping analysis update")
			return nil
		}
		return err
	}
	var af repo.AnalysisResultFields
	if u.AnalysisStatus != "" {
		af.Status = &u.AnalysisStatus
		if u.AnalysisStatus == "completed" || u.AnalysisStatus == "failed" {
			now := time.Now().UTC().Format(time.RFC3339)
			af.CompletedAt = &now
		}
	}
	if summary != "" {
		af.Summary = &summary
	}
	return s.Repo.UpdateAnalysisResultFields(ctx, u.AnalysisID, af)
}

// MarkFailed records an upstream failure as project state instead of
// surfacing it to the caller.
func (s Service) MarkFailed(ctx context.Context, projectID, reason string) error {
	failed := "failed"
	return s.Repo.UpdateProjectResultFields(ctx, projectID, repo.ProjectResultFields{
		Status:                &failed,
		LatestAnalysisStatus:  &failed,
		LatestAnalysisSummary: &reason,
	})
}

func unwrapCompletionSummary(raw string) string {
	var wrapper struct {
		CompletionSummary json.RawMessage `json:"completionSummary"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil || wrapper.CompletionSummary == nil {
		return raw
	}
	var s string
	if err := json.Unmarshal(wrapper.CompletionSummary, &s); err == nil {
		return s
	}
	return string(wrapper.CompletionSummary)
}
