package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"curabot/internal/db"
	"curabot/internal/domain"
	"curabot/internal/migrate"
	"curabot/internal/repo"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Service{Repo: repo.Repo{DB: conn}, Log: log}
}

func seedProject(t *testing.T, s Service, id, userID string) domain.Project {
	t.Helper()
	p := domain.Project{
		ID:        id,
		UserID:    userID,
		Name:      "Signup flow",
		URL:       "https://app.example.com",
		Objective: "Complete signup",
		Status:    "running",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertProject(context.Background(), p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func TestSaveStepCreatesAnalysisLazily(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	patch := repo.StepPatch{
		ID:         "step-1",
		AnalysisID: "an-1",
		StepNumber: 1,
		Timestamp:  "2026-01-02T10:00:00Z",
		Action:     strPtr("navigate"),
	}
	if err := s.SaveStep(ctx, "user-1", p.ID, patch); err != nil {
		t.Fatalf("save step: %v", err)
	}
	a, err := s.Repo.GetAnalysis(ctx, "an-1")
	if err != nil {
		t.Fatalf("analysis not created: %v", err)
	}
	if a.URL != p.URL || a.Objective != p.Objective {
		t.Fatalf("analysis does not inherit project fields: %+v", a)
	}
}

func TestSaveStepRejectsForeignProject(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "owner")
	patch := repo.StepPatch{ID: "step-1", AnalysisID: "an-1", StepNumber: 1}
	if err := s.SaveStep(ctx, "intruder", p.ID, patch); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveStepRequiresIdentity(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	if err := s.SaveStep(ctx, "user-1", p.ID, repo.StepPatch{AnalysisID: "an-1"}); !errors.Is(err, repo.ErrValidation) {
		t.Fatalf("missing step id: expected ErrValidation, got %v", err)
	}
	if err := s.SaveStep(ctx, "user-1", p.ID, repo.StepPatch{ID: "step-1"}); !errors.Is(err, repo.ErrValidation) {
		t.Fatalf("missing analysis id: expected ErrValidation, got %v", err)
	}
}

func TestSaveStepTwoCallMerge(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	first := repo.StepPatch{
		ID:         "step-1",
		AnalysisID: "an-1",
		StepNumber: 1,
		Timestamp:  "2026-01-02T10:00:00Z",
		Action:     strPtr("click"),
		StepStatus: strPtr("pending"),
	}
	if err := s.SaveStep(ctx, "user-1", p.ID, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := repo.StepPatch{
		ID:         "step-1",
		AnalysisID: "an-1",
		StepNumber: 1,
		Timestamp:  "2026-01-02T10:00:03Z",
		StepStatus: strPtr("completed"),
	}
	if err := s.SaveStep(ctx, "user-1", p.ID, second); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := s.Repo.ForUser("user-1").GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	steps := got.Analyses[0].Steps
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].Action != "click" {
		t.Fatalf("action lost: %q", steps[0].Action)
	}
	if steps[0].StepStatus != "completed" {
		t.Fatalf("status not advanced: %q", steps[0].StepStatus)
	}
}

func TestApplyResultUnwrapsCompletionSummary(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	err := s.ApplyResult(ctx, ResultUpdate{
		ProjectID:     p.ID,
		Summary:       `{"completionSummary":"All steps passed"}`,
		ProjectStatus: "completed",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := s.Repo.GetProjectByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LatestAnalysisSummary == nil || *got.LatestAnalysisSummary != "All steps passed" {
		t.Fatalf("summary not unwrapped: %v", got.LatestAnalysisSummary)
	}
	if got.Status != "completed" {
		t.Fatalf("status: %s", got.Status)
	}
}

func TestApplyResultStoresPlainSummaryVerbatim(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	if err := s.ApplyResult(ctx, ResultUpdate{ProjectID: p.ID, Summary: "Run aborted early"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := s.Repo.GetProjectByID(ctx, p.ID)
	if got.LatestAnalysisSummary == nil || *got.LatestAnalysisSummary != "Run aborted early" {
		t.Fatalf("summary: %v", got.LatestAnalysisSummary)
	}
}

func TestApplyResultSkipsUnknownAnalysis(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	err := s.ApplyResult(ctx, ResultUpdate{
		ProjectID:      p.ID,
		ProjectStatus:  "completed",
		AnalysisStatus: "completed",
		AnalysisID:     "never-created",
	})
	if err != nil {
		t.Fatalf("unknown analysis must not fail the update: %v", err)
	}
	got, _ := s.Repo.GetProjectByID(ctx, p.ID)
	if got.Status != "completed" {
		t.Fatalf("project update skipped: %s", got.Status)
	}
}

func TestApplyResultStampsCompletedAt(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	if err := s.Repo.EnsureAnalysis(ctx, "an-1", p.ID, "2026-01-02T10:00:00Z"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	err := s.ApplyResult(ctx, ResultUpdate{
		ProjectID:      p.ID,
		Summary:        "done",
		ProjectStatus:  "completed",
		AnalysisStatus: "completed",
		AnalysisID:     "an-1",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	a, err := s.Repo.GetAnalysis(ctx, "an-1")
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if a.Status != "completed" {
		t.Fatalf("status: %s", a.Status)
	}
	if a.CompletedAt == nil {
		t.Fatal("completedAt not stamped on terminal status")
	}
	if a.Summary == nil || *a.Summary != "done" {
		t.Fatalf("summary: %v", a.Summary)
	}
}

func TestMarkFailed(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	p := seedProject(t, s, "proj-1", "user-1")
	if err := s.MarkFailed(ctx, p.ID, "Automation failed to start: connection refused"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := s.Repo.GetProjectByID(ctx, p.ID)
	if got.Status != "failed" {
		t.Fatalf("status: %s", got.Status)
	}
	if got.LatestAnalysisSummary == nil || *got.LatestAnalysisSummary == "" {
		t.Fatal("failure reason not recorded")
	}
}
