package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"curabot/internal/domain"
)

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,user_id,name,url,objective,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.Name, p.URL, p.Objective, p.Status, p.CreatedAt)
	return err
}

func (s Scoped) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var latestStatus, latestSummary sql.NullString
	err := s.r.DB.QueryRowContext(ctx, `SELECT id,user_id,name,url,objective,status,latest_analysis_status,latest_analysis_summary,created_at FROM projects WHERE id=? AND user_id=?`, id, s.UserID).
		Scan(&p.ID, &p.UserID, &p.Name, &p.URL, &p.Objective, &p.Status, &latestStatus, &latestSummary, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if latestStatus.Valid {
		p.LatestAnalysisStatus = &latestStatus.String
	}
	if latestSummary.Valid {
		p.LatestAnalysisSummary = &latestSummary.String
	}
	if err := checkProject(p); err != nil {
		return p, err
	}
	analyses, err := s.r.loadAnalyses(ctx, p.ID)
	if err != nil {
		return p, err
	}
	p.Analyses = analyses
	return p, nil
}

func (s Scoped) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.r.DB.QueryContext(ctx, `SELECT id,user_id,name,url,objective,status,latest_analysis_status,latest_analysis_summary,created_at FROM projects WHERE user_id=? ORDER BY created_at DESC, id DESC`, s.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var latestStatus, latestSummary sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.URL, &p.Objective, &p.Status, &latestStatus, &latestSummary, &p.CreatedAt); err != nil {
			return nil, err
		}
		if latestStatus.Valid {
			p.LatestAnalysisStatus = &latestStatus.String
		}
		if latestSummary.Valid {
			p.LatestAnalysisSummary = &latestSummary.String
		}
		if err := checkProject(p); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		analyses, err := s.r.loadAnalyses(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Analyses = analyses
	}
	return res, nil
}

func (s Scoped) DeleteProject(ctx context.Context, id string) error {
	res, err := s.r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=? AND user_id=?`, id, s.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Scoped) UpdateProjectStatus(ctx context.Context, id, status string) error {
	res, err := s.r.DB.ExecContext(ctx, `UPDATE projects SET status=? WHERE id=? AND user_id=?`, status, id, s.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProjectByID looks a project up without an owner filter. Internal
// reconciliation paths use it; HTTP handlers go through Scoped.
func (r Repo) GetProjectByID(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var latestStatus, latestSummary sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,name,url,objective,status,latest_analysis_status,latest_analysis_summary,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.UserID, &p.Name, &p.URL, &p.Objective, &p.Status, &latestStatus, &latestSummary, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if latestStatus.Valid {
		p.LatestAnalysisStatus = &latestStatus.String
	}
	if latestSummary.Valid {
		p.LatestAnalysisSummary = &latestSummary.String
	}
	return p, nil
}

// ProjectResultFields is a partial update of a project's outcome columns.
// Nil fields are left untouched.
type ProjectResultFields struct {
	Status                *string
	LatestAnalysisStatus  *string
	LatestAnalysisSummary *string
}

func (r Repo) UpdateProjectResultFields(ctx context.Context, id string, f ProjectResultFields) error {
	var (
		fields []string
		args   []any
	)
	if f.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *f.Status)
	}
	if f.LatestAnalysisStatus != nil {
		fields = append(fields, "latest_analysis_status=?")
		args = append(args, *f.LatestAnalysisStatus)
	}
	if f.LatestAnalysisSummary != nil {
		fields = append(fields, "latest_analysis_summary=?")
		args = append(args, *f.LatestAnalysisSummary)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAnalysis creates the analysis row if it does not exist yet, copying
// url and objective from the parent project. Concurrent callers race on the
// same id; ON CONFLICT DO NOTHING makes the loser a no-op, so the first
// write wins and the row is never duplicated.
func (r Repo) EnsureAnalysis(ctx context.Context, analysisID, projectID, startedAt string) error {
	p, err := r.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.URL == "" || p.Objective == "" {
		return fmt.Errorf("%w: project %s has no url or objective; cannot start analysis", ErrValidation, projectID)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO analyses(id,project_id,url,objective,status,started_at) VALUES (?,?,?,?,'pending',?)
ON CONFLICT(id) DO NOTHING`, analysisID, projectID, p.URL, p.Objective, startedAt)
	return err
}

func (r Repo) GetAnalysis(ctx context.Context, id string) (domain.Analysis, error) {
	var a domain.Analysis
	var completedAt, summary sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,url,objective,status,started_at,completed_at,summary FROM analyses WHERE id=?`, id).
		Scan(&a.ID, &a.ProjectID, &a.URL, &a.Objective, &a.Status, &a.StartedAt, &completedAt, &summary)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.String
	}
	if summary.Valid {
		a.Summary = &summary.String
	}
	return a, nil
}

// AnalysisResultFields is a partial update of an analysis outcome. Nil
// fields are left untouched.
type AnalysisResultFields struct {
	Status      *string
	Summary     *string
	CompletedAt *string
}

func (r Repo) UpdateAnalysisResultFields(ctx context.Context, id string, f AnalysisResultFields) error {
	var (
		fields []string
		args   []any
	)
	if f.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *f.Status)
	}
	if f.Summary != nil {
		fields = append(fields, "summary=?")
		args = append(args, nullable(*f.Summary))
	}
	if f.CompletedAt != nil {
		fields = append(fields, "completed_at=?")
		args = append(args, *f.CompletedAt)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE analyses SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// StepPatch is one observed slice of a step. The automation service sends
// the same step several times as it progresses, each time with a different
// subset of fields filled in. Nil means "not reported this time", never
// "clear the stored value".
type StepPatch struct {
	ID             string
	AnalysisID     string
	StepNumber     int
	Timestamp      string
	Action         *string
	StepStatus     *string
	Args           json.RawMessage
	Result         json.RawMessage
	ScreenshotPath *string
	Analysis       *domain.StepAnalysis
	Error          *string
	CompletedAt    *string
}

// UpsertStep inserts the step or folds the patch into the existing row.
// Only the columns the patch actually carries appear in the DO UPDATE
// clause, so a later sparse report cannot erase fields a richer earlier
// report already stored.
func (r Repo) UpsertStep(ctx context.Context, p StepPatch) error {
	if p.ID == "" || p.AnalysisID == "" {
		return fmt.Errorf("step id and analysis id are required")
	}
	var analysisJSON any
	if p.Analysis != nil {
		b, err := json.Marshal(p.Analysis)
		if err != nil {
			return err
		}
		analysisJSON = string(b)
	}
	var argsJSON, resultJSON any
	if p.Args != nil {
		argsJSON = string(p.Args)
	}
	if p.Result != nil {
		resultJSON = string(p.Result)
	}

	cols := []string{"id", "analysis_id", "step_number", "ts"}
	args := []any{p.ID, p.AnalysisID, p.StepNumber, p.Timestamp}
	updates := []string{"step_number=excluded.step_number", "ts=excluded.ts"}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", col, col))
	}
	if p.Action != nil {
		add("action", *p.Action)
	}
	if p.StepStatus != nil {
		add("step_status", *p.StepStatus)
	}
	if argsJSON != nil {
		add("args_json", argsJSON)
	}
	if resultJSON != nil {
		add("result_json", resultJSON)
	}
	if p.ScreenshotPath != nil {
		add("screenshot_path", *p.ScreenshotPath)
	}
	if analysisJSON != nil {
		add("analysis_json", analysisJSON)
	}
	if p.Error != nil {
		add("error", *p.Error)
	}
	if p.CompletedAt != nil {
		add("completed_at", *p.CompletedAt)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	query := fmt.Sprintf(`INSERT INTO steps(%s) VALUES (%s)
ON CONFLICT(id) DO UPDATE SET %s`, strings.Join(cols, ","), placeholders, strings.Join(updates, ", "))
	_, err := r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r Repo) loadAnalyses(ctx context.Context, projectID string) ([]domain.Analysis, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,url,objective,status,started_at,completed_at,summary FROM analyses WHERE project_id=? ORDER BY started_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var completedAt, summary sql.NullString
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.URL, &a.Objective, &a.Status, &a.StartedAt, &completedAt, &summary); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.String
		}
		if summary.Valid {
			a.Summary = &summary.String
		}
		if a.URL == "" {
			return nil, integrityErr("analysis", a.ID, "url")
		}
		if a.Objective == "" {
			return nil, integrityErr("analysis", a.ID, "objective")
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		steps, err := r.loadSteps(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Steps = steps
	}
	return res, nil
}

func (r Repo) loadSteps(ctx context.Context, analysisID string) ([]domain.Step, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,analysis_id,step_number,action,step_status,args_json,result_json,screenshot_path,analysis_json,error,ts,completed_at FROM steps WHERE analysis_id=? ORDER BY step_number ASC, ts ASC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Step
	for rows.Next() {
		var st domain.Step
		var action, status, argsJSON, resultJSON, screenshot, analysisJSON, stepErr, completedAt sql.NullString
		if err := rows.Scan(&st.ID, &st.AnalysisID, &st.StepNumber, &action, &status, &argsJSON, &resultJSON, &screenshot, &analysisJSON, &stepErr, &st.Timestamp, &completedAt); err != nil {
			return nil, err
		}
		if st.ID == "" {
			return nil, integrityErr("step", st.AnalysisID, "id")
		}
		if action.Valid {
			st.Action = action.String
		}
		if status.Valid {
			st.StepStatus = status.String
		}
		if argsJSON.Valid {
			st.Args = json.RawMessage(argsJSON.String)
		}
		if resultJSON.Valid {
			st.Result = json.RawMessage(resultJSON.String)
		}
		if screenshot.Valid {
			st.ScreenshotPath = screenshot.String
		}
		if analysisJSON.Valid {
			var sa domain.StepAnalysis
			if err := json.Unmarshal([]byte(analysisJSON.String), &sa); err != nil {
				return nil, fmt.Errorf("step %s analysis payload: %w", st.ID, err)
			}
			st.Analysis = &sa
		}
		if stepErr.Valid {
			st.Error = stepErr.String
		}
		if completedAt.Valid {
			st.CompletedAt = &completedAt.String
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func checkProject(p domain.Project) error {
	if p.Name == "" {
		return integrityErr("project", p.ID, "name")
	}
	if p.URL == "" {
		return integrityErr("project", p.ID, "url")
	}
	if p.Objective == "" {
		return integrityErr("project", p.ID, "objective")
	}
	return nil
}
