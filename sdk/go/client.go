package curabotsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal CuraBot HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project is the API project model, analyses included.
type Project struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"userId"`
	Name                  string     `json:"name"`
	URL                   string     `json:"url"`
	Objective             string     `json:"objective"`
	Status                string     `json:"status"`
	LatestAnalysisStatus  *string    `json:"latestAnalysisStatus"`
	LatestAnalysisSummary *string    `json:"latestAnalysisSummary"`
	CreatedAt             string     `json:"createdAt"`
	Analyses              []Analysis `json:"analyses"`
}

type Analysis struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	URL         string  `json:"url"`
	Objective   string  `json:"objective"`
	Status      string  `json:"status"`
	StartedAt   string  `json:"timestamp"`
	CompletedAt *string `json:"completedAt,omitempty"`
	Summary     *string `json:"summary"`
	Steps       []Step  `json:"steps"`
}

type Step struct {
	ID             string          `json:"id"`
	AnalysisID     string          `json:"analysisId"`
	StepNumber     int             `json:"stepNumber"`
	Action         string          `json:"action,omitempty"`
	StepStatus     string          `json:"stepStatus,omitempty"`
	Args           json.RawMessage `json:"args,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ScreenshotPath string          `json:"screenshot_path,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

type Patient struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Phone       string       `json:"phone"`
	Age         int          `json:"age"`
	Status      string       `json:"status"`
	Medications []Medication `json:"medications,omitempty"`
}

type Medication struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Time      string `json:"time"`
	Frequency string `json:"frequency"`
	Active    bool   `json:"active"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Projects lists the authenticated caregiver's projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	err := c.do(ctx, http.MethodGet, "v1/projects", nil, &resp)
	return resp.Projects, err
}

// CreateProject registers a new automation project.
func (c *Client) CreateProject(ctx context.Context, name, siteURL, objective string) (Project, error) {
	body := map[string]any{"name": name, "url": siteURL, "objective": objective}
	var resp struct {
		Project Project `json:"project"`
	}
	err := c.do(ctx, http.MethodPost, "v1/projects/new", body, &resp)
	return resp.Project, err
}

// Project fetches a full project snapshot.
func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var resp struct {
		Project Project `json:"project"`
	}
	err := c.do(ctx, http.MethodGet, "v1/projects/"+url.PathEscape(id), nil, &resp)
	return resp.Project, err
}

// TriggerProject starts automation for a project.
func (c *Client) TriggerProject(ctx context.Context, id string) (Project, error) {
	var resp struct {
		Project Project `json:"project"`
	}
	err := c.do(ctx, http.MethodPost, "v1/projects/"+url.PathEscape(id), nil, &resp)
	return resp.Project, err
}

// DeleteProject removes a project and its analyses.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/projects/"+url.PathEscape(id), nil, nil)
}

// Patients lists the caregiver's patients.
func (c *Client) Patients(ctx context.Context) ([]Patient, error) {
	var resp struct {
		Patients []Patient `json:"patients"`
	}
	err := c.do(ctx, http.MethodGet, "v1/patients", nil, &resp)
	return resp.Patients, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
