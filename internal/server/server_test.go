package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"curabot/internal/automation"
	"curabot/internal/db"
	"curabot/internal/domain"
	"curabot/internal/ingest"
	"curabot/internal/migrate"
	"curabot/internal/repo"
	"curabot/internal/voice"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testServiceKey = "test-service-key"
)

type testServer struct {
	URL            string
	ScreenshotsDir string
	Repo           repo.Repo
	client         *http.Client
	close          func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	return newTestServerWithVoice(t, nil)
}

func newTestServerWithVoice(t *testing.T, voiceClient *voice.Client) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	// Stub automation service; run requests always accept.
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/run" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))

	screenshots := filepath.Join(workspace, "screenshots")
	if err := os.MkdirAll(screenshots, 0o755); err != nil {
		t.Fatalf("mkdir screenshots: %v", err)
	}

	r := repo.Repo{DB: conn}
	handler, err := New(Config{
		Repo:           r,
		Ingest:         ingest.Service{Repo: r, Log: log},
		Automation:     automation.NewClient(stub.URL, testServiceKey),
		Voice:          voiceClient,
		Log:            log,
		Auth:           AuthConfig{JWTSecret: testJWTSecret, ServiceAPIKey: testServiceKey},
		ScreenshotsDir: screenshots,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:            "http://" + ln.Addr().String(),
		ScreenshotsDir: screenshots,
		Repo:           r,
		client:         &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			stub.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authHeader(t *testing.T, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, userID)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *testServer, userID, name string) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/new", map[string]any{
		"name":      name,
		"url":       "https://app.example.com",
		"objective": "Complete signup",
	}, authHeader(t, userID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project envelope: %v", err)
	}
	if created.Project.ID == "" {
		t.Fatalf("response not wrapped in project key: %s", string(data))
	}
	return created.Project
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope map[string]string
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope["error"] != "Unauthorized" {
		t.Fatalf("error envelope: %s", string(data))
	}
}

func TestBadTokenIsUnauthorized(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "user-1", "Signup flow")
	if p.Status != "pending" {
		t.Fatalf("fresh project status: %s", p.Status)
	}
	if p.Analyses == nil || len(p.Analyses) != 0 {
		t.Fatalf("fresh project analyses: %v", p.Analyses)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var listed ProjectsResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal list envelope: %v", err)
	}
	if len(listed.Projects) != 1 || listed.Projects[0].ID != p.ID {
		t.Fatalf("list: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status %d", res.StatusCode)
	}
}

func TestCreateProjectRejectsMissingFields(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/new", map[string]any{
		"name": "No objective",
		"url":  "https://app.example.com",
	}, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestForeignProjectLooksAbsent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "owner", "Owner project")

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "intruder"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "intruder"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign delete status %d", res.StatusCode)
	}

	// The owner's row survived the foreign delete attempt.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("owner get status %d", res.StatusCode)
	}
}

func TestSaveStepMergesSparsePatch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeader(t, "user-1")

	p := createProject(t, srv, "user-1", "Signup flow")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/saveStep", map[string]any{
		"projectId": p.ID,
		"step": map[string]any{
			"id":         "st-1",
			"analysisId": "an-1",
			"stepNumber": 1,
			"action":     "click",
			"args":       map[string]any{"selector": "#submit"},
			"stepStatus": "running",
			"timestamp":  "2026-03-01T09:00:00Z",
		},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first saveStep status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/saveStep", map[string]any{
		"projectId": p.ID,
		"step": map[string]any{
			"id":          "st-1",
			"analysisId":  "an-1",
			"stepNumber":  1,
			"stepStatus":  "completed",
			"completedAt": "2026-03-01T09:00:05Z",
		},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second saveStep status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var env ProjectResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal project envelope: %v", err)
	}
	got := env.Project
	if len(got.Analyses) != 1 || len(got.Analyses[0].Steps) != 1 {
		t.Fatalf("snapshot shape: %s", string(data))
	}
	st := got.Analyses[0].Steps[0]
	if st.Action != "click" {
		t.Fatalf("sparse patch dropped action: %s", string(data))
	}
	if st.StepStatus != "completed" {
		t.Fatalf("step status: %s", string(data))
	}
	if st.CompletedAt == nil {
		t.Fatalf("completedAt not set: %s", string(data))
	}
}

func TestSaveStepOnIncompleteProjectIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// A row without url or objective cannot come in through the API, but
	// the analysis gate must still reject it with a client error, not a 500.
	bare := domain.Project{
		ID:        "proj-bare",
		UserID:    "user-1",
		Name:      "Imported without details",
		Status:    "pending",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := srv.Repo.InsertProject(context.Background(), bare); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/saveStep", map[string]any{
		"projectId": bare.ID,
		"step": map[string]any{
			"id":         "st-1",
			"analysisId": "an-1",
			"stepNumber": 1,
		},
	}, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestSaveStepWithoutIdentityIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "user-1", "Signup flow")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/saveStep", map[string]any{
		"projectId": p.ID,
		"step": map[string]any{
			"id":         "st-1",
			"stepNumber": 1,
		},
	}, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestUpdateResultAuthenticatesByServiceKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "user-1", "Signup flow")
	body := map[string]any{
		"projectId":     p.ID,
		"projectStatus": "completed",
		"summary":       `{"completionSummary":"Signed up successfully"}`,
	}

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/updateResult", body, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/updateResult", body, map[string]string{
		"x-api-key": "wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key status %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/updateResult", body, map[string]string{
		"x-api-key": testServiceKey,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("valid key status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var env ProjectResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal project envelope: %v", err)
	}
	got := env.Project
	if got.Status != "completed" {
		t.Fatalf("project status: %s", got.Status)
	}
	if got.LatestAnalysisSummary == nil || *got.LatestAnalysisSummary != "Signed up successfully" {
		t.Fatalf("summary not unwrapped: %s", string(data))
	}
}

func TestUpdateStatusReturnsFreshSnapshot(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "user-1", "Signup flow")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/updateStatus", map[string]any{
		"projectId": p.ID,
		"status":    "running",
	}, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var env ProjectResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal project envelope: %v", err)
	}
	got := env.Project
	if got.Status != "running" {
		t.Fatalf("status after update: %s", got.Status)
	}
}

func TestPatientRequiresMedication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/patients", map[string]any{
		"name":        "Margaret Olsen",
		"phone":       "+15550001111",
		"age":         78,
		"medications": []any{},
	}, authHeader(t, "user-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope map[string]string
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope["error"] != "At least one medication is required" {
		t.Fatalf("error envelope: %s", string(data))
	}
}

func TestPatientCreateAndList(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeader(t, "user-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/patients", map[string]any{
		"name":  "Margaret Olsen",
		"phone": "+15550001111",
		"age":   78,
		"medications": []map[string]any{
			{"name": "Metformin", "dosage": "500mg", "time": "08:00"},
		},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create patient status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Patient
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal patient: %v", err)
	}
	if len(created.Medications) != 1 || created.Medications[0].Frequency != "daily" {
		t.Fatalf("medication default frequency: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/patients", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var listed PatientListResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed.Patients) != 1 || listed.Stats.Total != 1 {
		t.Fatalf("list: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/patients/"+created.ID+"/timeline", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	var timeline []domain.TimelineEvent
	if err := json.Unmarshal(data, &timeline); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	if len(timeline) == 0 || timeline[0].Title != "Patient Added" {
		t.Fatalf("timeline: %s", string(data))
	}
}

func TestCreatePatientPlacesReminderCall(t *testing.T) {
	voiceStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/convai/agents/create":
			json.NewEncoder(w).Encode(map[string]string{"agentId": "agent-1"})
		case "/v1/convai/twilio/outbound-call":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer voiceStub.Close()

	srv, cleanup := newTestServerWithVoice(t, voice.NewClient(voiceStub.URL, "xi-key", "phone-1"))
	defer cleanup()
	client := srv.Client()
	headers := authHeader(t, "user-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/patients", map[string]any{
		"name":  "Margaret Olsen",
		"phone": "+15550001111",
		"age":   78,
		"medications": []map[string]any{
			{"name": "Metformin", "dosage": "500mg", "time": "08:00"},
		},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create patient status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Patient
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal patient: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/call-logs?patientId="+created.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("call logs status %d: %s", res.StatusCode, string(data))
	}
	var logs []domain.CallLog
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("unmarshal call logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != "initiated" {
		t.Fatalf("call logs: %s", string(data))
	}
	if len(logs[0].Medications) != 1 || logs[0].Medications[0] != "Metformin" {
		t.Fatalf("call log medications: %s", string(data))
	}
}

func TestCreatePatientSurvivesVoiceFailure(t *testing.T) {
	voiceStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer voiceStub.Close()

	srv, cleanup := newTestServerWithVoice(t, voice.NewClient(voiceStub.URL, "bad-key", "phone-1"))
	defer cleanup()
	headers := authHeader(t, "user-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/patients", map[string]any{
		"name":  "Margaret Olsen",
		"phone": "+15550001111",
		"age":   78,
		"medications": []map[string]any{
			{"name": "Metformin", "dosage": "500mg", "time": "08:00"},
		},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create must succeed despite voice failure, got %d: %s", res.StatusCode, string(data))
	}
	var created domain.Patient
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal patient: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/patients/"+created.ID+"/timeline", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	var timeline []domain.TimelineEvent
	if err := json.Unmarshal(data, &timeline); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	var sawFailure bool
	for _, ev := range timeline {
		if ev.Title == "Reminder Call Failed" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("timeline missing call failure: %s", string(data))
	}
}

func TestScreenshotServing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// The handler trusts the extension, so the magic bytes are enough.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if err := os.WriteFile(filepath.Join(srv.ScreenshotsDir, "step-1.png"), png, 0o644); err != nil {
		t.Fatalf("write screenshot: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/screenshots/step-1.png", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("screenshot status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type: %s", ct)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/screenshots/missing.png", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing screenshot status %d", res.StatusCode)
	}

	if err := os.WriteFile(filepath.Join(srv.ScreenshotsDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/screenshots/notes.txt", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsupported type status %d", res.StatusCode)
	}
}

func TestScreenshotPathValidation(t *testing.T) {
	cases := map[string]bool{
		"step-1.png":        true,
		"run-7/step-1.png":  true,
		"":                  false,
		"/etc/passwd":       false,
		"../secret.png":     false,
		"a/../../b.png":     false,
		"a//b.png":          false,
		"./step.png":        false,
		"shots/../out.png":  false,
		"shots/sub/ok.webp": true,
	}
	for rel, want := range cases {
		if got := safeScreenshotPath(rel); got != want {
			t.Errorf("safeScreenshotPath(%q) = %v, want %v", rel, got, want)
		}
	}
}
