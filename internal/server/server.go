package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"curabot/internal/automation"
	"curabot/internal/billing"
	"curabot/internal/ingest"
	"curabot/internal/repo"
	"curabot/internal/voice"
)

// Config for the HTTP API handler.
type Config struct {
	Repo           repo.Repo
	Ingest         ingest.Service
	Automation     *automation.Client
	Voice          *voice.Client
	Billing        billing.Service
	BillingEnabled bool
	Log            *logrus.Logger
	Auth           AuthConfig
	BasePath       string
	ScreenshotsDir string
	// WatchCtx bounds the lifetime of stream watchers started by project
	// triggers. Defaults to context.Background().
	WatchCtx context.Context
}

// apiError models the error envelope: a single error string.
type apiError struct {
	status  int
	Message string `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// New returns an HTTP handler exposing the CuraBot API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.WatchCtx == nil {
		cfg.WatchCtx = context.Background()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("CuraBot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg)
	registerPatients(group, cfg)
	if cfg.BillingEnabled {
		registerBilling(group, cfg)
	}
	registerScreenshots(router, basePath, cfg.ScreenshotsDir)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return router, nil
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not found")
	}
	if errors.Is(err, repo.ErrValidation) {
		return newAPIError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, repo.ErrIntegrity) {
		return newAPIError(http.StatusInternalServerError, err.Error())
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, msg)
	}
	return newAPIError(http.StatusInternalServerError, "internal server error")
}
