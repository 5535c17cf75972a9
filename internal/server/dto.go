package server

import (
	"encoding/json"

	"curabot/internal/domain"
	"curabot/internal/repo"
)

type CreateProjectRequest struct {
	Name      string `json:"name" minLength:"1"`
	URL       string `json:"url" minLength:"1"`
	Objective string `json:"objective" minLength:"1"`
}

// ProjectResponse wraps a single project under its resource key, the
// envelope the dashboard expects.
type ProjectResponse struct {
	Project domain.Project `json:"project"`
}

type ProjectsResponse struct {
	Projects []domain.Project `json:"projects"`
}

// StepInput mirrors the automation service's step shape. Absent fields stay
// nil so the gateway can tell "not reported" from "reported empty".
type StepInput struct {
	ID             string               `json:"id"`
	AnalysisID     string               `json:"analysisId"`
	StepNumber     int                  `json:"stepNumber"`
	Action         *string              `json:"action,omitempty"`
	StepStatus     *string              `json:"stepStatus,omitempty"`
	Args           json.RawMessage      `json:"args,omitempty"`
	Result         json.RawMessage      `json:"result,omitempty"`
	ScreenshotPath *string              `json:"screenshot_path,omitempty"`
	Analysis       *domain.StepAnalysis `json:"analysis,omitempty"`
	Error          *string              `json:"error,omitempty"`
	Timestamp      string               `json:"timestamp,omitempty"`
	CompletedAt    *string              `json:"completedAt,omitempty"`
}

func (s StepInput) patch() repo.StepPatch {
	return repo.StepPatch{
		ID:             s.ID,
		AnalysisID:     s.AnalysisID,
		StepNumber:     s.StepNumber,
		Timestamp:      s.Timestamp,
		Action:         s.Action,
		StepStatus:     s.StepStatus,
		Args:           s.Args,
		Result:         s.Result,
		ScreenshotPath: s.ScreenshotPath,
		Analysis:       s.Analysis,
		Error:          s.Error,
		CompletedAt:    s.CompletedAt,
	}
}

type CreatePatientRequest struct {
	Name              string                  `json:"name" minLength:"1"`
	Phone             string                  `json:"phone" minLength:"1"`
	Age               int                     `json:"age" minimum:"0"`
	EmergencyContact  string                  `json:"emergencyContact,omitempty"`
	EmergencyPhone    string                  `json:"emergencyPhone,omitempty"`
	MedicalConditions string                  `json:"medicalConditions,omitempty"`
	Notes             string                  `json:"notes,omitempty"`
	Medications       []CreateMedicationInput `json:"medications"`
}

type CreateMedicationInput struct {
	Name      string `json:"name" minLength:"1"`
	Dosage    string `json:"dosage"`
	Time      string `json:"time"`
	Frequency string `json:"frequency,omitempty"`
}

type PatchPatientRequest struct {
	Name              *string  `json:"name,omitempty"`
	Phone             *string  `json:"phone,omitempty"`
	Age               *int     `json:"age,omitempty"`
	EmergencyContact  *string  `json:"emergencyContact,omitempty"`
	EmergencyPhone    *string  `json:"emergencyPhone,omitempty"`
	MedicalConditions *string  `json:"medicalConditions,omitempty"`
	Notes             *string  `json:"notes,omitempty"`
	Status            *string  `json:"status,omitempty"`
	AdherenceRate     *float64 `json:"adherenceRate,omitempty"`
}

type PatientListResponse struct {
	Patients []domain.Patient    `json:"patients"`
	Stats    domain.PatientStats `json:"stats"`
}
