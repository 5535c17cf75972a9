package domain

import "encoding/json"

type Project struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"userId"`
	Name                  string     `json:"name"`
	URL                   string     `json:"url"`
	Objective             string     `json:"objective"`
	Status                string     `json:"status" enum:"pending,running,completed,failed"`
	LatestAnalysisStatus  *string    `json:"latestAnalysisStatus"`
	LatestAnalysisSummary *string    `json:"latestAnalysisSummary"`
	CreatedAt             string     `json:"createdAt" format:"date-time"`
	Analyses              []Analysis `json:"analyses"`
}

type Analysis struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	URL         string  `json:"url"`
	Objective   string  `json:"objective"`
	Status      string  `json:"status" enum:"pending,completed,failed"`
	StartedAt   string  `json:"timestamp" format:"date-time"`
	CompletedAt *string `json:"completedAt,omitempty" format:"date-time"`
	Summary     *string `json:"summary"`
	Steps       []Step  `json:"steps"`
}

// StepAnalysis is the structured sub-analysis the automation service attaches
// to a step.
type StepAnalysis struct {
	StepDescription string `json:"stepDescription,omitempty"`
	PageDescription string `json:"pageDescription,omitempty"`
	ActionIntent    string `json:"actionIntent,omitempty"`
	ActionReasoning string `json:"actionReasoning,omitempty"`
}

// Step identity is supplied by the automation service and never generated
// locally.
type Step struct {
	ID             string          `json:"id"`
	AnalysisID     string          `json:"analysisId"`
	StepNumber     int             `json:"stepNumber"`
	Action         string          `json:"action,omitempty"`
	StepStatus     string          `json:"stepStatus,omitempty" enum:"pending,completed,failed,needs_retry"`
	Args           json.RawMessage `json:"args,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	ScreenshotPath string          `json:"screenshot_path,omitempty"`
	Analysis       *StepAnalysis   `json:"analysis,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp" format:"date-time"`
	CompletedAt    *string         `json:"completedAt,omitempty" format:"date-time"`
}

type Patient struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	Age               int             `json:"age"`
	EmergencyContact  string          `json:"emergencyContact,omitempty"`
	EmergencyPhone    string          `json:"emergencyPhone,omitempty"`
	MedicalConditions string          `json:"medicalConditions,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Status            string          `json:"status"`
	AdherenceRate     float64         `json:"adherenceRate"`
	CreatedAt         string          `json:"createdAt" format:"date-time"`
	UpdatedAt         string          `json:"updatedAt" format:"date-time"`
	Medications       []Medication    `json:"medications,omitempty"`
	CallLogs          []CallLog       `json:"callLogs,omitempty"`
	MedicalRecords    []MedicalRecord `json:"medicalRecords,omitempty"`
}

type Medication struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Time      string `json:"time"`
	Frequency string `json:"frequency"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type CallLog struct {
	ID          string   `json:"id"`
	PatientID   string   `json:"patientId"`
	PatientName string   `json:"patientName,omitempty"`
	ScheduledAt string   `json:"scheduledAt" format:"date-time"`
	StartedAt   *string  `json:"startedAt,omitempty" format:"date-time"`
	EndedAt     *string  `json:"endedAt,omitempty" format:"date-time"`
	Duration    int      `json:"duration"`
	Status      string   `json:"status"`
	Medications []string `json:"medications"`
	Notes       string   `json:"notes,omitempty"`
	Transcript  string   `json:"transcript,omitempty"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
}

type MedicalRecord struct {
	ID          string `json:"id"`
	PatientID   string `json:"patientId"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	RecordDate  string `json:"recordDate" format:"date-time"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
}

type TimelineEvent struct {
	ID          string         `json:"id"`
	PatientID   string         `json:"patientId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	EventDate   string         `json:"eventDate" format:"date-time"`
	CreatedAt   string         `json:"createdAt" format:"date-time"`
}

// User carries the billing identity linked to an authenticated subject.
type User struct {
	ID                 string `json:"id"`
	UserID             string `json:"userId"`
	StripeCustomerID   string `json:"stripeCustomerId,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	SubscriptionID     string `json:"subscriptionId,omitempty"`
	PriceID            string `json:"priceId,omitempty"`
	CreatedAt          string `json:"createdAt" format:"date-time"`
	UpdatedAt          string `json:"updatedAt" format:"date-time"`
}

// PatientStats summarizes a caregiver's roster for the dashboard.
type PatientStats struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	AverageAdherence float64 `json:"averageAdherence"`
	CallsToday       int     `json:"callsToday"`
}
