package automation

import (
	"encoding/json"
	"errors"
	"fmt"

	"curabot/internal/domain"
	"curabot/internal/repo"
)

// Event kinds emitted by the automation service over its event stream.
const (
	EventConnected           = "connected"
	EventStatus              = "status"
	EventStepStarted         = "step_started"
	EventStepCompleted       = "step_completed"
	EventAnalysisStarted     = "analysis_started"
	EventAutomationCompleted = "automation_completed"
)

// ErrUnknownEvent marks a frame whose type is not part of the protocol.
// Callers log and skip these; they never terminate the stream.
var ErrUnknownEvent = errors.New("unknown event type")

type Event struct {
	Type       string
	Message    string
	AnalysisID string
	Timestamp  string
	Step       *repo.StepPatch
	Success    bool
	Summary    string
}

type stepPayload struct {
	ID             string               `json:"id"`
	AnalysisID     string               `json:"analysisId"`
	StepNumber     int                  `json:"stepNumber"`
	Action         *string              `json:"action"`
	StepStatus     *string              `json:"stepStatus"`
	Args           json.RawMessage      `json:"args"`
	Result         json.RawMessage      `json:"result"`
	ScreenshotPath *string              `json:"screenshot_path"`
	Analysis       *domain.StepAnalysis `json:"analysis"`
	Error          *string              `json:"error"`
	Timestamp      string               `json:"timestamp"`
	CompletedAt    *string              `json:"completedAt"`
}

func (p stepPayload) patch() *repo.StepPatch {
	return &repo.StepPatch{
		ID:             p.ID,
		AnalysisID:     p.AnalysisID,
		StepNumber:     p.StepNumber,
		Timestamp:      p.Timestamp,
		Action:         p.Action,
		StepStatus:     p.StepStatus,
		Args:           p.Args,
		Result:         p.Result,
		ScreenshotPath: p.ScreenshotPath,
		Analysis:       p.Analysis,
		Error:          p.Error,
		CompletedAt:    p.CompletedAt,
	}
}

// ParseEvent decodes one stream frame. The type tag picks the payload
// shape; required fields missing from the payload make the frame invalid.
func ParseEvent(data []byte) (Event, error) {
	var envelope struct {
		Type       string          `json:"type"`
		Message    string          `json:"message"`
		AnalysisID string          `json:"analysisId"`
		Timestamp  string          `json:"timestamp"`
		Step       json.RawMessage `json:"step"`
		Success    bool            `json:"success"`
		Summary    string          `json:"summary"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}
	ev := Event{
		Type:       envelope.Type,
		Message:    envelope.Message,
		AnalysisID: envelope.AnalysisID,
		Timestamp:  envelope.Timestamp,
		Success:    envelope.Success,
		Summary:    envelope.Summary,
	}
	switch envelope.Type {
	case EventConnected, EventStatus:
		return ev, nil
	case EventStepStarted, EventStepCompleted:
		if envelope.Step == nil {
			return Event{}, fmt.Errorf("%s event without step payload", envelope.Type)
		}
		var p stepPayload
		if err := json.Unmarshal(envelope.Step, &p); err != nil {
			return Event{}, fmt.Errorf("%s step payload: %w", envelope.Type, err)
		}
		if p.ID == "" || p.AnalysisID == "" {
			return Event{}, fmt.Errorf("%s step missing id or analysisId", envelope.Type)
		}
		ev.Step = p.patch()
		return ev, nil
	case EventAnalysisStarted:
		if envelope.AnalysisID == "" {
			return Event{}, fmt.Errorf("analysis_started without analysisId")
		}
		return ev, nil
	case EventAutomationCompleted:
		return ev, nil
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}
}
