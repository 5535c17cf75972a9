package automation

import (
	"errors"
	"testing"

	"curabot/internal/repo"
)

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		wantErr bool
		check   func(t *testing.T, ev Event)
	}{
		{
			name:  "connected",
			frame: `{"type":"connected"}`,
			check: func(t *testing.T, ev Event) {
				if ev.Type != EventConnected {
					t.Fatalf("type: %s", ev.Type)
				}
			},
		},
		{
			name:  "status",
			frame: `{"type":"status","message":"navigating"}`,
			check: func(t *testing.T, ev Event) {
				if ev.Message != "navigating" {
					t.Fatalf("message: %s", ev.Message)
				}
			},
		},
		{
			name:  "step with payload",
			frame: `{"type":"step_completed","step":{"id":"s1","analysisId":"a1","stepNumber":3,"action":"click","stepStatus":"completed"}}`,
			check: func(t *testing.T, ev Event) {
				if ev.Step == nil || ev.Step.ID != "s1" || ev.Step.StepNumber != 3 {
					t.Fatalf("step: %+v", ev.Step)
				}
				if ev.Step.Action == nil || *ev.Step.Action != "click" {
					t.Fatalf("action: %v", ev.Step.Action)
				}
				if ev.Step.Args != nil {
					t.Fatal("absent args must stay nil")
				}
			},
		},
		{
			name:    "step without payload",
			frame:   `{"type":"step_started"}`,
			wantErr: true,
		},
		{
			name:    "step without identity",
			frame:   `{"type":"step_started","step":{"stepNumber":1}}`,
			wantErr: true,
		},
		{
			name:  "analysis started",
			frame: `{"type":"analysis_started","analysisId":"a1","timestamp":"2026-01-02T10:00:00Z"}`,
			check: func(t *testing.T, ev Event) {
				if ev.AnalysisID != "a1" {
					t.Fatalf("analysisId: %s", ev.AnalysisID)
				}
			},
		},
		{
			name:    "analysis started without id",
			frame:   `{"type":"analysis_started"}`,
			wantErr: true,
		},
		{
			name:  "automation completed",
			frame: `{"type":"automation_completed","success":true,"summary":"ok","analysisId":"a1"}`,
			check: func(t *testing.T, ev Event) {
				if !ev.Success || ev.Summary != "ok" {
					t.Fatalf("event: %+v", ev)
				}
			},
		},
		{
			name:    "malformed json",
			frame:   `{"type":`,
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tc.frame))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.check(t, ev)
		})
	}
}

func TestParseEventUnknownType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"heartbeat"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestReduceConnected(t *testing.T) {
	s, actions := Reduce(State{ProjectID: "p1"}, Event{Type: EventConnected})
	if !s.Connected {
		t.Fatal("connected flag not set")
	}
	if len(actions) != 1 {
		t.Fatalf("actions: %+v", actions)
	}
	if _, ok := actions[0].(FetchSnapshot); !ok {
		t.Fatalf("expected FetchSnapshot, got %T", actions[0])
	}
}

func TestReduceStatusRefetchesSnapshot(t *testing.T) {
	s, actions := Reduce(State{ProjectID: "p1", AnalysisID: "a1"}, Event{Type: EventStatus})
	if s.AnalysisID != "a1" {
		t.Fatalf("status event must not touch identifiers: %+v", s)
	}
	if len(actions) != 1 {
		t.Fatalf("actions: %+v", actions)
	}
	if _, ok := actions[0].(FetchSnapshot); !ok {
		t.Fatalf("expected FetchSnapshot, got %T", actions[0])
	}
}

func TestReduceStepEmitsPersistThenFetch(t *testing.T) {
	a := "click"
	ev := Event{Type: EventStepCompleted, Step: &repo.StepPatch{ID: "s1", AnalysisID: "a1", StepNumber: 1, Action: &a}}
	s, actions := Reduce(State{ProjectID: "p1"}, ev)
	if s.AnalysisID != "a1" {
		t.Fatalf("analysis not adopted from step: %s", s.AnalysisID)
	}
	if len(actions) != 2 {
		t.Fatalf("actions: %+v", actions)
	}
	persist, ok := actions[0].(PersistStep)
	if !ok {
		t.Fatalf("first action %T", actions[0])
	}
	if persist.Patch.ID != "s1" {
		t.Fatalf("patch: %+v", persist.Patch)
	}
	if _, ok := actions[1].(FetchSnapshot); !ok {
		t.Fatalf("second action %T", actions[1])
	}
}

func TestReduceCompletionClosesStream(t *testing.T) {
	s, actions := Reduce(State{ProjectID: "p1", AnalysisID: "a1"}, Event{Type: EventAutomationCompleted, Success: true, Summary: "ok"})
	if !s.Completed {
		t.Fatal("completed flag not set")
	}
	if len(actions) != 3 {
		t.Fatalf("actions: %+v", actions)
	}
	complete, ok := actions[0].(CompleteProject)
	if !ok {
		t.Fatalf("first action %T", actions[0])
	}
	if !complete.Success || complete.AnalysisID != "a1" {
		t.Fatalf("complete: %+v", complete)
	}
	if _, ok := actions[2].(CloseStream); !ok {
		t.Fatalf("last action %T", actions[2])
	}
}

func TestReduceAfterCompletionIsNoop(t *testing.T) {
	s := State{ProjectID: "p1", Completed: true}
	next, actions := Reduce(s, Event{Type: EventStatus})
	if len(actions) != 0 {
		t.Fatalf("actions after completion: %+v", actions)
	}
	if next != s {
		t.Fatalf("state changed after completion: %+v", next)
	}
}

func TestReduceUnknownTypeIsNoop(t *testing.T) {
	s, actions := Reduce(State{ProjectID: "p1"}, Event{Type: "heartbeat"})
	if len(actions) != 0 {
		t.Fatalf("actions: %+v", actions)
	}
	if s.Connected || s.Completed {
		t.Fatalf("state changed: %+v", s)
	}
}
