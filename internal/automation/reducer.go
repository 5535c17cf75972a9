package automation

import "curabot/internal/repo"

// State is the watcher's view of one project run. The reducer owns it; the
// driver only executes the actions the reducer hands back.
type State struct {
	ProjectID  string
	AnalysisID string
	Connected  bool
	Completed  bool
}

// Action is an instruction the reducer emits for the driver to carry out.
type Action interface{ isAction() }

// FetchSnapshot re-reads the project aggregate so the stored view reflects
// everything written so far.
type FetchSnapshot struct{}

// PersistStep folds a step patch into the store.
type PersistStep struct {
	Patch repo.StepPatch
}

// CompleteProject applies the run's final verdict.
type CompleteProject struct {
	Success    bool
	Summary    string
	AnalysisID string
}

// CloseStream ends the watch; the run is over.
type CloseStream struct{}

func (FetchSnapshot) isAction()   {}
func (PersistStep) isAction()     {}
func (CompleteProject) isAction() {}
func (CloseStream) isAction()     {}

// Reduce maps one event onto the next state and the actions it requires. It
// is pure: no IO, no clock, no store access.
func Reduce(s State, ev Event) (State, []Action) {
	if s.Completed {
		return s, nil
	}
	switch ev.Type {
	case EventConnected:
		s.Connected = true
		return s, []Action{FetchSnapshot{}}
	case EventStatus:
		return s, []Action{FetchSnapshot{}}
	case EventAnalysisStarted:
		s.AnalysisID = ev.AnalysisID
		return s, []Action{FetchSnapshot{}}
	case EventStepStarted, EventStepCompleted:
		if ev.Step == nil {
			return s, nil
		}
		if s.AnalysisID == "" {
			s.AnalysisID = ev.Step.AnalysisID
		}
		return s, []Action{PersistStep{Patch: *ev.Step}, FetchSnapshot{}}
	case EventAutomationCompleted:
		s.Completed = true
		analysisID := ev.AnalysisID
		if analysisID == "" {
			analysisID = s.AnalysisID
		}
		return s, []Action{
			CompleteProject{Success: ev.Success, Summary: ev.Summary, AnalysisID: analysisID},
			FetchSnapshot{},
			CloseStream{},
		}
	default:
		return s, nil
	}
}
