package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"curabot/internal/domain"
)

func testPatient() domain.Patient {
	return domain.Patient{
		ID:    "pat-1",
		Name:  "Margaret Olsen",
		Phone: "+15550001111",
		Age:   78,
		Medications: []domain.Medication{
			{Name: "Metformin", Dosage: "500mg", Time: "08:00", Frequency: "daily"},
			{Name: "Lisinopril", Time: "20:00"},
		},
	}
}

func TestReminderPromptIncludesProfileAndPlan(t *testing.T) {
	prompt := ReminderPrompt(testPatient())

	for _, want := range []string{
		"Name: Margaret Olsen",
		"Age: 78",
		"Phone: +15550001111",
		"- Metformin 500mg at 08:00 (daily)",
		"- Lisinopril at 20:00",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Optional profile fields fall back to a readable placeholder.
	if !strings.Contains(prompt, "Emergency contact: Not provided") {
		t.Error("missing emergency contact placeholder")
	}
}

func TestReminderPromptWithoutMedications(t *testing.T) {
	p := testPatient()
	p.Medications = nil
	if !strings.Contains(ReminderPrompt(p), "- None documented") {
		t.Error("missing empty plan placeholder")
	}
}

func TestCreateAgentAndOutboundCall(t *testing.T) {
	var gotAgent agentRequest
	var gotCall outboundCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("api key header: %q", r.Header.Get("xi-api-key"))
		}
		switch r.URL.Path {
		case "/v1/convai/agents/create":
			if err := json.NewDecoder(r.Body).Decode(&gotAgent); err != nil {
				t.Errorf("decode agent request: %v", err)
			}
			json.NewEncoder(w).Encode(agentResponse{AgentID: "agent-1"})
		case "/v1/convai/twilio/outbound-call":
			if err := json.NewDecoder(r.Body).Decode(&gotCall); err != nil {
				t.Errorf("decode call request: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "phone-1")
	p := testPatient()

	agentID, err := c.CreateAgent(context.Background(), p)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if agentID != "agent-1" {
		t.Fatalf("agent id: %s", agentID)
	}
	if !strings.Contains(gotAgent.ConversationConfig.Agent.FirstMessage, p.Name) {
		t.Fatalf("first message: %q", gotAgent.ConversationConfig.Agent.FirstMessage)
	}
	if !strings.Contains(gotAgent.ConversationConfig.Agent.Prompt.Prompt, "Metformin") {
		t.Fatal("prompt missing medication plan")
	}

	if err := c.OutboundCall(context.Background(), agentID, p.Phone); err != nil {
		t.Fatalf("outbound call: %v", err)
	}
	if gotCall.AgentID != "agent-1" || gotCall.AgentPhoneNumberID != "phone-1" || gotCall.ToNumber != p.Phone {
		t.Fatalf("call request: %+v", gotCall)
	}
}

func TestCreateAgentSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", "phone-1")
	if _, err := c.CreateAgent(context.Background(), testPatient()); err == nil {
		t.Fatal("expected error from provider")
	}
}

func TestEnabledRequiresKeyAndNumber(t *testing.T) {
	if NewClient("", "", "").Enabled() {
		t.Error("unconfigured client reports enabled")
	}
	if NewClient("", "key", "").Enabled() {
		t.Error("missing phone number reports enabled")
	}
	if !NewClient("", "key", "phone").Enabled() {
		t.Error("configured client reports disabled")
	}
}
