// Package voice places medication reminder calls through a conversational
// voice provider: one agent is created per patient with a prompt built from
// their profile, then an outbound call is dialed to their phone.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curabot/internal/domain"
)

type Client struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	HTTP          *http.Client
}

func NewClient(baseURL, apiKey, phoneNumberID string) *Client {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		PhoneNumberID: phoneNumberID,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the client has enough configuration to place
// calls. When false, callers skip the voice flow entirely.
func (c *Client) Enabled() bool {
	return c.APIKey != "" && c.PhoneNumberID != ""
}

type agentRequest struct {
	ConversationConfig struct {
		Agent struct {
			FirstMessage string `json:"firstMessage"`
			Prompt       struct {
				Prompt string `json:"prompt"`
			} `json:"prompt"`
		} `json:"agent"`
	} `json:"conversationConfig"`
}

type agentResponse struct {
	AgentID string `json:"agentId"`
}

// CreateAgent registers a reminder agent for the patient and returns its id.
func (c *Client) CreateAgent(ctx context.Context, p domain.Patient) (string, error) {
	var req agentRequest
	req.ConversationConfig.Agent.FirstMessage = fmt.Sprintf("Hello %s, I'm your prescription reminder assistant.", p.Name)
	req.ConversationConfig.Agent.Prompt.Prompt = ReminderPrompt(p)

	var resp agentResponse
	if err := c.post(ctx, "/v1/convai/agents/create", req, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", fmt.Errorf("voice provider returned no agent id")
	}
	return resp.AgentID, nil
}

type outboundCallRequest struct {
	AgentID            string `json:"agentId"`
	AgentPhoneNumberID string `json:"agentPhoneNumberId"`
	ToNumber           string `json:"toNumber"`
}

// OutboundCall dials the patient through the configured provider number.
func (c *Client) OutboundCall(ctx context.Context, agentID, toNumber string) error {
	req := outboundCallRequest{
		AgentID:            agentID,
		AgentPhoneNumberID: c.PhoneNumberID,
		ToNumber:           toNumber,
	}
	return c.post(ctx, "/v1/convai/twilio/outbound-call", req, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("voice provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("voice provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ReminderPrompt renders the agent's system prompt from the patient's
// profile and medication plan.
func ReminderPrompt(p domain.Patient) string {
	var meds []string
	for _, m := range p.Medications {
		line := "- " + m.Name
		if m.Dosage != "" {
			line += " " + m.Dosage
		}
		if m.Time != "" {
			line += " at " + m.Time
		}
		if m.Frequency != "" {
			line += " (" + m.Frequency + ")"
		}
		meds = append(meds, line)
	}
	medsBlock := "- None documented"
	if len(meds) > 0 {
		medsBlock = strings.Join(meds, "\n")
	}
	return strings.Join([]string{
		"Personality",
		"You are a friendly and helpful prescription reminder assistant.",
		"You are reliable, efficient, and focused on ensuring users take their medication on time.",
		"You are patient and understanding, especially when users have questions or concerns about their prescriptions.",
		"",
		"Environment",
		"You are interacting with users over the phone to remind them to take their prescriptions.",
		"The user may be busy or distracted, so you need to be concise and clear.",
		"",
		"Tone",
		"Your responses are clear, concise, and friendly.",
		"You use a professional tone with occasional brief affirmations to maintain engagement.",
		"You acknowledge concerns with brief empathy and maintain a positive, solution-focused approach.",
		"",
		"Goal",
		"Your primary goal is to remind users to take their prescriptions on time and to answer any questions they may have.",
		"Clearly state the name of the medication and the dosage, confirm the user understands, and confirm they have taken it before ending the call.",
		"",
		"Guardrails",
		"Remain within the scope of prescription reminders and related information; politely decline requests for advice on unrelated medical conditions.",
		"Never share customer data or reveal sensitive account information.",
		"Acknowledge when you don't know an answer instead of guessing, offering to research further.",
		"",
		"Patient profile:",
		"Name: " + p.Name,
		fmt.Sprintf("Age: %d", p.Age),
		"Phone: " + p.Phone,
		"Emergency contact: " + orNone(p.EmergencyContact),
		"Emergency phone: " + orNone(p.EmergencyPhone),
		"Medical conditions: " + orNone(p.MedicalConditions),
		"Notes: " + orNone(p.Notes),
		"Medications:",
		medsBlock,
	}, "\n")
}

func orNone(v string) string {
	if v == "" {
		return "Not provided"
	}
	return v
}
