package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/frontdesk-ai/frontdesk/internal/brain"
	"github.com/frontdesk-ai/frontdesk/internal/clinic"
	"github.com/frontdesk-ai/frontdesk/internal/session"
)

// FallbackReply is spoken whenever the completion capability fails. It is
// recorded in history like any other assistant turn so the conversation can
// continue.
const FallbackReply = "I apologize, I'm having technical difficulties. Please try again."

// endPhrases trigger end-of-call by case-insensitive substring match. The
// heuristic has known false positives ("thanks, but one more question" ends
// the call); that is accepted behavior, not a bug.
var endPhrases = []string{
	"goodbye",
	"bye",
	"thank you",
	"thanks",
	"that's all",
	"that is all",
	"no more",
	"nothing else",
	"see you",
	"take care",
	"have a good day",
	"hang up",
	"end call",
}

// Agent is the clinic receptionist: it grounds the completion model with the
// clinic persona, the service catalog and the caller's known booking slots,
// and advances the per-session conversation history.
type Agent struct {
	completer  brain.Completer
	sessions   *session.Store
	catalog    *clinic.Catalog
	clinicName string
}

func New(completer brain.Completer, sessions *session.Store, catalog *clinic.Catalog, clinicName string) *Agent {
	if strings.TrimSpace(clinicName) == "" {
		clinicName = "Medical Clinic"
	}
	return &Agent{
		completer:  completer,
		sessions:   sessions,
		catalog:    catalog,
		clinicName: clinicName,
	}
}

// Process runs one conversational turn: append the user utterance, complete
// against the grounding prompt, append and return the reply. A completion
// failure degrades to FallbackReply; only an unknown session id is an error.
func (a *Agent) Process(ctx context.Context, sessionID, userText string) (string, error) {
	if err := a.sessions.AppendTurn(sessionID, session.RoleUser, userText); err != nil {
		return "", err
	}
	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	reply, err := a.completer.Complete(ctx, a.systemPrompt(sess), historyMessages(sess))
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("agent: completion failed for session %s: %v", sessionID, err)
		}
		reply = FallbackReply
	}

	if err := a.sessions.AppendTurn(sessionID, session.RoleAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// ShouldEndCall reports whether the utterance signals the caller is done.
func (a *Agent) ShouldEndCall(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range endPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// Greeting is spoken once when a call starts, before any caller audio.
func (a *Agent) Greeting() string {
	return fmt.Sprintf("Hello, thank you for calling %s. I'm an AI assistant. "+
		"I can help you schedule appointments and answer questions about our services. "+
		"Please note: I'm an AI and cannot provide medical diagnosis or emergency care. "+
		"How can I assist you today?", a.clinicName)
}

// Farewell is spoken once before the call closes.
func (a *Agent) Farewell() string {
	return "Thank you for calling. Have a great day!"
}

func historyMessages(sess *session.Session) []brain.Message {
	messages := make([]brain.Message, 0, len(sess.History))
	for _, turn := range sess.History {
		messages = append(messages, brain.Message{Role: string(turn.Role), Content: turn.Text})
	}
	return messages
}

func (a *Agent) systemPrompt(sess *session.Session) string {
	return fmt.Sprintf(`You are a professional and friendly medical receptionist AI for %s.

Your role:
- Greet patients warmly and professionally
- Help schedule appointments
- Answer questions about available services
- Collect patient information (name, date of birth)
- Confirm appointment details clearly

Available Services:
%s

IMPORTANT SAFETY RULES:
1. You CANNOT provide medical diagnosis or advice
2. You CANNOT prescribe medications
3. If a patient describes emergency symptoms (chest pain, difficulty breathing, severe bleeding, etc.), immediately suggest:
   "Please call 911 or go to the nearest emergency room immediately. This requires urgent medical attention."
4. Always be calm, professional, and empathetic
5. Ask one question at a time
6. Listen completely to the patient before responding
7. Confirm all details (name, appointment date/time) slowly and clearly

Conversation Guidelines:
- Keep responses concise (1-2 sentences)
- Use natural, conversational language
- Pause between responses to let the patient speak
- If patient mentions health concerns, listen but do NOT diagnose
- Suggest appropriate services based on their needs
- Always offer to book an appointment

Current Session Info:
- Patient Name: %s
- Selected Service: %s

Respond naturally as a medical receptionist would in a phone conversation.`,
		a.clinicName,
		a.catalog.PromptSummary(),
		orDefault(sess.Fields.PatientName, "Not provided"),
		orDefault(sess.Fields.SelectedService, "None"),
	)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
