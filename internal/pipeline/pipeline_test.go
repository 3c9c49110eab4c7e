package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/frontdesk-ai/frontdesk/internal/agent"
	"github.com/frontdesk-ai/frontdesk/internal/audio"
	"github.com/frontdesk-ai/frontdesk/internal/brain"
	"github.com/frontdesk-ai/frontdesk/internal/clinic"
	"github.com/frontdesk-ai/frontdesk/internal/protocol"
	"github.com/frontdesk-ai/frontdesk/internal/session"
	"github.com/frontdesk-ai/frontdesk/internal/speech"
	"github.com/frontdesk-ai/frontdesk/internal/vad"
)

// testVAD commits an utterance after a single silence frame.
var testVAD = vad.Config{SampleRate: 16000, ChunkSize: 16000, SilenceDuration: 1}

type callHarness struct {
	pipeline *Pipeline
	sessions *session.Store
	sess     *session.Session
	stt      *speech.MockTranscriber
	tts      *speech.MockSynthesizer
	brain    *brain.MockCompleter

	inbound  chan any
	outbound chan any
	done     chan error
}

func newHarness(t *testing.T, transcripts []string, replies []string) *callHarness {
	t.Helper()
	sessions := session.NewStore(50, time.Minute)
	catalog := clinic.NewCatalog([]clinic.Service{
		{ID: "svc-1", Name: "Dental Cleaning", Description: "Teeth cleaning", Price: 90, DurationMinutes: 45},
	})
	completer := brain.NewMockCompleter(replies...)
	a := agent.New(completer, sessions, catalog, "Testville Clinic")
	stt := speech.NewMockTranscriber(transcripts...)
	tts := speech.NewMockSynthesizer()

	h := &callHarness{
		pipeline: New(a, sessions, stt, tts, testVAD, nil, 2*time.Second),
		sessions: sessions,
		sess:     sessions.Create(),
		stt:      stt,
		tts:      tts,
		brain:    completer,
		inbound:  make(chan any, 64),
		outbound: make(chan any, 256),
		done:     make(chan error, 1),
	}
	return h
}

func (h *callHarness) start(ctx context.Context) {
	go func() {
		h.done <- h.pipeline.RunCall(ctx, h.sess, h.inbound, h.outbound)
	}()
}

func (h *callHarness) finish(t *testing.T) error {
	t.Helper()
	close(h.inbound)
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("RunCall did not return")
		return nil
	}
}

func (h *callHarness) drain() []any {
	var msgs []any
	for {
		select {
		case m := <-h.outbound:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func speechChunk(sessionID string) protocol.ClientAudioChunk {
	samples := make([]float64, 1024)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.3
		} else {
			samples[i] = -0.3
		}
	}
	return protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		SessionID:   sessionID,
		PCM16Base64: base64.StdEncoding.EncodeToString(audio.EncodePCM16LE(samples)),
		SampleRate:  16000,
	}
}

func silenceChunk(sessionID string) protocol.ClientAudioChunk {
	return protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		SessionID:   sessionID,
		PCM16Base64: base64.StdEncoding.EncodeToString(make([]byte, 2048)),
		SampleRate:  16000,
	}
}

func audioChunks(msgs []any) []protocol.AssistantAudioChunk {
	var out []protocol.AssistantAudioChunk
	for _, m := range msgs {
		if c, ok := m.(protocol.AssistantAudioChunk); ok {
			out = append(out, c)
		}
	}
	return out
}

func systemEvents(msgs []any) []protocol.SystemEvent {
	var out []protocol.SystemEvent
	for _, m := range msgs {
		if e, ok := m.(protocol.SystemEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestGreetingSentBeforeAnyAudio(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(context.Background())
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	msgs := h.drain()
	if len(msgs) < 2 {
		t.Fatalf("expected greeting event + audio, got %d messages", len(msgs))
	}
	evt, ok := msgs[0].(protocol.SystemEvent)
	if !ok || evt.Code != protocol.EventGreeting {
		t.Fatalf("first message = %#v, want greeting event", msgs[0])
	}
	chunk, ok := msgs[1].(protocol.AssistantAudioChunk)
	if !ok {
		t.Fatalf("second message = %#v, want audio chunk", msgs[1])
	}
	decoded, _ := base64.StdEncoding.DecodeString(chunk.AudioBase64)
	if !strings.Contains(string(decoded), "Testville Clinic") {
		t.Fatalf("greeting audio = %q", decoded)
	}
}

func TestFullTurnSpeechToReply(t *testing.T) {
	h := newHarness(t,
		[]string{"I'd like to book a cleaning"},
		[]string{"Our Dental Cleaning is $90. When would you like to come in?"},
	)
	h.start(context.Background())

	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	msgs := h.drain()
	var transcript *protocol.Transcript
	for _, m := range msgs {
		if tr, ok := m.(protocol.Transcript); ok {
			transcript = &tr
		}
	}
	if transcript == nil || transcript.Text != "I'd like to book a cleaning" {
		t.Fatalf("transcript = %#v", transcript)
	}

	spoken := h.tts.Spoken()
	if len(spoken) != 2 {
		t.Fatalf("spoken = %q, want greeting + reply", spoken)
	}
	if !strings.Contains(spoken[1], "Dental Cleaning") {
		t.Fatalf("reply = %q, want service reference", spoken[1])
	}

	got, _ := h.sessions.Get(h.sess.ID)
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
}

func TestSilenceOnlyNeverTranscribes(t *testing.T) {
	h := newHarness(t, []string{"should never be used"}, nil)
	h.start(context.Background())

	for i := 0; i < 5; i++ {
		h.inbound <- silenceChunk(h.sess.ID)
	}
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}
	if h.stt.Calls() != 0 {
		t.Fatalf("transcriber called %d times on pure silence", h.stt.Calls())
	}
}

func TestEmptyTranscriptKeepsListening(t *testing.T) {
	h := newHarness(t,
		[]string{"", "hello, can you hear me?"},
		[]string{"Yes, loud and clear. How can I help?"},
	)
	h.start(context.Background())

	// First utterance transcribes to nothing (noise).
	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	// Second is a real utterance.
	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	msgs := h.drain()
	count := 0
	for _, m := range msgs {
		if _, ok := m.(protocol.Transcript); ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("transcript events = %d, want 1 (noise dropped silently)", count)
	}
}

func TestGoodbyeEndsCallWithFarewell(t *testing.T) {
	h := newHarness(t, []string{"okay, goodbye"}, nil)
	h.start(context.Background())

	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("RunCall() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not close after goodbye")
	}

	msgs := h.drain()
	events := systemEvents(msgs)
	var codes []string
	for _, e := range events {
		codes = append(codes, e.Code)
	}
	want := []string{protocol.EventGreeting, protocol.EventFarewell, protocol.EventClosed}
	if strings.Join(codes, ",") != strings.Join(want, ",") {
		t.Fatalf("system events = %v, want %v", codes, want)
	}

	spoken := h.tts.Spoken()
	if len(spoken) != 2 || spoken[1] != "Thank you for calling. Have a great day!" {
		t.Fatalf("spoken = %q", spoken)
	}
	// The farewell must not go through the completion model.
	if calls := h.brain.Calls(); len(calls) != 0 {
		t.Fatalf("brain calls = %v, want none", calls)
	}
}

func TestGoodbyeReleasesSession(t *testing.T) {
	h := newHarness(t, []string{"goodbye"}, nil)
	h.start(context.Background())

	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("RunCall() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not close after goodbye")
	}

	if _, err := h.sessions.Get(h.sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get after call end error = %v, want ErrNotFound", err)
	}
	if h.sessions.ActiveCount() != 0 {
		t.Fatalf("active sessions = %d after call end, want 0", h.sessions.ActiveCount())
	}
}

func TestClientControlEndCall(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(context.Background())

	h.inbound <- protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: h.sess.ID, Action: protocol.ActionEndCall}

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("RunCall() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not close on end_call control")
	}

	events := systemEvents(h.drain())
	if len(events) != 3 || events[2].Code != protocol.EventClosed {
		t.Fatalf("system events = %#v", events)
	}
	if _, err := h.sessions.Get(h.sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get after end_call error = %v, want ErrNotFound", err)
	}
}

func TestCompleterFailureSpeaksFallback(t *testing.T) {
	h := newHarness(t, []string{"I need an appointment"}, nil)
	h.brain.FailWith(errors.New("model down"))
	h.start(context.Background())

	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	spoken := h.tts.Spoken()
	if len(spoken) != 2 || spoken[1] != agent.FallbackReply {
		t.Fatalf("spoken = %q, want fallback reply", spoken)
	}
	got, _ := h.sessions.Get(h.sess.ID)
	if len(got.History) != 2 || got.History[1].Text != agent.FallbackReply {
		t.Fatalf("fallback not recorded: %+v", got.History)
	}
}

func TestSynthesisFailureDoesNotEndCall(t *testing.T) {
	h := newHarness(t,
		[]string{"hello", "hi again"},
		[]string{"First reply.", "Second reply."},
	)
	h.tts.FailWith(errors.New("tts down"))
	h.start(context.Background())

	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	h.inbound <- speechChunk(h.sess.ID)
	h.inbound <- silenceChunk(h.sess.ID)
	if err := h.finish(t); err != nil {
		t.Fatalf("RunCall() error = %v", err)
	}

	got, _ := h.sessions.Get(h.sess.ID)
	if len(got.History) != 4 {
		t.Fatalf("history length = %d, want 4 (both turns completed mute)", len(got.History))
	}
	if chunks := audioChunks(h.drain()); len(chunks) != 0 {
		t.Fatalf("audio chunks = %d, want 0 while synthesis is down", len(chunks))
	}
}

func TestDisconnectUnwindsPromptly(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.start(ctx)

	cancel()
	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("RunCall() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunCall did not unwind on disconnect")
	}
}

func TestStateNamesAreStable(t *testing.T) {
	// The states are part of the operational vocabulary (logs, docs).
	states := []State{StateAwaitingAudio, StateGating, StateTranscribing, StateRouting, StateSynthesizing, StateSending, StateClosed}
	seen := make(map[State]bool)
	for _, s := range states {
		if s == "" || seen[s] {
			t.Fatalf("duplicate or empty state %q", s)
		}
		seen[s] = true
	}
}
