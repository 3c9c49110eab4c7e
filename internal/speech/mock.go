package speech

import (
	"context"
	"strings"
	"sync"
)

// MockTranscriber is the scripted STT backend for tests and explicit mock
// mode. It replays its transcripts, one per non-empty audio buffer.
type MockTranscriber struct {
	mu          sync.Mutex
	transcripts []string
	next        int
	err         error
	calls       int
}

func NewMockTranscriber(transcripts ...string) *MockTranscriber {
	return &MockTranscriber{transcripts: transcripts}
}

func (m *MockTranscriber) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockTranscriber) Available() bool  { return true }
func (m *MockTranscriber) Provider() string { return "mock_stt" }

func (m *MockTranscriber) Transcribe(_ context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.calls++
	if m.next < len(m.transcripts) {
		text := m.transcripts[m.next]
		m.next++
		return text, nil
	}
	return "", nil
}

// Calls returns how many non-empty buffers reached the backend.
func (m *MockTranscriber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// UnavailableTranscriber is the degenerate backend used when no STT engine
// is configured: always empty text, never an error.
type UnavailableTranscriber struct{}

func (UnavailableTranscriber) Transcribe(context.Context, []byte) (string, error) { return "", nil }
func (UnavailableTranscriber) Available() bool                                    { return false }
func (UnavailableTranscriber) Provider() string                                   { return "none" }

// MockSynthesizer renders text as its own bytes so tests can assert on what
// was spoken without decoding audio.
type MockSynthesizer struct {
	mu     sync.Mutex
	err    error
	spoken []string
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSynthesizer) Provider() string     { return "mock_tts" }
func (m *MockSynthesizer) OutputFormat() string { return "text_bytes" }

func (m *MockSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	m.spoken = append(m.spoken, text)
	return []byte(text), nil
}

// Spoken returns every utterance synthesized so far, in order.
func (m *MockSynthesizer) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}
