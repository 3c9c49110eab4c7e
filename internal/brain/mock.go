package brain

import (
	"context"
	"strings"
	"sync"
)

// MockCompleter is the keyless fallback brain and the test double. With no
// scripted replies it echoes a canned receptionist line.
type MockCompleter struct {
	mu      sync.Mutex
	replies []string
	next    int
	err     error
	calls   []string
}

func NewMockCompleter(replies ...string) *MockCompleter {
	return &MockCompleter{replies: replies}
}

// FailWith makes every subsequent Complete call return err.
func (m *MockCompleter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockCompleter) Model() string { return "mock" }

func (m *MockCompleter) Complete(_ context.Context, system string, history []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}

	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	m.calls = append(m.calls, last)

	if m.next < len(m.replies) {
		reply := m.replies[m.next]
		m.next++
		return reply, nil
	}
	if strings.TrimSpace(last) == "" {
		return "How can I assist you today?", nil
	}
	return "Of course. Could you tell me a little more so I can help?", nil
}

// Calls returns the user utterances seen so far, in order.
func (m *MockCompleter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
