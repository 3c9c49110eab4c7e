package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Fields are sparse booking slots collected opportunistically during the
// conversation. None of them is required for the call loop to progress.
type Fields struct {
	PatientName     string `json:"patient_name,omitempty"`
	PatientDOB      string `json:"patient_dob,omitempty"`
	SelectedService string `json:"selected_service,omitempty"`
	BookingDate     string `json:"booking_date,omitempty"`
	BookingTime     string `json:"booking_time,omitempty"`
}

// Session is the per-call conversation state. It lives in process memory
// only; a restart drops every active call.
type Session struct {
	ID             string    `json:"session_id"`
	History        []Turn    `json:"history"`
	Fields         Fields    `json:"fields"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Store owns the session map and its synchronization. One coarse RW lock is
// enough at call-level mutation rates.
type Store struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	maxHistory        int
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewStore(maxHistory int, inactivityTimeout time.Duration) *Store {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Store{
		sessions:          make(map[string]*Session),
		maxHistory:        maxHistory,
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback invoked for sessions the janitor drops.
func (s *Store) SetExpireHook(hook func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Create registers a new session under a fresh opaque id.
func (s *Store) Create() *Session {
	now := time.Now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return clone(sess)
}

// Get returns a copy of the session, or ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

// Delete removes the session. Removing an unknown id is ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns the ids of all live sessions.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// AppendTurn records one conversation turn and trims history to the
// configured maximum, dropping the oldest entries first.
func (s *Store) AppendTurn(id string, role Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.History = append(sess.History, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
	if over := len(sess.History) - s.maxHistory; over > 0 {
		sess.History = append(sess.History[:0], sess.History[over:]...)
	}
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// SetFields merges non-empty booking slots into the session.
func (s *Store) SetFields(id string, f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if f.PatientName != "" {
		sess.Fields.PatientName = f.PatientName
	}
	if f.PatientDOB != "" {
		sess.Fields.PatientDOB = f.PatientDOB
	}
	if f.SelectedService != "" {
		sess.Fields.SelectedService = f.SelectedService
	}
	if f.BookingDate != "" {
		sess.Fields.BookingDate = f.BookingDate
	}
	if f.BookingTime != "" {
		sess.Fields.BookingTime = f.BookingTime
	}
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// Touch refreshes the activity timestamp so the janitor keeps the session.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// ActiveCount returns the number of live sessions.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor drops sessions idle beyond the inactivity timeout until ctx
// is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireInactive()
			}
		}
	}()
}

func (s *Store) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) < s.inactivityTimeout {
			continue
		}
		expired = append(expired, clone(sess))
		delete(s.sessions, id)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, sess := range expired {
			hook(sess)
		}
	}
}

func clone(sess *Session) *Session {
	c := *sess
	c.History = append([]Turn(nil), sess.History...)
	return &c
}
