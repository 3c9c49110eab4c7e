package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStoreCreateGetDelete(t *testing.T) {
	s := NewStore(50, time.Minute)
	sess := s.Create()
	if sess.ID == "" {
		t.Fatal("session ID should not be empty")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 0 {
		t.Fatalf("new session history length = %d, want 0", len(got.History))
	}

	if err := s.Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestAppendTurnTrimsHistory(t *testing.T) {
	s := NewStore(4, time.Minute)
	sess := s.Create()

	for i := 0; i < 6; i++ {
		if err := s.AppendTurn(sess.ID, RoleUser, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(got.History))
	}
	if got.History[0].Text != "turn 2" {
		t.Fatalf("oldest kept turn = %q, want %q", got.History[0].Text, "turn 2")
	}
	if got.History[3].Text != "turn 5" {
		t.Fatalf("newest turn = %q, want %q", got.History[3].Text, "turn 5")
	}
}

func TestSetFieldsMergesSparseSlots(t *testing.T) {
	s := NewStore(50, time.Minute)
	sess := s.Create()

	if err := s.SetFields(sess.ID, Fields{PatientName: "Ada Lovelace"}); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}
	if err := s.SetFields(sess.ID, Fields{SelectedService: "Dental Cleaning"}); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}

	got, _ := s.Get(sess.ID)
	if got.Fields.PatientName != "Ada Lovelace" {
		t.Fatalf("PatientName = %q after second merge", got.Fields.PatientName)
	}
	if got.Fields.SelectedService != "Dental Cleaning" {
		t.Fatalf("SelectedService = %q", got.Fields.SelectedService)
	}
}

func TestCloneIsolation(t *testing.T) {
	s := NewStore(50, time.Minute)
	sess := s.Create()
	_ = s.AppendTurn(sess.ID, RoleUser, "hello")

	got, _ := s.Get(sess.ID)
	got.History[0].Text = "mutated"

	again, _ := s.Get(sess.ID)
	if again.History[0].Text != "hello" {
		t.Fatal("Get must return an isolated copy")
	}
}

func TestConcurrentSessionsIndependent(t *testing.T) {
	s := NewStore(50, time.Minute)
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = s.Create().ID
	}

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.AppendTurn(id, RoleUser, fmt.Sprintf("s%d-%d", i, j))
			}
		}(i, id)
	}
	wg.Wait()

	for _, id := range ids {
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if len(got.History) != 20 {
			t.Fatalf("history length = %d, want 20", len(got.History))
		}
	}
}

func TestJanitorExpiresInactive(t *testing.T) {
	s := NewStore(50, 30*time.Millisecond)
	sess := s.Create()

	expired := make(chan string, 1)
	s.SetExpireHook(func(sess *Session) { expired <- sess.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != sess.ID {
			t.Fatalf("expired id = %q, want %q", id, sess.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("janitor did not expire the idle session")
	}
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after expiry error = %v, want ErrNotFound", err)
	}
}
