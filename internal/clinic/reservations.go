package clinic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reservation is one appointment booking. The log is append-only; the core
// pipeline never mutates or deletes entries. Double-booking is deliberately
// not checked here.
type Reservation struct {
	ID          string    `json:"id"`
	ServiceID   string    `json:"service_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	PatientName string    `json:"patient_name"`
	PatientDOB  string    `json:"patient_dob"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReservationStore persists the append-only reservation log.
type ReservationStore interface {
	Create(ctx context.Context, r Reservation) (Reservation, error)
	List(ctx context.Context) ([]Reservation, error)
	Close() error
}

// MemoryReservationStore keeps reservations in process memory. Used when no
// DATABASE_URL is configured.
type MemoryReservationStore struct {
	mu           sync.Mutex
	reservations []Reservation
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{}
}

func (s *MemoryReservationStore) Create(_ context.Context, r Reservation) (Reservation, error) {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
	return r, nil
}

func (s *MemoryReservationStore) List(_ context.Context) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reservation(nil), s.reservations...), nil
}

func (s *MemoryReservationStore) Close() error { return nil }
