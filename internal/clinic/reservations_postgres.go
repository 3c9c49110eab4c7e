package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReservationStore persists the reservation log in PostgreSQL.
type PostgresReservationStore struct {
	pool *pgxpool.Pool
}

func NewPostgresReservationStore(ctx context.Context, databaseURL string) (*PostgresReservationStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresReservationStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			patient_dob TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_created ON reservations (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresReservationStore) Create(ctx context.Context, r Reservation) (Reservation, error) {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reservations (id, service_id, date, time, patient_name, patient_dob, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ServiceID, r.Date, r.Time, r.PatientName, r.PatientDOB, r.CreatedAt,
	)
	if err != nil {
		return Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	return r, nil
}

func (s *PostgresReservationStore) List(ctx context.Context) ([]Reservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, service_id, date, time, patient_name, patient_dob, created_at
		 FROM reservations ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var items []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.Date, &r.Time, &r.PatientName, &r.PatientDOB, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}
	return items, nil
}

func (s *PostgresReservationStore) Close() error {
	s.pool.Close()
	return nil
}
