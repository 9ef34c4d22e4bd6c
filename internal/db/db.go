package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sensorbridge/internal/entity"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS entity_states (
  id          BIGSERIAL PRIMARY KEY,
  entity_id   TEXT        NOT NULL,
  state       TEXT        NOT NULL,
  available   BOOLEAN     NOT NULL,
  attributes  JSONB       NOT NULL DEFAULT '{}'::jsonb,
  recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS entity_states_entity_recorded_idx
  ON entity_states (entity_id, recorded_at DESC);
`

// EnsureSchema creates the state history table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create entity_states: %w", err)
	}
	return nil
}

// Recorder stores every written entity state.
type Recorder struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, timeout: 5 * time.Second}
}

func (r *Recorder) WriteState(ctx context.Context, s entity.Snapshot) error {
	attrs, err := encodeAttributes(s.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes for %s: %w", s.EntityID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `INSERT INTO entity_states (entity_id, state, available, attributes, recorded_at)
VALUES ($1, $2, $3, $4::jsonb, $5)`
	if _, err := r.db.ExecContext(ctx, q, s.EntityID, s.State, s.Available, attrs, s.Timestamp); err != nil {
		return fmt.Errorf("insert state for %s: %w", s.EntityID, err)
	}
	return nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
