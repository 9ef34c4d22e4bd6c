package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sensorbridge/internal/entity"
)

// LatestState returns the most recently recorded state of entityID.
func LatestState(ctx context.Context, db *sql.DB, entityID string) (entity.Snapshot, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return entity.Snapshot{}, fmt.Errorf("entity id is required")
	}
	q := `
SELECT entity_id, state, available, attributes::text, recorded_at
FROM entity_states
WHERE entity_id = $1
ORDER BY recorded_at DESC
LIMIT 1`
	var (
		s     entity.Snapshot
		attrs sql.NullString
	)
	err := db.QueryRowContext(ctx, q, entityID).Scan(&s.EntityID, &s.State, &s.Available, &attrs, &s.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Snapshot{}, fmt.Errorf("no recorded state for %q", entityID)
		}
		return entity.Snapshot{}, err
	}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &s.Attributes); err != nil {
			return entity.Snapshot{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return s, nil
}
