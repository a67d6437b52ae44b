package hotreload

import (
	"context"
	"encoding/json"
	"fmt"

	"qconf/internal/database"
)

// ChangeStore persists applied change records to the config_changes table
type ChangeStore struct {
	db *database.DB
}

// NewChangeStore creates a database-backed change store
func NewChangeStore(db *database.DB) *ChangeStore {
	return &ChangeStore{db: db}
}

// SaveChange inserts a change record
func (s *ChangeStore) SaveChange(ctx context.Context, record ChangeRecord) error {
	changes, err := json.Marshal(record.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_changes (id, config_name, file_path, event_type, changes, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Name, record.File, string(record.Event),
		changes, record.Success, record.Error, record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save change record: %w", err)
	}
	return nil
}

// Handler returns a ChangeHandler that persists every record
func (s *ChangeStore) Handler() ChangeHandler {
	return func(record ChangeRecord) error {
		return s.SaveChange(context.Background(), record)
	}
}
