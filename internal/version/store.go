package version

import (
	"context"
	"encoding/json"
	"fmt"

	"qconf/internal/database"
)

// PostgresStore persists versions to the config_versions table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a database-backed version store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveVersion inserts or replaces a version row
func (s *PostgresStore) SaveVersion(ctx context.Context, v *Version) error {
	configs, err := json.Marshal(v.Configs)
	if err != nil {
		return fmt.Errorf("failed to marshal version configs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_versions (id, created_at, description, author, configs)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET description = EXCLUDED.description,
		    author = EXCLUDED.author,
		    configs = EXCLUDED.configs`,
		v.ID, v.Timestamp, v.Description, v.Author, configs)
	if err != nil {
		return fmt.Errorf("failed to save version %s: %w", v.ID, err)
	}
	return nil
}

// DeleteVersion removes a version row
func (s *PostgresStore) DeleteVersion(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config_versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete version %s: %w", id, err)
	}
	return nil
}

// LoadVersion reads a version row by ID
func (s *PostgresStore) LoadVersion(ctx context.Context, id string) (*Version, error) {
	var v Version
	var configs []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, description, author, configs
		FROM config_versions WHERE id = $1`, id).
		Scan(&v.ID, &v.Timestamp, &v.Description, &v.Author, &configs)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", id, err)
	}

	if err := json.Unmarshal(configs, &v.Configs); err != nil {
		return nil, fmt.Errorf("failed to parse version configs: %w", err)
	}
	return &v, nil
}

// ListVersions returns version metadata, newest first
func (s *PostgresStore) ListVersions(ctx context.Context, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, description, author
		FROM config_versions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var meta Meta
		if err := rows.Scan(&meta.ID, &meta.Timestamp, &meta.Description, &meta.Author); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}
