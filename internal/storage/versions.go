package storage

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// VersionRepository provides operations for the script_versions table.
// Version content is stored zstd-compressed; script bodies compress well
// and old versions are read rarely.
type VersionRepository struct {
	db      *DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *DB) (*VersionRepository, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &VersionRepository{db: db, encoder: encoder, decoder: decoder}, nil
}

// Create inserts a version snapshot
func (r *VersionRepository) Create(q Querier, v *Version) error {
	compressed := r.encoder.EncodeAll([]byte(v.Content), nil)

	_, err := q.Exec(`
		INSERT INTO script_versions (id, script_id, version, content, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		v.ID,
		v.ScriptID,
		v.Version,
		compressed,
		v.ContentHash,
		v.CreatedAt.Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("failed to create script version: %w", err)
	}

	return nil
}

// ListByScriptID returns all versions of a script, newest first
func (r *VersionRepository) ListByScriptID(q Querier, scriptID string) ([]*Version, error) {
	rows, err := q.Query(`
		SELECT id, script_id, version, content, content_hash, created_at
		FROM script_versions
		WHERE script_id = ?
		ORDER BY version DESC
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list script versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		var compressed []byte
		var createdAt string

		if err := rows.Scan(&v.ID, &v.ScriptID, &v.Version, &compressed, &v.ContentHash, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan script version: %w", err)
		}

		content, err := r.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress version content: %w", err)
		}
		v.Content = string(content)

		v.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at format: %w", err)
		}

		versions = append(versions, &v)
	}

	return versions, rows.Err()
}

// DeleteByScriptID removes all versions of a script
func (r *VersionRepository) DeleteByScriptID(q Querier, scriptID string) error {
	_, err := q.Exec("DELETE FROM script_versions WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("failed to delete script versions: %w", err)
	}
	return nil
}
