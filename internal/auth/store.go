package auth

import (
	"database/sql"
	"fmt"
	"time"

	"scriptd/internal/logging"
	"scriptd/internal/storage"
)

// KeyStore provides persistence for API keys in the main database
type KeyStore struct {
	db     *storage.DB
	logger *logging.Logger
}

// NewKeyStore creates a new key store. The api_keys table is part of the
// main schema.
func NewKeyStore(db *storage.DB, logger *logging.Logger) *KeyStore {
	return &KeyStore{
		db:     db,
		logger: logger,
	}
}

// Save persists a new API key
func (s *KeyStore) Save(key *storage.APIKey) error {
	_, err := s.db.Exec(`
		INSERT INTO api_keys (key_id, token_prefix, token_hash, user_id, created_at, last_used_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		key.KeyID,
		key.TokenPrefix,
		key.TokenHash,
		key.UserID,
		key.CreatedAt.Format(time.RFC3339),
		formatNullTime(key.LastUsedAt),
		formatNullTime(key.RevokedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}

	s.logger.Debug("API key saved", map[string]interface{}{
		"key_id": key.KeyID,
	})

	return nil
}

// FindByPrefix returns all keys sharing a token prefix. Prefixes are 8 hex
// chars, so collisions are possible and the caller verifies the full hash.
func (s *KeyStore) FindByPrefix(prefix string) ([]*storage.APIKey, error) {
	rows, err := s.db.Query(`
		SELECT key_id, token_prefix, token_hash, user_id, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE token_prefix = ?
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to find API keys: %w", err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// ListByUser returns all keys belonging to a user, newest first
func (s *KeyStore) ListByUser(userID string) ([]*storage.APIKey, error) {
	rows, err := s.db.Query(`
		SELECT key_id, token_prefix, token_hash, user_id, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// TouchLastUsed records that a key was just used
func (s *KeyStore) TouchLastUsed(keyID string) error {
	_, err := s.db.Exec(
		"UPDATE api_keys SET last_used_at = ? WHERE key_id = ?",
		time.Now().UTC().Format(time.RFC3339), keyID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch API key: %w", err)
	}
	return nil
}

// Revoke marks a key revoked. Revocation is permanent.
func (s *KeyStore) Revoke(keyID string) error {
	result, err := s.db.Exec(
		"UPDATE api_keys SET revoked_at = ? WHERE key_id = ? AND revoked_at IS NULL",
		time.Now().UTC().Format(time.RFC3339), keyID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("API key not found or already revoked: %s", keyID)
	}

	return nil
}

func scanKeys(rows *sql.Rows) ([]*storage.APIKey, error) {
	var keys []*storage.APIKey
	for rows.Next() {
		var key storage.APIKey
		var createdAt string
		var lastUsedAt, revokedAt sql.NullString

		if err := rows.Scan(
			&key.KeyID,
			&key.TokenPrefix,
			&key.TokenHash,
			&key.UserID,
			&createdAt,
			&lastUsedAt,
			&revokedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}

		var err error
		key.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at format: %w", err)
		}
		key.LastUsedAt, err = parseNullTime(lastUsedAt)
		if err != nil {
			return nil, err
		}
		key.RevokedAt, err = parseNullTime(revokedAt)
		if err != nil {
			return nil, err
		}

		keys = append(keys, &key)
	}

	return keys, rows.Err()
}

func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp format: %w", err)
	}
	return &t, nil
}
