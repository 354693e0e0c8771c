package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// EmbeddingRepository provides operations for the script_embeddings table.
// Vectors are stored as little-endian float32 blobs.
type EmbeddingRepository struct {
	db *DB
}

// NewEmbeddingRepository creates a new embedding repository
func NewEmbeddingRepository(db *DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Upsert writes a script's embedding, replacing any previous vector
func (r *EmbeddingRepository) Upsert(q Querier, e *Embedding) error {
	_, err := q.Exec(`
		INSERT INTO script_embeddings (
			script_id, vector, dims, model, content_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(script_id) DO UPDATE SET
			vector = excluded.vector,
			dims = excluded.dims,
			model = excluded.model,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`,
		e.ScriptID,
		EncodeVector(e.Vector),
		len(e.Vector),
		e.Model,
		e.ContentHash,
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return nil
}

// GetByScriptID retrieves a script's embedding, or (nil, nil) when absent
func (r *EmbeddingRepository) GetByScriptID(q Querier, scriptID string) (*Embedding, error) {
	var e Embedding
	var blob []byte
	var createdAt, updatedAt string

	err := q.QueryRow(`
		SELECT script_id, vector, dims, model, content_hash, created_at, updated_at
		FROM script_embeddings
		WHERE script_id = ?
	`, scriptID).Scan(&e.ScriptID, &blob, &e.Dims, &e.Model, &e.ContentHash, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	e.Vector, err = DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding vector: %w", err)
	}

	e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at format: %w", err)
	}

	return &e, nil
}

// ListExcept returns all embeddings except the one for the given script.
// Used by similarity search to compare a script against the rest of the
// corpus without matching itself.
func (r *EmbeddingRepository) ListExcept(q Querier, scriptID string) ([]*Embedding, error) {
	rows, err := q.Query(`
		SELECT script_id, vector, dims
		FROM script_embeddings
		WHERE script_id != ?
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []*Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.ScriptID, &blob, &e.Dims); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Vector, err = DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding vector: %w", err)
		}
		embeddings = append(embeddings, &e)
	}

	return embeddings, rows.Err()
}

// DeleteByScriptID removes a script's embedding, if any
func (r *EmbeddingRepository) DeleteByScriptID(q Querier, scriptID string) error {
	_, err := q.Exec("DELETE FROM script_embeddings WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// EncodeVector packs a float32 slice as a little-endian byte blob
func EncodeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DecodeVector unpacks a little-endian byte blob into a float32 slice
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}
