package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TagRepository provides operations for the tags and script_tags tables
type TagRepository struct {
	db *DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *DB) *TagRepository {
	return &TagRepository{db: db}
}

// Replace reconciles a script's tag set by removing all existing links and
// inserting the given normalized names. Tag rows are shared and created on
// first use; unreferenced tag rows are left in place.
func (r *TagRepository) Replace(q Querier, scriptID string, names []string) error {
	if _, err := q.Exec("DELETE FROM script_tags WHERE script_id = ?", scriptID); err != nil {
		return fmt.Errorf("failed to clear script tags: %w", err)
	}

	for _, name := range names {
		tagID, err := r.ensureTag(q, name)
		if err != nil {
			return err
		}
		if _, err := q.Exec(
			"INSERT INTO script_tags (script_id, tag_id) VALUES (?, ?)",
			scriptID, tagID,
		); err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}

	return nil
}

// ensureTag finds or creates a tag row and returns its ID
func (r *TagRepository) ensureTag(q Querier, name string) (string, error) {
	var id string
	err := q.QueryRow("SELECT id FROM tags WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up tag %q: %w", name, err)
	}

	id = uuid.New().String()
	if _, err := q.Exec("INSERT INTO tags (id, name) VALUES (?, ?)", id, name); err != nil {
		return "", fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	return id, nil
}

// NamesForScript returns a script's tag names in lexical order
func (r *TagRepository) NamesForScript(q Querier, scriptID string) ([]string, error) {
	rows, err := q.Query(`
		SELECT t.name
		FROM tags t
		JOIN script_tags st ON st.tag_id = t.id
		WHERE st.script_id = ?
		ORDER BY t.name
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list script tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// DeleteByScriptID removes a script's tag links
func (r *TagRepository) DeleteByScriptID(q Querier, scriptID string) error {
	_, err := q.Exec("DELETE FROM script_tags WHERE script_id = ?", scriptID)
	if err != nil {
		return fmt.Errorf("failed to delete script tags: %w", err)
	}
	return nil
}
