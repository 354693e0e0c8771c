package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ListFilter narrows and pages List results. A zero value lists everything
// visible to the caller.
type ListFilter struct {
	UserID     string // restrict to one owner
	CategoryID string
	Tag        string // normalized tag name
	Search     string // substring match on title and description
	PublicOnly bool
	SortBy     string // "updated_at" (default), "created_at", "title", "execution_count"
	SortDesc   bool
	Limit      int
	Offset     int
}

// ScriptRepository provides CRUD operations for the scripts table. Methods
// take an explicit Querier so callers choose transaction boundaries.
type ScriptRepository struct {
	db *DB
}

// NewScriptRepository creates a new script repository
func NewScriptRepository(db *DB) *ScriptRepository {
	return &ScriptRepository{db: db}
}

const scriptColumns = `id, title, description, content, user_id, category_id,
	version, is_public, content_hash, execution_count, created_at, updated_at`

// Create inserts a new script row
func (r *ScriptRepository) Create(q Querier, s *Script) error {
	_, err := q.Exec(`
		INSERT INTO scripts (
			id, title, description, content, user_id, category_id,
			version, is_public, content_hash, execution_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.Title,
		s.Description,
		s.Content,
		s.UserID,
		nullString(s.CategoryID),
		s.Version,
		boolToInt(s.IsPublic),
		s.ContentHash,
		s.ExecutionCount,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}

	return nil
}

// Get retrieves a script by ID, or (nil, nil) when absent
func (r *ScriptRepository) Get(q Querier, id string) (*Script, error) {
	row := q.QueryRow(`SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id)
	s, err := scanScript(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return s, nil
}

// GetByContentHash finds an existing script with the same owner and content
// hash. Used for duplicate detection before a write.
func (r *ScriptRepository) GetByContentHash(q Querier, userID, contentHash string) (*Script, error) {
	row := q.QueryRow(`
		SELECT `+scriptColumns+`
		FROM scripts
		WHERE user_id = ? AND content_hash = ?
		LIMIT 1
	`, userID, contentHash)
	s, err := scanScript(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get script by content hash: %w", err)
	}
	return s, nil
}

// Update rewrites all mutable columns of a script row
func (r *ScriptRepository) Update(q Querier, s *Script) error {
	result, err := q.Exec(`
		UPDATE scripts
		SET title = ?,
		    description = ?,
		    content = ?,
		    category_id = ?,
		    version = ?,
		    is_public = ?,
		    content_hash = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		s.Title,
		s.Description,
		s.Content,
		nullString(s.CategoryID),
		s.Version,
		boolToInt(s.IsPublic),
		s.ContentHash,
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update script: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("script not found: %s", s.ID)
	}

	return nil
}

// Delete removes a script row. Dependent rows are removed by the caller
// before this, in the same transaction.
func (r *ScriptRepository) Delete(q Querier, id string) error {
	result, err := q.Exec("DELETE FROM scripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("script not found: %s", id)
	}

	return nil
}

// IncrementExecutionCount bumps the run counter without touching updated_at
func (r *ScriptRepository) IncrementExecutionCount(q Querier, id string) error {
	_, err := q.Exec(
		"UPDATE scripts SET execution_count = execution_count + 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment execution count: %w", err)
	}
	return nil
}

// List returns scripts matching the filter
func (r *ScriptRepository) List(q Querier, filter ListFilter) ([]*Script, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "s.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, "s.category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.PublicOnly {
		conditions = append(conditions, "s.is_public = 1")
	}
	if filter.Tag != "" {
		conditions = append(conditions, `s.id IN (
			SELECT st.script_id FROM script_tags st
			JOIN tags t ON t.id = st.tag_id
			WHERE t.name = ?
		)`)
		args = append(args, filter.Tag)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(s.title LIKE ? OR s.description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT s.id, s.title, s.description, s.content, s.user_id, s.category_id,
		s.version, s.is_public, s.content_hash, s.execution_count, s.created_at, s.updated_at
		FROM scripts s`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY " + sortColumn(filter.SortBy)
	if filter.SortDesc {
		query += " DESC"
	} else {
		query += " ASC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []*Script
	for rows.Next() {
		s, err := scanScriptRow(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}

	return scripts, rows.Err()
}

// Count returns the number of scripts matching the filter, ignoring paging
func (r *ScriptRepository) Count(q Querier, filter ListFilter) (int, error) {
	filter.Limit = 0
	filter.Offset = 0

	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.PublicOnly {
		conditions = append(conditions, "is_public = 1")
	}
	if filter.Tag != "" {
		conditions = append(conditions, `id IN (
			SELECT st.script_id FROM script_tags st
			JOIN tags t ON t.id = st.tag_id
			WHERE t.name = ?
		)`)
		args = append(args, filter.Tag)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := "SELECT COUNT(*) FROM scripts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := q.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scripts: %w", err)
	}

	return count, nil
}

// sortColumn maps an external sort key to a safe column expression
func sortColumn(key string) string {
	switch key {
	case "created_at":
		return "s.created_at"
	case "title":
		return "s.title COLLATE NOCASE"
	case "execution_count":
		return "s.execution_count"
	default:
		return "s.updated_at"
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScript(row *sql.Row) (*Script, error) {
	s, err := scanScriptFields(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func scanScriptRow(rows *sql.Rows) (*Script, error) {
	return scanScriptFields(rows)
}

func scanScriptFields(row rowScanner) (*Script, error) {
	var s Script
	var categoryID sql.NullString
	var isPublic int
	var createdAt, updatedAt string

	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Description,
		&s.Content,
		&s.UserID,
		&categoryID,
		&s.Version,
		&isPublic,
		&s.ContentHash,
		&s.ExecutionCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		s.CategoryID = categoryID.String
	}
	s.IsPublic = isPublic != 0

	s.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}
	s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at format: %w", err)
	}

	return &s, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp format: %w", err)
	}
	return &t, nil
}
