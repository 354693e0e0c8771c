package jobs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scriptd/internal/logging"
)

// Store provides persistence for jobs in a separate SQLite database, kept
// apart from the main store so job churn never contends with script
// transactions.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// OpenStore opens or creates the jobs database under dir.
func OpenStore(dir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dir, "jobs.db")
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating jobs database", map[string]interface{}{
			"path": dbPath,
		})
	}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize jobs schema: %w", err)
	}

	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			scope TEXT,
			status TEXT NOT NULL DEFAULT 'queued',
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// CreateJob inserts a new job into the database.
func (s *Store) CreateJob(job *Job) error {
	_, err := s.conn.Exec(`
		INSERT INTO jobs (id, type, scope, status, created_at, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Type,
		nullString(job.Scope),
		job.Status,
		job.CreatedAt.Format(time.RFC3339),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug("Created job", map[string]interface{}{
		"jobId": job.ID,
		"type":  job.Type,
	})

	return nil
}

// GetJob retrieves a job by ID, or (nil, nil) when absent.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.conn.QueryRow(`
		SELECT id, type, scope, status, created_at, started_at, completed_at, error
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob updates an existing job.
func (s *Store) UpdateJob(job *Job) error {
	result, err := s.conn.Exec(`
		UPDATE jobs SET
			status = ?,
			started_at = ?,
			completed_at = ?,
			error = ?
		WHERE id = ?
	`,
		job.Status,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}

	return nil
}

// ListJobs retrieves jobs matching the given options, newest first.
func (s *Store) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	var conditions []string
	var args []interface{}

	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, status := range opts.Status {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(opts.Type) > 0 {
		placeholders := make([]string, len(opts.Type))
		for i, t := range opts.Type {
			placeholders[i] = "?"
			args = append(args, t)
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", whereClause)
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, type, scope, status, created_at, started_at, completed_at, error
		FROM jobs %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return &ListJobsResponse{
		Jobs:       list,
		TotalCount: totalCount,
	}, nil
}

// GetPendingJobs retrieves jobs that were queued but never started,
// ordered by creation time. Jobs that died mid-run are not recovered;
// they had their single attempt.
func (s *Store) GetPendingJobs() ([]*Job, error) {
	rows, err := s.conn.Query(`
		SELECT id, type, scope, status, created_at, started_at, completed_at, error
		FROM jobs WHERE status = 'queued'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		pending = append(pending, job)
	}

	return pending, rows.Err()
}

// CleanupOldJobs removes terminal jobs older than the given retention.
func (s *Store) CleanupOldJobs(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)

	result, err := s.conn.Exec(`
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var scope, startedAt, completedAt, errMsg sql.NullString
	var createdAt string

	err := row.Scan(
		&job.ID,
		&job.Type,
		&scope,
		&job.Status,
		&createdAt,
		&startedAt,
		&completedAt,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	job.Scope = scope.String
	job.Error = errMsg.String

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		job.CreatedAt = t
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			job.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			job.CompletedAt = &t
		}
	}

	return &job, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
