package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		creators := []func(*sql.Tx) error{
			createUsersTable,
			createCategoriesTable,
			createScriptsTable,
			createScriptAnalysisTable,
			createScriptVersionsTable,
			createTagTables,
			createExecutionLogsTable,
			createScriptEmbeddingsTable,
			createAPIKeysTable,
		}
		for _, create := range creators {
			if err := create(tx); err != nil {
				return err
			}
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", map[string]interface{}{
			"version": version,
		})
		return nil
	}

	if version == 0 {
		// Database file exists but schema was never written
		return db.initializeSchema()
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migrations are applied sequentially as the schema evolves.

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func createUsersTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user', 'admin')),
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createCategoriesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create categories table: %w", err)
	}
	return nil
}

func createScriptsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS scripts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category_id TEXT,
			version INTEGER NOT NULL DEFAULT 1 CHECK(version >= 1),
			is_public INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			execution_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scripts table: %w", err)
	}

	// Dedup is an explicit pre-write lookup, not a UNIQUE constraint, so a
	// collision surfaces as a conflict rather than a constraint error.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_scripts_user_id ON scripts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_scripts_category_id ON scripts(category_id)",
		"CREATE INDEX IF NOT EXISTS idx_scripts_content_hash ON scripts(user_id, content_hash)",
		"CREATE INDEX IF NOT EXISTS idx_scripts_updated_at ON scripts(updated_at DESC)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func createScriptAnalysisTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS script_analysis (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL UNIQUE,
			purpose TEXT NOT NULL DEFAULT '',
			parameter_docs TEXT NOT NULL DEFAULT '[]',
			security_score REAL NOT NULL DEFAULT 5.0,
			quality_score REAL NOT NULL DEFAULT 5.0,
			risk_score REAL NOT NULL DEFAULT 5.0,
			suggestions TEXT NOT NULL DEFAULT '[]',
			command_details TEXT NOT NULL DEFAULT '[]',
			ms_docs_references TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			FOREIGN KEY (script_id) REFERENCES scripts(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create script_analysis table: %w", err)
	}
	return nil
}

func createScriptVersionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS script_versions (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			content BLOB NOT NULL,
			content_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,

			UNIQUE (script_id, version),
			FOREIGN KEY (script_id) REFERENCES scripts(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create script_versions table: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_script_versions_script_id ON script_versions(script_id, version DESC)",
	); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func createTagTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tags table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS script_tags (
			script_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,

			PRIMARY KEY (script_id, tag_id),
			FOREIGN KEY (script_id) REFERENCES scripts(id) ON DELETE CASCADE,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create script_tags table: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_script_tags_tag_id ON script_tags(tag_id)",
	); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func createExecutionLogsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			parameters TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'completed', 'failed')),
			output TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT,

			FOREIGN KEY (script_id) REFERENCES scripts(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create execution_logs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_execution_logs_script_id ON execution_logs(script_id, started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_execution_logs_status ON execution_logs(status)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createScriptEmbeddingsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS script_embeddings (
			script_id TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			dims INTEGER NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			FOREIGN KEY (script_id) REFERENCES scripts(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create script_embeddings table: %w", err)
	}
	return nil
}

func createAPIKeysTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS api_keys (
			key_id TEXT PRIMARY KEY,
			token_prefix TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			revoked_at TEXT,

			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create api_keys table: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_api_keys_token_prefix ON api_keys(token_prefix)",
	); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
