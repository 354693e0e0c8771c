package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"scriptd/internal/logging"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir(), logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	return db
}

func createTestUser(t *testing.T, db *DB) *User {
	t.Helper()

	user := &User{
		ID:        uuid.New().String(),
		Username:  "tester-" + uuid.New().String()[:8],
		Email:     "tester@example.com",
		Role:      RoleUser,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := NewUserRepository(db).Create(db, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func createTestScript(t *testing.T, db *DB, userID string) *Script {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	script := &Script{
		ID:          uuid.New().String(),
		Title:       "Get-DiskUsage",
		Description: "Reports disk usage per volume",
		Content:     "Get-PSDrive -PSProvider FileSystem",
		UserID:      userID,
		Version:     1,
		ContentHash: "hash-" + uuid.New().String()[:8],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := NewScriptRepository(db).Create(db, script); err != nil {
		t.Fatalf("Failed to create script: %v", err)
	}
	return script
}

func TestDatabaseInitialization(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	dbPath := filepath.Join(tmpDir, "scriptd.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatalf("Database file was not created at %s", dbPath)
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	user := createTestUser(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	db, err = Open(tmpDir, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	got, err := NewUserRepository(db).Get(db, user.ID)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got == nil || got.Username != user.Username {
		t.Errorf("Expected user %q to survive reopen, got %+v", user.Username, got)
	}
}

func TestScriptRepositoryCRUD(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	repo := NewScriptRepository(db)

	script := createTestScript(t, db, user.ID)

	got, err := repo.Get(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to get script: %v", err)
	}
	if got == nil {
		t.Fatal("Expected script, got nil")
	}
	if got.Title != script.Title || got.Content != script.Content {
		t.Errorf("Script round trip mismatch: got %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}

	got.Title = "Get-DiskUsage-v2"
	got.Version = 2
	got.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	if err := repo.Update(db, got); err != nil {
		t.Fatalf("Failed to update script: %v", err)
	}

	updated, err := repo.Get(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to get updated script: %v", err)
	}
	if updated.Title != "Get-DiskUsage-v2" || updated.Version != 2 {
		t.Errorf("Update not persisted: %+v", updated)
	}

	if err := repo.Delete(db, script.ID); err != nil {
		t.Fatalf("Failed to delete script: %v", err)
	}
	gone, err := repo.Get(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to get deleted script: %v", err)
	}
	if gone != nil {
		t.Error("Expected nil after delete")
	}
}

func TestScriptRepositoryGetMissing(t *testing.T) {
	db := setupTestDB(t)

	got, err := NewScriptRepository(db).Get(db, "no-such-id")
	if err != nil {
		t.Fatalf("Expected no error for missing script, got: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing script, got %+v", got)
	}
}

func TestScriptRepositoryGetByContentHash(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	other := createTestUser(t, db)
	repo := NewScriptRepository(db)

	script := createTestScript(t, db, user.ID)

	found, err := repo.GetByContentHash(db, user.ID, script.ContentHash)
	if err != nil {
		t.Fatalf("Failed to get by content hash: %v", err)
	}
	if found == nil || found.ID != script.ID {
		t.Errorf("Expected to find script %s, got %+v", script.ID, found)
	}

	// Same hash under a different owner is not a duplicate
	found, err = repo.GetByContentHash(db, other.ID, script.ContentHash)
	if err != nil {
		t.Fatalf("Failed to get by content hash: %v", err)
	}
	if found != nil {
		t.Errorf("Expected no match for other owner, got %+v", found)
	}
}

func TestScriptRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	repo := NewScriptRepository(db)
	tagRepo := NewTagRepository(db)

	a := createTestScript(t, db, user.ID)
	b := createTestScript(t, db, user.ID)
	b.Title = "Backup-Database"
	b.IsPublic = true
	if err := repo.Update(db, b); err != nil {
		t.Fatalf("Failed to update script: %v", err)
	}
	if err := tagRepo.Replace(db, b.ID, []string{"backup"}); err != nil {
		t.Fatalf("Failed to tag script: %v", err)
	}

	all, err := repo.List(db, ListFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("Failed to list scripts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 scripts, got %d", len(all))
	}

	public, err := repo.List(db, ListFilter{PublicOnly: true})
	if err != nil {
		t.Fatalf("Failed to list public scripts: %v", err)
	}
	if len(public) != 1 || public[0].ID != b.ID {
		t.Errorf("Expected only public script %s, got %d results", b.ID, len(public))
	}

	tagged, err := repo.List(db, ListFilter{Tag: "backup"})
	if err != nil {
		t.Fatalf("Failed to list tagged scripts: %v", err)
	}
	if len(tagged) != 1 || tagged[0].ID != b.ID {
		t.Errorf("Expected tagged script %s, got %d results", b.ID, len(tagged))
	}

	searched, err := repo.List(db, ListFilter{Search: "Backup"})
	if err != nil {
		t.Fatalf("Failed to search scripts: %v", err)
	}
	if len(searched) != 1 || searched[0].ID != b.ID {
		t.Errorf("Expected search hit %s, got %d results", b.ID, len(searched))
	}

	count, err := repo.Count(db, ListFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("Failed to count scripts: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	_ = a
}

func TestScriptRepositoryListPaging(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	repo := NewScriptRepository(db)

	for i := 0; i < 5; i++ {
		createTestScript(t, db, user.ID)
	}

	page, err := repo.List(db, ListFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Failed to list page: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("Expected 2 results, got %d", len(page))
	}
}

func TestAnalysisUpsertReplacesRow(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	script := createTestScript(t, db, user.ID)
	repo := NewAnalysisRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	first := &Analysis{
		ID:            uuid.New().String(),
		ScriptID:      script.ID,
		Purpose:       "Analysis pending due to AI service error",
		SecurityScore: 5.0,
		QualityScore:  5.0,
		RiskScore:     5.0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Upsert(db, first); err != nil {
		t.Fatalf("Failed to upsert analysis: %v", err)
	}

	second := &Analysis{
		ID:            uuid.New().String(),
		ScriptID:      script.ID,
		Purpose:       "Reports disk usage",
		SecurityScore: 8.5,
		QualityScore:  7.0,
		RiskScore:     2.0,
		CreatedAt:     now,
		UpdatedAt:     now.Add(time.Minute),
	}
	if err := repo.Upsert(db, second); err != nil {
		t.Fatalf("Failed to re-upsert analysis: %v", err)
	}

	got, err := repo.GetByScriptID(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to get analysis: %v", err)
	}
	if got == nil {
		t.Fatal("Expected analysis, got nil")
	}
	if got.Purpose != "Reports disk usage" || got.SecurityScore != 8.5 {
		t.Errorf("Expected replaced analysis, got %+v", got)
	}

	// Only one row per script
	var count int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM script_analysis WHERE script_id = ?", script.ID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count analysis rows: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 analysis row, got %d", count)
	}
}

func TestVersionRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	script := createTestScript(t, db, user.ID)

	repo, err := NewVersionRepository(db)
	if err != nil {
		t.Fatalf("Failed to create version repository: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 3; i++ {
		v := &Version{
			ID:          uuid.New().String(),
			ScriptID:    script.ID,
			Version:     i,
			Content:     "Write-Host 'revision'",
			ContentHash: "h",
			CreatedAt:   now,
		}
		if err := repo.Create(db, v); err != nil {
			t.Fatalf("Failed to create version %d: %v", i, err)
		}
	}

	versions, err := repo.ListByScriptID(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("Expected 3 versions, got %d", len(versions))
	}
	if versions[0].Version != 3 {
		t.Errorf("Expected newest first, got version %d", versions[0].Version)
	}
	if versions[0].Content != "Write-Host 'revision'" {
		t.Errorf("Content did not survive compression round trip: %q", versions[0].Content)
	}
}

func TestTagReplaceReconciles(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	script := createTestScript(t, db, user.ID)
	repo := NewTagRepository(db)

	if err := repo.Replace(db, script.ID, []string{"backup", "disk"}); err != nil {
		t.Fatalf("Failed to replace tags: %v", err)
	}
	if err := repo.Replace(db, script.ID, []string{"disk", "report"}); err != nil {
		t.Fatalf("Failed to replace tags again: %v", err)
	}

	names, err := repo.NamesForScript(db, script.ID)
	if err != nil {
		t.Fatalf("Failed to list tags: %v", err)
	}
	if len(names) != 2 || names[0] != "disk" || names[1] != "report" {
		t.Errorf("Expected [disk report], got %v", names)
	}

	// Shared tag rows survive unlinking
	var tagCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tagCount); err != nil {
		t.Fatalf("Failed to count tags: %v", err)
	}
	if tagCount != 3 {
		t.Errorf("Expected 3 tag rows, got %d", tagCount)
	}
}

func TestExecutionLogLifecycle(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	script := createTestScript(t, db, user.ID)
	repo := NewExecutionLogRepository(db)

	started := time.Now().UTC().Truncate(time.Second)
	log := &ExecutionLog{
		ID:         uuid.New().String(),
		ScriptID:   script.ID,
		UserID:     user.ID,
		Parameters: `{"Drive":"C"}`,
		Status:     ExecStatusPending,
		StartedAt:  started,
	}
	if err := repo.Create(db, log); err != nil {
		t.Fatalf("Failed to create execution log: %v", err)
	}

	finished := started.Add(2 * time.Second)
	if err := repo.Finish(db, log.ID, ExecStatusCompleted, "C: 42%", "", finished); err != nil {
		t.Fatalf("Failed to finish execution log: %v", err)
	}

	logs, err := repo.ListByScriptID(db, script.ID, 10)
	if err != nil {
		t.Fatalf("Failed to list execution logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log, got %d", len(logs))
	}
	if logs[0].Status != ExecStatusCompleted || logs[0].Output != "C: 42%" {
		t.Errorf("Unexpected log state: %+v", logs[0])
	}
	if logs[0].FinishedAt == nil || !logs[0].FinishedAt.Equal(finished) {
		t.Errorf("Expected finished_at %v, got %v", finished, logs[0].FinishedAt)
	}
}

func TestEmbeddingUpsertAndListExcept(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	a := createTestScript(t, db, user.ID)
	b := createTestScript(t, db, user.ID)
	repo := NewEmbeddingRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	for _, pair := range []struct {
		scriptID string
		vector   []float32
	}{
		{a.ID, []float32{1, 0, 0}},
		{b.ID, []float32{0, 1, 0}},
	} {
		e := &Embedding{
			ScriptID:    pair.scriptID,
			Vector:      pair.vector,
			Dims:        len(pair.vector),
			Model:       "test-model",
			ContentHash: "h",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := repo.Upsert(db, e); err != nil {
			t.Fatalf("Failed to upsert embedding: %v", err)
		}
	}

	// Replace a's vector
	if err := repo.Upsert(db, &Embedding{
		ScriptID: a.ID, Vector: []float32{0.5, 0.5, 0}, Dims: 3,
		ContentHash: "h2", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to re-upsert embedding: %v", err)
	}

	got, err := repo.GetByScriptID(db, a.ID)
	if err != nil {
		t.Fatalf("Failed to get embedding: %v", err)
	}
	if got == nil || got.Vector[0] != 0.5 {
		t.Errorf("Expected replaced vector, got %+v", got)
	}

	others, err := repo.ListExcept(db, a.ID)
	if err != nil {
		t.Fatalf("Failed to list embeddings: %v", err)
	}
	if len(others) != 1 || others[0].ScriptID != b.ID {
		t.Errorf("Expected only %s, got %d results", b.ID, len(others))
	}
}

func TestVectorCodec(t *testing.T) {
	original := []float32{0.25, -1.5, 3.14159, 0}
	decoded, err := DecodeVector(EncodeVector(original))
	if err != nil {
		t.Fatalf("Failed to decode vector: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d values, got %d", len(original), len(decoded))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("Value %d: expected %f, got %f", i, original[i], decoded[i])
		}
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for misaligned blob")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	repo := NewScriptRepository(db)

	scriptID := uuid.New().String()
	now := time.Now().UTC()
	err := db.WithTx(func(tx *sql.Tx) error {
		if err := repo.Create(tx, &Script{
			ID: scriptID, Title: "t", Content: "c", UserID: user.ID,
			Version: 1, ContentHash: "h", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return sql.ErrTxDone // force rollback
	})
	if err == nil {
		t.Fatal("Expected error from transaction")
	}

	got, err := repo.Get(db, scriptID)
	if err != nil {
		t.Fatalf("Failed to get script: %v", err)
	}
	if got != nil {
		t.Error("Expected rollback to discard the insert")
	}
}
