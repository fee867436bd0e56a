package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrator(db).Migrate())
	return db
}

func tableColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk))
		cols[name] = true
	}
	require.NoError(t, rows.Err())
	return cols
}

func TestMigration_NewDatabase(t *testing.T) {
	db := setupTestDB(t)

	runs := tableColumns(t, db, "workflow_runs")
	for _, c := range []string{"id", "project_path", "intent", "status", "iteration", "max_iterations", "error", "state_json", "created_at", "updated_at"} {
		assert.True(t, runs[c], "workflow_runs.%s missing", c)
	}

	locks := tableColumns(t, db, "run_locks")
	for _, c := range []string{"lock_id", "run_id", "pid", "hostname", "acquired_at", "expires_at"} {
		assert.True(t, locks[c], "run_locks.%s missing", c)
	}

	version, err := NewMigrator(db).Version()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestMigration_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, NewMigrator(db).Migrate())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigration_VersionOnEmptyDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	m := NewMigrator(db)
	require.NoError(t, m.ensureMigrationsTable())

	version, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "c4h.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)
	assert.True(t, tableColumns(t, db, "run_locks")["run_id"])
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements(`
-- comment
CREATE TABLE a (x INTEGER);

  -- indented comment
CREATE INDEX i ON a(x);
;
`)
	assert.Equal(t, []string{"CREATE TABLE a (x INTEGER)", "CREATE INDEX i ON a(x)"}, stmts)
}
