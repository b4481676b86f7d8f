package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	tables := []string{
		"deployments", "resources", "process_definitions", "process_instances",
		"executions", "tasks", "jobs", "historic_process_instances",
		"historic_task_instances", "historic_activity_instances", "models",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	seedDeployment(t, s, 1, "invoice", "", 1)
	n, err := s.CountDefinitions(context.Background(), DefinitionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sentinel := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertDeployment(ctx, model.Deployment{ID: "d1", DeployedAt: testTime, Seq: 1}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	n, err := s.CountDeployments(ctx, DeploymentQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_TxReadsOwnWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertDeployment(ctx, model.Deployment{ID: "d1", TenantID: "acme", DeployedAt: testTime, Seq: 1}); err != nil {
			return err
		}
		d, err := tx.Deployment(ctx, "d1")
		if err != nil {
			return err
		}
		assert.Equal(t, "acme", d.TenantID)
		return nil
	})
	require.NoError(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	s := createTestStore(t)
	_, def := seedDeployment(t, s, 1, "invoice", "acme", 1)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		clash := def
		clash.ID = "other"
		clash.Seq = 2
		return tx.InsertDefinition(ctx, clash)
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}

func TestPartitionVersions_SameVersionDifferentTenants(t *testing.T) {
	s := createTestStore(t)

	seedDeployment(t, s, 1, "invoice", "", 1)
	seedDeployment(t, s, 2, "invoice", "acme", 1)
	seedDeployment(t, s, 3, "invoice", "globex", 1)

	n, err := s.CountDefinitions(context.Background(), DefinitionQuery{Key: "invoice", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Pre-migration database: schema without the due-date index.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("DROP INDEX idx_jobs_due")
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(migrations), version)

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_jobs_due'",
	).Scan(&name)
	assert.NoError(t, err, "idx_jobs_due missing after migration")
}
