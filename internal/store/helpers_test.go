package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDeployment writes a deployment holding one definition of key at the
// given version, and returns both.
func seedDeployment(t *testing.T, s *Store, seq int64, key, tenantID string, version int) (model.Deployment, model.ProcessDefinition) {
	t.Helper()
	d := model.Deployment{
		ID:         fmt.Sprintf("dep-%d", seq),
		Name:       "bundle",
		TenantID:   tenantID,
		DeployedAt: testTime,
		Resources: model.WithChecksums([]model.Resource{
			{Name: key + ".yaml", Content: []byte("key: " + key)},
		}),
		Seq: seq,
	}
	def := model.ProcessDefinition{
		ID:           fmt.Sprintf("%s:%d:%d", key, version, seq),
		Key:          key,
		Name:         key,
		Version:      version,
		DeploymentID: d.ID,
		ResourceName: key + ".yaml",
		TenantID:     tenantID,
		Seq:          seq,
	}
	err := s.Update(context.Background(), func(tx *Tx) error {
		if err := tx.InsertDeployment(context.Background(), d); err != nil {
			return err
		}
		return tx.InsertDefinition(context.Background(), def)
	})
	require.NoError(t, err)
	return d, def
}

// seedInstance writes an instance with a root execution and one task.
func seedInstance(t *testing.T, s *Store, id string, def model.ProcessDefinition, seq int64) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertInstance(ctx, model.ProcessInstance{
			ID: id, ProcessDefinitionID: def.ID, ProcessDefinitionKey: def.Key,
			TenantID: def.TenantID, StartedAt: testTime, Seq: seq,
		}); err != nil {
			return err
		}
		if err := tx.InsertExecution(ctx, model.Execution{
			ID: id + "-exec", ProcessInstanceID: id, ProcessDefinitionID: def.ID,
			ActivityID: "review", TenantID: def.TenantID, Active: true, Seq: seq,
		}); err != nil {
			return err
		}
		return tx.InsertTask(ctx, model.Task{
			ID: id + "-task", Name: "Review", TaskDefinitionKey: "review",
			ProcessInstanceID: id, ExecutionID: id + "-exec", ProcessDefinitionID: def.ID,
			TenantID: def.TenantID, CreatedAt: testTime, Seq: seq,
		})
	})
	require.NoError(t, err)
}
