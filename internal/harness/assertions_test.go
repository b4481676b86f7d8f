package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/store"
)

func strPtr(s string) *string { return &s }

func TestAssertTenantConsistent(t *testing.T) {
	trace := []TraceEvent{
		{Op: OpDeploy, Outcome: OutcomeOK, Entities: []TraceEntity{
			{Kind: "deployment", Name: "d1", TenantID: "A"},
			{Kind: "definition", Key: "invoice", Version: 1, TenantID: "A"},
		}},
		{Op: OpAdvance, Detail: "by=1h", Outcome: OutcomeOK},
	}
	assert.NoError(t, assertTenantConsistent(trace))

	trace = append(trace, TraceEvent{Op: OpStart, Outcome: OutcomeOK, Entities: []TraceEntity{
		{Kind: "instance", Key: "invoice", Version: 1, TenantID: "A"},
		{Kind: "task", Name: "review", TenantID: ""},
	}})
	err := assertTenantConsistent(trace)
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertTenantConsistent, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "event 3 (start)")
	assert.Contains(t, assertErr.Actual, `task has tenant ""`)
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertCount_EmptyStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	for entity := range counters {
		assert.NoError(t, assertCount(ctx, st, Assertion{Type: AssertCount, Entity: entity, Count: 0}), entity)
	}

	err = assertCount(ctx, st, Assertion{Type: AssertCount, Entity: "jobs", Tenant: strPtr("A"), Count: 1})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "0", assertErr.Actual)
}

func TestAssertLatestVersion_EmptyPartition(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	a := Assertion{Type: AssertLatestVersion, Key: "invoice", Tenant: strPtr("A")}
	assert.NoError(t, assertLatestVersion(ctx, st, a))

	a.Version = 1
	err = assertLatestVersion(ctx, st, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 0")
}
