package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/store"
)

func TestSuspendByKey_AmbiguousAcrossPartitions(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", userTaskProcess("P"))
	te.deploy(t, "B", userTaskProcess("P"))

	_, err := te.SuspendByKey(ctx, "P")
	require.Error(t, err)
	assert.True(t, IsAmbiguousScope(err))

	_, err = te.ActivateByKey(ctx, "P")
	assert.True(t, IsAmbiguousScope(err))

	// Nothing was suspended.
	n, err := te.store.CountDefinitions(ctx, store.DefinitionQuery{Key: "P", Suspended: boolPtr(true)})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSuspendByKey_SinglePartition(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", userTaskProcess("P"))
	te.deploy(t, "A", userTaskProcess("P"))

	n, err := te.SuspendByKey(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = te.StartByKeyAndTenantID(ctx, "P", "A")
	assert.True(t, IsSuspended(err))

	n, err = te.ActivateByKey(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = te.StartByKeyAndTenantID(ctx, "P", "A")
	assert.NoError(t, err)
}

func TestSuspendByKeyAndTenantID_OnlyThatPartition(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "", userTaskProcess("P"))
	te.deploy(t, "A", userTaskProcess("P"))
	te.deploy(t, "B", userTaskProcess("P"))

	n, err := te.SuspendByKeyAndTenantID(ctx, "P", "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = te.StartByKeyAndTenantID(ctx, "P", "A")
	require.Error(t, err)
	assert.True(t, IsSuspended(err))
	var suspended *TenancyError
	require.ErrorAs(t, err, &suspended)
	assert.Equal(t, "A", suspended.TenantID)

	_, err = te.StartByKeyAndTenantID(ctx, "P", "B")
	assert.NoError(t, err)
	_, err = te.StartByKey(ctx, "P")
	assert.NoError(t, err)

	// Suspending again changes nothing.
	n, err = te.SuspendByKeyAndTenantID(ctx, "P", "A")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSuspendByKeyAndTenantID_NoTenantPartition(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "", userTaskProcess("P"))
	te.deploy(t, "A", userTaskProcess("P"))

	n, err := te.SuspendByKeyAndTenantID(ctx, "P", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = te.StartByKey(ctx, "P")
	assert.True(t, IsSuspended(err))
	_, err = te.StartByKeyAndTenantID(ctx, "P", "A")
	assert.NoError(t, err)
}

func TestSuspendByKey_PartitionNotFound(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.SuspendByKey(ctx, "P")
	assert.True(t, IsPartitionNotFound(err))

	te.deploy(t, "A", userTaskProcess("P"))
	_, err = te.SuspendByKeyAndTenantID(ctx, "P", "B")
	assert.True(t, IsPartitionNotFound(err))
}

func TestSuspendByID(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	v1 := te.deploy(t, "A", userTaskProcess("P")).Definitions[0]
	v2 := te.deploy(t, "A", userTaskProcess("P")).Definitions[0]

	n, err := te.SuspendByID(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Latest version is suspended; starting by key does not fall back to v1.
	_, err = te.StartByKeyAndTenantID(ctx, "P", "A")
	assert.True(t, IsSuspended(err))

	p, err := te.StartByDefinitionID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, p.Instance.ProcessDefinitionID)

	n, err = te.ActivateByID(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = te.SuspendByID(ctx, "missing")
	assert.True(t, IsNotFound(err))
}
