package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

func TestSaveModel(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "A", userTaskProcess("P"))

	m, err := te.SaveModel(ctx, model.Model{Name: "draft", Key: "P", DeploymentID: d.Deployment.ID, TenantID: "A"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	m.Name = "final"
	_, err = te.SaveModel(ctx, m)
	require.NoError(t, err)

	got, err := te.store.Model(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Name)

	// Free-standing models are not bound to any deployment tenant.
	_, err = te.SaveModel(ctx, model.Model{Name: "scratch", TenantID: "Z"})
	require.NoError(t, err)

	n, err := te.store.CountModels(ctx, store.ModelQuery{Tenant: query.AnyTenant()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveModel_TenantMustMatchDeployment(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "A", userTaskProcess("P"))

	_, err := te.SaveModel(ctx, model.Model{Name: "m", DeploymentID: d.Deployment.ID, TenantID: "B"})
	assert.Equal(t, ErrCodeTenantMismatch, CodeOf(err))

	_, err = te.SaveModel(ctx, model.Model{Name: "m", DeploymentID: "missing"})
	assert.True(t, IsNotFound(err))
}
