package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
	"github.com/roach88/tenantry/internal/testutil"
)

// testEngine bundles an engine with its deterministic collaborators.
type testEngine struct {
	*Engine
	store *store.Store
	clock *testutil.ManualClock
}

// newTestEngine creates an engine over a fresh file-backed store with
// sequential IDs and a manual wall clock.
func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewManualClock(testutil.Epoch)
	base := []Option{
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithNow(clock.Now),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	}

	e, err := New(context.Background(), s, append(base, opts...)...)
	require.NoError(t, err)
	return &testEngine{Engine: e, store: s, clock: clock}
}

// userTaskProcess is a process resource with one or more user tasks in a row.
func userTaskProcess(key string, taskIDs ...string) model.Resource {
	if len(taskIDs) == 0 {
		taskIDs = []string{"review"}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "process:\n  key: %s\n  name: %s process\n  steps:\n", key, key)
	for _, id := range taskIDs {
		fmt.Fprintf(&b, "    - id: %s\n      type: userTask\n", id)
	}
	return model.Resource{Name: key + ".yaml", Content: []byte(b.String())}
}

// parallelProcess forks two user tasks and joins before a final task.
func parallelProcess(key string) model.Resource {
	return model.Resource{Name: key + ".yaml", Content: []byte(fmt.Sprintf(`
process:
  key: %s
  steps:
    - id: approvals
      type: parallel
      branches:
        - {id: finance, type: userTask}
        - {id: legal, type: userTask}
    - id: archive
      type: userTask
`, key))}
}

// jobChainProcess starts on a timer, waits on an intermediate timer, then
// continues asynchronously and ends.
func jobChainProcess(key string) model.Resource {
	return model.Resource{Name: key + ".cue", Content: []byte(fmt.Sprintf(`
process: {
	key:         %q
	timer_start: "1h"
	steps: [
		{id: "wait", type: "timer", duration: "30m"},
		{id: "post", type: "async"},
	]
}
`, key))}
}

func (te *testEngine) deploy(t *testing.T, tenantID string, resources ...model.Resource) Deployed {
	t.Helper()
	out, err := te.Deploy(context.Background(), DeploymentRequest{
		Name:      "bundle",
		TenantID:  tenantID,
		Resources: resources,
	})
	require.NoError(t, err)
	return out
}

// tenantCounts counts every tenant-aware runtime and history entity for one
// tenant filter.
type tenantCounts struct {
	Deployments, Definitions, Instances, Executions, Tasks, Jobs int
	HistoricInstances, HistoricTasks, HistoricActivities, Models int
}

func (te *testEngine) counts(t *testing.T, f query.TenantFilter) tenantCounts {
	t.Helper()
	ctx := context.Background()
	var c tenantCounts
	var err error

	c.Deployments, err = te.store.CountDeployments(ctx, store.DeploymentQuery{Tenant: f})
	require.NoError(t, err)
	c.Definitions, err = te.store.CountDefinitions(ctx, store.DefinitionQuery{Tenant: f})
	require.NoError(t, err)
	c.Instances, err = te.store.CountInstances(ctx, store.InstanceQuery{Tenant: f})
	require.NoError(t, err)
	c.Executions, err = te.store.CountExecutions(ctx, store.ExecutionQuery{Tenant: f})
	require.NoError(t, err)
	c.Tasks, err = te.store.CountTasks(ctx, store.TaskQuery{Tenant: f})
	require.NoError(t, err)
	c.Jobs, err = te.store.CountJobs(ctx, store.JobQuery{Tenant: f})
	require.NoError(t, err)
	c.HistoricInstances, err = te.store.CountHistoricProcessInstances(ctx, store.HistoryQuery{Tenant: f})
	require.NoError(t, err)
	c.HistoricTasks, err = te.store.CountHistoricTaskInstances(ctx, store.HistoryQuery{Tenant: f})
	require.NoError(t, err)
	c.HistoricActivities, err = te.store.CountHistoricActivityInstances(ctx, store.HistoryQuery{Tenant: f})
	require.NoError(t, err)
	c.Models, err = te.store.CountModels(ctx, store.ModelQuery{Tenant: f})
	require.NoError(t, err)
	return c
}

func boolPtr(b bool) *bool { return &b }
