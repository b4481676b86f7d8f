package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

func TestStartByKey_FailsWhenOnlyTenantPartitionsExist(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", userTaskProcess("P"))
	te.deploy(t, "B", userTaskProcess("P"))

	_, err := te.StartByKey(ctx, "P")
	require.Error(t, err)
	assert.True(t, IsAmbiguousScope(err))

	var te2 *TenancyError
	require.ErrorAs(t, err, &te2)
	assert.Equal(t, "P", te2.Key)

	p, err := te.StartByKeyAndTenantID(ctx, "P", "A")
	require.NoError(t, err)

	latest, ok, err := te.ResolveLatest(ctx, model.NewTenantKey("P", "A"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, latest.ID, p.Instance.ProcessDefinitionID)
	assert.Equal(t, "A", p.Instance.TenantID)

	assert.Equal(t, float64(1), testutil.ToFloat64(te.metrics.RejectedStartsTotal.WithLabelValues(string(ErrCodeAmbiguousScope))))
	assert.Equal(t, float64(1), testutil.ToFloat64(te.metrics.InstancesStartedTotal.WithLabelValues("A")))
}

func TestStartByKey_UsesNoTenantPartitionOnly(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	none := te.deploy(t, "", userTaskProcess("P"))
	te.deploy(t, "A", userTaskProcess("P"))
	te.deploy(t, "A", userTaskProcess("P"))

	p, err := te.StartByKey(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, none.Definitions[0].ID, p.Instance.ProcessDefinitionID)
	assert.Equal(t, "", p.Instance.TenantID)
}

func TestStart_PartitionNotFound(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.StartByKey(ctx, "P")
	assert.True(t, IsPartitionNotFound(err))

	te.deploy(t, "A", userTaskProcess("P"))

	// Never falls back to another tenant.
	_, err = te.StartByKeyAndTenantID(ctx, "P", "B")
	assert.True(t, IsPartitionNotFound(err))

	// Tenant ids are case-sensitive.
	_, err = te.StartByKeyAndTenantID(ctx, "P", "a")
	assert.True(t, IsPartitionNotFound(err))

	_, err = te.StartByDefinitionID(ctx, "P:1:missing")
	assert.True(t, IsNotFound(err))
}

func TestStartByDefinitionID_PropagatesTenant(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "A", userTaskProcess("P"))

	p, err := te.StartByDefinitionID(ctx, d.Definitions[0].ID, WithBusinessKey("order-7"))
	require.NoError(t, err)
	assert.Equal(t, "A", p.Instance.TenantID)
	assert.Equal(t, "order-7", p.Instance.BusinessKey)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, "A", p.Tasks[0].TenantID)
	assert.Equal(t, "review", p.Tasks[0].TaskDefinitionKey)

	execs, err := te.store.Executions(ctx, store.ExecutionQuery{ProcessInstanceID: p.Instance.ID})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "A", execs[0].TenantID)
	assert.Equal(t, "review", execs[0].ActivityID)
}

func TestParallel_ChildExecutionsAndTasksInheritTenant(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", parallelProcess("P"))
	p, err := te.StartByKeyAndTenantID(ctx, "P", "A")
	require.NoError(t, err)

	c := te.counts(t, query.Tenant("A"))
	assert.Equal(t, 3, c.Executions)
	assert.Equal(t, 2, c.Tasks)
	assert.Zero(t, te.counts(t, query.WithoutTenant()).Executions)

	// Join waits for both branches.
	_, err = te.CompleteTask(ctx, p.Tasks[0].ID)
	require.NoError(t, err)
	c = te.counts(t, query.Tenant("A"))
	assert.Equal(t, 2, c.Executions)
	assert.Equal(t, 1, c.Tasks)

	joined, err := te.CompleteTask(ctx, p.Tasks[1].ID)
	require.NoError(t, err)
	require.Len(t, joined.Tasks, 1)
	assert.Equal(t, "archive", joined.Tasks[0].TaskDefinitionKey)
	assert.Equal(t, "A", joined.Tasks[0].TenantID)
	assert.Equal(t, 1, joined.Instance.StepIndex)
	c = te.counts(t, query.Tenant("A"))
	assert.Equal(t, 1, c.Executions)

	done, err := te.CompleteTask(ctx, joined.Tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, done.Ended)

	c = te.counts(t, query.Tenant("A"))
	assert.Zero(t, c.Instances)
	assert.Zero(t, c.Executions)
	assert.Equal(t, 1, c.HistoricInstances)
	assert.Equal(t, 3, c.HistoricTasks)
	// start, approvals, finance, legal, archive, end
	assert.Equal(t, 6, c.HistoricActivities)
}

func TestCompleteTask_NotFound(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.CompleteTask(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestCompleteTask_ArchivesWithTenant(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", userTaskProcess("P", "review", "approve"))
	p, err := te.StartByKeyAndTenantID(ctx, "P", "A")
	require.NoError(t, err)

	next, err := te.CompleteTask(ctx, p.Tasks[0].ID)
	require.NoError(t, err)
	assert.False(t, next.Ended)
	require.Len(t, next.Tasks, 1)

	hist, err := te.store.HistoricTaskInstances(ctx, store.HistoryQuery{ProcessInstanceID: p.Instance.ID})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "A", hist[0].TenantID)
	assert.Equal(t, ReasonCompleted, hist[0].DeleteReason)
	assert.Equal(t, p.Tasks[0].ID, hist[0].ID)
}

func TestDeleteProcessInstance(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "A", userTaskProcess("P"))
	p, err := te.StartByKeyAndTenantID(ctx, "P", "A", WithBusinessKey("bk"))
	require.NoError(t, err)

	require.NoError(t, te.DeleteProcessInstance(ctx, p.Instance.ID, ""))

	c := te.counts(t, query.Tenant("A"))
	assert.Zero(t, c.Instances)
	assert.Zero(t, c.Tasks)

	hist, err := te.store.HistoricProcessInstances(ctx, store.HistoryQuery{Tenant: query.Tenant("A")})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, ReasonDeleted, hist[0].DeleteReason)
	assert.Equal(t, "bk", hist[0].BusinessKey)

	tasks, err := te.store.HistoricTaskInstances(ctx, store.HistoryQuery{ProcessInstanceID: p.Instance.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ReasonDeleted, tasks[0].DeleteReason)

	acts, err := te.store.HistoricActivityInstances(ctx, store.HistoryQuery{ProcessInstanceID: p.Instance.ID})
	require.NoError(t, err)
	for _, a := range acts {
		assert.False(t, a.EndTime.IsZero(), "activity %s left open", a.ActivityID)
	}

	assert.True(t, IsNotFound(te.DeleteProcessInstance(ctx, p.Instance.ID, "")))
}

func TestHistoryLevels(t *testing.T) {
	tests := []struct {
		level                             model.HistoryLevel
		instances, tasks, activitiesAtEnd int
	}{
		{model.HistoryNone, 0, 0, 0},
		{model.HistoryActivity, 1, 0, 3},
		{model.HistoryAudit, 1, 1, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			te := newTestEngine(t, WithHistoryLevel(tt.level))
			ctx := context.Background()

			te.deploy(t, "A", userTaskProcess("P"))
			p, err := te.StartByKeyAndTenantID(ctx, "P", "A")
			require.NoError(t, err)
			_, err = te.CompleteTask(ctx, p.Tasks[0].ID)
			require.NoError(t, err)

			c := te.counts(t, query.Tenant("A"))
			assert.Equal(t, tt.instances, c.HistoricInstances)
			assert.Equal(t, tt.tasks, c.HistoricTasks)
			assert.Equal(t, tt.activitiesAtEnd, c.HistoricActivities)
		})
	}
}

func TestNew_RejectsInvalidHistoryLevel(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = New(context.Background(), s, WithHistoryLevel("verbose"))
	assert.Error(t, err)
}

func TestNew_SequenceResumesFromStore(t *testing.T) {
	te := newTestEngine(t)
	te.deploy(t, "A", userTaskProcess("P"))
	seq := te.Sequence().Last()
	require.Positive(t, seq)

	e2, err := New(context.Background(), te.store)
	require.NoError(t, err)
	assert.Equal(t, seq, e2.Sequence().Last())
}
