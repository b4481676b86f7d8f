package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

func TestJobSources_Tenant(t *testing.T) {
	job := &model.Job{ID: "j", TenantID: "A"}
	instA := &model.ProcessInstance{ID: "i", TenantID: "A"}
	instB := &model.ProcessInstance{ID: "i", TenantID: "B"}
	defA := &model.ProcessDefinition{ID: "d", TenantID: "A"}
	defNone := &model.ProcessDefinition{ID: "d"}

	tests := []struct {
		name    string
		sources jobSources
		want    string
		code    ErrorCode
	}{
		{name: "parent only", sources: jobSources{parent: job}, want: "A"},
		{name: "instance only", sources: jobSources{instance: instB}, want: "B"},
		{name: "definition only", sources: jobSources{definition: defA}, want: "A"},
		{name: "no tenant definition", sources: jobSources{definition: defNone}, want: ""},
		{name: "parent and instance agree", sources: jobSources{parent: job, instance: instA}, want: "A"},
		{name: "parent and instance disagree", sources: jobSources{parent: job, instance: instB}, code: ErrCodeTenantMismatch},
		{name: "instance and definition disagree", sources: jobSources{instance: instB, definition: defA}, code: ErrCodeTenantMismatch},
		{name: "parent and no tenant definition", sources: jobSources{parent: job, definition: defNone}, code: ErrCodeTenantMismatch},
		{name: "no source", sources: jobSources{}, code: ErrCodeMissingTenantSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sources.tenant()
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobChain_EveryJobKeepsTheTenant(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "T", jobChainProcess("Q"))
	def := d.Definitions[0]

	starts, err := te.store.Jobs(ctx, store.JobQuery{ProcessDefinitionID: def.ID})
	require.NoError(t, err)
	require.Len(t, starts, 1)
	job := starts[0]
	assert.Equal(t, model.JobTimerStart, job.Type)
	assert.Equal(t, "T", job.TenantID)

	steps := 0
	for {
		p, err := te.ExecuteJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "T", p.Instance.TenantID)
		steps++

		if p.Ended {
			assert.Empty(t, p.Jobs)
			break
		}
		require.Len(t, p.Jobs, 1)
		job = p.Jobs[0]
		assert.Equal(t, "T", job.TenantID)
		assert.Equal(t, p.Instance.ID, job.ProcessInstanceID)
		require.Less(t, steps, 10)
	}

	assert.Equal(t, 3, steps) // timer start, timer, async
	assert.Equal(t, tenantCounts{Deployments: 1, Definitions: 1, HistoricInstances: 1, HistoricActivities: 4},
		te.counts(t, query.Tenant("T")))
	assert.Equal(t, tenantCounts{}, te.counts(t, query.WithoutTenant()))
}

func TestRunDueJobs_FollowsTheClock(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "T", jobChainProcess("Q"))

	res, err := te.RunDueJobs(ctx, te.clock.Now().Add(59*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{}, res)

	te.clock.Advance(time.Hour)
	res, err = te.RunDueJobs(ctx, te.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{Due: 1, Executed: 1}, res)

	timers, err := te.store.Jobs(ctx, store.JobQuery{Type: string(model.JobTimer)})
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.True(t, timers[0].DueDate.Equal(te.clock.Now().Add(30*time.Minute)))

	// The async job is due immediately after the timer fires, but is only
	// picked up by the next pass.
	te.clock.Advance(30 * time.Minute)
	res, err = te.RunDueJobs(ctx, te.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{Due: 1, Executed: 1}, res)

	res, err = te.RunDueJobs(ctx, te.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{Due: 1, Executed: 1}, res)

	n, err := te.store.CountJobs(ctx, store.JobQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)

	m := te.metrics
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCreatedTotal.WithLabelValues("timer_start")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCreatedTotal.WithLabelValues("timer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCreatedTotal.WithLabelValues("async")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsExecutedTotal.WithLabelValues("async", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InstancesStartedTotal.WithLabelValues("T")))
}

// insertMismatchedJob stores a timer-start job whose tenant disagrees with
// its definition, so every execution fails with TENANT_MISMATCH.
func insertMismatchedJob(t *testing.T, te *testEngine, def model.ProcessDefinition, id string, seq int64) model.Job {
	t.Helper()
	ctx := context.Background()

	job := model.Job{
		ID:                  id,
		Type:                model.JobTimerStart,
		ProcessDefinitionID: def.ID,
		TenantID:            def.TenantID + "-other",
		DueDate:             te.clock.Now(),
		Retries:             DefaultJobRetries,
		Seq:                 seq,
	}
	require.NoError(t, te.store.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertJob(ctx, job)
	}))
	return job
}

func TestRunDueJobs_FailuresAreCollected(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "T", jobChainProcess("Q"))
	d := te.deploy(t, "U", userTaskProcess("P"))
	insertMismatchedJob(t, te, d.Definitions[0], "bad", 1000)

	te.clock.Advance(time.Hour)
	res, err := te.RunDueJobs(ctx, te.clock.Now())
	require.Error(t, err)
	assert.Equal(t, ErrCodeTenantMismatch, CodeOf(err))
	assert.Equal(t, JobRunResult{Due: 2, Executed: 1, Failed: 1}, res)
}

func TestRunDueJobs_FailingJobStopsAfterRetries(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "T", userTaskProcess("P"))
	job := insertMismatchedJob(t, te, d.Definitions[0], "bad", 1000)

	for pass := 1; pass <= DefaultJobRetries; pass++ {
		res, err := te.RunDueJobs(ctx, te.clock.Now())
		require.Error(t, err, "pass %d", pass)
		assert.Equal(t, JobRunResult{Due: 1, Failed: 1}, res, "pass %d", pass)

		stored, err := te.store.Job(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, DefaultJobRetries-pass, stored.Retries, "pass %d", pass)
	}

	// Out of retries: later passes leave the job alone.
	res, err := te.RunDueJobs(ctx, te.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{}, res)

	// It can still be run by hand, and stays at zero.
	_, err = te.ExecuteJob(ctx, job.ID)
	assert.Equal(t, ErrCodeTenantMismatch, CodeOf(err))
	stored, err := te.store.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Retries)
	assert.Equal(t, float64(DefaultJobRetries+1), testutil.ToFloat64(te.metrics.JobsExecutedTotal.WithLabelValues("timer_start", "failure")))
}

func TestRunDueJobs_SkipsSuspendedTimerStarts(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "T", jobChainProcess("Q"))
	te.deploy(t, "U", jobChainProcess("Q"))
	_, err := te.SuspendByKeyAndTenantID(ctx, "Q", "T")
	require.NoError(t, err)

	te.clock.Advance(time.Hour)
	for i := 0; i < DefaultJobRetries+1; i++ {
		res, err := te.RunDueJobs(ctx, te.clock.Now())
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, JobRunResult{Due: 1, Executed: 1}, res)
		} else {
			assert.Equal(t, JobRunResult{}, res)
		}
	}

	starts, err := te.store.Jobs(ctx, store.JobQuery{Type: string(model.JobTimerStart)})
	require.NoError(t, err)
	require.Len(t, starts, 1)
	assert.Equal(t, "T", starts[0].TenantID)
	assert.Equal(t, DefaultJobRetries, starts[0].Retries)

	_, err = te.ActivateByKeyAndTenantID(ctx, "Q", "T")
	require.NoError(t, err)
	res, err := te.RunDueJobs(ctx, te.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, JobRunResult{Due: 1, Executed: 1}, res)
}

func TestExecuteJob_SuspendedTimerStartKeepsJob(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.deploy(t, "T", jobChainProcess("Q"))
	_, err := te.SuspendByKey(ctx, "Q")
	require.NoError(t, err)

	jobs, err := te.store.Jobs(ctx, store.JobQuery{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = te.ExecuteJob(ctx, jobs[0].ID)
	require.Error(t, err)
	assert.True(t, IsSuspended(err))

	kept, err := te.store.Job(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultJobRetries, kept.Retries)
	assert.Equal(t, float64(1), testutil.ToFloat64(te.metrics.RejectedStartsTotal.WithLabelValues(string(ErrCodeSuspended))))
	assert.Equal(t, float64(1), testutil.ToFloat64(te.metrics.JobsExecutedTotal.WithLabelValues("timer_start", "failure")))

	_, err = te.ActivateByKeyAndTenantID(ctx, "Q", "T")
	require.NoError(t, err)
	p, err := te.ExecuteJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "T", p.Instance.TenantID)
}

func TestExecuteJob_RejectsTenantMismatch(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	d := te.deploy(t, "T", userTaskProcess("P"))
	forged := insertMismatchedJob(t, te, d.Definitions[0], "forged", 1000)

	_, err := te.ExecuteJob(ctx, forged.ID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeTenantMismatch, CodeOf(err))

	n, err := te.store.CountInstances(ctx, store.InstanceQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)

	kept, err := te.store.Job(ctx, forged.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultJobRetries-1, kept.Retries)
}

func TestExecuteJob_NotFound(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.ExecuteJob(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestRunWorker_RejectsNonPositiveInterval(t *testing.T) {
	te := newTestEngine(t)

	for _, interval := range []time.Duration{0, -time.Second} {
		err := te.RunWorker(context.Background(), interval)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interval must be positive")
	}
}

func TestRunWorker_StopsOnCancel(t *testing.T) {
	te := newTestEngine(t)
	te.deploy(t, "T", jobChainProcess("Q"))
	te.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- te.RunWorker(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		n, err := te.store.CountInstances(context.Background(), store.InstanceQuery{Tenant: query.Tenant("T")})
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
