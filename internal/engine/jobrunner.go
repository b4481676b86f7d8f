package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// ExecuteJob runs a job and deletes it, all in one transaction.
//
//   - timer_start: starts a new instance of the job's definition. A
//     suspended definition fails with SUSPENDED_PARTITION and the job is kept.
//   - timer, async: moves the job's instance past the step that scheduled it.
//
// Jobs created while executing take the executed job's tenant, which must
// match the tenant of the instance or definition it acts on.
func (e *Engine) ExecuteJob(ctx context.Context, jobID string) (Progress, error) {
	var (
		out     Progress
		jobType model.JobType
		started bool
	)

	err := e.store.Update(ctx, func(tx *store.Tx) error {
		job, err := tx.Job(ctx, jobID)
		if err != nil {
			return notFoundOr(err, "job", jobID)
		}
		jobType = job.Type

		switch job.Type {
		case model.JobTimerStart:
			def, err := tx.Definition(ctx, job.ProcessDefinitionID)
			if err != nil {
				return notFoundOr(err, "process definition", job.ProcessDefinitionID)
			}
			if def.Suspended {
				return suspendedError(def)
			}
			pm, err := e.processModel(ctx, tx, def)
			if err != nil {
				return err
			}
			if err := tx.DeleteJob(ctx, job.ID); err != nil {
				return err
			}

			r := e.newRun(tx, def, pm)
			r.parentJob = &job
			if err := r.start(ctx, ""); err != nil {
				return err
			}
			out, started = r.result(), true
			return nil

		case model.JobTimer, model.JobAsync:
			if job.ProcessInstanceID == "" {
				return &TenancyError{
					Code:     ErrCodeMissingTenantSource,
					Message:  fmt.Sprintf("%s job %s has no process instance", job.Type, job.ID),
					TenantID: job.TenantID,
				}
			}
			inst, err := tx.Instance(ctx, job.ProcessInstanceID)
			if err != nil {
				return notFoundOr(err, "process instance", job.ProcessInstanceID)
			}
			if _, err := (jobSources{parent: &job, instance: &inst}).tenant(); err != nil {
				return err
			}

			r, err := e.resumeRun(ctx, tx, inst)
			if err != nil {
				return err
			}
			step, err := r.step()
			if err != nil {
				return err
			}
			if step.ID != job.ActivityID {
				return fmt.Errorf("job %s targets activity %q but instance %s is at %q",
					job.ID, job.ActivityID, inst.ID, step.ID)
			}
			if err := tx.DeleteJob(ctx, job.ID); err != nil {
				return err
			}

			r.parentJob = &job
			if err := r.leave(ctx); err != nil {
				return err
			}
			out = r.result()
			return nil

		default:
			return fmt.Errorf("job %s has unknown type %q", job.ID, job.Type)
		}
	})
	if err != nil {
		if jobType != "" {
			e.metrics.JobsExecutedTotal.WithLabelValues(string(jobType), "failure").Inc()
			e.spendRetry(ctx, jobID, err)
		}
		if jobType == model.JobTimerStart {
			e.metrics.startRejected(err)
		}
		return Progress{}, err
	}

	e.metrics.JobsExecutedTotal.WithLabelValues(string(jobType), "success").Inc()
	e.afterRun(out, started)
	e.logger.Debug("job executed",
		zap.String("job_id", jobID),
		zap.String("type", string(jobType)),
		zap.String("tenant_id", out.Instance.TenantID),
	)
	return out, nil
}

// spendRetry takes one retry from a job whose execution failed with
// cause. Once no retries are left, job passes skip the job; ExecuteJob can
// still run it. A suspended timer start keeps its budget for when its
// partition is activated, and a cancelled execution costs nothing.
func (e *Engine) spendRetry(ctx context.Context, jobID string, cause error) {
	if IsSuspended(cause) || ctx.Err() != nil {
		return
	}

	var left int
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		left, err = tx.DecrementJobRetries(ctx, jobID)
		return err
	})
	if err != nil {
		e.logger.Warn("failed to record job failure", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if left == 0 {
		e.logger.Warn("job out of retries", zap.String("job_id", jobID), zap.Error(cause))
	}
}

// JobRunResult summarizes one RunDueJobs pass.
type JobRunResult struct {
	Due      int
	Executed int
	Failed   int
}

// RunDueJobs executes every job due at or before now on a bounded worker
// pool. Jobs without retries left and timer starts of suspended
// definitions are skipped. A failing job is logged, loses one retry and is
// left in place; the returned error combines every failure. Only context
// cancellation stops the pass early.
func (e *Engine) RunDueJobs(ctx context.Context, now time.Time) (JobRunResult, error) {
	due, err := e.store.DueJobs(ctx, now)
	if err != nil {
		return JobRunResult{}, fmt.Errorf("run due jobs: %w", err)
	}

	var (
		mu     sync.Mutex
		result = JobRunResult{Due: len(due)}
		errs   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, job := range due {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := e.ExecuteJob(gctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
				e.logger.Warn("job failed",
					zap.String("job_id", job.ID),
					zap.String("tenant_id", job.TenantID),
					zap.Error(err),
				)
				return nil
			}
			result.Executed++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, multierr.Append(errs, err)
	}
	return result, errs
}

// RunWorker calls RunDueJobs every interval until ctx is done.
// Failures of individual passes are logged, not returned.
func (e *Engine) RunWorker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("run worker: interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := e.RunDueJobs(ctx, e.timestamp())
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("job pass finished with failures",
				zap.Int("due", res.Due),
				zap.Int("failed", res.Failed),
				zap.Error(err),
			)
		} else if res.Due > 0 {
			e.logger.Info("job pass finished",
				zap.Int("due", res.Due),
				zap.Int("executed", res.Executed),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
