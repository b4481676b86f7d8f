package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// startOptions holds per-start settings.
type startOptions struct {
	businessKey string
}

// StartOption configures an instance start.
type StartOption func(*startOptions)

// WithBusinessKey sets the business key of the new instance.
func WithBusinessKey(key string) StartOption {
	return func(o *startOptions) {
		o.businessKey = key
	}
}

// StartByDefinitionID starts an instance of one exact definition.
// The instance and its executions inherit the definition's tenant.
func (e *Engine) StartByDefinitionID(ctx context.Context, definitionID string, opts ...StartOption) (Progress, error) {
	return e.start(ctx, func(tx *store.Tx) (model.ProcessDefinition, error) {
		def, err := tx.Definition(ctx, definitionID)
		if err != nil {
			return def, notFoundOr(err, "process definition", definitionID)
		}
		return def, nil
	}, opts)
}

// StartByKey starts the latest definition of key that has no tenant.
//
// It never falls back to a tenant partition: when only tenant partitions
// hold key, it fails with AMBIGUOUS_TENANT_SCOPE and the caller must use
// StartByKeyAndTenantID.
func (e *Engine) StartByKey(ctx context.Context, key string, opts ...StartOption) (Progress, error) {
	return e.start(ctx, func(tx *store.Tx) (model.ProcessDefinition, error) {
		return resolveForStart(ctx, tx, key, model.NoTenant, false)
	}, opts)
}

// StartByKeyAndTenantID starts the latest definition in exactly the
// (key, tenantID) partition.
func (e *Engine) StartByKeyAndTenantID(ctx context.Context, key, tenantID string, opts ...StartOption) (Progress, error) {
	return e.start(ctx, func(tx *store.Tx) (model.ProcessDefinition, error) {
		return resolveForStart(ctx, tx, key, tenantID, true)
	}, opts)
}

func (e *Engine) start(ctx context.Context, resolve func(*store.Tx) (model.ProcessDefinition, error), opts []StartOption) (Progress, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	var out Progress
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		def, err := resolve(tx)
		if err != nil {
			return err
		}
		if def.Suspended {
			return suspendedError(def)
		}

		pm, err := e.processModel(ctx, tx, def)
		if err != nil {
			return err
		}

		r := e.newRun(tx, def, pm)
		if err := r.start(ctx, o.businessKey); err != nil {
			return err
		}
		out = r.result()
		return nil
	})
	if err != nil {
		e.metrics.startRejected(err)
		return Progress{}, err
	}

	e.afterRun(out, true)
	e.logger.Info("process instance started",
		zap.String("instance_id", out.Instance.ID),
		zap.String("definition_id", out.Instance.ProcessDefinitionID),
		zap.String("tenant_id", out.Instance.TenantID),
	)
	return out, nil
}

// afterRun records metrics for a committed run.
func (e *Engine) afterRun(p Progress, started bool) {
	if started {
		e.metrics.InstancesStartedTotal.WithLabelValues(tenantLabel(p.Instance.TenantID)).Inc()
	}
	for _, j := range p.Jobs {
		e.metrics.jobCreated(j.Type)
	}
}

func suspendedError(def model.ProcessDefinition) *TenancyError {
	return &TenancyError{
		Code:     ErrCodeSuspended,
		Message:  fmt.Sprintf("process definition %s (version %d) is suspended", def.ID, def.Version),
		Key:      def.Key,
		TenantID: def.TenantID,
	}
}

// CompleteTask completes a user task and advances its instance.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) (Progress, error) {
	var out Progress
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		task, err := tx.Task(ctx, taskID)
		if err != nil {
			return notFoundOr(err, "task", taskID)
		}
		inst, err := tx.Instance(ctx, task.ProcessInstanceID)
		if err != nil {
			return notFoundOr(err, "process instance", task.ProcessInstanceID)
		}
		if task.TenantID != inst.TenantID {
			return &TenancyError{
				Code:     ErrCodeTenantMismatch,
				Message:  fmt.Sprintf("task %s has tenant %q but its instance has tenant %q", task.ID, task.TenantID, inst.TenantID),
				TenantID: task.TenantID,
			}
		}

		r, err := e.resumeRun(ctx, tx, inst)
		if err != nil {
			return err
		}

		if err := tx.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		if err := e.archiveTask(ctx, tx, task, r.now, ReasonCompleted); err != nil {
			return err
		}

		if task.ExecutionID == r.root.ID {
			if err := r.leave(ctx); err != nil {
				return err
			}
			out = r.result()
			return nil
		}

		// Parallel branch: end the branch, join when it was the last one.
		if err := e.endActivity(ctx, tx, inst, task.TaskDefinitionKey, r.now); err != nil {
			return err
		}
		if err := tx.DeleteExecution(ctx, task.ExecutionID); err != nil {
			return err
		}
		remaining, err := tx.CountExecutions(ctx, store.ExecutionQuery{ParentID: r.root.ID})
		if err != nil {
			return err
		}
		if remaining == 0 {
			step, err := r.step()
			if err != nil {
				return err
			}
			if err := tx.UpdateExecution(ctx, r.root.ID, step.ID, true); err != nil {
				return err
			}
			if err := r.leave(ctx); err != nil {
				return err
			}
		}
		out = r.result()
		return nil
	})
	if err != nil {
		return Progress{}, err
	}

	e.afterRun(out, false)
	return out, nil
}

// resumeRun prepares a run for an existing instance.
func (e *Engine) resumeRun(ctx context.Context, tx *store.Tx, inst model.ProcessInstance) (*run, error) {
	def, err := tx.Definition(ctx, inst.ProcessDefinitionID)
	if err != nil {
		return nil, notFoundOr(err, "process definition", inst.ProcessDefinitionID)
	}
	pm, err := e.processModel(ctx, tx, def)
	if err != nil {
		return nil, err
	}
	r := e.newRun(tx, def, pm)
	if err := r.resume(ctx, inst); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteProcessInstance archives a running instance with reason and removes
// its executions, tasks and jobs.
func (e *Engine) DeleteProcessInstance(ctx context.Context, instanceID, reason string) error {
	if reason == "" {
		reason = ReasonDeleted
	}

	err := e.store.Update(ctx, func(tx *store.Tx) error {
		inst, err := tx.Instance(ctx, instanceID)
		if err != nil {
			return notFoundOr(err, "process instance", instanceID)
		}
		r, err := e.resumeRun(ctx, tx, inst)
		if err != nil {
			return err
		}
		return r.end(ctx, reason)
	})
	if err != nil {
		return err
	}

	e.logger.Info("process instance deleted",
		zap.String("instance_id", instanceID),
		zap.String("reason", reason),
	)
	return nil
}
