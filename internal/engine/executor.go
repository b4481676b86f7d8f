package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tenantry/internal/compiler"
	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// Activity types recorded in history besides the step types.
const (
	activityStartEvent = "startEvent"
	activityEndEvent   = "endEvent"
	activityStart      = "start"
	activityEnd        = "end"
)

// Progress reports what one runtime operation did to an instance.
type Progress struct {
	Instance model.ProcessInstance
	Tasks    []model.Task // tasks created
	Jobs     []model.Job  // jobs created
	Ended    bool         // the instance completed or was deleted
}

// run drives one instance through the steps of its process model inside a
// single transaction.
//
// The stepper is deliberately minimal: steps run in order on the root
// execution, except parallel steps, which fork one child execution per
// branch and join when every branch task is complete.
type run struct {
	e   *Engine
	tx  *store.Tx
	now time.Time

	def  model.ProcessDefinition
	pm   model.ProcessModel
	inst model.ProcessInstance
	root model.Execution

	// parentJob is the job being executed, if any. Jobs created by the run
	// inherit its tenant.
	parentJob *model.Job

	progress Progress
}

func (e *Engine) newRun(tx *store.Tx, def model.ProcessDefinition, pm model.ProcessModel) *run {
	return &run{e: e, tx: tx, now: e.timestamp(), def: def, pm: pm}
}

// processModel returns the compiled model of a definition, compiling its
// resource on first use.
func (e *Engine) processModel(ctx context.Context, tx *store.Tx, def model.ProcessDefinition) (model.ProcessModel, error) {
	if cached, ok := e.processModels.Load(def.ID); ok {
		return cached.(model.ProcessModel), nil
	}

	resources, err := tx.Resources(ctx, def.DeploymentID)
	if err != nil {
		return model.ProcessModel{}, err
	}
	for _, res := range resources {
		if res.Name != def.ResourceName {
			continue
		}
		models, err := compiler.Compile(res)
		if err != nil {
			return model.ProcessModel{}, fmt.Errorf("compile %s: %w", res.Name, err)
		}
		for _, m := range models {
			if m.Key == def.Key {
				e.processModels.Store(def.ID, m)
				return m, nil
			}
		}
	}

	return model.ProcessModel{}, fmt.Errorf("process model %q not found in resource %q of deployment %s",
		def.Key, def.ResourceName, def.DeploymentID)
}

// start creates the instance and its root execution, then enters the first
// step. Both inherit the definition's tenant.
func (r *run) start(ctx context.Context, businessKey string) error {
	if r.parentJob != nil {
		if _, err := (jobSources{parent: r.parentJob, definition: &r.def}).tenant(); err != nil {
			return err
		}
	}

	r.inst = model.ProcessInstance{
		ID:                   r.e.ids.Generate(),
		ProcessDefinitionID:  r.def.ID,
		ProcessDefinitionKey: r.def.Key,
		BusinessKey:          businessKey,
		TenantID:             r.def.TenantID,
		StartedAt:            r.now,
		Seq:                  r.e.seq.Next(),
	}
	if err := r.tx.InsertInstance(ctx, r.inst); err != nil {
		return err
	}

	r.root = model.Execution{
		ID:                  r.e.ids.Generate(),
		ProcessInstanceID:   r.inst.ID,
		ProcessDefinitionID: r.def.ID,
		TenantID:            r.inst.TenantID,
		Active:              true,
		Seq:                 r.e.seq.Next(),
	}
	if err := r.tx.InsertExecution(ctx, r.root); err != nil {
		return err
	}

	if err := r.e.recordActivity(ctx, r.tx, r.inst, activityStart, activityStartEvent, r.now, r.now); err != nil {
		return err
	}

	return r.enter(ctx, 0)
}

// resume loads the root execution of an existing instance.
func (r *run) resume(ctx context.Context, inst model.ProcessInstance) error {
	r.inst = inst
	execs, err := r.tx.Executions(ctx, store.ExecutionQuery{ProcessInstanceID: inst.ID})
	if err != nil {
		return err
	}
	for _, ex := range execs {
		if ex.ParentID == "" {
			r.root = ex
			return nil
		}
	}
	return fmt.Errorf("process instance %s has no root execution", inst.ID)
}

// step returns the step at the instance's current position.
func (r *run) step() (model.Step, error) {
	if r.inst.StepIndex < 0 || r.inst.StepIndex >= len(r.pm.Steps) {
		return model.Step{}, fmt.Errorf("process instance %s is at step %d of %d",
			r.inst.ID, r.inst.StepIndex, len(r.pm.Steps))
	}
	return r.pm.Steps[r.inst.StepIndex], nil
}

// enter moves the instance to step i and performs its entry behavior.
// Entering past the last step completes the instance.
func (r *run) enter(ctx context.Context, i int) error {
	if i >= len(r.pm.Steps) {
		return r.complete(ctx)
	}

	if err := r.tx.SetInstanceStep(ctx, r.inst.ID, i); err != nil {
		return err
	}
	r.inst.StepIndex = i
	step := r.pm.Steps[i]

	if err := r.e.recordActivity(ctx, r.tx, r.inst, step.ID, string(step.Type), r.now, time.Time{}); err != nil {
		return err
	}

	switch step.Type {
	case model.StepUserTask:
		if err := r.tx.UpdateExecution(ctx, r.root.ID, step.ID, true); err != nil {
			return err
		}
		return r.createTask(ctx, r.root, step)

	case model.StepTimer, model.StepAsync:
		if err := r.tx.UpdateExecution(ctx, r.root.ID, step.ID, true); err != nil {
			return err
		}
		jobType := model.JobAsync
		if step.Type == model.StepTimer {
			jobType = model.JobTimer
		}
		job, err := r.e.createJob(ctx, r.tx, jobType, jobSources{parent: r.parentJob, instance: &r.inst}, jobTarget{
			definitionID: r.def.ID,
			instanceID:   r.inst.ID,
			executionID:  r.root.ID,
			activityID:   step.ID,
			due:          r.now.Add(compiler.StepDelay(step)),
		})
		if err != nil {
			return err
		}
		r.progress.Jobs = append(r.progress.Jobs, job)
		return nil

	case model.StepParallel:
		if err := r.tx.UpdateExecution(ctx, r.root.ID, step.ID, false); err != nil {
			return err
		}
		for _, branch := range step.Branches {
			child := model.Execution{
				ID:                  r.e.ids.Generate(),
				ProcessInstanceID:   r.inst.ID,
				ParentID:            r.root.ID,
				ProcessDefinitionID: r.def.ID,
				ActivityID:          branch.ID,
				TenantID:            r.inst.TenantID,
				Active:              true,
				Seq:                 r.e.seq.Next(),
			}
			if err := r.tx.InsertExecution(ctx, child); err != nil {
				return err
			}
			if err := r.e.recordActivity(ctx, r.tx, r.inst, branch.ID, string(branch.Type), r.now, time.Time{}); err != nil {
				return err
			}
			if err := r.createTask(ctx, child, branch); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported step type %q", step.Type)
	}
}

// leave ends the current step and enters the next one.
func (r *run) leave(ctx context.Context) error {
	step, err := r.step()
	if err != nil {
		return err
	}
	if err := r.e.endActivity(ctx, r.tx, r.inst, step.ID, r.now); err != nil {
		return err
	}
	return r.enter(ctx, r.inst.StepIndex+1)
}

// createTask creates a user task on exec. The task inherits the instance's
// tenant.
func (r *run) createTask(ctx context.Context, exec model.Execution, step model.Step) error {
	name := step.Name
	if name == "" {
		name = step.ID
	}
	task := model.Task{
		ID:                  r.e.ids.Generate(),
		Name:                name,
		TaskDefinitionKey:   step.ID,
		ProcessInstanceID:   r.inst.ID,
		ExecutionID:         exec.ID,
		ProcessDefinitionID: r.def.ID,
		TenantID:            r.inst.TenantID,
		CreatedAt:           r.now,
		Seq:                 r.e.seq.Next(),
	}
	if err := r.tx.InsertTask(ctx, task); err != nil {
		return err
	}
	r.progress.Tasks = append(r.progress.Tasks, task)
	return nil
}

// complete records the end event and archives the instance.
func (r *run) complete(ctx context.Context) error {
	if err := r.e.recordActivity(ctx, r.tx, r.inst, activityEnd, activityEndEvent, r.now, r.now); err != nil {
		return err
	}
	return r.end(ctx, "")
}

// end archives the instance and removes its runtime state. Open tasks are
// archived with the same reason.
func (r *run) end(ctx context.Context, reason string) error {
	tasks, err := r.tx.Tasks(ctx, store.TaskQuery{ProcessInstanceID: r.inst.ID})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := r.e.archiveTask(ctx, r.tx, t, r.now, reason); err != nil {
			return err
		}
	}

	if err := r.e.archiveInstance(ctx, r.tx, r.inst, r.now, reason); err != nil {
		return err
	}
	if err := r.tx.DeleteInstance(ctx, r.inst.ID); err != nil {
		return err
	}

	r.progress.Ended = true
	return nil
}

// result returns the run's progress with the final instance state.
func (r *run) result() Progress {
	p := r.progress
	p.Instance = r.inst
	return p
}
