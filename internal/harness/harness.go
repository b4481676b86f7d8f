package harness

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tenantry/internal/engine"
	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
	"github.com/roach88/tenantry/internal/testutil"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.ManualClock

	scenario    *Scenario
	deployments map[string]model.Deployment
	instances   map[string]model.ProcessInstance
}

// Run executes a scenario in a fresh database under dir and returns the
// result. An error means the harness itself failed; scenario failures are
// reported in the result.
//
// Execution flow:
//  1. Open a fresh database with deterministic IDs and clock
//  2. Execute steps, checking each outcome against its expect value
//  3. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	st, err := store.Open(filepath.Join(dir, scenario.Name+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualClock(testutil.Epoch)
	eng, err := engine.New(ctx, st,
		engine.WithIDGenerator(testutil.NewSequentialIDs("id")),
		engine.WithNow(clock.Now),
		engine.WithMetrics(engine.NewMetrics(prometheus.NewRegistry())),
		engine.WithWorkers(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:       st,
		engine:      eng,
		clock:       clock,
		scenario:    scenario,
		deployments: map[string]model.Deployment{},
		instances:   map[string]model.ProcessInstance{},
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, result) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and records its trace events.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	if step.Op == OpRunJobs {
		return h.runJobs(ctx, n, step, result)
	}

	var before []byte
	if step.Expect != "" {
		var err error
		if before, err = h.store.Dump(ctx); err != nil {
			return err
		}
	}

	ev, opErr := h.apply(ctx, step)
	ev.Op = step.Op
	ev.Outcome = outcomeOf(opErr)
	if ev.Outcome == "" {
		// Not a tenancy error: the scenario cannot continue meaningfully.
		return opErr
	}
	result.record(ev)

	if want := expectedOutcome(step); ev.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s", n, step.Op, want, describe(ev.Outcome, opErr)))
	}

	if opErr != nil && step.Expect != "" {
		after, err := h.store.Dump(ctx)
		if err != nil {
			return err
		}
		if !bytes.Equal(before, after) {
			result.AddError(fmt.Sprintf("step %d (%s): rejected operation changed the store", n, step.Op))
		}
	}
	return nil
}

// apply performs a single operation and describes what it touched.
func (h *Harness) apply(ctx context.Context, step Step) (TraceEvent, error) {
	e := h.engine
	var ev TraceEvent

	switch step.Op {
	case OpDeploy:
		name := step.Name
		if name == "" {
			name = step.As
		}
		if name == "" {
			name = "deployment"
		}
		resources := make([]model.Resource, 0, len(step.Resources))
		for _, r := range step.Resources {
			resources = append(resources, model.Resource{Name: r, Content: []byte(h.scenario.Resources[r])})
		}
		out, err := e.Deploy(ctx, engine.DeploymentRequest{
			Name:               name,
			TenantID:           tenantOf(step.Tenant),
			Resources:          resources,
			DuplicateFiltering: step.DuplicateFiltering,
		})
		if err != nil {
			return ev, err
		}
		if step.As != "" {
			h.deployments[step.As] = out.Deployment
		}
		if out.Duplicate {
			ev.Detail = "duplicate"
		}
		ev.Entities = append(ev.Entities, TraceEntity{Kind: "deployment", Name: out.Deployment.Name, TenantID: out.Deployment.TenantID})
		for _, d := range out.Definitions {
			ev.Entities = append(ev.Entities, TraceEntity{Kind: "definition", Key: d.Key, Version: d.Version, TenantID: d.TenantID})
		}
		for _, d := range out.Definitions {
			if !d.HasTimerStart || out.Duplicate {
				continue
			}
			jobs, err := h.store.Jobs(ctx, store.JobQuery{ProcessDefinitionID: d.ID, Type: string(model.JobTimerStart)})
			if err != nil {
				return ev, err
			}
			for _, j := range jobs {
				ev.Entities = append(ev.Entities, jobEntity(j))
			}
		}
		return ev, nil

	case OpStart:
		ev.Detail = "key=" + step.Key + tenantDetail(step.Tenant)
		opts := []engine.StartOption{engine.WithBusinessKey(step.BusinessKey)}
		var (
			p   engine.Progress
			err error
		)
		if step.Tenant != nil {
			p, err = e.StartByKeyAndTenantID(ctx, step.Key, *step.Tenant, opts...)
		} else {
			p, err = e.StartByKey(ctx, step.Key, opts...)
		}
		if err != nil {
			return ev, err
		}
		if step.As != "" {
			h.instances[step.As] = p.Instance
		}
		ev.Entities, err = h.progressEntities(ctx, p)
		return ev, err

	case OpComplete:
		ev.Detail = "task=" + step.Task
		task, err := h.findTask(ctx, step)
		if err != nil {
			return ev, err
		}
		p, err := e.CompleteTask(ctx, task.ID)
		if err != nil {
			return ev, err
		}
		ev.Entities, err = h.progressEntities(ctx, p)
		return ev, err

	case OpCancel:
		inst, ok := h.instances[step.Instance]
		if !ok {
			return ev, fmt.Errorf("instance %q was never started", step.Instance)
		}
		if err := e.DeleteProcessInstance(ctx, inst.ID, ""); err != nil {
			return ev, err
		}
		ev.Entities = []TraceEntity{{Kind: "instance", Key: inst.ProcessDefinitionKey, TenantID: inst.TenantID, Ended: true}}
		return ev, nil

	case OpChangeTenant:
		ev.Detail = "to=" + *step.To
		dep, ok := h.deployments[step.Deployment]
		if !ok {
			return ev, fmt.Errorf("deployment %q was never deployed", step.Deployment)
		}
		change, err := e.ChangeDeploymentTenantID(ctx, dep.ID, *step.To)
		if err != nil {
			return ev, err
		}
		dep.TenantID = change.ToTenantID
		h.deployments[step.Deployment] = dep
		ev.Entities = []TraceEntity{{Kind: "deployment", Name: dep.Name, TenantID: dep.TenantID, Rows: change.Total()}}
		return ev, nil

	case OpUndeploy:
		if step.Cascade {
			ev.Detail = "cascade"
		}
		dep, ok := h.deployments[step.Deployment]
		if !ok {
			return ev, fmt.Errorf("deployment %q was never deployed", step.Deployment)
		}
		if err := e.DeleteDeployment(ctx, dep.ID, step.Cascade); err != nil {
			return ev, err
		}
		ev.Entities = []TraceEntity{{Kind: "deployment", Name: dep.Name, TenantID: dep.TenantID}}
		return ev, nil

	case OpSuspend, OpActivate:
		ev.Detail = "key=" + step.Key + tenantDetail(step.Tenant)
		suspend := step.Op == OpSuspend
		var (
			n   int64
			err error
		)
		switch {
		case step.Tenant != nil && suspend:
			n, err = e.SuspendByKeyAndTenantID(ctx, step.Key, *step.Tenant)
		case step.Tenant != nil:
			n, err = e.ActivateByKeyAndTenantID(ctx, step.Key, *step.Tenant)
		case suspend:
			n, err = e.SuspendByKey(ctx, step.Key)
		default:
			n, err = e.ActivateByKey(ctx, step.Key)
		}
		if err != nil {
			return ev, err
		}
		tenantID, err := h.partitionTenant(ctx, step)
		if err != nil {
			return ev, err
		}
		ev.Entities = []TraceEntity{{Kind: "partition", Key: step.Key, TenantID: tenantID, Rows: n}}
		return ev, nil

	case OpAdvance:
		ev.Detail = "by=" + step.By
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return ev, err
		}
		h.clock.Advance(d)
		return ev, nil
	}

	return ev, fmt.Errorf("unknown op %q", step.Op)
}

// runJobs executes the jobs due at the scenario clock one by one, in
// creation order, recording one event per job.
func (h *Harness) runJobs(ctx context.Context, n int, step Step, result *Result) error {
	due, err := h.store.DueJobs(ctx, h.clock.Now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		result.record(TraceEvent{Op: OpRunJobs, Detail: "no jobs due", Outcome: OutcomeOK})
		if step.Expect != "" {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s, no jobs were due", n, step.Op, step.Expect))
		}
		return nil
	}

	outcome := OutcomeOK
	for _, job := range due {
		ev := TraceEvent{Op: "execute_job", Detail: string(job.Type)}
		p, err := h.engine.ExecuteJob(ctx, job.ID)
		ev.Outcome = outcomeOf(err)
		if ev.Outcome == "" {
			return err
		}
		ev.Entities = []TraceEntity{jobEntity(job)}
		if err == nil {
			more, err := h.progressEntities(ctx, p)
			if err != nil {
				return err
			}
			ev.Entities = append(ev.Entities, more...)
		} else if outcome == OutcomeOK {
			outcome = ev.Outcome
		}
		result.record(ev)
	}

	if want := expectedOutcome(step); outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s", n, step.Op, want, outcome))
	}
	return nil
}

// progressEntities describes the instance a run moved and what it created.
func (h *Harness) progressEntities(ctx context.Context, p engine.Progress) ([]TraceEntity, error) {
	def, err := h.store.Definition(ctx, p.Instance.ProcessDefinitionID)
	if err != nil {
		return nil, err
	}
	out := []TraceEntity{{
		Kind:     "instance",
		Key:      p.Instance.ProcessDefinitionKey,
		Version:  def.Version,
		TenantID: p.Instance.TenantID,
		Ended:    p.Ended,
	}}
	for _, t := range p.Tasks {
		out = append(out, TraceEntity{Kind: "task", Name: t.Name, TenantID: t.TenantID})
	}
	for _, j := range p.Jobs {
		out = append(out, jobEntity(j))
	}
	return out, nil
}

// findTask returns the single open task with the step's task key, in the
// step's instance or tenant.
func (h *Harness) findTask(ctx context.Context, step Step) (model.Task, error) {
	q := store.TaskQuery{}
	if step.Instance != "" {
		inst, ok := h.instances[step.Instance]
		if !ok {
			return model.Task{}, fmt.Errorf("instance %q was never started", step.Instance)
		}
		q.ProcessInstanceID = inst.ID
	} else {
		q.Tenant = query.Tenant(*step.Tenant)
	}

	tasks, err := h.store.Tasks(ctx, q)
	if err != nil {
		return model.Task{}, err
	}
	var matches []model.Task
	for _, t := range tasks {
		if t.TaskDefinitionKey == step.Task {
			matches = append(matches, t)
		}
	}
	if len(matches) != 1 {
		return model.Task{}, fmt.Errorf("expected one open %q task, found %d", step.Task, len(matches))
	}
	return matches[0], nil
}

// partitionTenant returns the tenant of the partition a suspension step
// acted on.
func (h *Harness) partitionTenant(ctx context.Context, step Step) (string, error) {
	if step.Tenant != nil {
		return *step.Tenant, nil
	}
	defs, err := h.store.Definitions(ctx, store.DefinitionQuery{Key: step.Key, LatestVersion: true})
	if err != nil {
		return "", err
	}
	tenants := make([]string, 0, len(defs))
	for _, d := range defs {
		tenants = append(tenants, d.TenantID)
	}
	sort.Strings(tenants)
	if len(tenants) != 1 {
		return "", fmt.Errorf("key %q is in %d partitions", step.Key, len(tenants))
	}
	return tenants[0], nil
}

func jobEntity(j model.Job) TraceEntity {
	return TraceEntity{Kind: "job", Type: string(j.Type), TenantID: j.TenantID}
}

func tenantOf(t *string) string {
	if t == nil {
		return model.NoTenant
	}
	return *t
}

func tenantDetail(t *string) string {
	if t == nil {
		return ""
	}
	if *t == model.NoTenant {
		return " tenant=(none)"
	}
	return " tenant=" + *t
}

// outcomeOf maps an operation error to a trace outcome. Errors that are not
// tenancy errors map to "".
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return string(engine.CodeOf(err))
}

func expectedOutcome(step Step) string {
	if step.Expect == "" {
		return OutcomeOK
	}
	return step.Expect
}

func describe(outcome string, err error) string {
	if err != nil {
		return err.Error()
	}
	return outcome
}
