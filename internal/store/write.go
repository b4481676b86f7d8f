package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tenantry/internal/model"
)

// InsertDeployment inserts a deployment and its resources.
// Returns an error satisfying IsUniqueViolation if the ID already exists.
func (t *Tx) InsertDeployment(ctx context.Context, d model.Deployment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO deployments (id, name, tenant_id, deployed_at, seq)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.TenantID, toNanos(d.DeployedAt), d.Seq)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}

	for _, res := range d.Resources {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO resources (deployment_id, name, content, checksum)
			VALUES (?, ?, ?, ?)
		`, d.ID, res.Name, res.Content, res.Checksum)
		if err != nil {
			return fmt.Errorf("insert resource %q: %w", res.Name, err)
		}
	}

	return nil
}

// InsertDefinition inserts a process definition.
// A second definition with the same (key, tenant, version) fails with a
// unique violation.
func (t *Tx) InsertDefinition(ctx context.Context, d model.ProcessDefinition) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO process_definitions
		(id, key, name, version, deployment_id, resource_name, tenant_id, suspended, has_timer_start, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.Key, d.Name, d.Version, d.DeploymentID, d.ResourceName,
		d.TenantID, boolToInt(d.Suspended), boolToInt(d.HasTimerStart), d.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert process definition %s: %w", d.TenantKey(), err)
	}
	return nil
}

// SetPartitionSuspended sets the suspension state of every version in a
// partition. Returns the number of definitions whose state changed.
func (t *Tx) SetPartitionSuspended(ctx context.Context, key model.TenantKey, suspended bool) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE process_definitions SET suspended = ?
		WHERE key = ? AND tenant_id = ? AND suspended <> ?
	`, boolToInt(suspended), key.DefinitionKey, key.TenantID, boolToInt(suspended))
	if err != nil {
		return 0, fmt.Errorf("set suspended %s: %w", key, err)
	}
	return res.RowsAffected()
}

// SetDefinitionSuspended sets the suspension state of a single definition.
// Returns the number of definitions whose state changed (0 or 1).
func (t *Tx) SetDefinitionSuspended(ctx context.Context, id string, suspended bool) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE process_definitions SET suspended = ?
		WHERE id = ? AND suspended <> ?
	`, boolToInt(suspended), id, boolToInt(suspended))
	if err != nil {
		return 0, fmt.Errorf("set suspended %s: %w", id, err)
	}
	return res.RowsAffected()
}

// InsertInstance inserts a process instance.
func (t *Tx) InsertInstance(ctx context.Context, p model.ProcessInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO process_instances
		(id, process_definition_id, process_definition_key, business_key, tenant_id, step_index, started_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ProcessDefinitionID, p.ProcessDefinitionKey, p.BusinessKey,
		p.TenantID, p.StepIndex, toNanos(p.StartedAt), p.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert process instance: %w", err)
	}
	return nil
}

// SetInstanceStep moves an instance's stepper position.
func (t *Tx) SetInstanceStep(ctx context.Context, id string, stepIndex int) error {
	return t.execOne(ctx, "set instance step", `
		UPDATE process_instances SET step_index = ? WHERE id = ?
	`, stepIndex, id)
}

// DeleteInstance removes an instance together with its executions, tasks and
// jobs. History rows are left alone.
func (t *Tx) DeleteInstance(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE FROM jobs WHERE process_instance_id = ?`,
		`DELETE FROM tasks WHERE process_instance_id = ?`,
		`DELETE FROM executions WHERE process_instance_id = ?`,
		`DELETE FROM process_instances WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := t.tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete process instance %s: %w", id, err)
		}
	}
	return nil
}

// InsertExecution inserts an execution.
func (t *Tx) InsertExecution(ctx context.Context, e model.Execution) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO executions
		(id, process_instance_id, parent_id, process_definition_id, activity_id, tenant_id, active, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ProcessInstanceID, e.ParentID, e.ProcessDefinitionID,
		e.ActivityID, e.TenantID, boolToInt(e.Active), e.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// UpdateExecution sets the current activity and active flag of an execution.
func (t *Tx) UpdateExecution(ctx context.Context, id, activityID string, active bool) error {
	return t.execOne(ctx, "update execution", `
		UPDATE executions SET activity_id = ?, active = ? WHERE id = ?
	`, activityID, boolToInt(active), id)
}

// DeleteExecution removes a single execution.
func (t *Tx) DeleteExecution(ctx context.Context, id string) error {
	return t.execOne(ctx, "delete execution", `DELETE FROM executions WHERE id = ?`, id)
}

// InsertTask inserts a user task.
func (t *Tx) InsertTask(ctx context.Context, task model.Task) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tasks
		(id, name, task_definition_key, process_instance_id, execution_id, process_definition_id, tenant_id, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID, task.Name, task.TaskDefinitionKey, task.ProcessInstanceID, task.ExecutionID,
		task.ProcessDefinitionID, task.TenantID, toNanos(task.CreatedAt), task.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DeleteTask removes a task.
func (t *Tx) DeleteTask(ctx context.Context, id string) error {
	return t.execOne(ctx, "delete task", `DELETE FROM tasks WHERE id = ?`, id)
}

// InsertJob inserts a job.
func (t *Tx) InsertJob(ctx context.Context, j model.Job) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO jobs
		(id, type, process_definition_id, process_instance_id, execution_id, activity_id, tenant_id, due_date, retries, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.ID, string(j.Type), j.ProcessDefinitionID, j.ProcessInstanceID, j.ExecutionID,
		j.ActivityID, j.TenantID, toNanos(j.DueDate), j.Retries, j.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// DeleteJob removes a job.
func (t *Tx) DeleteJob(ctx context.Context, id string) error {
	return t.execOne(ctx, "delete job", `DELETE FROM jobs WHERE id = ?`, id)
}

// DecrementJobRetries spends one retry of a failed job and returns the
// retries left. A job with no retries left stays at zero.
func (t *Tx) DecrementJobRetries(ctx context.Context, id string) (int, error) {
	if err := t.execOne(ctx, "decrement job retries", `
		UPDATE jobs SET retries = MAX(retries - 1, 0) WHERE id = ?
	`, id); err != nil {
		return 0, err
	}
	var left int
	if err := t.tx.QueryRowContext(ctx, `SELECT retries FROM jobs WHERE id = ?`, id).Scan(&left); err != nil {
		return 0, fmt.Errorf("read job retries: %w", err)
	}
	return left, nil
}

// DeleteTimerStartJobs removes the timer-start jobs of every definition in
// the given partition. Jobs of other tenants sharing the key are untouched.
func (t *Tx) DeleteTimerStartJobs(ctx context.Context, key model.TenantKey) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE type = ? AND tenant_id = ? AND process_definition_id IN (
			SELECT id FROM process_definitions WHERE key = ? AND tenant_id = ?
		)
	`, string(model.JobTimerStart), key.TenantID, key.DefinitionKey, key.TenantID)
	if err != nil {
		return 0, fmt.Errorf("delete timer start jobs %s: %w", key, err)
	}
	return res.RowsAffected()
}

// InsertHistoricInstance inserts an archived process instance.
func (t *Tx) InsertHistoricInstance(ctx context.Context, h model.HistoricProcessInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO historic_process_instances
		(id, process_definition_id, business_key, tenant_id, start_time, end_time, delete_reason, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, h.ProcessDefinitionID, h.BusinessKey, h.TenantID,
		toNanos(h.StartTime), toNanos(h.EndTime), h.DeleteReason, h.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert historic process instance: %w", err)
	}
	return nil
}

// InsertHistoricTask inserts an archived task instance.
func (t *Tx) InsertHistoricTask(ctx context.Context, h model.HistoricTaskInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO historic_task_instances
		(id, name, task_definition_key, process_instance_id, process_definition_id, tenant_id, start_time, end_time, delete_reason, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, h.Name, h.TaskDefinitionKey, h.ProcessInstanceID, h.ProcessDefinitionID,
		h.TenantID, toNanos(h.StartTime), toNanos(h.EndTime), h.DeleteReason, h.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert historic task instance: %w", err)
	}
	return nil
}

// InsertHistoricActivity inserts an archived activity instance.
func (t *Tx) InsertHistoricActivity(ctx context.Context, h model.HistoricActivityInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO historic_activity_instances
		(id, activity_id, activity_type, process_instance_id, process_definition_id, tenant_id, start_time, end_time, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, h.ActivityID, h.ActivityType, h.ProcessInstanceID, h.ProcessDefinitionID,
		h.TenantID, toNanos(h.StartTime), toNanos(h.EndTime), h.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert historic activity instance: %w", err)
	}
	return nil
}

// EndHistoricActivity sets the end time of the open activity instances of
// activityID in an instance. Returns the number of rows closed.
func (t *Tx) EndHistoricActivity(ctx context.Context, processInstanceID, activityID string, end time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE historic_activity_instances SET end_time = ?
		WHERE process_instance_id = ? AND activity_id = ? AND end_time = 0
	`, toNanos(end), processInstanceID, activityID)
	if err != nil {
		return 0, fmt.Errorf("end historic activity instance: %w", err)
	}
	return res.RowsAffected()
}

// EndOpenHistoricActivities closes every open activity instance of an
// instance.
func (t *Tx) EndOpenHistoricActivities(ctx context.Context, processInstanceID string, end time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE historic_activity_instances SET end_time = ?
		WHERE process_instance_id = ? AND end_time = 0
	`, toNanos(end), processInstanceID)
	if err != nil {
		return fmt.Errorf("end historic activity instances: %w", err)
	}
	return nil
}

// SaveModel inserts or replaces a repository model.
func (t *Tx) SaveModel(ctx context.Context, m model.Model) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO models (id, name, key, category, deployment_id, tenant_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			key = excluded.key,
			category = excluded.category,
			deployment_id = excluded.deployment_id,
			tenant_id = excluded.tenant_id,
			seq = excluded.seq
	`, m.ID, m.Name, m.Key, m.Category, m.DeploymentID, m.TenantID, m.Seq)
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// deploymentScopes maps every tenant-bearing table to the clause that selects
// the rows belonging to one deployment.
var deploymentScopes = map[string]string{
	"deployments":                 "id = ?",
	"process_definitions":         "deployment_id = ?",
	"models":                      "deployment_id = ?",
	"process_instances":           byDeploymentDefinitions,
	"executions":                  byDeploymentDefinitions,
	"tasks":                       byDeploymentDefinitions,
	"jobs":                        byDeploymentDefinitions,
	"historic_process_instances":  byDeploymentDefinitions,
	"historic_task_instances":     byDeploymentDefinitions,
	"historic_activity_instances": byDeploymentDefinitions,
}

const byDeploymentDefinitions = "process_definition_id IN (SELECT id FROM process_definitions WHERE deployment_id = ?)"

// TenantTables lists the tables rewritten by ReassignDeploymentTenant, in
// the order a full tenant change should visit them.
var TenantTables = []string{
	"deployments",
	"process_definitions",
	"models",
	"process_instances",
	"executions",
	"tasks",
	"jobs",
	"historic_process_instances",
	"historic_task_instances",
	"historic_activity_instances",
}

// ReassignDeploymentTenant sets tenant_id on every row of table that belongs
// to the deployment. Returns the number of rows changed.
func (t *Tx) ReassignDeploymentTenant(ctx context.Context, table, deploymentID, tenantID string) (int64, error) {
	scope, ok := deploymentScopes[table]
	if !ok {
		return 0, fmt.Errorf("reassign tenant: unknown table %q", table)
	}

	// table and scope come from the allowlist above, never from callers.
	stmt := fmt.Sprintf("UPDATE %s SET tenant_id = ? WHERE %s", table, scope)
	res, err := t.tx.ExecContext(ctx, stmt, tenantID, deploymentID)
	if err != nil {
		return 0, fmt.Errorf("reassign tenant on %s: %w", table, err)
	}
	return res.RowsAffected()
}

// DeleteDeployment removes a deployment with its definitions, resources and
// runtime state (jobs, tasks, executions, instances). History rows are
// removed only when withHistory is set. Models that referenced the
// deployment are detached, not deleted.
func (t *Tx) DeleteDeployment(ctx context.Context, id string, withHistory bool) error {
	stmts := []string{
		`DELETE FROM jobs WHERE ` + byDeploymentDefinitions,
		`DELETE FROM tasks WHERE ` + byDeploymentDefinitions,
		`DELETE FROM executions WHERE ` + byDeploymentDefinitions,
		`DELETE FROM process_instances WHERE ` + byDeploymentDefinitions,
	}
	if withHistory {
		stmts = append(stmts,
			`DELETE FROM historic_task_instances WHERE `+byDeploymentDefinitions,
			`DELETE FROM historic_activity_instances WHERE `+byDeploymentDefinitions,
			`DELETE FROM historic_process_instances WHERE `+byDeploymentDefinitions,
		)
	}
	stmts = append(stmts,
		`DELETE FROM process_definitions WHERE deployment_id = ?`,
		`UPDATE models SET deployment_id = '' WHERE deployment_id = ?`,
		`DELETE FROM deployments WHERE id = ?`,
	)

	for _, stmt := range stmts {
		if _, err := t.tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete deployment %s: %w", id, err)
		}
	}
	return nil
}

// execOne runs a statement that must affect exactly one row.
// Returns an error wrapping sql.ErrNoRows when nothing matched.
func (t *Tx) execOne(ctx context.Context, op, stmt string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
