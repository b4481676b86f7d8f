package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// reader holds the read methods shared by Store and Tx.
type reader struct {
	q queryer
}

// selectAll compiles sel, runs it and scans every row.
// Returns an empty slice (not nil) if nothing matches.
func selectAll[T any](ctx context.Context, q queryer, sel query.Select, scan func(rowScanner) (T, error)) ([]T, error) {
	sqlText, params, err := query.Compile(sel)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sel.From, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", sel.From, err)
	}

	return out, nil
}

// selectOne returns the single row matching sel.
// Returns an error wrapping sql.ErrNoRows if none matches.
func selectOne[T any](ctx context.Context, q queryer, sel query.Select, scan func(rowScanner) (T, error)) (T, error) {
	var zero T
	sqlText, params, err := query.Compile(sel)
	if err != nil {
		return zero, err
	}
	return scan(q.QueryRowContext(ctx, sqlText, params...))
}

func count(ctx context.Context, q queryer, from string, filter query.Predicate) (int, error) {
	sqlText, params, err := query.Compile(query.Count{From: from, Filter: filter})
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, sqlText, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", from, err)
	}
	return n, nil
}

// Deployment retrieves a deployment by ID, including its resources.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Deployment(ctx context.Context, id string) (model.Deployment, error) {
	d, err := selectOne(ctx, r.q, query.Select{
		From:    "deployments",
		Columns: deploymentColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanDeployment)
	if err != nil {
		return d, fmt.Errorf("read deployment %s: %w", id, err)
	}

	d.Resources, err = r.Resources(ctx, id)
	if err != nil {
		return d, err
	}
	return d, nil
}

// Resources returns the resources of a deployment ordered by name.
func (r reader) Resources(ctx context.Context, deploymentID string) ([]model.Resource, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT name, content, checksum FROM resources
		WHERE deployment_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	out := []model.Resource{}
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.Name, &res.Content, &res.Checksum); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

// Deployments lists deployments without their resources.
func (r reader) Deployments(ctx context.Context, q DeploymentQuery) ([]model.Deployment, error) {
	return selectAll(ctx, r.q, query.Select{From: "deployments", Columns: deploymentColumns, Filter: q.filter()}, scanDeployment)
}

// CountDeployments counts deployments.
func (r reader) CountDeployments(ctx context.Context, q DeploymentQuery) (int, error) {
	return count(ctx, r.q, "deployments", q.filter())
}

// LatestDeploymentByName returns the most recent deployment with the given
// name in exactly the given tenant, including its resources.
func (r reader) LatestDeploymentByName(ctx context.Context, name, tenantID string) (model.Deployment, bool, error) {
	found, err := selectAll(ctx, r.q, query.Select{
		From:    "deployments",
		Columns: deploymentColumns,
		Filter:  query.AllOf(query.Equals{Field: "name", Value: name}, query.Tenant(tenantID).Predicate()),
		OrderBy: []string{"seq DESC", "id COLLATE BINARY DESC"},
		Limit:   1,
	}, scanDeployment)
	if err != nil {
		return model.Deployment{}, false, err
	}
	if len(found) == 0 {
		return model.Deployment{}, false, nil
	}

	d := found[0]
	d.Resources, err = r.Resources(ctx, d.ID)
	if err != nil {
		return model.Deployment{}, false, err
	}
	return d, true, nil
}

// Definition retrieves a process definition by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Definition(ctx context.Context, id string) (model.ProcessDefinition, error) {
	d, err := selectOne(ctx, r.q, query.Select{
		From:    "process_definitions",
		Columns: definitionColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanDefinition)
	if err != nil {
		return d, fmt.Errorf("read process definition %s: %w", id, err)
	}
	return d, nil
}

// Definitions lists process definitions.
func (r reader) Definitions(ctx context.Context, q DefinitionQuery) ([]model.ProcessDefinition, error) {
	return selectAll(ctx, r.q, query.Select{From: q.from(), Columns: definitionColumns, Filter: q.filter()}, scanDefinition)
}

// CountDefinitions counts process definitions.
func (r reader) CountDefinitions(ctx context.Context, q DefinitionQuery) (int, error) {
	return count(ctx, r.q, q.from(), q.filter())
}

// MaxVersion returns the highest version in a (key, tenant) partition, or 0
// if the partition is empty.
func (r reader) MaxVersion(ctx context.Context, key model.TenantKey) (int, error) {
	var v sql.NullInt64
	err := r.q.QueryRowContext(ctx, `
		SELECT MAX(version) FROM process_definitions
		WHERE key = ? AND tenant_id = ?
	`, key.DefinitionKey, key.TenantID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("max version %s: %w", key, err)
	}
	return int(v.Int64), nil
}

// LatestDefinition returns the highest version in a (key, tenant) partition.
func (r reader) LatestDefinition(ctx context.Context, key model.TenantKey) (model.ProcessDefinition, bool, error) {
	found, err := r.Definitions(ctx, DefinitionQuery{
		Key:           key.DefinitionKey,
		Tenant:        query.Tenant(key.TenantID),
		LatestVersion: true,
	})
	if err != nil {
		return model.ProcessDefinition{}, false, err
	}
	if len(found) == 0 {
		return model.ProcessDefinition{}, false, nil
	}
	return found[0], true, nil
}

// DefinitionTenants returns the distinct tenants that hold at least one
// definition with the given key, in tenant order. The no-tenant partition
// appears as "".
func (r reader) DefinitionTenants(ctx context.Context, key string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM process_definitions
		WHERE key = ?
		ORDER BY tenant_id COLLATE BINARY ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query definition tenants: %w", err)
	}
	defer rows.Close()

	tenants := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan definition tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definition tenants: %w", err)
	}
	return tenants, nil
}

// Instance retrieves a process instance by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Instance(ctx context.Context, id string) (model.ProcessInstance, error) {
	p, err := selectOne(ctx, r.q, query.Select{
		From:    "process_instances",
		Columns: instanceColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanInstance)
	if err != nil {
		return p, fmt.Errorf("read process instance %s: %w", id, err)
	}
	return p, nil
}

// Instances lists process instances.
func (r reader) Instances(ctx context.Context, q InstanceQuery) ([]model.ProcessInstance, error) {
	return selectAll(ctx, r.q, query.Select{From: "process_instances", Columns: instanceColumns, Filter: q.filter()}, scanInstance)
}

// CountInstances counts process instances.
func (r reader) CountInstances(ctx context.Context, q InstanceQuery) (int, error) {
	return count(ctx, r.q, "process_instances", q.filter())
}

// Execution retrieves an execution by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Execution(ctx context.Context, id string) (model.Execution, error) {
	e, err := selectOne(ctx, r.q, query.Select{
		From:    "executions",
		Columns: executionColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanExecution)
	if err != nil {
		return e, fmt.Errorf("read execution %s: %w", id, err)
	}
	return e, nil
}

// Executions lists executions.
func (r reader) Executions(ctx context.Context, q ExecutionQuery) ([]model.Execution, error) {
	return selectAll(ctx, r.q, query.Select{From: "executions", Columns: executionColumns, Filter: q.filter()}, scanExecution)
}

// CountExecutions counts executions.
func (r reader) CountExecutions(ctx context.Context, q ExecutionQuery) (int, error) {
	return count(ctx, r.q, "executions", q.filter())
}

// Task retrieves a task by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Task(ctx context.Context, id string) (model.Task, error) {
	t, err := selectOne(ctx, r.q, query.Select{
		From:    "tasks",
		Columns: taskColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanTask)
	if err != nil {
		return t, fmt.Errorf("read task %s: %w", id, err)
	}
	return t, nil
}

// Tasks lists tasks.
func (r reader) Tasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	return selectAll(ctx, r.q, query.Select{From: "tasks", Columns: taskColumns, Filter: q.filter()}, scanTask)
}

// CountTasks counts tasks.
func (r reader) CountTasks(ctx context.Context, q TaskQuery) (int, error) {
	return count(ctx, r.q, "tasks", q.filter())
}

// Job retrieves a job by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Job(ctx context.Context, id string) (model.Job, error) {
	j, err := selectOne(ctx, r.q, query.Select{
		From:    "jobs",
		Columns: jobColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanJob)
	if err != nil {
		return j, fmt.Errorf("read job %s: %w", id, err)
	}
	return j, nil
}

// Jobs lists jobs.
func (r reader) Jobs(ctx context.Context, q JobQuery) ([]model.Job, error) {
	return selectAll(ctx, r.q, query.Select{From: "jobs", Columns: jobColumns, Filter: q.filter()}, scanJob)
}

// DueJobs lists the jobs a job pass should run at now: due at or before now,
// with retries left, and not the timer start of a suspended definition.
func (r reader) DueJobs(ctx context.Context, now time.Time) ([]model.Job, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+strings.Join(jobColumns, ", ")+` FROM jobs
		WHERE due_date <= ? AND retries > 0
		AND NOT (type = ? AND process_definition_id IN (
			SELECT id FROM process_definitions WHERE suspended = 1
		))
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, toNanos(now), string(model.JobTimerStart))
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due jobs: %w", err)
	}
	return out, nil
}

// CountJobs counts jobs.
func (r reader) CountJobs(ctx context.Context, q JobQuery) (int, error) {
	return count(ctx, r.q, "jobs", q.filter())
}

// HistoricProcessInstances lists archived process instances.
func (r reader) HistoricProcessInstances(ctx context.Context, q HistoryQuery) ([]model.HistoricProcessInstance, error) {
	return selectAll(ctx, r.q, query.Select{
		From:    "historic_process_instances",
		Columns: historicInstanceColumns,
		Filter:  q.filter("id"),
	}, scanHistoricInstance)
}

// CountHistoricProcessInstances counts archived process instances.
func (r reader) CountHistoricProcessInstances(ctx context.Context, q HistoryQuery) (int, error) {
	return count(ctx, r.q, "historic_process_instances", q.filter("id"))
}

// HistoricTaskInstances lists archived tasks.
func (r reader) HistoricTaskInstances(ctx context.Context, q HistoryQuery) ([]model.HistoricTaskInstance, error) {
	return selectAll(ctx, r.q, query.Select{
		From:    "historic_task_instances",
		Columns: historicTaskColumns,
		Filter:  q.filter("process_instance_id"),
	}, scanHistoricTask)
}

// CountHistoricTaskInstances counts archived tasks.
func (r reader) CountHistoricTaskInstances(ctx context.Context, q HistoryQuery) (int, error) {
	return count(ctx, r.q, "historic_task_instances", q.filter("process_instance_id"))
}

// HistoricActivityInstances lists archived activity instances.
func (r reader) HistoricActivityInstances(ctx context.Context, q HistoryQuery) ([]model.HistoricActivityInstance, error) {
	return selectAll(ctx, r.q, query.Select{
		From:    "historic_activity_instances",
		Columns: historicActivityColumns,
		Filter:  q.filter("process_instance_id"),
	}, scanHistoricActivity)
}

// CountHistoricActivityInstances counts archived activity instances.
func (r reader) CountHistoricActivityInstances(ctx context.Context, q HistoryQuery) (int, error) {
	return count(ctx, r.q, "historic_activity_instances", q.filter("process_instance_id"))
}

// Model retrieves a repository model by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (r reader) Model(ctx context.Context, id string) (model.Model, error) {
	m, err := selectOne(ctx, r.q, query.Select{
		From:    "models",
		Columns: modelColumns,
		Filter:  query.Equals{Field: "id", Value: id},
	}, scanModel)
	if err != nil {
		return m, fmt.Errorf("read model %s: %w", id, err)
	}
	return m, nil
}

// Models lists repository models.
func (r reader) Models(ctx context.Context, q ModelQuery) ([]model.Model, error) {
	return selectAll(ctx, r.q, query.Select{From: "models", Columns: modelColumns, Filter: q.filter()}, scanModel)
}

// CountModels counts repository models.
func (r reader) CountModels(ctx context.Context, q ModelQuery) (int, error) {
	return count(ctx, r.q, "models", q.filter())
}

// MaxSeq returns the highest seq across all tables, or 0 for an empty store.
// Used to resume the logical clock after a restart.
func (r reader) MaxSeq(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := r.q.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT MAX(seq) AS m FROM deployments
			UNION ALL SELECT MAX(seq) FROM process_definitions
			UNION ALL SELECT MAX(seq) FROM process_instances
			UNION ALL SELECT MAX(seq) FROM executions
			UNION ALL SELECT MAX(seq) FROM tasks
			UNION ALL SELECT MAX(seq) FROM jobs
			UNION ALL SELECT MAX(seq) FROM historic_process_instances
			UNION ALL SELECT MAX(seq) FROM historic_task_instances
			UNION ALL SELECT MAX(seq) FROM historic_activity_instances
			UNION ALL SELECT MAX(seq) FROM models
		)
	`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max.Int64, nil
}
