package store

import (
	"fmt"
	"time"

	"github.com/roach88/tenantry/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// toNanos stores times as UTC unix nanoseconds. The zero time is stored as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

// fromNanos is the inverse of toNanos.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Column lists in scan order. Each scanX function below must match.
var (
	deploymentColumns = []string{"id", "name", "tenant_id", "deployed_at", "seq"}

	definitionColumns = []string{
		"id", "key", "name", "version", "deployment_id", "resource_name",
		"tenant_id", "suspended", "has_timer_start", "seq",
	}

	instanceColumns = []string{
		"id", "process_definition_id", "process_definition_key", "business_key",
		"tenant_id", "step_index", "started_at", "seq",
	}

	executionColumns = []string{
		"id", "process_instance_id", "parent_id", "process_definition_id",
		"activity_id", "tenant_id", "active", "seq",
	}

	taskColumns = []string{
		"id", "name", "task_definition_key", "process_instance_id", "execution_id",
		"process_definition_id", "tenant_id", "created_at", "seq",
	}

	jobColumns = []string{
		"id", "type", "process_definition_id", "process_instance_id", "execution_id",
		"activity_id", "tenant_id", "due_date", "retries", "seq",
	}

	historicInstanceColumns = []string{
		"id", "process_definition_id", "business_key", "tenant_id",
		"start_time", "end_time", "delete_reason", "seq",
	}

	historicTaskColumns = []string{
		"id", "name", "task_definition_key", "process_instance_id", "process_definition_id",
		"tenant_id", "start_time", "end_time", "delete_reason", "seq",
	}

	historicActivityColumns = []string{
		"id", "activity_id", "activity_type", "process_instance_id", "process_definition_id",
		"tenant_id", "start_time", "end_time", "seq",
	}

	modelColumns = []string{"id", "name", "key", "category", "deployment_id", "tenant_id", "seq"}
)

func scanDeployment(r rowScanner) (model.Deployment, error) {
	var d model.Deployment
	var deployedAt int64
	if err := r.Scan(&d.ID, &d.Name, &d.TenantID, &deployedAt, &d.Seq); err != nil {
		return d, fmt.Errorf("scan deployment: %w", err)
	}
	d.DeployedAt = fromNanos(deployedAt)
	return d, nil
}

func scanDefinition(r rowScanner) (model.ProcessDefinition, error) {
	var d model.ProcessDefinition
	var suspended, timerStart int
	if err := r.Scan(
		&d.ID, &d.Key, &d.Name, &d.Version, &d.DeploymentID, &d.ResourceName,
		&d.TenantID, &suspended, &timerStart, &d.Seq,
	); err != nil {
		return d, fmt.Errorf("scan process definition: %w", err)
	}
	d.Suspended = suspended != 0
	d.HasTimerStart = timerStart != 0
	return d, nil
}

func scanInstance(r rowScanner) (model.ProcessInstance, error) {
	var p model.ProcessInstance
	var startedAt int64
	if err := r.Scan(
		&p.ID, &p.ProcessDefinitionID, &p.ProcessDefinitionKey, &p.BusinessKey,
		&p.TenantID, &p.StepIndex, &startedAt, &p.Seq,
	); err != nil {
		return p, fmt.Errorf("scan process instance: %w", err)
	}
	p.StartedAt = fromNanos(startedAt)
	return p, nil
}

func scanExecution(r rowScanner) (model.Execution, error) {
	var e model.Execution
	var active int
	if err := r.Scan(
		&e.ID, &e.ProcessInstanceID, &e.ParentID, &e.ProcessDefinitionID,
		&e.ActivityID, &e.TenantID, &active, &e.Seq,
	); err != nil {
		return e, fmt.Errorf("scan execution: %w", err)
	}
	e.Active = active != 0
	return e, nil
}

func scanTask(r rowScanner) (model.Task, error) {
	var t model.Task
	var createdAt int64
	if err := r.Scan(
		&t.ID, &t.Name, &t.TaskDefinitionKey, &t.ProcessInstanceID, &t.ExecutionID,
		&t.ProcessDefinitionID, &t.TenantID, &createdAt, &t.Seq,
	); err != nil {
		return t, fmt.Errorf("scan task: %w", err)
	}
	t.CreatedAt = fromNanos(createdAt)
	return t, nil
}

func scanJob(r rowScanner) (model.Job, error) {
	var j model.Job
	var jobType string
	var dueDate int64
	if err := r.Scan(
		&j.ID, &jobType, &j.ProcessDefinitionID, &j.ProcessInstanceID, &j.ExecutionID,
		&j.ActivityID, &j.TenantID, &dueDate, &j.Retries, &j.Seq,
	); err != nil {
		return j, fmt.Errorf("scan job: %w", err)
	}
	j.Type = model.JobType(jobType)
	j.DueDate = fromNanos(dueDate)
	return j, nil
}

func scanHistoricInstance(r rowScanner) (model.HistoricProcessInstance, error) {
	var h model.HistoricProcessInstance
	var start, end int64
	if err := r.Scan(
		&h.ID, &h.ProcessDefinitionID, &h.BusinessKey, &h.TenantID,
		&start, &end, &h.DeleteReason, &h.Seq,
	); err != nil {
		return h, fmt.Errorf("scan historic process instance: %w", err)
	}
	h.StartTime = fromNanos(start)
	h.EndTime = fromNanos(end)
	return h, nil
}

func scanHistoricTask(r rowScanner) (model.HistoricTaskInstance, error) {
	var h model.HistoricTaskInstance
	var start, end int64
	if err := r.Scan(
		&h.ID, &h.Name, &h.TaskDefinitionKey, &h.ProcessInstanceID, &h.ProcessDefinitionID,
		&h.TenantID, &start, &end, &h.DeleteReason, &h.Seq,
	); err != nil {
		return h, fmt.Errorf("scan historic task instance: %w", err)
	}
	h.StartTime = fromNanos(start)
	h.EndTime = fromNanos(end)
	return h, nil
}

func scanHistoricActivity(r rowScanner) (model.HistoricActivityInstance, error) {
	var h model.HistoricActivityInstance
	var start, end int64
	if err := r.Scan(
		&h.ID, &h.ActivityID, &h.ActivityType, &h.ProcessInstanceID, &h.ProcessDefinitionID,
		&h.TenantID, &start, &end, &h.Seq,
	); err != nil {
		return h, fmt.Errorf("scan historic activity instance: %w", err)
	}
	h.StartTime = fromNanos(start)
	h.EndTime = fromNanos(end)
	return h, nil
}

func scanModel(r rowScanner) (model.Model, error) {
	var m model.Model
	if err := r.Scan(&m.ID, &m.Name, &m.Key, &m.Category, &m.DeploymentID, &m.TenantID, &m.Seq); err != nil {
		return m, fmt.Errorf("scan model: %w", err)
	}
	return m, nil
}
