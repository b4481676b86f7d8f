package store

import (
	"time"

	"github.com/roach88/tenantry/internal/query"
)

// DeploymentQuery filters deployments. Zero values do not filter.
type DeploymentQuery struct {
	ID     string
	Name   string
	Tenant query.TenantFilter
}

func (q DeploymentQuery) filter() query.Predicate {
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("name", q.Name),
		q.Tenant.Predicate(),
	)
}

// DefinitionQuery filters process definitions. Zero values do not filter.
type DefinitionQuery struct {
	ID           string
	Key          string
	DeploymentID string
	Version      int
	Tenant       query.TenantFilter

	// LatestVersion restricts results to the latest version of each
	// (key, tenant) partition.
	LatestVersion bool

	// Suspended, when non-nil, filters on suspension state.
	Suspended *bool
}

func (q DefinitionQuery) filter() query.Predicate {
	var version, suspended query.Predicate
	if q.Version > 0 {
		version = query.Equals{Field: "version", Value: q.Version}
	}
	if q.Suspended != nil {
		suspended = query.Equals{Field: "suspended", Value: boolToInt(*q.Suspended)}
	}
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("key", q.Key),
		query.EqualsIfSet("deployment_id", q.DeploymentID),
		version,
		suspended,
		q.Tenant.Predicate(),
	)
}

func (q DefinitionQuery) from() string {
	if q.LatestVersion {
		return "latest_process_definitions"
	}
	return "process_definitions"
}

// InstanceQuery filters process instances.
type InstanceQuery struct {
	ID                   string
	ProcessDefinitionID  string
	ProcessDefinitionKey string
	Tenant               query.TenantFilter
}

func (q InstanceQuery) filter() query.Predicate {
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("process_definition_id", q.ProcessDefinitionID),
		query.EqualsIfSet("process_definition_key", q.ProcessDefinitionKey),
		q.Tenant.Predicate(),
	)
}

// ExecutionQuery filters executions.
type ExecutionQuery struct {
	ID                  string
	ProcessInstanceID   string
	ProcessDefinitionID string
	ParentID            string
	Tenant              query.TenantFilter
}

func (q ExecutionQuery) filter() query.Predicate {
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("process_instance_id", q.ProcessInstanceID),
		query.EqualsIfSet("process_definition_id", q.ProcessDefinitionID),
		query.EqualsIfSet("parent_id", q.ParentID),
		q.Tenant.Predicate(),
	)
}

// TaskQuery filters tasks.
type TaskQuery struct {
	ID                  string
	ProcessInstanceID   string
	ProcessDefinitionID string
	ExecutionID         string
	Tenant              query.TenantFilter
}

func (q TaskQuery) filter() query.Predicate {
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("process_instance_id", q.ProcessInstanceID),
		query.EqualsIfSet("process_definition_id", q.ProcessDefinitionID),
		query.EqualsIfSet("execution_id", q.ExecutionID),
		q.Tenant.Predicate(),
	)
}

// JobQuery filters jobs.
type JobQuery struct {
	ID                  string
	Type                string
	ProcessDefinitionID string
	ProcessInstanceID   string
	Tenant              query.TenantFilter

	// DueBefore, when non-zero, keeps jobs due at or before the given time.
	DueBefore time.Time
}

func (q JobQuery) filter() query.Predicate {
	var due query.Predicate
	if !q.DueBefore.IsZero() {
		due = query.LessOrEqual{Field: "due_date", Value: toNanos(q.DueBefore)}
	}
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("type", q.Type),
		query.EqualsIfSet("process_definition_id", q.ProcessDefinitionID),
		query.EqualsIfSet("process_instance_id", q.ProcessInstanceID),
		due,
		q.Tenant.Predicate(),
	)
}

// HistoryQuery filters any of the historic mirror tables.
type HistoryQuery struct {
	ProcessInstanceID   string
	ProcessDefinitionID string
	Tenant              query.TenantFilter
}

func (q HistoryQuery) filter(instanceColumn string) query.Predicate {
	return query.AllOf(
		query.EqualsIfSet(instanceColumn, q.ProcessInstanceID),
		query.EqualsIfSet("process_definition_id", q.ProcessDefinitionID),
		q.Tenant.Predicate(),
	)
}

// ModelQuery filters repository models.
type ModelQuery struct {
	ID           string
	Key          string
	DeploymentID string
	Tenant       query.TenantFilter
}

func (q ModelQuery) filter() query.Predicate {
	return query.AllOf(
		query.EqualsIfSet("id", q.ID),
		query.EqualsIfSet("key", q.Key),
		query.EqualsIfSet("deployment_id", q.DeploymentID),
		q.Tenant.Predicate(),
	)
}
