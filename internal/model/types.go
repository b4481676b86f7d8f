package model

import "time"

// Resource is a named process resource inside a deployment.
type Resource struct {
	Name     string `json:"name"`
	Content  []byte `json:"-"`
	Checksum string `json:"checksum"`
}

// Deployment is a bundle of resources owned by at most one tenant.
type Deployment struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TenantID   string     `json:"tenant_id"`
	DeployedAt time.Time  `json:"deployed_at"`
	Resources  []Resource `json:"resources,omitempty"`
	Seq        int64      `json:"seq"`
}

// ProcessDefinition is a versioned process scoped to one TenantKey.
type ProcessDefinition struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	Name          string `json:"name"`
	Version       int    `json:"version"`
	DeploymentID  string `json:"deployment_id"`
	ResourceName  string `json:"resource_name"`
	TenantID      string `json:"tenant_id"`
	Suspended     bool   `json:"suspended"`
	HasTimerStart bool   `json:"has_timer_start"`
	Seq           int64  `json:"seq"`
}

// TenantKey returns the versioning partition of the definition.
func (d ProcessDefinition) TenantKey() TenantKey {
	return NewTenantKey(d.Key, d.TenantID)
}

// ProcessInstance is a running instance of a process definition.
//
// StepIndex is the position of the minimal stepper inside the process model.
type ProcessInstance struct {
	ID                   string    `json:"id"`
	ProcessDefinitionID  string    `json:"process_definition_id"`
	ProcessDefinitionKey string    `json:"process_definition_key"`
	BusinessKey          string    `json:"business_key,omitempty"`
	TenantID             string    `json:"tenant_id"`
	StepIndex            int       `json:"step_index"`
	StartedAt            time.Time `json:"started_at"`
	Seq                  int64     `json:"seq"`
}

// Execution is a path of execution inside a process instance.
// The root execution has an empty ParentID.
type Execution struct {
	ID                  string `json:"id"`
	ProcessInstanceID   string `json:"process_instance_id"`
	ParentID            string `json:"parent_id,omitempty"`
	ProcessDefinitionID string `json:"process_definition_id"`
	ActivityID          string `json:"activity_id,omitempty"`
	TenantID            string `json:"tenant_id"`
	Active              bool   `json:"active"`
	Seq                 int64  `json:"seq"`
}

// Task is a user task waiting for completion.
type Task struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	TaskDefinitionKey   string    `json:"task_definition_key"`
	ProcessInstanceID   string    `json:"process_instance_id"`
	ExecutionID         string    `json:"execution_id"`
	ProcessDefinitionID string    `json:"process_definition_id"`
	TenantID            string    `json:"tenant_id"`
	CreatedAt           time.Time `json:"created_at"`
	Seq                 int64     `json:"seq"`
}

// JobType distinguishes scheduled work.
type JobType string

const (
	// JobTimerStart starts a new instance of a definition when due.
	JobTimerStart JobType = "timer_start"

	// JobTimer resumes an instance waiting on an intermediate timer.
	JobTimer JobType = "timer"

	// JobAsync resumes an instance at an asynchronous continuation.
	JobAsync JobType = "async"
)

// ValidJobTypes defines allowed job types.
var ValidJobTypes = map[JobType]bool{
	JobTimerStart: true,
	JobTimer:      true,
	JobAsync:      true,
}

// Job is scheduled work. Definition-level jobs (timer start) have an empty
// ProcessInstanceID.
type Job struct {
	ID                  string    `json:"id"`
	Type                JobType   `json:"type"`
	ProcessDefinitionID string    `json:"process_definition_id"`
	ProcessInstanceID   string    `json:"process_instance_id,omitempty"`
	ExecutionID         string    `json:"execution_id,omitempty"`
	ActivityID          string    `json:"activity_id,omitempty"`
	TenantID            string    `json:"tenant_id"`
	DueDate             time.Time `json:"due_date"`
	Retries             int       `json:"retries"`
	Seq                 int64     `json:"seq"`
}

// Model is a repository model (editor artifact) owned by a tenant.
type Model struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Key          string `json:"key,omitempty"`
	Category     string `json:"category,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	TenantID     string `json:"tenant_id"`
	Seq          int64  `json:"seq"`
}
