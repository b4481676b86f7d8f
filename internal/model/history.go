package model

import "time"

// HistoryLevel controls how much the history mirror records.
type HistoryLevel string

const (
	// HistoryNone records nothing.
	HistoryNone HistoryLevel = "none"

	// HistoryActivity records process instances and activity instances.
	HistoryActivity HistoryLevel = "activity"

	// HistoryAudit additionally records task instances.
	HistoryAudit HistoryLevel = "audit"
)

// ValidHistoryLevels defines allowed history levels.
var ValidHistoryLevels = map[HistoryLevel]bool{
	HistoryNone:     true,
	HistoryActivity: true,
	HistoryAudit:    true,
}

// Records reports whether l records entries that need at least level min.
func (l HistoryLevel) Records(min HistoryLevel) bool {
	rank := map[HistoryLevel]int{HistoryNone: 0, HistoryActivity: 1, HistoryAudit: 2}
	return rank[l] >= rank[min] && min != HistoryNone
}

// HistoricProcessInstance is the archived form of a process instance.
type HistoricProcessInstance struct {
	ID                  string    `json:"id"`
	ProcessDefinitionID string    `json:"process_definition_id"`
	BusinessKey         string    `json:"business_key,omitempty"`
	TenantID            string    `json:"tenant_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	DeleteReason        string    `json:"delete_reason,omitempty"`
	Seq                 int64     `json:"seq"`
}

// HistoricTaskInstance is the archived form of a task.
type HistoricTaskInstance struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	TaskDefinitionKey   string    `json:"task_definition_key"`
	ProcessInstanceID   string    `json:"process_instance_id"`
	ProcessDefinitionID string    `json:"process_definition_id"`
	TenantID            string    `json:"tenant_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	DeleteReason        string    `json:"delete_reason,omitempty"`
	Seq                 int64     `json:"seq"`
}

// HistoricActivityInstance records one activity an instance passed through.
type HistoricActivityInstance struct {
	ID                  string    `json:"id"`
	ActivityID          string    `json:"activity_id"`
	ActivityType        string    `json:"activity_type"`
	ProcessInstanceID   string    `json:"process_instance_id"`
	ProcessDefinitionID string    `json:"process_definition_id"`
	TenantID            string    `json:"tenant_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	Seq                 int64     `json:"seq"`
}
