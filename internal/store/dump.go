package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tenantry/internal/model"
)

// Snapshot is the full content of a store in deterministic order.
type Snapshot struct {
	Deployments        []model.Deployment               `json:"deployments"`
	Definitions        []model.ProcessDefinition        `json:"process_definitions"`
	Instances          []model.ProcessInstance          `json:"process_instances"`
	Executions         []model.Execution                `json:"executions"`
	Tasks              []model.Task                     `json:"tasks"`
	Jobs               []model.Job                      `json:"jobs"`
	HistoricInstances  []model.HistoricProcessInstance  `json:"historic_process_instances"`
	HistoricTasks      []model.HistoricTaskInstance     `json:"historic_task_instances"`
	HistoricActivities []model.HistoricActivityInstance `json:"historic_activity_instances"`
	Models             []model.Model                    `json:"models"`
}

// Snapshot reads every table. Deployments include their resources.
func (r reader) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Deployments, err = r.Deployments(ctx, DeploymentQuery{}); err != nil {
		return snap, err
	}
	for i := range snap.Deployments {
		if snap.Deployments[i].Resources, err = r.Resources(ctx, snap.Deployments[i].ID); err != nil {
			return snap, err
		}
	}
	if snap.Definitions, err = r.Definitions(ctx, DefinitionQuery{}); err != nil {
		return snap, err
	}
	if snap.Instances, err = r.Instances(ctx, InstanceQuery{}); err != nil {
		return snap, err
	}
	if snap.Executions, err = r.Executions(ctx, ExecutionQuery{}); err != nil {
		return snap, err
	}
	if snap.Tasks, err = r.Tasks(ctx, TaskQuery{}); err != nil {
		return snap, err
	}
	if snap.Jobs, err = r.Jobs(ctx, JobQuery{}); err != nil {
		return snap, err
	}
	if snap.HistoricInstances, err = r.HistoricProcessInstances(ctx, HistoryQuery{}); err != nil {
		return snap, err
	}
	if snap.HistoricTasks, err = r.HistoricTaskInstances(ctx, HistoryQuery{}); err != nil {
		return snap, err
	}
	if snap.HistoricActivities, err = r.HistoricActivityInstances(ctx, HistoryQuery{}); err != nil {
		return snap, err
	}
	if snap.Models, err = r.Models(ctx, ModelQuery{}); err != nil {
		return snap, err
	}
	return snap, nil
}

// Dump renders the whole store as indented JSON. Two stores with the same
// content produce identical bytes, so callers can compare dumps to prove
// that a failed operation left no trace.
func (r reader) Dump(ctx context.Context) ([]byte, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}
	return out, nil
}
