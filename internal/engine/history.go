package engine

import (
	"context"
	"time"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// Delete reasons recorded on archived entities.
const (
	ReasonCompleted = "completed"
	ReasonDeleted   = "deleted"
)

// History mirror. Every archived row copies its tenant verbatim from the
// live entity at archival time; the mirror never resolves a tenant itself.
//
// Levels:
//   - activity: process instances and activity instances
//   - audit: additionally task instances
//   - none: nothing

// recordActivity writes an activity instance. A zero end leaves it open
// until endActivity closes it.
func (e *Engine) recordActivity(ctx context.Context, tx *store.Tx, inst model.ProcessInstance, activityID, activityType string, start, end time.Time) error {
	if !e.history.Records(model.HistoryActivity) {
		return nil
	}
	return tx.InsertHistoricActivity(ctx, model.HistoricActivityInstance{
		ID:                  e.ids.Generate(),
		ActivityID:          activityID,
		ActivityType:        activityType,
		ProcessInstanceID:   inst.ID,
		ProcessDefinitionID: inst.ProcessDefinitionID,
		TenantID:            inst.TenantID,
		StartTime:           start,
		EndTime:             end,
		Seq:                 e.seq.Next(),
	})
}

// endActivity closes the open activity instances of activityID.
func (e *Engine) endActivity(ctx context.Context, tx *store.Tx, inst model.ProcessInstance, activityID string, end time.Time) error {
	if !e.history.Records(model.HistoryActivity) {
		return nil
	}
	_, err := tx.EndHistoricActivity(ctx, inst.ID, activityID, end)
	return err
}

// archiveTask writes the historic form of a task that is completed or
// deleted.
func (e *Engine) archiveTask(ctx context.Context, tx *store.Tx, t model.Task, end time.Time, reason string) error {
	if !e.history.Records(model.HistoryAudit) {
		return nil
	}
	return tx.InsertHistoricTask(ctx, model.HistoricTaskInstance{
		ID:                  t.ID,
		Name:                t.Name,
		TaskDefinitionKey:   t.TaskDefinitionKey,
		ProcessInstanceID:   t.ProcessInstanceID,
		ProcessDefinitionID: t.ProcessDefinitionID,
		TenantID:            t.TenantID,
		StartTime:           t.CreatedAt,
		EndTime:             end,
		DeleteReason:        reason,
		Seq:                 e.seq.Next(),
	})
}

// archiveInstance writes the historic form of an instance that ended and
// closes its open activity instances.
func (e *Engine) archiveInstance(ctx context.Context, tx *store.Tx, inst model.ProcessInstance, end time.Time, reason string) error {
	if !e.history.Records(model.HistoryActivity) {
		return nil
	}
	if err := tx.EndOpenHistoricActivities(ctx, inst.ID, end); err != nil {
		return err
	}
	return tx.InsertHistoricInstance(ctx, model.HistoricProcessInstance{
		ID:                  inst.ID,
		ProcessDefinitionID: inst.ProcessDefinitionID,
		BusinessKey:         inst.BusinessKey,
		TenantID:            inst.TenantID,
		StartTime:           inst.StartedAt,
		EndTime:             end,
		DeleteReason:        reason,
		Seq:                 e.seq.Next(),
	})
}
