package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// DefaultJobRetries is the retry budget of a new job. Every failed
// execution spends one retry; job passes skip jobs with none left.
const DefaultJobRetries = 3

// jobSources are the entities a new job may inherit its tenant from.
// A nil source is absent.
type jobSources struct {
	// parent is the job being executed when the new job is created.
	parent *model.Job

	// instance is the instance the job belongs to (instance-scoped jobs).
	instance *model.ProcessInstance

	// definition is the definition the job belongs to (timer starts).
	definition *model.ProcessDefinition
}

// tenant resolves the tenant of a new job.
//
// Precedence is parent job, then instance, then definition. Every present
// source must agree; a disagreement is TENANT_MISMATCH and no source at all is
// MISSING_TENANT_SOURCE. The tenant is never guessed.
func (s jobSources) tenant() (string, error) {
	type source struct {
		kind, id, tenantID string
	}
	var present []source
	if s.parent != nil {
		present = append(present, source{"job", s.parent.ID, s.parent.TenantID})
	}
	if s.instance != nil {
		present = append(present, source{"process instance", s.instance.ID, s.instance.TenantID})
	}
	if s.definition != nil {
		present = append(present, source{"process definition", s.definition.ID, s.definition.TenantID})
	}

	if len(present) == 0 {
		return "", &TenancyError{
			Code:    ErrCodeMissingTenantSource,
			Message: "job has no parent job, instance or definition to inherit a tenant from",
		}
	}

	chosen := present[0]
	for _, other := range present[1:] {
		if other.tenantID != chosen.tenantID {
			return "", &TenancyError{
				Code: ErrCodeTenantMismatch,
				Message: fmt.Sprintf("%s %s has tenant %q but %s %s has tenant %q",
					chosen.kind, chosen.id, chosen.tenantID, other.kind, other.id, other.tenantID),
				TenantID: chosen.tenantID,
			}
		}
	}
	return chosen.tenantID, nil
}

// jobTarget is where a new job points.
type jobTarget struct {
	definitionID string
	instanceID   string
	executionID  string
	activityID   string
	due          time.Time
}

// createJob writes a job whose tenant is bound from sources, inside the
// transaction that triggered it.
func (e *Engine) createJob(ctx context.Context, tx *store.Tx, jobType model.JobType, sources jobSources, target jobTarget) (model.Job, error) {
	tenantID, err := sources.tenant()
	if err != nil {
		return model.Job{}, err
	}

	job := model.Job{
		ID:                  e.ids.Generate(),
		Type:                jobType,
		ProcessDefinitionID: target.definitionID,
		ProcessInstanceID:   target.instanceID,
		ExecutionID:         target.executionID,
		ActivityID:          target.activityID,
		TenantID:            tenantID,
		DueDate:             target.due,
		Retries:             DefaultJobRetries,
		Seq:                 e.seq.Next(),
	}
	if err := tx.InsertJob(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}
