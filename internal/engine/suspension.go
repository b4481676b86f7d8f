package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// SuspendByKey suspends every version of key. The key must be deployed in
// exactly one partition; otherwise the call fails with
// AMBIGUOUS_TENANT_SCOPE and the caller must name the tenant.
//
// Returns the number of definitions whose state changed. Suspending an
// already suspended partition changes nothing.
func (e *Engine) SuspendByKey(ctx context.Context, key string) (int64, error) {
	return e.setSuspendedByKey(ctx, key, nil, true)
}

// SuspendByKeyAndTenantID suspends every version in one partition. Starts in
// other partitions of the same key are unaffected.
func (e *Engine) SuspendByKeyAndTenantID(ctx context.Context, key, tenantID string) (int64, error) {
	return e.setSuspendedByKey(ctx, key, &tenantID, true)
}

// ActivateByKey reverses SuspendByKey, with the same scope rules.
func (e *Engine) ActivateByKey(ctx context.Context, key string) (int64, error) {
	return e.setSuspendedByKey(ctx, key, nil, false)
}

// ActivateByKeyAndTenantID reverses SuspendByKeyAndTenantID.
func (e *Engine) ActivateByKeyAndTenantID(ctx context.Context, key, tenantID string) (int64, error) {
	return e.setSuspendedByKey(ctx, key, &tenantID, false)
}

// SuspendByID suspends a single definition version.
func (e *Engine) SuspendByID(ctx context.Context, definitionID string) (int64, error) {
	return e.setSuspendedByID(ctx, definitionID, true)
}

// ActivateByID activates a single definition version.
func (e *Engine) ActivateByID(ctx context.Context, definitionID string) (int64, error) {
	return e.setSuspendedByID(ctx, definitionID, false)
}

func (e *Engine) setSuspendedByKey(ctx context.Context, key string, tenantID *string, suspended bool) (int64, error) {
	var (
		changed int64
		target  model.TenantKey
	)

	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if tenantID != nil {
			target = model.NewTenantKey(key, *tenantID)
			v, err := tx.MaxVersion(ctx, target)
			if err != nil {
				return err
			}
			if v == 0 {
				return &TenancyError{
					Code:     ErrCodePartitionNotFound,
					Message:  fmt.Sprintf("no process definition deployed for %s", target),
					Key:      key,
					TenantID: *tenantID,
				}
			}
		} else {
			tenants, err := tx.DefinitionTenants(ctx, key)
			if err != nil {
				return err
			}
			switch len(tenants) {
			case 0:
				return &TenancyError{
					Code:    ErrCodePartitionNotFound,
					Message: "no process definition deployed for key",
					Key:     key,
				}
			case 1:
				target = model.NewTenantKey(key, tenants[0])
			default:
				return &TenancyError{
					Code:    ErrCodeAmbiguousScope,
					Message: fmt.Sprintf("key is deployed in %d partitions, a tenant id is required", len(tenants)),
					Key:     key,
					Details: map[string]string{"tenants": fmt.Sprint(tenants)},
				}
			}
		}

		var err error
		changed, err = tx.SetPartitionSuspended(ctx, target, suspended)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("partition suspension updated",
		zap.String("key", target.DefinitionKey),
		zap.String("tenant_id", target.TenantID),
		zap.Bool("suspended", suspended),
		zap.Int64("changed", changed),
	)
	return changed, nil
}

func (e *Engine) setSuspendedByID(ctx context.Context, definitionID string, suspended bool) (int64, error) {
	var changed int64
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.Definition(ctx, definitionID); err != nil {
			return notFoundOr(err, "process definition", definitionID)
		}
		var err error
		changed, err = tx.SetDefinitionSuspended(ctx, definitionID, suspended)
		return err
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
