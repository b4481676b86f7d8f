package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

// maxTenantChangeAttempts bounds retries when the deployment's tenant moves
// between reading it and locking its partitions.
const maxTenantChangeAttempts = 3

// errTenantMoved signals that the partitions locked for a tenant change are
// stale.
var errTenantMoved = errors.New("deployment tenant changed concurrently")

// TenantChange is the outcome of ChangeDeploymentTenantID.
type TenantChange struct {
	DeploymentID string
	FromTenantID string
	ToTenantID   string

	// Rows holds the number of rows rewritten per table. Empty when the
	// deployment already belonged to the target tenant.
	Rows map[string]int64
}

// Unchanged reports whether the change was a no-op.
func (c TenantChange) Unchanged() bool {
	return c.FromTenantID == c.ToTenantID
}

// Total returns the number of rows rewritten across all tables.
func (c TenantChange) Total() int64 {
	var n int64
	for _, v := range c.Rows {
		n += v
	}
	return n
}

// changeset is the unit of work of a tenant change: every table rewrite is
// collected first and applied inside a single transaction, so the change
// is all-or-nothing.
type changeset struct {
	deploymentID string
	tenantID     string
	tables       []string
}

func newTenantChangeset(deploymentID, tenantID string) *changeset {
	return &changeset{deploymentID: deploymentID, tenantID: tenantID}
}

// touch adds a table to the changeset.
func (c *changeset) touch(table string) *changeset {
	c.tables = append(c.tables, table)
	return c
}

// apply performs every rewrite and returns the rows changed per table.
func (c *changeset) apply(ctx context.Context, tx *store.Tx) (map[string]int64, error) {
	rows := make(map[string]int64, len(c.tables))
	for _, table := range c.tables {
		n, err := tx.ReassignDeploymentTenant(ctx, table, c.deploymentID, c.tenantID)
		if err != nil {
			return nil, err
		}
		rows[table] = n
	}
	return rows, nil
}

// ChangeDeploymentTenantID moves a deployment to newTenantID together with
// its definitions, models, and every instance, execution, task, job and
// history row descended from its definitions.
//
// Definitions keep their version numbers. If the destination partition of
// any of the deployment's keys already holds a definition from another
// deployment, the change fails with TENANT_CLASH and nothing is written.
func (e *Engine) ChangeDeploymentTenantID(ctx context.Context, deploymentID, newTenantID string) (TenantChange, error) {
	for attempt := 1; ; attempt++ {
		change, err := e.changeTenantOnce(ctx, deploymentID, newTenantID)
		if errors.Is(err, errTenantMoved) && attempt < maxTenantChangeAttempts {
			continue
		}
		if err != nil {
			if IsTenantClash(err) {
				e.metrics.TenantClashesTotal.Inc()
			}
			return TenantChange{}, err
		}

		if !change.Unchanged() {
			e.metrics.TenantChangesTotal.Inc()
			e.logger.Info("deployment tenant changed",
				zap.String("deployment_id", deploymentID),
				zap.String("from_tenant_id", change.FromTenantID),
				zap.String("tenant_id", change.ToTenantID),
				zap.Int64("rows", change.Total()),
			)
		}
		return change, nil
	}
}

func (e *Engine) changeTenantOnce(ctx context.Context, deploymentID, newTenantID string) (TenantChange, error) {
	dep, err := e.store.Deployment(ctx, deploymentID)
	if err != nil {
		return TenantChange{}, notFoundOr(err, "deployment", deploymentID)
	}
	defs, err := e.store.Definitions(ctx, store.DefinitionQuery{DeploymentID: deploymentID})
	if err != nil {
		return TenantChange{}, fmt.Errorf("change tenant: %w", err)
	}

	// Lock every source and destination partition before the transaction.
	keys := make([]model.TenantKey, 0, 2*len(defs))
	for _, d := range defs {
		keys = append(keys, d.TenantKey(), model.NewTenantKey(d.Key, newTenantID))
	}
	unlock := e.locks.lock(keys...)
	defer unlock()

	change := TenantChange{
		DeploymentID: deploymentID,
		FromTenantID: dep.TenantID,
		ToTenantID:   newTenantID,
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		current, err := tx.Deployment(ctx, deploymentID)
		if err != nil {
			return notFoundOr(err, "deployment", deploymentID)
		}
		if current.TenantID != dep.TenantID {
			return errTenantMoved
		}
		if current.TenantID == newTenantID {
			return nil
		}

		for _, d := range defs {
			if err := checkDestination(ctx, tx, d, newTenantID); err != nil {
				return err
			}
		}

		cs := newTenantChangeset(deploymentID, newTenantID)
		for _, table := range store.TenantTables {
			cs.touch(table)
		}
		rows, err := cs.apply(ctx, tx)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return &TenancyError{
					Code:     ErrCodeTenantClash,
					Message:  "destination partition already holds a definition version of this deployment",
					TenantID: newTenantID,
					Details:  map[string]string{"deployment_id": deploymentID},
				}
			}
			return err
		}
		change.Rows = rows
		return nil
	})
	if err != nil {
		return TenantChange{}, err
	}
	return change, nil
}

// checkDestination fails with TENANT_CLASH when the destination partition of
// d already holds the key from a different deployment.
func checkDestination(ctx context.Context, tx *store.Tx, d model.ProcessDefinition, newTenantID string) error {
	dest := model.NewTenantKey(d.Key, newTenantID)
	existing, err := tx.Definitions(ctx, store.DefinitionQuery{
		Key:    d.Key,
		Tenant: query.Tenant(newTenantID),
	})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.DeploymentID == d.DeploymentID {
			continue
		}
		return &TenancyError{
			Code: ErrCodeTenantClash,
			Message: fmt.Sprintf("partition %s already holds version %d from deployment %s",
				dest, other.Version, other.DeploymentID),
			Key:      d.Key,
			TenantID: newTenantID,
			Details: map[string]string{
				"definition_id":          d.ID,
				"version":                fmt.Sprint(d.Version),
				"clashing_definition_id": other.ID,
				"clashing_version":       fmt.Sprint(other.Version),
			},
		}
	}
	return nil
}
