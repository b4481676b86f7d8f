package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// SaveModel creates or updates a repository model. A model linked to a
// deployment must have the deployment's tenant; it then follows the
// deployment through ChangeDeploymentTenantID.
func (e *Engine) SaveModel(ctx context.Context, m model.Model) (model.Model, error) {
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if m.DeploymentID != "" {
			dep, err := tx.Deployment(ctx, m.DeploymentID)
			if err != nil {
				return notFoundOr(err, "deployment", m.DeploymentID)
			}
			if dep.TenantID != m.TenantID {
				return &TenancyError{
					Code: ErrCodeTenantMismatch,
					Message: fmt.Sprintf("model tenant %q differs from deployment %s tenant %q",
						m.TenantID, dep.ID, dep.TenantID),
					Key:      m.Key,
					TenantID: m.TenantID,
				}
			}
		}

		if m.ID == "" {
			m.ID = e.ids.Generate()
		}
		m.Seq = e.seq.Next()
		return tx.SaveModel(ctx, m)
	})
	if err != nil {
		return model.Model{}, err
	}
	return m, nil
}
