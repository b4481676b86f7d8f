package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/engine"
)

// ChangeTenantResult is the output of the change-tenant command.
type ChangeTenantResult struct {
	DeploymentID string           `json:"deployment_id"`
	FromTenantID string           `json:"from_tenant_id"`
	ToTenantID   string           `json:"to_tenant_id"`
	Rows         map[string]int64 `json:"rows,omitempty"`
	Total        int64            `json:"total"`
}

func newChangeTenantResult(c engine.TenantChange) ChangeTenantResult {
	return ChangeTenantResult{
		DeploymentID: c.DeploymentID,
		FromTenantID: c.FromTenantID,
		ToTenantID:   c.ToTenantID,
		Rows:         c.Rows,
		Total:        c.Total(),
	}
}

func (r ChangeTenantResult) String() string {
	if r.FromTenantID == r.ToTenantID {
		return fmt.Sprintf("Deployment %s already belongs to %s", r.DeploymentID, tenantText(r.ToTenantID))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Moved deployment %s from %s to %s (%d rows)",
		r.DeploymentID, tenantText(r.FromTenantID), tenantText(r.ToTenantID), r.Total)

	tables := make([]string, 0, len(r.Rows))
	for t := range r.Rows {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(&b, "\n  %-28s %d", t, r.Rows[t])
	}
	return b.String()
}

// NewChangeTenantCommand creates the change-tenant command.
func NewChangeTenantCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "change-tenant <deployment-id> --to <tenant>",
		Short: "Move a deployment and everything derived from it to another tenant",
		Long: `Move a deployment to another tenant in one transaction.

Definitions, models, instances, executions, tasks, jobs and history rows
descended from the deployment move with it. Versions are kept. The change is
rejected with TENANT_CLASH when the destination partition of any of the
deployment's keys already holds a definition from another deployment.

Use --to "" to move the deployment to no tenant.

Example:
  tenantry change-tenant dep-42 --to acme`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			env, err := openEnv(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			change, err := env.engine.ChangeDeploymentTenantID(cmd.Context(), args[0], to)
			if err != nil {
				return f.Fail("change tenant failed", err)
			}
			return f.Success(newChangeTenantResult(change))
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "destination tenant (empty: no tenant)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
