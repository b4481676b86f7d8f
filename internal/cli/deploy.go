package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/engine"
	"github.com/roach88/tenantry/internal/model"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Name               string
	TenantID           string
	DuplicateFiltering bool
}

// DeployResult is the output of the deploy command.
type DeployResult struct {
	Deployment  model.Deployment          `json:"deployment"`
	Definitions []model.ProcessDefinition `json:"definitions"`
	Duplicate   bool                      `json:"duplicate"`
}

func (r DeployResult) String() string {
	var b strings.Builder
	if r.Duplicate {
		fmt.Fprintf(&b, "Deployment %s unchanged (duplicate filtered)", r.Deployment.ID)
		return b.String()
	}
	fmt.Fprintf(&b, "Deployed %s (%s) to %s", r.Deployment.ID, r.Deployment.Name, tenantText(r.Deployment.TenantID))
	for _, d := range r.Definitions {
		fmt.Fprintf(&b, "\n  %s version %d  [%s]", d.Key, d.Version, d.ID)
	}
	return b.String()
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <resource>...",
		Short: "Deploy process resources for a tenant",
		Long: `Deploy one or more resources as a single deployment.

Process resources (.yaml, .yml, .cue) are compiled into definitions. Every
definition is versioned within its own (key, tenant) partition: deploying
key "invoice" for tenant A never bumps the version seen by tenant B.

Example:
  tenantry deploy --tenant acme --name billing invoice.yaml reminder.cue
  tenantry deploy --duplicate-filtering invoice.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "deployment name (default: first resource name)")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant owning the deployment (empty: no tenant)")
	cmd.Flags().BoolVar(&opts.DuplicateFiltering, "duplicate-filtering", false, "skip if the tenant's latest deployment with this name is identical")

	return cmd
}

func runDeploy(opts *DeployOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	resources, err := readResources(paths)
	if err != nil {
		return f.Fail("failed to read resources", err)
	}
	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(resources[0].Name, filepath.Ext(resources[0].Name))
	}

	env, err := openEnv(cmd.Context(), opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	f.VerboseLog("Deploying %d resource(s) as %q to %s", len(resources), name, tenantText(opts.TenantID))
	out, err := env.engine.Deploy(cmd.Context(), engine.DeploymentRequest{
		Name:               name,
		TenantID:           opts.TenantID,
		Resources:          resources,
		DuplicateFiltering: opts.DuplicateFiltering,
	})
	if err != nil {
		return f.Fail("deploy failed", err)
	}

	return f.Success(DeployResult{
		Deployment:  out.Deployment,
		Definitions: out.Definitions,
		Duplicate:   out.Duplicate,
	})
}

// readResources loads resource files, named by their base name.
func readResources(paths []string) ([]model.Resource, error) {
	resources := make([]model.Resource, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		resources = append(resources, model.Resource{Name: filepath.Base(p), Content: data})
	}
	return resources, nil
}

// tenantText renders a tenant id for text output.
func tenantText(tenantID string) string {
	if tenantID == model.NoTenant {
		return "no tenant"
	}
	return "tenant " + tenantID
}
