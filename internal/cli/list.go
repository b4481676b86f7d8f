package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

// tenantFlags are the tenant filter flags shared by list commands.
type tenantFlags struct {
	tenant        string
	like          string
	withoutTenant bool
}

func (t *tenantFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.tenant, "tenant", "", "only this tenant")
	cmd.Flags().StringVar(&t.like, "tenant-like", "", "only tenants matching a LIKE pattern (e.g. 'acme%')")
	cmd.Flags().BoolVar(&t.withoutTenant, "without-tenant", false, "only entities without a tenant")
	cmd.MarkFlagsMutuallyExclusive("tenant", "tenant-like", "without-tenant")
}

func (t *tenantFlags) filter(cmd *cobra.Command) query.TenantFilter {
	switch {
	case cmd.Flags().Changed("tenant"):
		return query.Tenant(t.tenant)
	case t.like != "":
		return query.TenantLike(t.like)
	case t.withoutTenant:
		return query.WithoutTenant()
	default:
		return query.AnyTenant()
	}
}

// table renders rows as aligned columns.
type table struct {
	header []string
	rows   [][]string
}

func (t table) String() string {
	if len(t.rows) == 0 {
		return "(none)"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.header, "\t"))
	for _, r := range t.rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// tenantCell renders a tenant id for table output.
func tenantCell(tenantID string) string {
	if tenantID == model.NoTenant {
		return "-"
	}
	return tenantID
}

// listOutput writes rows as JSON data or as a text table.
func listOutput[T any](f *OutputFormatter, items []T, header []string, row func(T) []string) error {
	if f.Format == "json" {
		if items == nil {
			items = []T{}
		}
		return f.Success(items)
	}
	t := table{header: header}
	for _, it := range items {
		t.rows = append(t.rows, row(it))
	}
	return f.Success(t)
}

// NewDefinitionsCommand creates the definitions command.
func NewDefinitionsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		tf     tenantFlags
		key    string
		latest bool
	)

	cmd := &cobra.Command{
		Use:           "definitions",
		Short:         "List process definitions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			env, err := openEnv(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			defs, err := env.store.Definitions(cmd.Context(), store.DefinitionQuery{
				Key:           key,
				LatestVersion: latest,
				Tenant:        tf.filter(cmd),
			})
			if err != nil {
				return f.Fail("list definitions failed", err)
			}
			return listOutput(f, defs, []string{"ID", "KEY", "VERSION", "TENANT", "SUSPENDED", "DEPLOYMENT"},
				func(d model.ProcessDefinition) []string {
					return []string{d.ID, d.Key, fmt.Sprint(d.Version), tenantCell(d.TenantID), fmt.Sprint(d.Suspended), d.DeploymentID}
				})
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&key, "key", "", "only this definition key")
	cmd.Flags().BoolVar(&latest, "latest", false, "only the latest version of each (key, tenant) partition")

	return cmd
}

// NewInstancesCommand creates the instances command.
func NewInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		tf  tenantFlags
		key string
	)

	cmd := &cobra.Command{
		Use:           "instances",
		Short:         "List running process instances",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			env, err := openEnv(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			insts, err := env.store.Instances(cmd.Context(), store.InstanceQuery{
				ProcessDefinitionKey: key,
				Tenant:               tf.filter(cmd),
			})
			if err != nil {
				return f.Fail("list instances failed", err)
			}
			return listOutput(f, insts, []string{"ID", "DEFINITION", "TENANT", "STEP", "BUSINESS KEY"},
				func(i model.ProcessInstance) []string {
					return []string{i.ID, i.ProcessDefinitionID, tenantCell(i.TenantID), fmt.Sprint(i.StepIndex), i.BusinessKey}
				})
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&key, "key", "", "only instances of this definition key")
	cmd.AddCommand(newCancelInstanceCommand(rootOpts))

	return cmd
}

func newCancelInstanceCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "cancel <instance-id>",
		Short:         "Delete a running process instance",
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

			if err := env.engine.DeleteProcessInstance(cmd.Context(), args[0], reason); err != nil {
				return f.Fail("cancel failed", err)
			}
			return f.Success(fmt.Sprintf("Deleted process instance %s", args[0]))
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "delete reason recorded in history")

	return cmd
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		tf       tenantFlags
		instance string
	)

	cmd := &cobra.Command{
		Use:           "tasks",
		Short:         "List open user tasks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			env, err := openEnv(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			tasks, err := env.store.Tasks(cmd.Context(), store.TaskQuery{
				ProcessInstanceID: instance,
				Tenant:            tf.filter(cmd),
			})
			if err != nil {
				return f.Fail("list tasks failed", err)
			}
			return listOutput(f, tasks, []string{"ID", "NAME", "INSTANCE", "TENANT"},
				func(t model.Task) []string {
					return []string{t.ID, t.Name, t.ProcessInstanceID, tenantCell(t.TenantID)}
				})
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&instance, "instance", "", "only tasks of this process instance")

	return cmd
}
