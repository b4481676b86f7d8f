package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/engine"
	"github.com/roach88/tenantry/internal/model"
)

// ProgressResult is the output of commands that move an instance.
type ProgressResult struct {
	Instance model.ProcessInstance `json:"instance"`
	Tasks    []model.Task          `json:"tasks,omitempty"`
	Jobs     []model.Job           `json:"jobs,omitempty"`
	Ended    bool                  `json:"ended"`
}

func newProgressResult(p engine.Progress) ProgressResult {
	return ProgressResult{Instance: p.Instance, Tasks: p.Tasks, Jobs: p.Jobs, Ended: p.Ended}
}

func (r ProgressResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instance %s of %s (%s)", r.Instance.ID, r.Instance.ProcessDefinitionID, tenantText(r.Instance.TenantID))
	if r.Ended {
		b.WriteString(" ended")
	}
	for _, t := range r.Tasks {
		fmt.Fprintf(&b, "\n  task %s %q", t.ID, t.Name)
	}
	for _, j := range r.Jobs {
		fmt.Fprintf(&b, "\n  job %s %s due %s", j.ID, j.Type, j.DueDate.Format("2006-01-02T15:04:05Z07:00"))
	}
	return b.String()
}

// StartOptions holds flags for the start command.
type StartOptions struct {
	*RootOptions
	TenantID     string
	DefinitionID string
	BusinessKey  string
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "start [<key>]",
		Short: "Start a process instance",
		Long: `Start a process instance of the latest version of a key, or of an exact
definition with --definition-id.

Without --tenant only definitions deployed without a tenant are considered.
If the key exists only in tenant partitions the start fails with
AMBIGUOUS_TENANT_SCOPE; repeat it with --tenant.

Example:
  tenantry start invoice --tenant acme
  tenantry start --definition-id invoice:3:7`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "start in this tenant's partition")
	cmd.Flags().StringVar(&opts.DefinitionID, "definition-id", "", "start this exact definition")
	cmd.Flags().StringVar(&opts.BusinessKey, "business-key", "", "business key of the new instance")

	return cmd
}

func runStart(opts *StartOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	byID := opts.DefinitionID != ""
	if byID == (len(args) == 1) {
		return f.Fail("invalid arguments", errors.New("give either a key or --definition-id"))
	}
	if byID && cmd.Flags().Changed("tenant") {
		return f.Fail("invalid arguments", errors.New("--tenant cannot be combined with --definition-id"))
	}

	env, err := openEnv(cmd.Context(), opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	startOpts := []engine.StartOption{engine.WithBusinessKey(opts.BusinessKey)}

	var p engine.Progress
	switch {
	case byID:
		p, err = env.engine.StartByDefinitionID(ctx, opts.DefinitionID, startOpts...)
	case cmd.Flags().Changed("tenant"):
		p, err = env.engine.StartByKeyAndTenantID(ctx, args[0], opts.TenantID, startOpts...)
	default:
		p, err = env.engine.StartByKey(ctx, args[0], startOpts...)
	}
	if err != nil {
		return f.Fail("start failed", err)
	}
	return f.Success(newProgressResult(p))
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "complete <task-id>",
		Short:         "Complete a user task",
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

			p, err := env.engine.CompleteTask(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("complete failed", err)
			}
			return f.Success(newProgressResult(p))
		},
	}
}
