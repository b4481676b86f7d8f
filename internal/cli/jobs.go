package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and execute jobs",
	}

	cmd.AddCommand(newJobsListCommand(rootOpts))
	cmd.AddCommand(newJobsExecuteCommand(rootOpts))
	cmd.AddCommand(newJobsRunDueCommand(rootOpts))

	return cmd
}

func newJobsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		tf      tenantFlags
		jobType string
		due     bool
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List jobs",
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

			q := store.JobQuery{Type: jobType, Tenant: tf.filter(cmd)}
			if due {
				q.DueBefore = time.Now()
			}
			jobs, err := env.store.Jobs(cmd.Context(), q)
			if err != nil {
				return f.Fail("list jobs failed", err)
			}
			return listOutput(f, jobs, []string{"ID", "TYPE", "TENANT", "DUE", "INSTANCE", "DEFINITION"},
				func(j model.Job) []string {
					return []string{j.ID, string(j.Type), tenantCell(j.TenantID), j.DueDate.Format(time.RFC3339), j.ProcessInstanceID, j.ProcessDefinitionID}
				})
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&jobType, "type", "", "only jobs of this type (timer_start|timer|async)")
	cmd.Flags().BoolVar(&due, "due", false, "only jobs due now")

	return cmd
}

func newJobsExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "execute <job-id>",
		Short:         "Execute one job now, regardless of its due date",
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

			p, err := env.engine.ExecuteJob(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("job failed", err)
			}
			return f.Success(newProgressResult(p))
		},
	}
}

// RunDueResult is the output of the jobs run-due command.
type RunDueResult struct {
	Due      int `json:"due"`
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
}

func (r RunDueResult) String() string {
	return fmt.Sprintf("%d due, %d executed, %d failed", r.Due, r.Executed, r.Failed)
}

func newJobsRunDueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Execute every job that is due",
		Long: `Execute every job due now once, on the configured number of workers.

Failing jobs are reported and left in place; the command then exits 1.`,
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

			res, runErr := env.engine.RunDueJobs(cmd.Context(), time.Now())
			out := RunDueResult{Due: res.Due, Executed: res.Executed, Failed: res.Failed}
			if runErr != nil {
				f.VerboseLog("job failures: %v", runErr)
				if err := f.Success(out); err != nil {
					return err
				}
				return WrapExitError(ExitFailure, "some jobs failed", runErr)
			}
			return f.Success(out)
		},
	}
}
