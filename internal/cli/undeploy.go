package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// UndeployResult is the output of the undeploy command.
type UndeployResult struct {
	DeploymentID string `json:"deployment_id"`
	Cascade      bool   `json:"cascade"`
}

func (r UndeployResult) String() string {
	if r.Cascade {
		return fmt.Sprintf("Deleted deployment %s with its instances and history", r.DeploymentID)
	}
	return fmt.Sprintf("Deleted deployment %s", r.DeploymentID)
}

// NewUndeployCommand creates the undeploy command.
func NewUndeployCommand(rootOpts *RootOptions) *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "undeploy <deployment-id>",
		Short: "Delete a deployment",
		Long: `Delete a deployment and its definitions.

Without --cascade the deployment must have no running instances and its
history is kept. With --cascade running instances and history are deleted
too.`,
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

			if err := env.engine.DeleteDeployment(cmd.Context(), args[0], cascade); err != nil {
				return f.Fail("undeploy failed", err)
			}
			return f.Success(UndeployResult{DeploymentID: args[0], Cascade: cascade})
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also delete running instances and history")

	return cmd
}
