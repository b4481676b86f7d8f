package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// SuspensionResult is the output of the suspend and activate commands.
type SuspensionResult struct {
	Key          string `json:"key,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	DefinitionID string `json:"definition_id,omitempty"`
	Suspended    bool   `json:"suspended"`
	Changed      int64  `json:"changed"`
}

func (r SuspensionResult) String() string {
	verb := "Activated"
	if r.Suspended {
		verb = "Suspended"
	}
	if r.DefinitionID != "" {
		return fmt.Sprintf("%s definition %s (%d changed)", verb, r.DefinitionID, r.Changed)
	}
	return fmt.Sprintf("%s %s (%d changed)", verb, r.Key, r.Changed)
}

// NewSuspendCommand creates the suspend command.
func NewSuspendCommand(rootOpts *RootOptions) *cobra.Command {
	return newSuspensionCommand(rootOpts, true)
}

// NewActivateCommand creates the activate command.
func NewActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return newSuspensionCommand(rootOpts, false)
}

func newSuspensionCommand(rootOpts *RootOptions, suspend bool) *cobra.Command {
	var tenantID, definitionID string

	use, short := "activate", "Activate process definitions"
	if suspend {
		use, short = "suspend", "Suspend process definitions"
	}

	cmd := &cobra.Command{
		Use:   use + " [<key>]",
		Short: short,
		Long: short + ` of one partition, or one definition with --definition-id.

Without --tenant the key must be deployed in exactly one partition;
otherwise the command fails with AMBIGUOUS_TENANT_SCOPE. Suspension only
blocks new starts of the partition: running instances continue.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			byID := definitionID != ""
			if byID == (len(args) == 1) {
				return f.Fail("invalid arguments", errors.New("give either a key or --definition-id"))
			}

			env, err := openEnv(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			e := env.engine
			res := SuspensionResult{Suspended: suspend, DefinitionID: definitionID}

			var n int64
			switch {
			case byID && suspend:
				n, err = e.SuspendByID(ctx, definitionID)
			case byID:
				n, err = e.ActivateByID(ctx, definitionID)
			case cmd.Flags().Changed("tenant"):
				res.Key, res.TenantID = args[0], tenantID
				if suspend {
					n, err = e.SuspendByKeyAndTenantID(ctx, args[0], tenantID)
				} else {
					n, err = e.ActivateByKeyAndTenantID(ctx, args[0], tenantID)
				}
			default:
				res.Key = args[0]
				if suspend {
					n, err = e.SuspendByKey(ctx, args[0])
				} else {
					n, err = e.ActivateByKey(ctx, args[0])
				}
			}
			if err != nil {
				return f.Fail(use+" failed", err)
			}
			res.Changed = n
			return f.Success(res)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "partition tenant (empty: no tenant)")
	cmd.Flags().StringVar(&definitionID, "definition-id", "", "a single definition version")

	return cmd
}
