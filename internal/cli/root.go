package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tenantry/internal/config"
	"github.com/roach88/tenantry/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // path to the YAML config file
	Database string // overrides store.path

	// cfg is the loaded configuration, set before any subcommand runs.
	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tenantry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "tenantry",
		Version: model.EngineVersion,
		Short:   "Tenant-aware process deployment and runtime",
		Long: `tenantry deploys versioned process definitions into per-tenant partitions
and runs their instances, tasks and jobs without ever crossing tenants.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadConfig()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewUndeployCommand(opts))
	cmd.AddCommand(NewChangeTenantCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewSuspendCommand(opts))
	cmd.AddCommand(NewActivateCommand(opts))
	cmd.AddCommand(NewDefinitionsCommand(opts))
	cmd.AddCommand(NewInstancesCommand(opts))
	cmd.AddCommand(NewTasksCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))

	return cmd
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func (o *RootOptions) loadConfig() error {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.LoadConfig(o.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	o.cfg = cfg
	return nil
}

// settings returns the loaded configuration, loading it on first use for
// subcommands executed without the root command.
func (o *RootOptions) settings() (*config.Config, error) {
	if o.cfg == nil {
		if err := o.loadConfig(); err != nil {
			return nil, err
		}
	}
	return o.cfg, nil
}

// formatter returns an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
