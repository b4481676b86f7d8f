// Command tenantry is the admin CLI for tenant-aware process deployments.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tenantry/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
