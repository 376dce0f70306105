package main

import "github.com/spf13/cobra"

// newRootCommand builds the modvcs root command. The tool wires a single
// "resolve" subcommand today; a bare config-dump or cache-prune command
// would live here alongside it if the engine grows one.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modvcs",
		Short:         "Resolve Go module dependencies to verified upstream commits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newResolveCommand())
	return cmd
}
