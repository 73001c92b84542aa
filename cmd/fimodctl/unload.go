package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unloadCmd = &cobra.Command{
	Use:   "unload <name>",
	Short: "Mark an instance unloadable and run a prune pass",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := registry.FindByName(args[0])
		if err != nil {
			return fmt.Errorf("fimodctl unload: %w", err)
		}
		inst.Info().MarkUnloadable()
		if err := registry.PruneInstances(); err != nil {
			return fmt.Errorf("fimodctl unload: prune: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], inst.Info().State())
		return nil
	},
}
