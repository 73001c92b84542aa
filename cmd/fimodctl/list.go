package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every published instance and its lifecycle state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range registry.InstanceNames() {
			inst, err := registry.FindByName(name)
			if err != nil {
				continue
			}
			info := inst.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-18s strong=%d handles=%d\n",
				info.Name, info.State(), info.StrongRefs(), info.HandleRefs())
		}
		return nil
	},
}
