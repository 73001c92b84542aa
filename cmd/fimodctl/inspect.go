package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Show one instance's metadata, resources, parameters and exports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := registry.FindByName(args[0])
		if err != nil {
			return fmt.Errorf("fimodctl inspect: %w", err)
		}
		info := inst.Info()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "name:        %s\n", info.Name)
		fmt.Fprintf(out, "description: %s\n", info.Description)
		fmt.Fprintf(out, "author:      %s\n", info.Author)
		fmt.Fprintf(out, "license:     %s\n", info.License)
		fmt.Fprintf(out, "state:       %s\n", info.State())
		fmt.Fprintf(out, "strong_refs: %d\n", info.StrongRefs())
		fmt.Fprintf(out, "handle_refs: %d\n", info.HandleRefs())

		if resources := inst.Resources(); len(resources) > 0 {
			fmt.Fprintln(out, "resources:")
			for _, r := range resources {
				fmt.Fprintf(out, "  - %s\n", r)
			}
		}
		if params := inst.ParameterNames(); len(params) > 0 {
			fmt.Fprintln(out, "parameters:")
			for _, p := range params {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		}
		if exports := inst.StaticExportSnapshot(); len(exports) > 0 {
			fmt.Fprintln(out, "static exports:")
			for _, e := range exports {
				fmt.Fprintf(out, "  - %s\n", e.Key)
			}
		}
		if keys := inst.DynamicExportKeys(); len(keys) > 0 {
			fmt.Fprintln(out, "dynamic exports:")
			for _, k := range keys {
				fmt.Fprintf(out, "  - %s\n", k)
			}
		}
		return nil
	},
}
