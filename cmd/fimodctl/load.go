package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/fimod/internal/modfile"
	"github.com/nmxmxh/fimod/internal/module"
)

var loadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Load every *.fimo_module manifest in a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := firstModulePath(args)
		src := modfile.NewDirSource(dir)
		set := module.NewSet(registry)
		if err := set.AddFromSource(nil, src, nil); err != nil {
			return fmt.Errorf("fimodctl load: %w", err)
		}

		result := set.Commit(context.Background()).Wait()
		for _, name := range result.Published {
			fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", name)
		}
		for name, err := range result.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: %v\n", name, err)
		}
		return nil
	},
}

func firstModulePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if len(cfg.ModulePaths) > 0 {
		return cfg.ModulePaths[0]
	}
	return "."
}
