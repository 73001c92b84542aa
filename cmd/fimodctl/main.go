// Command fimodctl is a small operator CLI over the module runtime: load
// manifests from a directory, list and inspect published instances, and
// unload one by name.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/fimod/config"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/module"
)

var (
	configPath string
	cfg        *config.Config
	registry   *module.Registry
)

var rootCmd = &cobra.Command{
	Use:   "fimodctl",
	Short: "fimodctl manages modules loaded into a fimod runtime",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		runtimeVersion, err := cfg.ParsedRuntimeVersion()
		if err != nil {
			return fmt.Errorf("fimodctl: config runtime_version: %w", err)
		}
		logger := fimolog.New(fimolog.Config{Level: cfg.ParsedLogLevel(), Component: "fimodctl", Output: os.Stderr, Colorize: true})
		registry = module.New(runtimeVersion, fimolog.NewLogSubscriber(logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fimodctl.yaml", "path to fimodctl's configuration file")
	rootCmd.AddCommand(loadCmd, listCmd, unloadCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
