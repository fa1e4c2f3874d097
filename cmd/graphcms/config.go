package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration valid")
			fmt.Fprintf(out, "  Listen:  %s%s\n", cfg.Server.Listen, cfg.Server.Path)
			fmt.Fprintf(out, "  Storage: %s (%s)\n", cfg.Storage.Driver, cfg.Storage.Path)
			fmt.Fprintf(out, "  Objects: %s\n", cfg.Objects.Driver)
			return nil
		},
	})
	return cmd
}
