package main

import (
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/hanpama/graphcms/internal/app"
)

func newSchemaCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the composed SDL document",
		Long:  "Register every module against a fresh registry, compose it and print the SDL. A composition error exits non-zero.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			doc, err := app.Document(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
			return err
		},
	}
}
