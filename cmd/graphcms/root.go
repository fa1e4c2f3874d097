package main

import (
	"github.com/spf13/cobra"

	config "github.com/hanpama/graphcms/internal/config"
)

var (
	// Set via ldflags at build time
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type options struct {
	configPath string
}

func (o *options) load() (*config.Config, error) { return config.Load(o.configPath) }

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "graphcms",
		Short: "Content backend exposing one composed GraphQL endpoint",
		Long: `graphcms serves a GraphQL API composed at startup from the schema
fragments of its feature modules: keys, items, templates, users and files.

  graphcms serve          # run the service
  graphcms schema         # print the composed SDL
  graphcms config check   # validate the configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "graphcms.yaml", "config file path")

	root.AddCommand(
		newServeCmd(opts),
		newSchemaCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}
