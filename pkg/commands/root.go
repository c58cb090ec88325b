// Package commands implements the ekaya-catalog command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
)

// cli carries flags and the lazily built app between cobra hooks and commands.
type cli struct {
	version    string
	configPath string
	app        *app
}

// Execute runs the command line with os.Args.
func Execute(version string) error {
	c := &cli{version: version}
	defer c.close()
	return newRootCommand(c).Execute()
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ekaya-catalog",
		Short: "Catalog the schema of document and table stores",
		Long: `ekaya-catalog samples collections from configured datasources, infers the type,
presence and cardinality of every field, and keeps the results as hand-editable YAML
records. Descriptions added to those records survive re-extraction.`,
		Version:      c.version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(c.configPath, c.version)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "path to the config file")

	root.AddCommand(
		c.newExtractCommand(),
		c.newListCommand(),
		c.newCountCommand(),
		c.newShowCommand(),
		c.newServeCommand(),
		c.newAdaptersCommand(),
	)
	return root
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
	}
}
