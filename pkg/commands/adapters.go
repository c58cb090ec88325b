package commands

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
)

func (c *cli) newAdaptersCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "List the datasource types compiled into this binary",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), output, datasource.RegisteredAdapters())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}
