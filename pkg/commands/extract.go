package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

func (c *cli) newExtractCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <datasource> [collection...]",
		Short: "Sample a datasource and write its profiles to the catalog",
		Long: `Samples the named collections of a datasource, or every configured (or
discovered) collection when none are named, and writes one record per collection.
Descriptions and enrichment status already present in the records are kept.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extraction, err := c.app.extractionService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			var (
				results []*services.ExtractionResult
				errs    []error
			)
			if len(args) == 1 {
				results, err = extraction.ExtractDatasource(ctx, name)
				errs = append(errs, err)
			} else {
				for _, collection := range args[1:] {
					result, err := extraction.ExtractSource(ctx, name, collection)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					results = append(results, result)
				}
			}

			if len(results) > 0 {
				if err := writeOutput(cmd.OutOrStdout(), output, results); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}
