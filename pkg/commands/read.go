package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// sourceSummary is one line of `list` output.
type sourceSummary struct {
	DBName        string    `yaml:"db_name" json:"db_name"`
	TableName     string    `yaml:"table_name" json:"table_name"`
	DocumentCount int       `yaml:"document_count" json:"document_count"`
	Fields        int       `yaml:"fields" json:"fields"`
	ExtractedAt   time.Time `yaml:"extracted_at" json:"extracted_at"`
}

func summarize(p *models.SourceProfile) sourceSummary {
	return sourceSummary{
		DBName:        p.DBName,
		TableName:     p.TableName,
		DocumentCount: p.DocumentCount,
		Fields:        len(p.Fields),
		ExtractedAt:   p.ExtractedAt,
	}
}

func (c *cli) newListCommand() *cobra.Command {
	var (
		dbName string
		skip   int
		limit  int
		full   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if skip < 0 {
				return fmt.Errorf("%w: --skip must not be negative", apperrors.ErrInvalidConfig)
			}
			sources, err := c.app.reader.ListSources(cmd.Context(), dbName, skip, limit)
			if err != nil {
				return err
			}
			if full {
				return writeOutput(cmd.OutOrStdout(), output, sources)
			}

			summaries := make([]sourceSummary, 0, len(sources))
			for _, p := range sources {
				summaries = append(summaries, summarize(p))
			}
			return writeOutput(cmd.OutOrStdout(), output, summaries)
		},
	}
	cmd.Flags().StringVar(&dbName, "db", "", "only sources of this database")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of sources to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sources (0 for all)")
	cmd.Flags().BoolVar(&full, "full", false, "print complete records instead of summaries")
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}

func (c *cli) newCountCommand() *cobra.Command {
	var dbName string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count cataloged sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.reader.CountSources(cmd.Context(), dbName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().StringVar(&dbName, "db", "", "only sources of this database")
	return cmd
}

func (c *cli) newShowCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <db> <table>",
		Short: "Show one source with field statistics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := models.SourceIdentity{DBName: args[0], TableName: args[1]}
			detail, err := c.app.reader.GetSourceDetail(cmd.Context(), id)
			if err != nil {
				return err
			}
			if detail == nil {
				return fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound)
			}
			return writeOutput(cmd.OutOrStdout(), output, detail)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}
