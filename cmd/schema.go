package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/fetcher"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
	"github.com/sells-group/bi-agent/internal/sanitize"
	"github.com/sells-group/bi-agent/internal/source"
)

var (
	schemaCollection string
	schemaSheet      string
	schemaSkipRows   int
)

var schemaCmd = &cobra.Command{
	Use:   "schema <file>",
	Short: "Show the inferred field types and roles of an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := policy.FromConfig(cfg.Engine)
		if err != nil {
			return err
		}
		src := source.NewFile(fetcher.NewRouter(), model.Collection(schemaCollection), config.SourceConfig{
			Kind:     config.SourceFile,
			Path:     args[0],
			Sheet:    schemaSheet,
			SkipRows: schemaSkipRows,
		})
		raw, err := src.Fetch(cmd.Context())
		if err != nil {
			return err
		}

		schema := sanitize.InferSchema(p, raw.Collection, raw.Records, raw.Schema)
		formatSchema(os.Stdout, schema, len(raw.Records))
		return nil
	},
}

func formatSchema(w io.Writer, s *model.Schema, records int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tROLE")
	for _, f := range s.Fields {
		role := "-"
		if r, ok := s.RoleOf(f.Name); ok {
			role = string(r)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Type, role)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d records", records)
	if missing := s.Missing(s.Required...); len(missing) > 0 {
		fmt.Fprintf(w, ", missing required roles: %v", missing)
	}
	fmt.Fprintln(w)
}

func init() {
	schemaCmd.Flags().StringVar(&schemaCollection, "collection", string(model.CollectionPipeline), "collection the file holds (pipeline or execution)")
	schemaCmd.Flags().StringVar(&schemaSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	schemaCmd.Flags().IntVar(&schemaSkipRows, "skip-rows", 0, "rows to skip before the header")
	rootCmd.AddCommand(schemaCmd)
}
