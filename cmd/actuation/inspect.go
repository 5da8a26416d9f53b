package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/actuation/datarecording"
	"github.com/sarchlab/actuation/tracing"
)

func newInspectCmd() *cobra.Command {
	var (
		table string
		where string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "inspect <database>",
		Short: "Summarize a telemetry recording.",
		Long: `Print the tables of a recording with their row counts, or ` +
			`the rows of one table with --table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			reader, err := datarecording.NewReader(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			reader.MapTable(tracing.TickTable, tracing.TickRow{})
			reader.MapTable(tracing.EngagementTable, tracing.EngagementRow{})
			reader.MapTable(tracing.FrameTable, tracing.FrameRow{})
			reader.MapTable("exec_info", datarecording.ExecInfo{})

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if table == "" {
				tables, err := reader.Tables(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TABLE\tROWS")

				for _, t := range tables {
					n, err := reader.Count(ctx, t)
					if err != nil {
						return err
					}

					fmt.Fprintf(w, "%s\t%d\n", t, n)
				}

				return w.Flush()
			}

			rows, total, err := reader.Query(ctx, table, datarecording.QueryParams{
				Where: where,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			for _, row := range rows {
				fmt.Fprintln(out, strings.TrimPrefix(fmt.Sprintf("%+v", row), "&"))
			}

			fmt.Fprintf(out, "%d of %d rows\n", len(rows), total)

			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table to print")
	cmd.Flags().StringVar(&where, "where", "", "SQL condition on the rows")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows to print")

	return cmd
}
