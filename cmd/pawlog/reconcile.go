package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dukerupert/pawlog/internal/aggregate"
)

func newReconcileCmd() *cobra.Command {
	var (
		pet    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild calendar and weight buckets from the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.server()
			if err != nil {
				return err
			}

			var reports []aggregate.Report
			var runErr error
			if pet != "" {
				rep, err := srv.Reconciler().ReconcileOwner(cmd.Context(), pet)
				if err != nil {
					return err
				}
				reports = []aggregate.Report{rep}
			} else {
				// Partial results are still worth printing.
				reports, runErr = srv.Reconciler().ReconcileAll(cmd.Context())
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				renderReports(out, reports)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&pet, "pet", "", "Reconcile a single pet")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func renderReports(out io.Writer, reports []aggregate.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pet", "Aggregate", "Records", "Buckets", "Rewritten", "Emptied"})

	var rewritten int
	for _, rep := range reports {
		for _, res := range rep.Aggregates {
			t.AppendRow(table.Row{rep.Owner, res.Aggregate, res.Records, res.Buckets, res.Rewritten, res.Emptied})
			rewritten += res.Rewritten
		}
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d pets", len(reports)), "", "", "", rewritten, ""})
	t.Render()
}
