package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dukerupert/pawlog/internal/backup"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take an encrypted snapshot and upload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.server()
			if err != nil {
				return err
			}
			mgr := srv.BackupManager()

			b, err := mgr.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := mgr.Cleanup(cmd.Context()); err != nil {
				a.logger.Warn("backup cleanup failed", "error", err)
			}
			renderBackups(cmd.OutOrStdout(), []backup.Record{*b})
			return nil
		},
	}
	cmd.AddCommand(newBackupListCmd())
	return cmd
}

func newBackupListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.server()
			if err != nil {
				return err
			}
			backups, err := srv.BackupManager().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderBackups(cmd.OutOrStdout(), backups)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of backups to show")
	return cmd
}

func renderBackups(out io.Writer, backups []backup.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Status", "Size", "Created", "Key", "Error"})
	for _, b := range backups {
		t.AppendRow(table.Row{
			b.ID,
			b.Status,
			humanize.Bytes(uint64(b.SizeBytes)),
			b.CreatedAt.Local().Format(time.DateTime),
			b.S3Key,
			b.ErrorMessage,
		})
	}
	t.Render()
	fmt.Fprintf(out, "%d backups\n", len(backups))
}
