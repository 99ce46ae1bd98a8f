package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-id> <dest.db>",
		Short: "Download and decrypt a backup into a new database file",
		Long: "restore writes the backup to a new file after an integrity check. " +
			"Stop the server and point PAWLOG_DB_PATH at the restored file to use it.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
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
			if err := srv.BackupManager().Restore(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored backup %d to %s\n", id, args[1])
			return nil
		},
	}
}
